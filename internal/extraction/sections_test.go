package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YunYun501/Lazy-Learn-V2/internal/domain"
)

func TestBuildSections(t *testing.T) {
	outline := []domain.OutlineEntry{
		{Level: 1, Title: "Kinematics", Page: 1},
		{Level: 2, Title: "Displacement", Page: 2},
		{Level: 3, Title: "Vectors", Page: 2},
		{Level: 3, Title: "Frames", Page: 4},
		{Level: 2, Title: "Velocity", Page: 6},
		{Level: 2, Title: "Acceleration", Page: 9},
		{Level: 1, Title: "Forces", Page: 12},
		{Level: 2, Title: "Newton", Page: 13},
	}

	sections := BuildSections(outline, "1", 1, 11)
	require.Len(t, sections, 3)

	assert.Equal(t, domain.SectionSpec{
		SectionNumber: "1.1",
		Title:         "Displacement",
		Level:         2,
		PageStart:     2,
		PageEnd:       5,
		Subsections: []domain.SectionSpec{
			{SectionNumber: "1.1.1", Title: "Vectors", Level: 3, PageStart: 2, PageEnd: 3},
			{SectionNumber: "1.1.2", Title: "Frames", Level: 3, PageStart: 4, PageEnd: 5},
		},
	}, sections[0])

	assert.Equal(t, 6, sections[1].PageStart)
	assert.Equal(t, 8, sections[1].PageEnd)
	assert.Empty(t, sections[1].Subsections)

	// Ends the page before the next chapter starts.
	assert.Equal(t, 9, sections[2].PageStart)
	assert.Equal(t, 11, sections[2].PageEnd)

	toc := domain.TOC{Chapters: []domain.ChapterSpec{{Title: "Kinematics", PageStart: 1, PageEnd: 11, Sections: sections}}}
	assert.NoError(t, toc.Validate())
}

func TestBuildSections_LastSectionDefaultsToChapterEnd(t *testing.T) {
	outline := []domain.OutlineEntry{
		{Level: 1, Title: "Only", Page: 1},
		{Level: 2, Title: "Intro", Page: 1},
		{Level: 2, Title: "Outro", Page: 7},
	}

	sections := BuildSections(outline, "", 1, 10)
	require.Len(t, sections, 2)
	assert.Equal(t, "1", sections[0].SectionNumber)
	assert.Equal(t, 6, sections[0].PageEnd)
	assert.Equal(t, 10, sections[1].PageEnd)
}

func TestBuildSections_SamePageBoundaryKeepsOnePage(t *testing.T) {
	outline := []domain.OutlineEntry{
		{Level: 2, Title: "A", Page: 3},
		{Level: 2, Title: "B", Page: 3},
	}

	sections := BuildSections(outline, "2", 3, 5)
	require.Len(t, sections, 2)
	assert.Equal(t, 3, sections[0].PageEnd)
	assert.Equal(t, 5, sections[1].PageEnd)

	toc := domain.TOC{Chapters: []domain.ChapterSpec{{Title: "2", PageStart: 3, PageEnd: 5, Sections: sections}}}
	assert.NoError(t, toc.Validate(), "siblings sharing only their heading page are valid")
}

func TestBuildSections_OutOfOrderOutlineNeverOverlaps(t *testing.T) {
	outline := []domain.OutlineEntry{
		{Level: 2, Title: "A", Page: 2},
		{Level: 2, Title: "Stray", Page: 40},
		{Level: 2, Title: "Back", Page: 1},
		{Level: 2, Title: "B", Page: 4},
		{Level: 3, Title: "B.1", Page: 6},
		{Level: 3, Title: "B.0", Page: 4},
	}

	sections := BuildSections(outline, "1", 1, 10)
	require.Len(t, sections, 2)
	assert.Equal(t, "A", sections[0].Title)
	assert.Equal(t, 2, sections[0].PageStart)
	assert.Equal(t, 3, sections[0].PageEnd)
	assert.Equal(t, "B", sections[1].Title)
	assert.Equal(t, "1.2", sections[1].SectionNumber)
	require.Len(t, sections[1].Subsections, 1)
	assert.Equal(t, "B.1", sections[1].Subsections[0].Title)
	assert.Equal(t, 10, sections[1].PageEnd)

	toc := domain.TOC{Chapters: []domain.ChapterSpec{{Title: "1", PageStart: 1, PageEnd: 10, Sections: sections}}}
	assert.NoError(t, toc.Validate())
}

func TestBuildSections_IgnoresEntriesOutsideChapter(t *testing.T) {
	outline := []domain.OutlineEntry{
		{Level: 2, Title: "Elsewhere", Page: 40},
		{Level: 3, Title: "Orphan", Page: 2},
	}
	assert.Empty(t, BuildSections(outline, "1", 1, 10))
}

func TestFigureMarkdown(t *testing.T) {
	title := "Figure 3"
	assert.Equal(t, "# Figure 3\n\n![Figure 3](a.png)", figureMarkdown(&title, "a.png", nil))
	assert.Equal(t, "![figure](a.png)\n\nnote", figureMarkdown(nil, "a.png", []string{"note"}))
	assert.Equal(t, "", figureMarkdown(nil, "", nil))
}
