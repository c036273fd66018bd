package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeContentList_Variants(t *testing.T) {
	data := []byte(`[
		{"type": "text", "text": "Intro", "page_idx": 0},
		{"type": "equation", "text": "$$E=mc^2$$", "text_format": "latex", "page_idx": 0},
		{"type": "table", "table_body": "<table></table>", "page_idx": 1},
		{"type": "image", "img_path": "images/a.jpg", "image_caption": ["Fig 1"], "page_idx": 1},
		{"type": "discarded", "text": "header", "page_idx": 1},
		{"type": "code", "page_idx": 2},
		{"type": "text", "text": "floating"}
	]`)

	fragments, err := DecodeContentList(data)
	require.NoError(t, err)
	require.Len(t, fragments, 7)

	assert.Equal(t, TextFragment{PageIdx: PageIdx(0), Text: "Intro"}, fragments[0])
	assert.IsType(t, EquationFragment{}, fragments[1])
	assert.Equal(t, "<table></table>", fragments[2].(TableFragment).Body)
	assert.Equal(t, []string{"Fig 1"}, fragments[3].(FigureFragment).Caption)
	assert.IsType(t, DiscardedFragment{}, fragments[4])
	assert.Equal(t, "code", fragments[5].(UnknownFragment).Type)

	page, ok := fragments[3].PageIndex()
	assert.True(t, ok)
	assert.Equal(t, 1, page)

	_, ok = fragments[6].PageIndex()
	assert.False(t, ok)
}

func TestDecodeContentList_Malformed(t *testing.T) {
	_, err := DecodeContentList([]byte(`{"not": "a list"}`))
	assert.Error(t, err)
}

func TestTOCValidate(t *testing.T) {
	good := TOC{Chapters: []ChapterSpec{
		{Title: "B", PageStart: 5, PageEnd: 9},
		{Title: "A", PageStart: 1, PageEnd: 4, Sections: []SectionSpec{
			{Title: "A.1", Level: 2, PageStart: 1, PageEnd: 2, Subsections: []SectionSpec{
				{Title: "A.1.1", Level: 3, PageStart: 2, PageEnd: 2},
			}},
		}},
	}}
	assert.NoError(t, good.Validate())

	overlap := TOC{Chapters: []ChapterSpec{
		{Title: "A", PageStart: 1, PageEnd: 5},
		{Title: "B", PageStart: 5, PageEnd: 9},
	}}
	assert.ErrorIs(t, overlap.Validate(), ErrValidation)

	inverted := TOC{Chapters: []ChapterSpec{{Title: "A", PageStart: 4, PageEnd: 2}}}
	assert.Error(t, inverted.Validate())

	tooDeep := TOC{Chapters: []ChapterSpec{{Title: "A", PageStart: 1, PageEnd: 9, Sections: []SectionSpec{
		{Title: "A.1", PageStart: 1, PageEnd: 9, Subsections: []SectionSpec{
			{Title: "A.1.1", PageStart: 1, PageEnd: 2, Subsections: []SectionSpec{{Title: "x", PageStart: 1, PageEnd: 1}}},
		}},
	}}}}
	assert.Error(t, tooDeep.Validate())
}

func TestTOCValidate_SiblingSections(t *testing.T) {
	sharedPage := TOC{Chapters: []ChapterSpec{{Title: "A", PageStart: 3, PageEnd: 5, Sections: []SectionSpec{
		{Title: "A.1", Level: 2, PageStart: 3, PageEnd: 3},
		{Title: "A.2", Level: 2, PageStart: 3, PageEnd: 5},
	}}}}
	assert.NoError(t, sharedPage.Validate())

	overlapping := TOC{Chapters: []ChapterSpec{{Title: "A", PageStart: 1, PageEnd: 9, Sections: []SectionSpec{
		{Title: "A.2", Level: 2, PageStart: 4, PageEnd: 9},
		{Title: "A.1", Level: 2, PageStart: 1, PageEnd: 6},
	}}}}
	assert.ErrorIs(t, overlapping.Validate(), ErrValidation)

	overlappingSubs := TOC{Chapters: []ChapterSpec{{Title: "A", PageStart: 1, PageEnd: 9, Sections: []SectionSpec{
		{Title: "A.1", Level: 2, PageStart: 1, PageEnd: 9, Subsections: []SectionSpec{
			{Title: "A.1.1", Level: 3, PageStart: 1, PageEnd: 5},
			{Title: "A.1.2", Level: 3, PageStart: 2, PageEnd: 9},
		}},
	}}}}
	assert.ErrorIs(t, overlappingSubs.Validate(), ErrValidation)
}

func TestMaterialSummaryTopics(t *testing.T) {
	s := MaterialSummary{SummaryJSON: []byte(`{"topics":[{"title":"Kinematics","description":"motion"}]}`)}
	topics, err := s.Topics()
	require.NoError(t, err)
	assert.Equal(t, []Topic{{Title: "Kinematics", Description: "motion"}}, topics)

	empty := MaterialSummary{}
	topics, err = empty.Topics()
	require.NoError(t, err)
	assert.Empty(t, topics)
}
