package toc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YunYun501/Lazy-Learn-V2/internal/domain"
	"github.com/YunYun501/Lazy-Learn-V2/internal/pdfdoc/pdftest"
)

type fakeDocuments map[string]*domain.Document

func (f fakeDocuments) GetByID(_ context.Context, id string) (*domain.Document, error) {
	doc, ok := f[id]
	if !ok {
		return nil, domain.NotFoundError("document " + id)
	}
	return doc, nil
}

type fakeCompleter struct {
	reply string
	err   error
	calls int
	user  string
}

func (f *fakeCompleter) CompleteJSON(_ context.Context, _, user string, out interface{}) error {
	f.calls++
	f.user = user
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.reply), out)
}

func TestExtractTOC_Bookmarks(t *testing.T) {
	path := pdftest.WriteFile(t, "book.pdf",
		[]string{"Kinematics", "Velocity", "Acceleration", "Forces", "Newton", "Energy"},
		[]pdftest.Bookmark{
			{Title: "Kinematics", Page: 1, Children: []pdftest.Bookmark{
				{Title: "Velocity", Page: 2},
				{Title: "Acceleration", Page: 3},
			}},
			{Title: "Forces", Page: 4},
		},
	)
	ai := &fakeCompleter{}
	svc := NewService(fakeDocuments{"d1": {ID: "d1", FilePath: path}}, ai, Config{}, nil)

	toc, err := svc.ExtractTOC(context.Background(), "d1")
	require.NoError(t, err)
	assert.Zero(t, ai.calls)

	assert.Equal(t, SourceBookmarks, toc.Source)
	assert.Equal(t, 6, toc.TotalPages)
	require.Len(t, toc.Chapters, 2)

	first := toc.Chapters[0]
	assert.Equal(t, "1", first.ChapterNumber)
	assert.Equal(t, "Kinematics", first.Title)
	assert.Equal(t, 1, first.PageStart)
	assert.Equal(t, 3, first.PageEnd)
	require.Len(t, first.Sections, 2)
	assert.Equal(t, "Velocity", first.Sections[0].Title)
	assert.Equal(t, 2, first.Sections[0].PageEnd)
	assert.Equal(t, 3, first.Sections[1].PageEnd)

	second := toc.Chapters[1]
	assert.Equal(t, 4, second.PageStart)
	assert.Equal(t, 6, second.PageEnd)
	assert.Empty(t, second.Sections)
}

func TestExtractTOC_AIFallback(t *testing.T) {
	path := pdftest.WriteFile(t, "slides.pdf",
		[]string{"Contents: Waves p2, Optics p4", "Waves", "More waves", "Optics"}, nil)
	ai := &fakeCompleter{reply: `{"chapters":[{"title":"Optics","page":4},{"title":"Waves","page":2},{"title":"Ghost","page":99}]}`}
	svc := NewService(fakeDocuments{"d1": {ID: "d1", FilePath: path}}, ai, Config{FallbackPages: 2}, nil)

	toc, err := svc.ExtractTOC(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, 1, ai.calls)
	assert.Contains(t, ai.user, "Contents: Waves p2")
	assert.NotContains(t, ai.user, "--- Page 3 ---")

	assert.Equal(t, SourceAI, toc.Source)
	require.Len(t, toc.Chapters, 2)
	assert.Equal(t, "Waves", toc.Chapters[0].Title)
	assert.Equal(t, 2, toc.Chapters[0].PageStart)
	assert.Equal(t, 3, toc.Chapters[0].PageEnd)
	assert.Equal(t, "Optics", toc.Chapters[1].Title)
	assert.Equal(t, 4, toc.Chapters[1].PageEnd)
}

func TestExtractTOC_FullDocumentFallback(t *testing.T) {
	path := pdftest.WriteFile(t, "notes.pdf", []string{"a", "b", "c"}, nil)

	for name, ai := range map[string]JSONCompleter{
		"no ai":         nil,
		"ai fails":      &fakeCompleter{err: errors.New("rate limited")},
		"ai finds none": &fakeCompleter{reply: `{"chapters":[]}`},
	} {
		t.Run(name, func(t *testing.T) {
			svc := NewService(fakeDocuments{"d1": {ID: "d1", FilePath: path}}, ai, Config{}, nil)

			toc, err := svc.ExtractTOC(context.Background(), "d1")
			require.NoError(t, err)
			assert.Equal(t, SourceFallback, toc.Source)
			assert.Equal(t, []domain.ChapterSpec{
				{ChapterNumber: "1", Title: FullDocumentTitle, PageStart: 1, PageEnd: 3},
			}, toc.Chapters)
		})
	}
}

func TestExtractTOC_NotFound(t *testing.T) {
	svc := NewService(fakeDocuments{}, nil, Config{}, nil)

	_, err := svc.ExtractTOC(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExtractTOC_UnreadableFile(t *testing.T) {
	svc := NewService(fakeDocuments{"d1": {ID: "d1", FilePath: "/nonexistent/book.pdf"}}, nil, Config{}, nil)

	_, err := svc.ExtractTOC(context.Background(), "d1")
	assert.ErrorIs(t, err, domain.ErrExtractionFailed)
}

func TestBuildTOC_ClampsAndSkipsOverlaps(t *testing.T) {
	toc := BuildTOC([]domain.OutlineEntry{
		{Level: 1, Title: "Part I", Page: 3},
		{Level: 1, Title: "Chapter 1", Page: 3},
		{Level: 1, Title: "", Page: 5},
		{Level: 1, Title: "Appendix", Page: 50},
	}, 10)

	require.Len(t, toc.Chapters, 2)
	assert.Equal(t, "Part I", toc.Chapters[0].Title)
	assert.Equal(t, 3, toc.Chapters[0].PageStart)
	assert.Equal(t, 9, toc.Chapters[0].PageEnd)
	assert.Equal(t, "Appendix", toc.Chapters[1].Title)
	assert.Equal(t, 10, toc.Chapters[1].PageStart)
	assert.Equal(t, 10, toc.Chapters[1].PageEnd)
	assert.NoError(t, toc.Validate())
}

func TestNormalizeLevels(t *testing.T) {
	got := normalizeLevels([]domain.OutlineEntry{
		{Level: 2, Title: "A", Page: 1},
		{Level: 3, Title: "A.1", Page: 2},
	})
	assert.Equal(t, 1, got[0].Level)
	assert.Equal(t, 2, got[1].Level)
	assert.Nil(t, normalizeLevels(nil))
}
