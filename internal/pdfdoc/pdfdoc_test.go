package pdfdoc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YunYun501/Lazy-Learn-V2/internal/domain"
	"github.com/YunYun501/Lazy-Learn-V2/internal/pdfdoc/pdftest"
)

func TestOutlineAndText(t *testing.T) {
	path := pdftest.WriteFile(t, "book.pdf",
		[]string{"Kinematics intro", "Velocity", "Forces intro", "Newton"},
		[]pdftest.Bookmark{
			{Title: "Kinematics", Page: 1, Children: []pdftest.Bookmark{{Title: "Velocity", Page: 2}}},
			{Title: "Forces", Page: 3},
		},
	)

	doc, err := Open(path)
	require.NoError(t, err)
	defer doc.Close()

	assert.Equal(t, 4, doc.NumPages())

	outline, err := doc.Outline()
	require.NoError(t, err)
	assert.Equal(t, []domain.OutlineEntry{
		{Level: 1, Title: "Kinematics", Page: 1},
		{Level: 2, Title: "Velocity", Page: 2},
		{Level: 1, Title: "Forces", Page: 3},
	}, outline)

	text, err := doc.PageText(3)
	require.NoError(t, err)
	assert.Contains(t, text, "Forces intro")

	_, err = doc.PageText(9)
	assert.Error(t, err)
}

func TestLeadingText_Capped(t *testing.T) {
	data := pdftest.Build([]string{"alpha", "beta", "gamma"}, nil)
	doc, err := OpenBytes(data)
	require.NoError(t, err)
	defer doc.Close()

	outline, err := doc.Outline()
	require.NoError(t, err)
	assert.Empty(t, outline)

	text, err := doc.LeadingText(2, 0)
	require.NoError(t, err)
	assert.Contains(t, text, "alpha")
	assert.Contains(t, text, "beta")
	assert.NotContains(t, text, "gamma")

	short, err := doc.LeadingText(5, 10)
	require.NoError(t, err)
	assert.Len(t, short, 10)
}
