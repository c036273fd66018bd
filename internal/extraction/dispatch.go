package extraction

import (
	"strings"

	"github.com/YunYun501/Lazy-Learn-V2/internal/domain"
)

// contentOf maps a fragment to the persisted content type, optional title and
// payload. ok is false for fragment kinds that are not persisted.
func contentOf(f domain.Fragment) (ct domain.ContentType, title *string, content string, ok bool) {
	switch v := f.(type) {
	case domain.TextFragment:
		return domain.ContentTypeText, nil, v.Text, true
	case domain.EquationFragment:
		return domain.ContentTypeEquation, nil, v.Text, true
	case domain.TableFragment:
		content = v.Text
		if strings.TrimSpace(content) == "" {
			content = v.Body
		}
		return domain.ContentTypeTable, nil, content, true
	case domain.FigureFragment:
		title = firstCaption(v.Caption)
		return domain.ContentTypeFigure, title, figureMarkdown(title, v.ImgPath, v.Footnote), true
	case domain.DiscardedFragment, domain.UnknownFragment:
		return "", nil, "", false
	default:
		return "", nil, "", false
	}
}

func firstCaption(captions []string) *string {
	for _, c := range captions {
		if c = strings.TrimSpace(c); c != "" {
			return &c
		}
	}
	return nil
}

func figureMarkdown(title *string, imgPath string, footnotes []string) string {
	var parts []string
	alt := "figure"
	if title != nil {
		parts = append(parts, "# "+*title)
		alt = *title
	}
	if imgPath != "" {
		parts = append(parts, "!["+alt+"]("+imgPath+")")
	}
	parts = append(parts, footnotes...)
	return strings.Join(parts, "\n\n")
}

// buildContents turns a chapter's routed fragments into content rows with a
// consecutive 1-based order_index.
func buildContents(chapterID string, routed []Routed) []*domain.ExtractedContent {
	contents := make([]*domain.ExtractedContent, 0, len(routed))
	for _, r := range routed {
		ct, title, content, ok := contentOf(r.Fragment)
		if !ok {
			continue
		}
		contents = append(contents, &domain.ExtractedContent{
			ChapterID:   chapterID,
			ContentType: ct,
			Title:       title,
			Content:     content,
			PageNumber:  r.Page,
			OrderIndex:  len(contents) + 1,
		})
	}
	return contents
}
