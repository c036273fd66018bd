package raw

import (
	"context"
	"fmt"
	"strings"

	"github.com/YunYun501/Lazy-Learn-V2/internal/domain"
	"github.com/YunYun501/Lazy-Learn-V2/internal/observability"
	"github.com/YunYun501/Lazy-Learn-V2/internal/pdfdoc"
)

// Fitz is a text-only engine over the PDF text layer: one text fragment per
// non-blank page. It needs no external tooling but finds no tables, figures
// or equations.
type Fitz struct {
	logger *observability.Logger
}

// NewFitz creates a fitz text engine.
func NewFitz(logger *observability.Logger) *Fitz {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Fitz{logger: logger}
}

// ExtractRange implements Extractor.
func (f *Fitz) ExtractRange(ctx context.Context, pdf []byte, startPageID, endPageID int) ([]domain.Fragment, error) {
	if err := checkRange(startPageID, endPageID); err != nil {
		return nil, err
	}

	doc, err := pdfdoc.OpenBytes(pdf)
	if err != nil {
		return nil, domain.ExtractionFailedError("open pdf", err)
	}
	defer doc.Close()

	pages := doc.NumPages()
	if startPageID >= pages {
		return nil, domain.ExtractionFailedError(fmt.Sprintf("page %d is beyond the last page %d", startPageID+1, pages), nil)
	}
	if endPageID >= pages {
		endPageID = pages - 1
	}

	var fragments []domain.Fragment
	for id := startPageID; id <= endPageID; id++ {
		if err := ctx.Err(); err != nil {
			return nil, domain.ExtractionFailedError("extraction interrupted", err)
		}
		text, err := doc.PageText(id + 1)
		if err != nil {
			return nil, domain.ExtractionFailedError(fmt.Sprintf("read page %d", id+1), err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		fragments = append(fragments, domain.TextFragment{
			PageIdx: domain.PageIdx(id - startPageID),
			Text:    text,
		})
	}

	f.logger.Debug().
		Int("start_page_id", startPageID).
		Int("end_page_id", endPageID).
		Int("fragments", len(fragments)).
		Msg("Extracted page text")
	return fragments, nil
}
