package domain

import (
	"encoding/json"
	"fmt"
)

// Fragment is one typed piece of raw extractor output. The set of variants is
// closed: TextFragment, EquationFragment, TableFragment, FigureFragment,
// DiscardedFragment and UnknownFragment.
type Fragment interface {
	// PageIndex returns the batch-relative 0-based page, if the engine reported one.
	PageIndex() (int, bool)
	isFragment()
}

// TextFragment is a paragraph or heading.
type TextFragment struct {
	PageIdx *int
	Text    string
}

// EquationFragment is display math, already in markup form.
type EquationFragment struct {
	PageIdx *int
	Text    string
	Format  string
}

// TableFragment is a table. Text holds the engine's text rendering, Body the
// HTML body when the engine produced one.
type TableFragment struct {
	PageIdx  *int
	Text     string
	Body     string
	Caption  []string
	Footnote []string
	ImgPath  string
}

// FigureFragment is an image with optional captions and footnotes.
type FigureFragment struct {
	PageIdx  *int
	ImgPath  string
	Caption  []string
	Footnote []string
}

// DiscardedFragment is page noise such as running headers or footers.
type DiscardedFragment struct {
	PageIdx *int
	Text    string
}

// UnknownFragment is any type the engine emits that the pipeline does not handle.
type UnknownFragment struct {
	PageIdx *int
	Type    string
}

func pageIndex(p *int) (int, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}

func (f TextFragment) PageIndex() (int, bool)      { return pageIndex(f.PageIdx) }
func (f EquationFragment) PageIndex() (int, bool)  { return pageIndex(f.PageIdx) }
func (f TableFragment) PageIndex() (int, bool)     { return pageIndex(f.PageIdx) }
func (f FigureFragment) PageIndex() (int, bool)    { return pageIndex(f.PageIdx) }
func (f DiscardedFragment) PageIndex() (int, bool) { return pageIndex(f.PageIdx) }
func (f UnknownFragment) PageIndex() (int, bool)   { return pageIndex(f.PageIdx) }

func (TextFragment) isFragment()      {}
func (EquationFragment) isFragment()  {}
func (TableFragment) isFragment()     {}
func (FigureFragment) isFragment()    {}
func (DiscardedFragment) isFragment() {}
func (UnknownFragment) isFragment()   {}

// PageIdx returns a pointer to i, for building fragments.
func PageIdx(i int) *int {
	return &i
}

// RawFragment is the wire form of one content-list entry.
type RawFragment struct {
	Type          string   `json:"type"`
	PageIdx       *int     `json:"page_idx,omitempty"`
	Text          string   `json:"text,omitempty"`
	TextFormat    string   `json:"text_format,omitempty"`
	ImgPath       string   `json:"img_path,omitempty"`
	ImageCaption  []string `json:"image_caption,omitempty"`
	ImageFootnote []string `json:"image_footnote,omitempty"`
	TableBody     string   `json:"table_body,omitempty"`
	TableCaption  []string `json:"table_caption,omitempty"`
	TableFootnote []string `json:"table_footnote,omitempty"`
}

// Fragment converts the wire entry into its variant.
func (r RawFragment) Fragment() Fragment {
	switch r.Type {
	case "text":
		return TextFragment{PageIdx: r.PageIdx, Text: r.Text}
	case "equation", "interline_equation":
		return EquationFragment{PageIdx: r.PageIdx, Text: r.Text, Format: r.TextFormat}
	case "table":
		return TableFragment{
			PageIdx:  r.PageIdx,
			Text:     r.Text,
			Body:     r.TableBody,
			Caption:  r.TableCaption,
			Footnote: r.TableFootnote,
			ImgPath:  r.ImgPath,
		}
	case "image":
		return FigureFragment{
			PageIdx:  r.PageIdx,
			ImgPath:  r.ImgPath,
			Caption:  r.ImageCaption,
			Footnote: r.ImageFootnote,
		}
	case "discarded":
		return DiscardedFragment{PageIdx: r.PageIdx, Text: r.Text}
	default:
		return UnknownFragment{PageIdx: r.PageIdx, Type: r.Type}
	}
}

// DecodeContentList parses a content-list JSON array into fragments.
func DecodeContentList(data []byte) ([]Fragment, error) {
	var raw []RawFragment
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode content list: %w", err)
	}
	fragments := make([]Fragment, 0, len(raw))
	for _, r := range raw {
		fragments = append(fragments, r.Fragment())
	}
	return fragments, nil
}
