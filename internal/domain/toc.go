package domain

import (
	"fmt"
	"sort"
)

// OutlineEntry is one flat table-of-contents entry: bookmark or AI-detected.
type OutlineEntry struct {
	Level int    `json:"level"`
	Title string `json:"title"`
	Page  int    `json:"page"`
}

// TOC is the result of table-of-contents discovery for a document.
type TOC struct {
	TotalPages int           `json:"total_pages"`
	Source     string        `json:"source"`
	Chapters   []ChapterSpec `json:"chapters"`
}

// ChapterSpec describes a chapter to be created.
type ChapterSpec struct {
	ChapterNumber string        `json:"chapter_number"`
	Title         string        `json:"title"`
	PageStart     int           `json:"page_start"`
	PageEnd       int           `json:"page_end"`
	Sections      []SectionSpec `json:"sections,omitempty"`
}

// SectionSpec describes a section or sub-section to be created.
type SectionSpec struct {
	SectionNumber string        `json:"section_number"`
	Title         string        `json:"title"`
	Level         int           `json:"level"`
	PageStart     int           `json:"page_start"`
	PageEnd       int           `json:"page_end"`
	Subsections   []SectionSpec `json:"subsections,omitempty"`
}

// Validate checks the page-range invariants: every range is 1-based with
// start <= end, chapters do not overlap, sections stay inside their parent
// and sub-sections carry no further nesting. Sibling sections are page
// granular: two headings printed on the same page both claim it, so siblings
// may share their boundary page but no more.
func (t *TOC) Validate() error {
	chapters := make([]ChapterSpec, len(t.Chapters))
	copy(chapters, t.Chapters)
	sort.SliceStable(chapters, func(i, j int) bool { return chapters[i].PageStart < chapters[j].PageStart })

	for i, ch := range chapters {
		if ch.PageStart < 1 || ch.PageStart > ch.PageEnd {
			return ValidationError(fmt.Sprintf("chapter %q has invalid range %d-%d", ch.Title, ch.PageStart, ch.PageEnd), nil)
		}
		if i > 0 && chapters[i-1].PageEnd >= ch.PageStart {
			return ValidationError(fmt.Sprintf("chapter %q overlaps chapter %q", ch.Title, chapters[i-1].Title), nil)
		}
		for _, sec := range ch.Sections {
			if err := validateSection(sec, ch.PageStart, ch.PageEnd, true); err != nil {
				return err
			}
		}
		if err := validateSiblings(ch.Sections); err != nil {
			return err
		}
	}
	return nil
}

func validateSection(sec SectionSpec, parentStart, parentEnd int, allowNested bool) error {
	if sec.PageStart > sec.PageEnd || sec.PageStart < parentStart || sec.PageEnd > parentEnd {
		return ValidationError(fmt.Sprintf("section %q range %d-%d outside parent %d-%d",
			sec.Title, sec.PageStart, sec.PageEnd, parentStart, parentEnd), nil)
	}
	if len(sec.Subsections) > 0 && !allowNested {
		return ValidationError(fmt.Sprintf("sub-section %q cannot be nested further", sec.Title), nil)
	}
	for _, sub := range sec.Subsections {
		if err := validateSection(sub, sec.PageStart, sec.PageEnd, false); err != nil {
			return err
		}
	}
	return validateSiblings(sec.Subsections)
}

func validateSiblings(sections []SectionSpec) error {
	sorted := make([]SectionSpec, len(sections))
	copy(sorted, sections)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].PageStart < sorted[j].PageStart })
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if prev.PageEnd > cur.PageStart {
			return ValidationError(fmt.Sprintf("section %q overlaps section %q beyond page %d",
				cur.Title, prev.Title, cur.PageStart), nil)
		}
	}
	return nil
}
