package extraction

import (
	"fmt"
	"strings"

	"github.com/YunYun501/Lazy-Learn-V2/internal/domain"
)

const (
	sectionLevel    = 2
	subsectionLevel = 3
)

// BuildSections derives a chapter's sections from a flat outline. Level 2
// entries inside the chapter's page range become sections and level 3 entries
// inside a section become its sub-sections. Each one ends the page before the
// next entry of the same or a higher level, or at its parent's end when no
// such entry follows. Entries that start before the previous sibling are
// ignored, so siblings share at most one page.
func BuildSections(entries []domain.OutlineEntry, chapterNumber string, pageStart, pageEnd int) []domain.SectionSpec {
	var (
		sections []domain.SectionSpec
		at       []int
	)
	for i, e := range entries {
		if e.Level != sectionLevel || e.Page < pageStart || e.Page > pageEnd {
			continue
		}
		if n := len(sections); n > 0 && e.Page < sections[n-1].PageStart {
			continue
		}
		sections = append(sections, domain.SectionSpec{
			SectionNumber: numbered(chapterNumber, len(sections)+1),
			Title:         strings.TrimSpace(e.Title),
			Level:         sectionLevel,
			PageStart:     e.Page,
			PageEnd:       boundaryEnd(entries, i, sectionLevel, pageEnd),
		})
		at = append(at, i)
	}
	trimSiblings(sections)
	for k := range sections {
		sections[k].Subsections = buildSubsections(entries, at[k], sections[k])
	}
	return sections
}

// buildSubsections scans the entries following the section at index parent
// up to the next entry of level 2 or higher.
func buildSubsections(entries []domain.OutlineEntry, parent int, sec domain.SectionSpec) []domain.SectionSpec {
	var subs []domain.SectionSpec
	for j := parent + 1; j < len(entries) && entries[j].Level > sectionLevel; j++ {
		e := entries[j]
		if e.Level != subsectionLevel || e.Page < sec.PageStart || e.Page > sec.PageEnd {
			continue
		}
		if n := len(subs); n > 0 && e.Page < subs[n-1].PageStart {
			continue
		}
		subs = append(subs, domain.SectionSpec{
			SectionNumber: numbered(sec.SectionNumber, len(subs)+1),
			Title:         strings.TrimSpace(e.Title),
			Level:         subsectionLevel,
			PageStart:     e.Page,
			PageEnd:       boundaryEnd(entries, j, subsectionLevel, sec.PageEnd),
		})
	}
	trimSiblings(subs)
	return subs
}

// boundaryEnd looks ahead from entries[i] to the next entry whose level is
// at most level. The result never precedes the entry's own page and never
// passes parentEnd.
func boundaryEnd(entries []domain.OutlineEntry, i, level, parentEnd int) int {
	start := entries[i].Page
	end := parentEnd
	for _, next := range entries[i+1:] {
		if next.Level <= level {
			end = next.Page - 1
			break
		}
	}
	if end < start {
		end = start
	}
	if end > parentEnd {
		end = parentEnd
	}
	return end
}

// trimSiblings stops each sibling no later than the page the next one starts
// on. Starts must already be non-decreasing.
func trimSiblings(siblings []domain.SectionSpec) {
	for k := 0; k+1 < len(siblings); k++ {
		next := siblings[k+1].PageStart
		if siblings[k].PageEnd > next {
			siblings[k].PageEnd = max(siblings[k].PageStart, next-1)
		}
	}
}

func numbered(prefix string, n int) string {
	if prefix == "" {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%s.%d", prefix, n)
}
