package extraction

import (
	"sort"

	"github.com/YunYun501/Lazy-Learn-V2/internal/domain"
)

// Batch is a run of page-contiguous chapters extracted with one raw call.
type Batch struct {
	Chapters  []*domain.Chapter
	StartPage int
	EndPage   int
}

// StartPageID is the 0-based first page of the batch.
func (b Batch) StartPageID() int { return b.StartPage - 1 }

// EndPageID is the 0-based last page of the batch.
func (b Batch) EndPageID() int { return b.EndPage - 1 }

// AbsolutePage converts a batch-relative 0-based page index into a 1-based
// document page number.
func (b Batch) AbsolutePage(pageIdx int) int {
	return b.StartPageID() + pageIdx + 1
}

// ChapterFor returns the chapter of the batch containing the 1-based page.
func (b Batch) ChapterFor(page int) *domain.Chapter {
	for _, ch := range b.Chapters {
		if ch.Contains(page) {
			return ch
		}
	}
	return nil
}

// ChapterIDs lists the IDs of the batch's chapters in page order.
func (b Batch) ChapterIDs() []string {
	ids := make([]string, len(b.Chapters))
	for i, ch := range b.Chapters {
		ids[i] = ch.ID
	}
	return ids
}

// BatchContiguous orders chapters by page_start and groups them into runs
// where each chapter starts on the page after the previous one ends.
func BatchContiguous(chapters []*domain.Chapter) []Batch {
	ordered := make([]*domain.Chapter, len(chapters))
	copy(ordered, chapters)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].PageStart < ordered[j].PageStart
	})

	var batches []Batch
	for _, ch := range ordered {
		if n := len(batches); n > 0 && batches[n-1].EndPage+1 == ch.PageStart {
			batches[n-1].Chapters = append(batches[n-1].Chapters, ch)
			batches[n-1].EndPage = ch.PageEnd
			continue
		}
		batches = append(batches, Batch{
			Chapters:  []*domain.Chapter{ch},
			StartPage: ch.PageStart,
			EndPage:   ch.PageEnd,
		})
	}
	return batches
}

// Route assigns fragments to the batch's chapters by rebased page. Discarded
// fragments, fragments without a page index and fragments outside every
// chapter are dropped. Fragment order is preserved per chapter.
func (b Batch) Route(fragments []domain.Fragment) map[string][]Routed {
	routed := make(map[string][]Routed, len(b.Chapters))
	for _, f := range fragments {
		if _, ok := f.(domain.DiscardedFragment); ok {
			continue
		}
		idx, ok := f.PageIndex()
		if !ok {
			continue
		}
		page := b.AbsolutePage(idx)
		ch := b.ChapterFor(page)
		if ch == nil {
			continue
		}
		routed[ch.ID] = append(routed[ch.ID], Routed{Fragment: f, Page: page})
	}
	return routed
}

// Routed is a fragment with its absolute page number.
type Routed struct {
	Fragment domain.Fragment
	Page     int
}
