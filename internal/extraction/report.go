package extraction

import (
	"github.com/YunYun501/Lazy-Learn-V2/internal/domain"
)

// ChapterOutcome is the result of extracting one chapter.
type ChapterOutcome struct {
	ChapterID     string
	ChapterNumber string
	Status        domain.ExtractionStatus
	Contents      int
	Err           error
}

// Succeeded reports whether the chapter was extracted.
func (o ChapterOutcome) Succeeded() bool {
	return o.Err == nil && o.Status == domain.ExtractionStatusExtracted
}

// Report collects per-chapter outcomes of one extraction call, in page order.
type Report struct {
	DocumentID string
	Batches    int
	Outcomes   []ChapterOutcome
}

// Extracted lists the IDs of chapters that were extracted.
func (r *Report) Extracted() []string {
	var ids []string
	for _, o := range r.Outcomes {
		if o.Succeeded() {
			ids = append(ids, o.ChapterID)
		}
	}
	return ids
}

// Failed lists the IDs of chapters that ended in error.
func (r *Report) Failed() []string {
	var ids []string
	for _, o := range r.Outcomes {
		if !o.Succeeded() {
			ids = append(ids, o.ChapterID)
		}
	}
	return ids
}

// Outcome returns the outcome of a chapter.
func (r *Report) Outcome(chapterID string) (ChapterOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.ChapterID == chapterID {
			return o, true
		}
	}
	return ChapterOutcome{}, false
}

// BatchEvent is delivered to an Observer after every batch.
type BatchEvent struct {
	DocumentID string
	Batch      int // 1-based
	Batches    int
	StartPage  int
	EndPage    int
	ChapterIDs []string
	Err        error
}

// Observer receives batch progress. It runs on the extracting goroutine and
// must not block.
type Observer func(BatchEvent)
