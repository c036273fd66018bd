package raw

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/YunYun501/Lazy-Learn-V2/internal/domain"
)

// Limited bounds the number of concurrent extractions of the wrapped engine
// and applies a per-call timeout. Waiting for a slot honours ctx.
type Limited struct {
	next    Extractor
	slots   *semaphore.Weighted
	timeout time.Duration
}

// NewLimited wraps next. maxConcurrent below 1 means one slot; a zero timeout
// disables the per-call deadline.
func NewLimited(next Extractor, maxConcurrent int64, timeout time.Duration) *Limited {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Limited{
		next:    next,
		slots:   semaphore.NewWeighted(maxConcurrent),
		timeout: timeout,
	}
}

// ExtractRange implements Extractor.
func (l *Limited) ExtractRange(ctx context.Context, pdf []byte, startPageID, endPageID int) ([]domain.Fragment, error) {
	if err := l.slots.Acquire(ctx, 1); err != nil {
		return nil, domain.ExtractionFailedError("waiting for an extraction slot", err)
	}
	defer l.slots.Release(1)

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	return l.next.ExtractRange(ctx, pdf, startPageID, endPageID)
}
