package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YunYun501/Lazy-Learn-V2/internal/cache"
	"github.com/YunYun501/Lazy-Learn-V2/internal/domain"
	"github.com/YunYun501/Lazy-Learn-V2/internal/extraction"
)

func newTestRunner(t *testing.T, h *harness, opts ...Option) (*Runner, *cache.JobStatusCache) {
	t.Helper()
	client := cache.NewMemoryClient(100)
	t.Cleanup(func() { client.Close() })
	jobs := cache.NewJobStatusCache(client, time.Minute, nil)

	r := NewRunner(h.orch, h.repos.Documents, jobs, nil, opts...)
	h.extractor.Observe(r.OnBatch)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.Shutdown(ctx)
	})
	return r, jobs
}

func wait(t *testing.T, job *Job) PhaseResult {
	t.Helper()
	require.NotNil(t, job)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := job.Wait(ctx)
	require.NoError(t, err)
	return res
}

func TestRunner_ImportRunsTOCAndPreselects(t *testing.T) {
	h := newHarness(t)
	r, _ := newTestRunner(t, h)
	ctx := context.Background()

	imp, job, err := r.Import(ctx, ImportRequest{CourseID: h.course(t), FilePath: h.pdf(t, "book.pdf")})
	require.NoError(t, err)
	require.True(t, imp.OK(), imp.Error)
	assert.Equal(t, domain.PipelineStatusUploaded, imp.Status)

	res := wait(t, job)
	require.True(t, res.OK(), res.Error)
	assert.Equal(t, domain.PipelineStatusTOCExtracted, res.Status)
	assert.Equal(t, []domain.ExtractionStatus{
		domain.ExtractionStatusSelected,
		domain.ExtractionStatusPending,
		domain.ExtractionStatusPending,
		domain.ExtractionStatusPending,
		domain.ExtractionStatusPending,
	}, h.statuses(t, imp.DocumentID))
	assert.Equal(t, domain.ExtractionStatusSelected, res.Chapters[0].ExtractionStatus)

	status, err := r.Status(ctx, imp.DocumentID)
	require.NoError(t, err)
	assert.True(t, status.Cached)
	assert.Equal(t, domain.PipelineStatusTOCExtracted, status.PipelineStatus)
	assert.Equal(t, StepFinished, status.Step)
	assert.Equal(t, string(PhaseTOC), status.Phase)
}

func TestRunner_SingleChapterIsPreselected(t *testing.T) {
	h := newHarness(t)
	h.toc.toc = func() *domain.TOC {
		return &domain.TOC{TotalPages: 3, Chapters: []domain.ChapterSpec{
			{ChapterNumber: "1", Title: "Full Document", PageStart: 1, PageEnd: 3},
		}}
	}
	r, _ := newTestRunner(t, h)

	imp, job, err := r.Import(context.Background(), ImportRequest{FilePath: h.pdf(t, "slides.pdf")})
	require.NoError(t, err)
	res := wait(t, job)
	require.True(t, res.OK(), res.Error)
	assert.Equal(t, []domain.ExtractionStatus{domain.ExtractionStatusSelected}, h.statuses(t, imp.DocumentID))
}

func TestRunner_ZeroThresholdOnlyPreselectsSingleChapters(t *testing.T) {
	h := newHarness(t)
	r, _ := newTestRunner(t, h, WithPreselectThreshold(0))

	imp, job, err := r.Import(context.Background(), ImportRequest{CourseID: h.course(t), FilePath: h.pdf(t, "book.pdf")})
	require.NoError(t, err)
	require.True(t, wait(t, job).OK())
	for _, s := range h.statuses(t, imp.DocumentID) {
		assert.Equal(t, domain.ExtractionStatusPending, s)
	}
}

func TestRunner_VerifyThenExtractDeferred(t *testing.T) {
	h := newHarness(t)
	r, jobs := newTestRunner(t, h)
	ctx := context.Background()

	imp, job, err := r.Import(ctx, ImportRequest{FilePath: h.pdf(t, "book.pdf")})
	require.NoError(t, err)
	toc := wait(t, job)
	require.True(t, toc.OK(), toc.Error)
	docID := imp.DocumentID

	verified, job, err := r.Verify(ctx, docID, ids(toc.Chapters, 0, 1))
	require.NoError(t, err)
	require.True(t, verified.OK(), verified.Error)
	assert.Equal(t, domain.PipelineStatusExtracting, verified.Status)

	res := wait(t, job)
	require.True(t, res.OK(), res.Error)
	assert.Equal(t, domain.PipelineStatusPartiallyExtracted, res.Status)

	cached, ok := jobs.Get(ctx, docID)
	require.True(t, ok)
	assert.Equal(t, StepFinished, cached.Step)

	deferred, job, err := r.ExtractDeferred(ctx, docID, ids(toc.Chapters, 2, 3, 4))
	require.NoError(t, err)
	require.True(t, deferred.OK(), deferred.Error)
	res = wait(t, job)
	require.True(t, res.OK(), res.Error)
	assert.Equal(t, domain.PipelineStatusFullyExtracted, res.Status)

	status, err := r.Status(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, domain.PipelineStatusFullyExtracted, status.PipelineStatus)
}

func TestRunner_RejectedRequestQueuesNothing(t *testing.T) {
	h := newHarness(t)
	r, _ := newTestRunner(t, h)
	ctx := context.Background()
	imp := h.orch.StartImport(ctx, "", "", h.pdf(t, "book.pdf"))

	res, job, err := r.Verify(ctx, imp.DocumentID, nil)
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.Equal(t, domain.ErrorTypeInvalidTransition, res.ErrorType)

	res, job, err = r.ExtractDeferred(ctx, imp.DocumentID, []string{"x"})
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.Equal(t, domain.ErrorTypeInvalidTransition, res.ErrorType)
	assert.Zero(t, h.engine.calls)
}

func TestRunner_FailedPhaseIsReported(t *testing.T) {
	h := newHarness(t)
	h.toc.err = errors.New("mutool crashed")
	r, _ := newTestRunner(t, h)
	ctx := context.Background()

	imp, job, err := r.Import(ctx, ImportRequest{FilePath: h.pdf(t, "book.pdf")})
	require.NoError(t, err)
	res := wait(t, job)
	assert.False(t, res.OK())
	assert.Equal(t, domain.ErrorTypePhaseFailed, res.ErrorType)

	status, err := r.Status(ctx, imp.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PipelineStatusError, status.PipelineStatus)
	assert.Equal(t, StepFailed, status.Step)
	assert.Contains(t, status.Message, "mutool crashed")

	// a retry through RunTOC recovers the document
	h.toc.mu.Lock()
	h.toc.err = nil
	h.toc.mu.Unlock()
	job, err = r.RunTOC(ctx, imp.DocumentID)
	require.NoError(t, err)
	assert.True(t, wait(t, job).OK())
}

func TestRunner_StatusPrefersPersistedState(t *testing.T) {
	h := newHarness(t)
	r, jobs := newTestRunner(t, h)
	ctx := context.Background()
	docID, _ := h.imported(t, "")

	jobs.Put(ctx, cache.JobStatus{DocumentID: docID, PipelineStatus: domain.PipelineStatusExtracting, Step: StepRunning})

	status, err := r.Status(ctx, docID)
	require.NoError(t, err)
	assert.False(t, status.Cached)
	assert.Equal(t, domain.PipelineStatusTOCExtracted, status.PipelineStatus)

	_, ok := jobs.Get(ctx, docID)
	assert.False(t, ok)

	_, err = r.Status(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRunner_OnBatchRecordsProgress(t *testing.T) {
	h := newHarness(t)
	r, jobs := newTestRunner(t, h)
	ctx := context.Background()

	r.OnBatch(extraction.BatchEvent{DocumentID: "doc", Batch: 2, Batches: 3, StartPage: 5, EndPage: 6})
	cached, ok := jobs.Get(ctx, "doc")
	require.True(t, ok)
	assert.Equal(t, StepBatch, cached.Step)
	assert.Equal(t, 2, cached.Done)
	assert.Equal(t, 3, cached.Total)
	assert.Equal(t, "pages 5-6", cached.Message)

	r.OnBatch(extraction.BatchEvent{DocumentID: "doc", Batch: 3, Batches: 3, StartPage: 9, EndPage: 10, Err: errors.New("timeout")})
	cached, ok = jobs.Get(ctx, "doc")
	require.True(t, ok)
	assert.Equal(t, "pages 9-10 failed: timeout", cached.Message)
}

func TestRunner_ConcurrentImports(t *testing.T) {
	h := newHarness(t)
	r, _ := newTestRunner(t, h, WithWorkers(3))
	ctx := context.Background()

	var jobs []*Job
	for _, name := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		_, job, err := r.Import(ctx, ImportRequest{FilePath: h.pdf(t, name)})
		require.NoError(t, err)
		jobs = append(jobs, job)
	}
	for _, job := range jobs {
		res := wait(t, job)
		require.True(t, res.OK(), res.Error)
		assert.Len(t, h.statuses(t, job.DocumentID), 5)
	}
	assert.Zero(t, r.heldLocks(), "document locks are released once their jobs finish")
}

func TestRunner_DocumentLockIsSharedAndReleased(t *testing.T) {
	h := newHarness(t)
	r, _ := newTestRunner(t, h)

	unlock := r.lock("doc")
	acquired := make(chan func())
	go func() { acquired <- r.lock("doc") }()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a locked document")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 1, r.heldLocks())

	unlock()
	second := <-acquired
	assert.Equal(t, 1, r.heldLocks())
	second()
	assert.Zero(t, r.heldLocks())

	for i := 0; i < 100; i++ {
		r.lock(fmt.Sprintf("doc-%d", i))()
	}
	assert.Zero(t, r.heldLocks())
}

func (r *Runner) heldLocks() int {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	return len(r.locks)
}

func TestRunner_ShutdownRejectsWork(t *testing.T) {
	h := newHarness(t)
	r, _ := newTestRunner(t, h)
	ctx := context.Background()

	require.NoError(t, r.Shutdown(ctx))
	require.NoError(t, r.Shutdown(ctx))

	_, job, err := r.Import(ctx, ImportRequest{FilePath: h.pdf(t, "book.pdf")})
	assert.ErrorIs(t, err, ErrRunnerClosed)
	assert.Nil(t, job)

	_, err = r.RunTOC(ctx, "doc")
	assert.ErrorIs(t, err, ErrRunnerClosed)
}
