package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/YunYun501/Lazy-Learn-V2/internal/cache"
	"github.com/YunYun501/Lazy-Learn-V2/internal/domain"
	"github.com/YunYun501/Lazy-Learn-V2/internal/extraction"
	"github.com/YunYun501/Lazy-Learn-V2/internal/observability"
)

// ErrRunnerClosed is returned when work is submitted after Shutdown.
var ErrRunnerClosed = errors.New("pipeline runner is shut down")

// Job steps reported through the job-status cache.
const (
	StepQueued   = "queued"
	StepRunning  = "running"
	StepBatch    = "batch"
	StepFinished = "finished"
	StepFailed   = "failed"
)

// DocumentReader loads a persisted document.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// JobTracker records job progress for polling.
type JobTracker interface {
	Put(ctx context.Context, status cache.JobStatus)
	Resolve(ctx context.Context, doc *domain.Document) cache.JobStatus
}

// ImportRequest describes a document to ingest.
type ImportRequest struct {
	DocumentID string
	CourseID   string
	FilePath   string
}

// Job is a handle on one queued phase.
type Job struct {
	DocumentID string
	Phase      Phase

	done   chan struct{}
	result PhaseResult
}

func newJob(documentID string, phase Phase) *Job {
	return &Job{DocumentID: documentID, Phase: phase, done: make(chan struct{})}
}

// Done is closed once the phase has finished.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the phase finishes or ctx is done.
func (j *Job) Wait(ctx context.Context) (PhaseResult, error) {
	select {
	case <-j.done:
		return j.result, nil
	case <-ctx.Done():
		return PhaseResult{}, ctx.Err()
	}
}

type task struct {
	ctx context.Context
	job *Job
	run func(ctx context.Context) PhaseResult
}

// Runner performs the quick status flips synchronously and runs the long
// phases (TOC discovery, content extraction) on a pool of workers. Work for
// one document is serialized.
type Runner struct {
	orch      *Orchestrator
	documents DocumentReader
	jobs      JobTracker
	logger    *observability.Logger

	workers   int
	timeout   time.Duration
	threshold float64

	ch   chan task
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool

	locksMu sync.Mutex
	locks   map[string]*documentLock
}

// documentLock serialises work on one document. refs counts holders and
// waiters; the entry is dropped when it reaches zero.
type documentLock struct {
	mu   sync.Mutex
	refs int
}

// Option configures a Runner.
type Option func(*Runner)

// WithWorkers sets the number of background workers.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithQueueSize sets how many tasks may wait for a worker.
func WithQueueSize(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.ch = make(chan task, n)
		}
	}
}

// WithTaskTimeout bounds each background phase.
func WithTaskTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithPreselectThreshold sets the relevance score at which chapters are
// preselected after the TOC phase. Zero disables score-based preselection.
func WithPreselectThreshold(score float64) Option {
	return func(r *Runner) {
		if score >= 0 && score <= 1 {
			r.threshold = score
		}
	}
}

// NewRunner creates a runner and starts its workers.
func NewRunner(orch *Orchestrator, documents DocumentReader, jobs JobTracker, logger *observability.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = observability.Nop()
	}
	r := &Runner{
		orch:      orch,
		documents: documents,
		jobs:      jobs,
		logger:    logger,
		workers:   2,
		timeout:   12 * time.Hour,
		threshold: 0.6,
		ch:        make(chan task, 64),
		locks:     make(map[string]*documentLock),
	}
	for _, o := range opts {
		o(r)
	}
	r.start()
	return r
}

func (r *Runner) start() {
	r.once.Do(func() {
		for i := 0; i < r.workers; i++ {
			r.wg.Add(1)
			go func(workerID int) {
				defer r.wg.Done()
				r.logger.Debug().Int("worker_id", workerID).Msg("Worker started")
				for t := range r.ch {
					r.execute(workerID, t)
				}
				r.logger.Debug().Int("worker_id", workerID).Msg("Worker stopped")
			}(i + 1)
		}
	})
}

func (r *Runner) execute(workerID int, t task) {
	ctx, cancel := context.WithTimeout(t.ctx, r.timeout)
	defer cancel()
	defer close(t.job.done)

	unlock := r.lock(t.job.DocumentID)
	defer unlock()

	r.track(ctx, t.job, StepRunning, expectedStatus(t.job.Phase), "")
	start := time.Now()
	t.job.result = t.run(ctx)

	res := t.job.result
	if res.OK() {
		r.track(ctx, t.job, StepFinished, res.Status, res.Warning)
		r.logger.WithDocument(res.DocumentID).Info().
			Int("worker_id", workerID).
			Str("phase", string(res.Phase)).
			Str("status", string(res.Status)).
			Dur("duration", time.Since(start)).
			Msg("Background phase finished")
		return
	}
	r.track(ctx, t.job, StepFailed, res.Status, res.Error)
	r.logger.WithDocument(res.DocumentID).Warn().
		Int("worker_id", workerID).
		Str("phase", string(res.Phase)).
		Str("error_type", string(res.ErrorType)).
		Str("error", res.Error).
		Msg("Background phase failed")
}

// expectedStatus is the persisted status a document holds while the phase
// is queued or running.
func expectedStatus(phase Phase) domain.PipelineStatus {
	if phase == PhaseTOC {
		return domain.PipelineStatusUploaded
	}
	return domain.PipelineStatusExtracting
}

func (r *Runner) track(ctx context.Context, job *Job, step string, status domain.PipelineStatus, message string) {
	if r.jobs == nil {
		return
	}
	r.jobs.Put(context.WithoutCancel(ctx), cache.JobStatus{
		DocumentID:     job.DocumentID,
		PipelineStatus: status,
		Phase:          string(job.Phase),
		Step:           step,
		Message:        message,
	})
}

func (r *Runner) lock(documentID string) func() {
	r.locksMu.Lock()
	l, ok := r.locks[documentID]
	if !ok {
		l = &documentLock{}
		r.locks[documentID] = l
	}
	l.refs++
	r.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, documentID)
		}
		r.locksMu.Unlock()
	}
}

func (r *Runner) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// enqueue hands a phase to the workers. The task keeps ctx's values but not
// its cancellation; it is bounded by the task timeout instead.
func (r *Runner) enqueue(ctx context.Context, documentID string, phase Phase, run func(context.Context) PhaseResult) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrRunnerClosed
	}

	job := newJob(documentID, phase)
	t := task{ctx: context.WithoutCancel(ctx), job: job, run: run}
	// recorded before the send so a fast worker's progress is not overwritten
	r.track(ctx, job, StepQueued, expectedStatus(phase), "")
	select {
	case r.ch <- t:
	default:
		r.logger.WithDocument(documentID).Warn().Str("phase", string(phase)).Msg("Queue full, applying backpressure")
		select {
		case r.ch <- t:
		case <-ctx.Done():
			r.track(ctx, job, StepFailed, expectedStatus(phase), "not queued: "+ctx.Err().Error())
			return nil, ctx.Err()
		}
	}
	r.logger.WithDocument(documentID).Debug().Str("phase", string(phase)).Msg("Phase queued")
	return job, nil
}

// Import records the document and queues its TOC phase. The returned result
// is the synchronous import outcome; the job is nil when the import failed.
func (r *Runner) Import(ctx context.Context, req ImportRequest) (PhaseResult, *Job, error) {
	if r.isClosed() {
		return PhaseResult{}, nil, ErrRunnerClosed
	}
	res := r.orch.StartImport(ctx, req.DocumentID, req.CourseID, req.FilePath)
	if !res.OK() {
		return res, nil, nil
	}
	documentID := res.DocumentID
	job, err := r.enqueue(ctx, documentID, PhaseTOC, func(ctx context.Context) PhaseResult {
		toc := r.orch.RunTOCPhase(ctx, documentID)
		if toc.OK() {
			r.preselect(ctx, &toc)
		}
		return toc
	})
	return res, job, err
}

// RunTOC queues the TOC phase for an existing document, such as one whose
// earlier TOC run failed.
func (r *Runner) RunTOC(ctx context.Context, documentID string) (*Job, error) {
	return r.enqueue(ctx, documentID, PhaseTOC, func(ctx context.Context) PhaseResult {
		res := r.orch.RunTOCPhase(ctx, documentID)
		if res.OK() {
			r.preselect(ctx, &res)
		}
		return res
	})
}

// preselect marks the chapters a reviewer is likely to want: the only
// chapter of a single-chapter document, otherwise every chapter scoring at
// least the threshold.
func (r *Runner) preselect(ctx context.Context, res *PhaseResult) {
	var ids []string
	switch {
	case len(res.Chapters) == 1:
		ids = []string{res.Chapters[0].ID}
	case r.threshold > 0:
		for _, match := range res.Relevance {
			if match.RelevanceScore >= r.threshold {
				ids = append(ids, match.ChapterID)
			}
		}
	}
	if len(ids) == 0 {
		return
	}

	if err := r.orch.PreselectChapters(ctx, res.DocumentID, ids); err != nil {
		r.logger.WithDocument(res.DocumentID).Warn().Err(err).Msg("Preselection failed")
		res.Warning = joinWarning(res.Warning, fmt.Sprintf("preselection failed: %v", err))
		return
	}
	chosen := make(map[string]bool, len(ids))
	for _, id := range ids {
		chosen[id] = true
	}
	for _, ch := range res.Chapters {
		if chosen[ch.ID] {
			ch.ExtractionStatus = domain.ExtractionStatusSelected
		}
	}
	r.logger.WithDocument(res.DocumentID).Info().Strs("chapter_ids", ids).Msg("Chapters preselected")
}

func joinWarning(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}

// Verify submits the reviewer's selection and queues extraction of the
// selected chapters. With nothing selected the document is left extracting
// with every chapter deferred, and the queued phase settles it.
func (r *Runner) Verify(ctx context.Context, documentID string, selectedChapterIDs []string) (PhaseResult, *Job, error) {
	if r.isClosed() {
		return PhaseResult{}, nil, ErrRunnerClosed
	}
	unlock := r.lock(documentID)
	res := r.orch.SubmitVerification(ctx, documentID, selectedChapterIDs)
	unlock()
	if !res.OK() {
		return res, nil, nil
	}
	ids := append([]string(nil), selectedChapterIDs...)
	job, err := r.enqueue(ctx, documentID, PhaseExtraction, func(ctx context.Context) PhaseResult {
		return r.orch.RunExtractionPhase(ctx, documentID, ids)
	})
	return res, job, err
}

// ExtractDeferred flips an extracted document back to extracting and queues
// extraction of the named chapters.
func (r *Runner) ExtractDeferred(ctx context.Context, documentID string, chapterIDs []string) (PhaseResult, *Job, error) {
	if r.isClosed() {
		return PhaseResult{}, nil, ErrRunnerClosed
	}
	unlock := r.lock(documentID)
	res := r.orch.RunDeferredExtraction(ctx, documentID, chapterIDs)
	unlock()
	if !res.OK() {
		return res, nil, nil
	}
	ids := append([]string(nil), chapterIDs...)
	job, err := r.enqueue(ctx, documentID, PhaseExtraction, func(ctx context.Context) PhaseResult {
		return r.orch.RunExtractionPhase(ctx, documentID, ids)
	})
	return res, job, err
}

// Status returns the document's job status. The persisted pipeline status
// always wins over cached progress.
func (r *Runner) Status(ctx context.Context, documentID string) (cache.JobStatus, error) {
	doc, err := r.documents.GetByID(ctx, documentID)
	if err != nil {
		return cache.JobStatus{}, err
	}
	if r.jobs == nil {
		status := cache.JobStatus{DocumentID: doc.ID, PipelineStatus: doc.PipelineStatus, UpdatedAt: doc.UpdatedAt}
		if doc.LastError != nil {
			status.Message = *doc.LastError
		}
		return status, nil
	}
	return r.jobs.Resolve(ctx, doc), nil
}

// OnBatch records extraction batch progress. Register it with the content
// extractor's Observe.
func (r *Runner) OnBatch(ev extraction.BatchEvent) {
	if r.jobs == nil {
		return
	}
	status := cache.JobStatus{
		DocumentID:     ev.DocumentID,
		PipelineStatus: domain.PipelineStatusExtracting,
		Phase:          string(PhaseExtraction),
		Step:           StepBatch,
		Done:           ev.Batch,
		Total:          ev.Batches,
		Message:        fmt.Sprintf("pages %d-%d", ev.StartPage, ev.EndPage),
	}
	if ev.Err != nil {
		status.Message = fmt.Sprintf("pages %d-%d failed: %v", ev.StartPage, ev.EndPage, ev.Err)
	}
	r.jobs.Put(context.Background(), status)
}

// Shutdown stops accepting work and waits for queued phases to drain or ctx
// to end.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.ch)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		r.logger.Warn().Msg("Runner shutdown interrupted")
		return ctx.Err()
	case <-done:
		r.logger.Info().Msg("Runner drained")
		return nil
	}
}
