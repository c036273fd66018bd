// Package pipeline drives documents through the ingestion state machine and
// runs the long phases on a bounded pool of background workers.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/YunYun501/Lazy-Learn-V2/internal/domain"
	"github.com/YunYun501/Lazy-Learn-V2/internal/extraction"
	"github.com/YunYun501/Lazy-Learn-V2/internal/observability"
)

// DocumentStore is the document half of the store the orchestrator mutates.
type DocumentStore interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	AssignCourse(ctx context.Context, id, courseID string) error
	UpdatePipelineStatus(ctx context.Context, id string, status domain.PipelineStatus, lastError string) error
	MarkFailed(ctx context.Context, id string, resume domain.PipelineStatus, lastError string) error
	SetTotalPages(ctx context.Context, id string, pages int) error
}

// ChapterStore is the chapter half of the store.
type ChapterStore interface {
	Create(ctx context.Context, ch *domain.Chapter) error
	ListByDocument(ctx context.Context, documentID string) ([]*domain.Chapter, error)
	UpdateExtractionStatus(ctx context.Context, id string, status domain.ExtractionStatus) error
	DeleteByDocument(ctx context.Context, documentID string) error
	CreateSection(ctx context.Context, sec *domain.Section) error
}

// TOCExtractor finds chapter boundaries.
type TOCExtractor interface {
	ExtractTOC(ctx context.Context, documentID string) (*domain.TOC, error)
}

// RelevanceMatcher scores chapters against a course.
type RelevanceMatcher interface {
	MatchChapters(ctx context.Context, documentID, courseID string) ([]domain.RelevanceResult, error)
}

// ContentExtractor extracts chapters.
type ContentExtractor interface {
	Extract(ctx context.Context, documentID string, chapterIDs []string) (*extraction.Report, error)
}

// Orchestrator runs one phase per call. Phases are idempotent and safe to
// retry; they never return an error or panic, failures come back in the
// PhaseResult. Calls for one document are serialized by the caller.
type Orchestrator struct {
	documents DocumentStore
	chapters  ChapterStore
	toc       TOCExtractor
	relevance RelevanceMatcher
	extractor ContentExtractor
	logger    *observability.Logger
}

// NewOrchestrator creates an orchestrator. relevance may be nil.
func NewOrchestrator(
	documents DocumentStore,
	chapters ChapterStore,
	toc TOCExtractor,
	relevance RelevanceMatcher,
	extractor ContentExtractor,
	logger *observability.Logger,
) *Orchestrator {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Orchestrator{
		documents: documents,
		chapters:  chapters,
		toc:       toc,
		relevance: relevance,
		extractor: extractor,
		logger:    logger,
	}
}

// StartImport creates the document record in uploaded state and assigns it
// to the course when one is given. An empty documentID gets a generated one.
func (o *Orchestrator) StartImport(ctx context.Context, documentID, courseID, filePath string) PhaseResult {
	doc := &domain.Document{
		ID:             documentID,
		Title:          TitleFromPath(filePath),
		FilePath:       filePath,
		PipelineStatus: domain.PipelineStatusUploaded,
	}
	return o.run(ctx, PhaseImport, documentID, func(res *PhaseResult) error {
		if strings.TrimSpace(filePath) == "" {
			return domain.ValidationError("file path is required", nil)
		}
		if err := o.documents.Create(ctx, doc); err != nil {
			return err
		}
		res.DocumentID = doc.ID
		res.track(doc)
		if courseID != "" {
			if err := o.documents.AssignCourse(ctx, doc.ID, courseID); err != nil {
				return fmt.Errorf("assign course %s: %w", courseID, err)
			}
		}
		res.Status = domain.PipelineStatusUploaded
		return nil
	})
}

// RunTOCPhase discovers the document's chapters and sections and persists
// them, then scores them against the document's course when it has one. A
// document whose chapters are all still pending or selected may be re-run;
// its chapters are replaced.
func (o *Orchestrator) RunTOCPhase(ctx context.Context, documentID string) PhaseResult {
	return o.run(ctx, PhaseTOC, documentID, func(res *PhaseResult) error {
		doc, err := o.documents.GetByID(ctx, documentID)
		if err != nil {
			return err
		}
		res.track(doc)
		if err := doc.ValidateTransition(domain.PipelineStatusTOCExtracted); err != nil {
			return err
		}
		if err := o.clearChapters(ctx, documentID); err != nil {
			return err
		}

		toc, err := o.toc.ExtractTOC(ctx, documentID)
		if err != nil {
			return err
		}
		chapters, err := o.persistTOC(ctx, documentID, toc)
		if err != nil {
			return err
		}
		if toc.TotalPages > 0 {
			if err := o.documents.SetTotalPages(ctx, documentID, toc.TotalPages); err != nil {
				return err
			}
		}
		res.Chapters = chapters

		if doc.CourseID != nil && o.relevance != nil {
			results, err := o.relevance.MatchChapters(ctx, documentID, *doc.CourseID)
			if err != nil {
				o.logger.WithDocument(documentID).Warn().Err(err).Msg("Relevance scoring failed")
				res.Warning = fmt.Sprintf("relevance scoring failed: %v", err)
			} else {
				res.Relevance = results
			}
		}

		if err := o.setStatus(ctx, doc, domain.PipelineStatusTOCExtracted); err != nil {
			return err
		}
		res.Status = domain.PipelineStatusTOCExtracted
		return nil
	})
}

// clearChapters removes chapters left by an earlier TOC run. It refuses once
// any chapter has moved past selection.
func (o *Orchestrator) clearChapters(ctx context.Context, documentID string) error {
	existing, err := o.chapters.ListByDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("list chapters: %w", err)
	}
	if len(existing) == 0 {
		return nil
	}
	for _, ch := range existing {
		switch ch.ExtractionStatus {
		case domain.ExtractionStatusPending, domain.ExtractionStatusSelected:
		default:
			return domain.InvalidTransitionError(fmt.Sprintf(
				"chapter %s is %s, chapters can no longer be recreated", ch.ID, ch.ExtractionStatus))
		}
	}
	return o.chapters.DeleteByDocument(ctx, documentID)
}

func (o *Orchestrator) persistTOC(ctx context.Context, documentID string, toc *domain.TOC) ([]*domain.Chapter, error) {
	chapters := make([]*domain.Chapter, 0, len(toc.Chapters))
	for _, spec := range toc.Chapters {
		ch := &domain.Chapter{
			DocumentID:       documentID,
			ChapterNumber:    spec.ChapterNumber,
			Title:            spec.Title,
			PageStart:        spec.PageStart,
			PageEnd:          spec.PageEnd,
			ExtractionStatus: domain.ExtractionStatusPending,
		}
		if err := o.chapters.Create(ctx, ch); err != nil {
			return nil, err
		}
		if err := o.persistSections(ctx, ch.ID, nil, spec.Sections); err != nil {
			return nil, err
		}
		chapters = append(chapters, ch)
	}
	return chapters, nil
}

func (o *Orchestrator) persistSections(ctx context.Context, chapterID string, parentID *string, specs []domain.SectionSpec) error {
	for _, spec := range specs {
		sec := &domain.Section{
			ChapterID:       chapterID,
			ParentSectionID: parentID,
			SectionNumber:   spec.SectionNumber,
			Title:           spec.Title,
			Level:           spec.Level,
			PageStart:       spec.PageStart,
			PageEnd:         spec.PageEnd,
		}
		if err := o.chapters.CreateSection(ctx, sec); err != nil {
			return err
		}
		if err := o.persistSections(ctx, chapterID, &sec.ID, spec.Subsections); err != nil {
			return err
		}
	}
	return nil
}

// SubmitVerification re-partitions every chapter of the document: selected
// chapters become extracting, all others deferred. The document moves
// through awaiting_verification to extracting.
func (o *Orchestrator) SubmitVerification(ctx context.Context, documentID string, selectedChapterIDs []string) PhaseResult {
	return o.run(ctx, PhaseVerification, documentID, func(res *PhaseResult) error {
		doc, err := o.documents.GetByID(ctx, documentID)
		if err != nil {
			return err
		}
		res.track(doc)
		if err := doc.ValidateTransition(domain.PipelineStatusAwaitingVerification); err != nil {
			return err
		}
		chapters, err := o.chapters.ListByDocument(ctx, documentID)
		if err != nil {
			return fmt.Errorf("list chapters: %w", err)
		}
		selected, err := chapterSet(documentID, chapters, selectedChapterIDs)
		if err != nil {
			return err
		}

		if err := o.setStatus(ctx, doc, domain.PipelineStatusAwaitingVerification); err != nil {
			return err
		}
		for _, ch := range chapters {
			status := domain.ExtractionStatusDeferred
			if selected[ch.ID] {
				status = domain.ExtractionStatusExtracting
			}
			if err := o.chapters.UpdateExtractionStatus(ctx, ch.ID, status); err != nil {
				return err
			}
			ch.ExtractionStatus = status
		}
		if err := o.setStatus(ctx, doc, domain.PipelineStatusExtracting); err != nil {
			return err
		}

		res.Chapters = chapters
		res.Status = domain.PipelineStatusExtracting
		return nil
	})
}

// RunExtractionPhase extracts exactly chapterIDs and then derives the
// document status from its persisted chapters: fully_extracted when every
// chapter is extracted, partially_extracted otherwise. Chapter failures are
// reported by the extractor and are not overwritten here.
func (o *Orchestrator) RunExtractionPhase(ctx context.Context, documentID string, chapterIDs []string) PhaseResult {
	return o.run(ctx, PhaseExtraction, documentID, func(res *PhaseResult) error {
		doc, err := o.documents.GetByID(ctx, documentID)
		if err != nil {
			return err
		}
		res.track(doc)
		if doc.RetryFrom() != domain.PipelineStatusExtracting {
			return domain.InvalidTransitionError(fmt.Sprintf(
				"document %s is %s, extraction needs a verified or deferred request", documentID, doc.PipelineStatus))
		}

		report, err := o.extractor.Extract(ctx, documentID, chapterIDs)
		if err != nil {
			return err
		}
		res.Extracted = report.Extracted()
		res.Failed = report.Failed()

		chapters, err := o.chapters.ListByDocument(ctx, documentID)
		if err != nil {
			return fmt.Errorf("list chapters: %w", err)
		}
		status := domain.AggregateStatus(chapters)
		if err := o.setStatus(ctx, doc, status); err != nil {
			return err
		}

		res.Chapters = chapters
		res.Status = status
		return nil
	})
}

// RunDeferredExtraction flips a partially or fully extracted document back to
// extracting and marks chapterIDs extracting. The caller then runs
// RunExtractionPhase with the same IDs.
func (o *Orchestrator) RunDeferredExtraction(ctx context.Context, documentID string, chapterIDs []string) PhaseResult {
	return o.run(ctx, PhaseDeferred, documentID, func(res *PhaseResult) error {
		doc, err := o.documents.GetByID(ctx, documentID)
		if err != nil {
			return err
		}
		res.track(doc)
		switch doc.RetryFrom() {
		case domain.PipelineStatusPartiallyExtracted, domain.PipelineStatusFullyExtracted:
		default:
			return domain.InvalidTransitionError(fmt.Sprintf(
				"document %s is %s, deferred extraction needs an extracted document", documentID, doc.PipelineStatus))
		}
		if len(chapterIDs) == 0 {
			return domain.ValidationError("no chapters requested", nil)
		}
		chapters, err := o.chapters.ListByDocument(ctx, documentID)
		if err != nil {
			return fmt.Errorf("list chapters: %w", err)
		}
		requested, err := chapterSet(documentID, chapters, chapterIDs)
		if err != nil {
			return err
		}

		if err := o.setStatus(ctx, doc, domain.PipelineStatusExtracting); err != nil {
			return err
		}
		for _, ch := range chapters {
			if !requested[ch.ID] {
				continue
			}
			if err := o.chapters.UpdateExtractionStatus(ctx, ch.ID, domain.ExtractionStatusExtracting); err != nil {
				return err
			}
			ch.ExtractionStatus = domain.ExtractionStatusExtracting
		}

		res.Chapters = chapters
		res.Status = domain.PipelineStatusExtracting
		return nil
	})
}

// PreselectChapters marks chapterIDs selected on a document that has just had
// its TOC extracted. Selection is advisory; verification decides.
func (o *Orchestrator) PreselectChapters(ctx context.Context, documentID string, chapterIDs []string) error {
	doc, err := o.documents.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.PipelineStatus != domain.PipelineStatusTOCExtracted {
		return domain.InvalidTransitionError(fmt.Sprintf("document %s is %s, preselection needs toc_extracted", documentID, doc.PipelineStatus))
	}
	chapters, err := o.chapters.ListByDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("list chapters: %w", err)
	}
	selected, err := chapterSet(documentID, chapters, chapterIDs)
	if err != nil {
		return err
	}
	for _, ch := range chapters {
		if !selected[ch.ID] {
			continue
		}
		if err := domain.ValidateExtractionTransition(ch.ExtractionStatus, domain.ExtractionStatusSelected); err != nil {
			return err
		}
		if err := o.chapters.UpdateExtractionStatus(ctx, ch.ID, domain.ExtractionStatusSelected); err != nil {
			return err
		}
	}
	return nil
}

// setStatus validates and persists a document transition. A successful
// transition clears the last error and the resume point.
func (o *Orchestrator) setStatus(ctx context.Context, doc *domain.Document, status domain.PipelineStatus) error {
	if err := doc.ValidateTransition(status); err != nil {
		return err
	}
	if err := o.documents.UpdatePipelineStatus(ctx, doc.ID, status, ""); err != nil {
		return err
	}
	doc.PipelineStatus = status
	doc.ResumeStatus = ""
	doc.LastError = nil
	return nil
}

// run executes a phase body and converts any error or panic into a failed
// result. Request errors (unknown ids, invalid transitions, bad input) leave
// the document untouched; other failures of an existing document are
// persisted as status error.
func (o *Orchestrator) run(ctx context.Context, phase Phase, documentID string, body func(*PhaseResult) error) (res PhaseResult) {
	log := o.logger.WithContext(ctx).WithOperation(string(phase))
	res = PhaseResult{DocumentID: documentID, Phase: phase}

	defer func() {
		if r := recover(); r != nil {
			o.fail(ctx, log, &res, domain.PhaseFailedError(fmt.Sprintf("panic in %s phase: %v", phase, r), nil))
		}
	}()

	log.Debug().Str("document_id", res.DocumentID).Msg("Phase started")
	if err := body(&res); err != nil {
		o.fail(ctx, log, &res, err)
		return res
	}
	log.Info().
		Str("document_id", res.DocumentID).
		Str("status", string(res.Status)).
		Msg("Phase finished")
	return res
}

func (o *Orchestrator) fail(ctx context.Context, log *observability.Logger, res *PhaseResult, err error) {
	typ := domain.TypeOf(err)
	res.Status = domain.PipelineStatusError
	res.Error = err.Error()
	res.ErrorType = typ
	res.Err = err

	if isRequestError(typ) || !res.stored {
		log.Warn().Err(err).Str("document_id", res.DocumentID).Str("error_type", string(typ)).Msg("Phase rejected")
		return
	}

	log.Error().Err(err).Str("document_id", res.DocumentID).Str("error_type", string(typ)).Msg("Phase failed")
	// Record the failure even when ctx was cancelled or timed out.
	if uerr := o.documents.MarkFailed(context.WithoutCancel(ctx), res.DocumentID, res.resume, err.Error()); uerr != nil {
		log.Error().Err(uerr).Str("document_id", res.DocumentID).Msg("Failed to record error status")
	}
}

func isRequestError(typ domain.ErrorType) bool {
	switch typ {
	case domain.ErrorTypeNotFound, domain.ErrorTypeInvalidTransition, domain.ErrorTypeValidation:
		return true
	}
	return false
}

// chapterSet checks that every id belongs to the document.
func chapterSet(documentID string, chapters []*domain.Chapter, ids []string) (map[string]bool, error) {
	known := make(map[string]bool, len(chapters))
	for _, ch := range chapters {
		known[ch.ID] = true
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !known[id] {
			return nil, domain.NotFoundError(fmt.Sprintf("chapter %s of document %s", id, documentID))
		}
		set[id] = true
	}
	return set, nil
}

// TitleFromPath derives a display title from an uploaded file name.
func TitleFromPath(path string) string {
	base := filepath.Base(path)
	if ext := filepath.Ext(base); strings.EqualFold(ext, ".pdf") {
		base = strings.TrimSuffix(base, ext)
	}
	base = strings.TrimSpace(strings.ReplaceAll(base, "_", " "))
	if base == "" || base == "." {
		return "Untitled"
	}
	return base
}
