// Package extraction turns chapters into persisted content. Chapters are
// grouped into page-contiguous batches, each batch is sent to the raw engine
// once, and the returned fragments are rebased, routed to their chapter,
// classified and stored chapter by chapter.
package extraction

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/YunYun501/Lazy-Learn-V2/internal/domain"
	"github.com/YunYun501/Lazy-Learn-V2/internal/extraction/raw"
	"github.com/YunYun501/Lazy-Learn-V2/internal/observability"
)

// DocumentReader loads documents.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// ChapterStore reads chapters and records their extraction status.
type ChapterStore interface {
	ListByDocument(ctx context.Context, documentID string) ([]*domain.Chapter, error)
	UpdateExtractionStatus(ctx context.Context, id string, status domain.ExtractionStatus) error
}

// ContentStore persists a chapter's content set.
type ContentStore interface {
	ReplaceForChapter(ctx context.Context, chapterID string, contents []*domain.ExtractedContent) error
}

// Config configures a ContentExtractor.
type Config struct {
	// DataDir is the root for side files. Side files are written only when
	// WriteSideFiles is set and DataDir is not empty.
	DataDir        string
	WriteSideFiles bool
}

// ContentExtractor extracts chapters of a document.
type ContentExtractor struct {
	documents DocumentReader
	chapters  ChapterStore
	contents  ContentStore
	engine    raw.Extractor
	cfg       Config
	logger    *observability.Logger

	mu        sync.RWMutex
	observers []Observer
}

// NewContentExtractor creates a content extractor.
func NewContentExtractor(
	documents DocumentReader,
	chapters ChapterStore,
	contents ContentStore,
	engine raw.Extractor,
	cfg Config,
	logger *observability.Logger,
) *ContentExtractor {
	if logger == nil {
		logger = observability.Nop()
	}
	return &ContentExtractor{
		documents: documents,
		chapters:  chapters,
		contents:  contents,
		engine:    engine,
		cfg:       cfg,
		logger:    logger,
	}
}

// Observe registers fn to receive batch progress for every document.
func (e *ContentExtractor) Observe(fn Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, fn)
}

func (e *ContentExtractor) notify(ev BatchEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, fn := range e.observers {
		fn(ev)
	}
}

// Extract extracts exactly chapterIDs of the document. Unknown documents or
// chapters fail the call before any work is done. Once extraction starts every
// requested chapter gets an outcome: batch-level engine failures mark the
// whole batch as error, persistence failures mark only the affected chapter.
func (e *ContentExtractor) Extract(ctx context.Context, documentID string, chapterIDs []string) (*Report, error) {
	log := e.logger.WithDocument(documentID).WithOperation("extract_chapters")

	doc, err := e.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	selected, err := e.selectChapters(ctx, documentID, chapterIDs)
	if err != nil {
		return nil, err
	}

	report := &Report{DocumentID: documentID}
	if len(selected) == 0 {
		return report, nil
	}

	pdf, err := os.ReadFile(doc.FilePath)
	if err != nil {
		return nil, domain.ExtractionFailedError(fmt.Sprintf("read %s", doc.FilePath), err)
	}

	batches := BatchContiguous(selected)
	report.Batches = len(batches)
	log.Info().
		Int("chapters", len(selected)).
		Int("batches", len(batches)).
		Msg("Starting extraction")

	for i, b := range batches {
		outcomes, batchErr := e.extractBatch(ctx, log, doc, b, pdf)
		report.Outcomes = append(report.Outcomes, outcomes...)
		e.notify(BatchEvent{
			DocumentID: documentID,
			Batch:      i + 1,
			Batches:    len(batches),
			StartPage:  b.StartPage,
			EndPage:    b.EndPage,
			ChapterIDs: b.ChapterIDs(),
			Err:        batchErr,
		})
	}

	log.Info().
		Int("extracted", len(report.Extracted())).
		Int("failed", len(report.Failed())).
		Msg("Extraction finished")
	return report, nil
}

// selectChapters resolves chapterIDs against the document's chapters.
// Duplicate IDs are ignored.
func (e *ContentExtractor) selectChapters(ctx context.Context, documentID string, chapterIDs []string) ([]*domain.Chapter, error) {
	all, err := e.chapters.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	byID := make(map[string]*domain.Chapter, len(all))
	for _, ch := range all {
		byID[ch.ID] = ch
	}

	seen := make(map[string]bool, len(chapterIDs))
	selected := make([]*domain.Chapter, 0, len(chapterIDs))
	for _, id := range chapterIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		ch, ok := byID[id]
		if !ok {
			return nil, domain.NotFoundError(fmt.Sprintf("chapter %s of document %s", id, documentID))
		}
		selected = append(selected, ch)
	}
	return selected, nil
}

func (e *ContentExtractor) extractBatch(
	ctx context.Context,
	log *observability.Logger,
	doc *domain.Document,
	b Batch,
	pdf []byte,
) ([]ChapterOutcome, error) {
	for _, ch := range b.Chapters {
		e.setStatus(ctx, log, ch, domain.ExtractionStatusExtracting)
	}

	// Outcomes are recorded even when ctx was cancelled or timed out.
	record := context.WithoutCancel(ctx)

	fragments, err := e.engine.ExtractRange(ctx, pdf, b.StartPageID(), b.EndPageID())
	if err != nil {
		log.Error().Err(err).
			Int("start_page", b.StartPage).
			Int("end_page", b.EndPage).
			Msg("Batch extraction failed")
		outcomes := make([]ChapterOutcome, 0, len(b.Chapters))
		for _, ch := range b.Chapters {
			e.setStatus(record, log, ch, domain.ExtractionStatusError)
			outcomes = append(outcomes, ChapterOutcome{
				ChapterID:     ch.ID,
				ChapterNumber: ch.ChapterNumber,
				Status:        domain.ExtractionStatusError,
				Err:           err,
			})
		}
		return outcomes, err
	}

	routed := b.Route(fragments)
	outcomes := make([]ChapterOutcome, 0, len(b.Chapters))
	for _, ch := range b.Chapters {
		outcome := ChapterOutcome{ChapterID: ch.ID, ChapterNumber: ch.ChapterNumber}
		n, err := e.persistChapter(ctx, doc, ch, routed[ch.ID])
		if err != nil {
			log.Error().Err(err).Str("chapter_id", ch.ID).Msg("Chapter persistence failed")
			e.setStatus(record, log, ch, domain.ExtractionStatusError)
			outcome.Status = domain.ExtractionStatusError
			outcome.Err = err
		} else {
			outcome.Status = domain.ExtractionStatusExtracted
			outcome.Contents = n
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

// persistChapter writes side files, replaces the chapter's content rows and
// marks it extracted. Any failure leaves the status for the caller to set.
func (e *ContentExtractor) persistChapter(ctx context.Context, doc *domain.Document, ch *domain.Chapter, routed []Routed) (int, error) {
	contents := buildContents(ch.ID, routed)

	if e.cfg.WriteSideFiles && e.cfg.DataDir != "" {
		if err := e.writeSideFiles(doc.ID, ch, contents); err != nil {
			return 0, domain.PersistenceFailedError(fmt.Sprintf("write side files of chapter %s", ch.ID), err)
		}
	}
	if err := e.contents.ReplaceForChapter(ctx, ch.ID, contents); err != nil {
		return 0, err
	}
	if err := e.chapters.UpdateExtractionStatus(ctx, ch.ID, domain.ExtractionStatusExtracted); err != nil {
		return 0, domain.PersistenceFailedError(fmt.Sprintf("mark chapter %s extracted", ch.ID), err)
	}
	ch.ExtractionStatus = domain.ExtractionStatusExtracted
	return len(contents), nil
}

func (e *ContentExtractor) setStatus(ctx context.Context, log *observability.Logger, ch *domain.Chapter, status domain.ExtractionStatus) {
	if err := domain.ValidateExtractionTransition(ch.ExtractionStatus, status); err != nil {
		log.Warn().Err(err).Str("chapter_id", ch.ID).Msg("Unexpected chapter transition")
	}
	if err := e.chapters.UpdateExtractionStatus(ctx, ch.ID, status); err != nil {
		log.Error().Err(err).Str("chapter_id", ch.ID).Str("status", string(status)).Msg("Failed to update chapter status")
		return
	}
	ch.ExtractionStatus = status
}

// ContentDir is the side-file directory of a chapter.
func ContentDir(dataDir, documentID, chapterNumber string) string {
	return filepath.Join(dataDir, "documents", documentID, "chapters", safeName(chapterNumber), "content")
}

// writeSideFiles rewrites the chapter's content directory with one markdown
// file per content row and records the paths on the rows.
func (e *ContentExtractor) writeSideFiles(documentID string, ch *domain.Chapter, contents []*domain.ExtractedContent) error {
	dir := ContentDir(e.cfg.DataDir, documentID, ch.ChapterNumber)
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, c := range contents {
		path := filepath.Join(dir, fmt.Sprintf("%s_%d.md", c.ContentType, c.OrderIndex))
		if err := os.WriteFile(path, []byte(c.Content), 0o644); err != nil {
			return err
		}
		c.FilePath = &path
	}
	return nil
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, s)
}
