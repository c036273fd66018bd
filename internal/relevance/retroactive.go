package relevance

import (
	"context"
	"errors"
	"fmt"

	"github.com/YunYun501/Lazy-Learn-V2/internal/domain"
	"github.com/YunYun501/Lazy-Learn-V2/internal/observability"
)

// DocumentLister lists a course's documents.
type DocumentLister interface {
	ListByCourse(ctx context.Context, courseID string) ([]*domain.Document, error)
}

// ChapterMatcher is the part of Service the retroactive matcher needs.
type ChapterMatcher interface {
	MatchChapters(ctx context.Context, documentID, courseID string) ([]domain.RelevanceResult, error)
}

// RetroactiveMatcher re-scores a course's documents after new material has
// been summarized.
type RetroactiveMatcher struct {
	documents DocumentLister
	matcher   ChapterMatcher
	logger    *observability.Logger
}

// NewRetroactiveMatcher creates a retroactive matcher.
func NewRetroactiveMatcher(documents DocumentLister, matcher ChapterMatcher, logger *observability.Logger) *RetroactiveMatcher {
	if logger == nil {
		logger = observability.Nop()
	}
	return &RetroactiveMatcher{documents: documents, matcher: matcher, logger: logger}
}

// OnMaterialSummarized scores every document of the course that already has
// a TOC. Documents still uploaded or in error are skipped. A document whose
// scoring fails is left out of the result and its error joined into the
// returned error; the other documents are still scored.
func (m *RetroactiveMatcher) OnMaterialSummarized(ctx context.Context, courseID string) (map[string][]domain.RelevanceResult, error) {
	docs, err := m.documents.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("list documents of course %s: %w", courseID, err)
	}

	results := make(map[string][]domain.RelevanceResult)
	var errs []error
	for _, doc := range docs {
		if !doc.PipelineStatus.HasTOC() {
			continue
		}
		matches, err := m.matcher.MatchChapters(ctx, doc.ID, courseID)
		if err != nil {
			m.logger.WithDocument(doc.ID).Warn().Err(err).Str("course_id", courseID).Msg("Retroactive matching failed")
			errs = append(errs, fmt.Errorf("document %s: %w", doc.ID, err))
			continue
		}
		results[doc.ID] = matches
	}

	m.logger.Info().
		Str("course_id", courseID).
		Int("documents", len(results)).
		Int("failed", len(errs)).
		Msg("Retroactive matching finished")
	return results, errors.Join(errs...)
}
