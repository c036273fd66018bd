// Package relevance scores a document's chapters against the topics of a
// course's material summaries.
package relevance

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/YunYun501/Lazy-Learn-V2/internal/domain"
	"github.com/YunYun501/Lazy-Learn-V2/internal/observability"
)

// ChapterLister lists a document's chapters.
type ChapterLister interface {
	ListByDocument(ctx context.Context, documentID string) ([]*domain.Chapter, error)
}

// SummaryLister lists a course's material summaries.
type SummaryLister interface {
	ListSummaries(ctx context.Context, courseID string) ([]*domain.MaterialSummary, error)
}

// ScoreRequest is one scoring call: every chapter of a document against every
// topic of a course.
type ScoreRequest struct {
	DocumentID string
	CourseID   string
	Topics     []string
	Chapters   []*domain.Chapter
}

// Scorer rates chapters against topics. Scores are not trusted and are
// clamped by the Service.
type Scorer interface {
	Score(ctx context.Context, req ScoreRequest) ([]domain.RelevanceResult, error)
}

// Service matches chapters to course topics with a single scoring call per
// document.
type Service struct {
	chapters  ChapterLister
	summaries SummaryLister
	scorer    Scorer
	logger    *observability.Logger
}

// NewService creates a relevance service.
func NewService(chapters ChapterLister, summaries SummaryLister, scorer Scorer, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Service{chapters: chapters, summaries: summaries, scorer: scorer, logger: logger}
}

// MatchChapters scores the document's chapters against the course. It
// returns an empty list without calling the scorer when the course has no
// material summaries or the document has no chapters. Results are sorted by
// score, highest first.
func (s *Service) MatchChapters(ctx context.Context, documentID, courseID string) ([]domain.RelevanceResult, error) {
	log := s.logger.WithDocument(documentID).WithOperation("match_chapters")

	summaries, err := s.summaries.ListSummaries(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("list summaries of course %s: %w", courseID, err)
	}
	if len(summaries) == 0 {
		log.Debug().Str("course_id", courseID).Msg("No material summaries, skipping relevance scoring")
		return []domain.RelevanceResult{}, nil
	}

	chapters, err := s.chapters.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	if len(chapters) == 0 {
		return []domain.RelevanceResult{}, nil
	}

	topics := topicLines(log, summaries)
	if len(topics) == 0 {
		log.Debug().Str("course_id", courseID).Msg("Material summaries carry no topics")
		return []domain.RelevanceResult{}, nil
	}

	raw, err := s.scorer.Score(ctx, ScoreRequest{
		DocumentID: documentID,
		CourseID:   courseID,
		Topics:     topics,
		Chapters:   chapters,
	})
	if err != nil {
		return nil, fmt.Errorf("score chapters: %w", err)
	}

	results := Normalize(raw, chapters)
	log.Info().
		Int("chapters", len(chapters)).
		Int("topics", len(topics)).
		Int("results", len(results)).
		Msg("Chapters scored")
	return results, nil
}

// topicLines renders every summary topic as "title: description". Summaries
// that fail to decode are skipped.
func topicLines(log *observability.Logger, summaries []*domain.MaterialSummary) []string {
	seen := make(map[string]bool)
	var lines []string
	for _, sum := range summaries {
		topics, err := sum.Topics()
		if err != nil {
			log.Warn().Err(err).Str("summary_id", sum.ID).Msg("Skipping undecodable summary")
			continue
		}
		for _, t := range topics {
			if t.Title == "" {
				continue
			}
			line := t.Title
			if t.Description != "" {
				line += ": " + t.Description
			}
			if !seen[line] {
				seen[line] = true
				lines = append(lines, line)
			}
		}
	}
	return lines
}

// Normalize drops results for chapters not in chapters, keeps the first
// result per chapter, clamps scores into [0, 1] and sorts by score with
// ties kept in chapter order.
func Normalize(raw []domain.RelevanceResult, chapters []*domain.Chapter) []domain.RelevanceResult {
	byID := make(map[string]*domain.Chapter, len(chapters))
	order := make(map[string]int, len(chapters))
	for i, ch := range chapters {
		byID[ch.ID] = ch
		order[ch.ID] = i
	}

	seen := make(map[string]bool, len(raw))
	results := make([]domain.RelevanceResult, 0, len(raw))
	for _, r := range raw {
		ch, ok := byID[r.ChapterID]
		if !ok || seen[r.ChapterID] {
			continue
		}
		seen[r.ChapterID] = true
		r.RelevanceScore = Clamp(r.RelevanceScore)
		if r.ChapterTitle == "" {
			r.ChapterTitle = ch.Title
		}
		if r.MatchedTopics == nil {
			r.MatchedTopics = []string{}
		}
		results = append(results, r)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].RelevanceScore != results[j].RelevanceScore {
			return results[i].RelevanceScore > results[j].RelevanceScore
		}
		return order[results[i].ChapterID] < order[results[j].ChapterID]
	})
	return results
}

// Clamp bounds a score to [0, 1]. NaN becomes 0.
func Clamp(score float64) float64 {
	switch {
	case math.IsNaN(score), score < 0:
		return 0
	case score > 1:
		return 1
	}
	return score
}
