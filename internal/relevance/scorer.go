package relevance

import (
	"context"
	"fmt"
	"strings"

	"github.com/YunYun501/Lazy-Learn-V2/internal/domain"
)

// JSONCompleter sends one prompt and decodes the JSON reply into out.
type JSONCompleter interface {
	CompleteJSON(ctx context.Context, system, user string, out interface{}) error
}

const scorerSystemPrompt = "You rate how relevant textbook chapters are to university course material. Reply with JSON only."

// LLMScorer scores chapters with one chat completion per request.
type LLMScorer struct {
	ai JSONCompleter
}

// NewLLMScorer creates an LLM-backed scorer.
func NewLLMScorer(ai JSONCompleter) *LLMScorer {
	return &LLMScorer{ai: ai}
}

type scoredChapter struct {
	ChapterID      string   `json:"chapter_id"`
	ChapterTitle   string   `json:"chapter_title"`
	RelevanceScore float64  `json:"relevance_score"`
	MatchedTopics  []string `json:"matched_topics"`
	Reasoning      string   `json:"reasoning"`
}

type scoreResponse struct {
	Results []scoredChapter `json:"results"`
}

// Score implements Scorer.
func (s *LLMScorer) Score(ctx context.Context, req ScoreRequest) ([]domain.RelevanceResult, error) {
	var resp scoreResponse
	if err := s.ai.CompleteJSON(ctx, scorerSystemPrompt, buildPrompt(req), &resp); err != nil {
		return nil, err
	}

	results := make([]domain.RelevanceResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, domain.RelevanceResult{
			ChapterID:      r.ChapterID,
			ChapterTitle:   r.ChapterTitle,
			RelevanceScore: r.RelevanceScore,
			MatchedTopics:  r.MatchedTopics,
			Reasoning:      r.Reasoning,
		})
	}
	return results, nil
}

func buildPrompt(req ScoreRequest) string {
	var b strings.Builder
	b.WriteString("Given these course material topics:\n")
	for _, t := range req.Topics {
		fmt.Fprintf(&b, "- %s\n", t)
	}
	b.WriteString("\nAnd these textbook chapters:\n")
	for _, ch := range req.Chapters {
		fmt.Fprintf(&b, "- Chapter %s: %s (id: %s)\n", ch.ChapterNumber, ch.Title, ch.ID)
	}
	b.WriteString("\nRate the relevance of each chapter to the course material with a score from 0.0 to 1.0.\n")
	b.WriteString("For each chapter list the material topics it matches and give brief reasoning.\n\n")
	b.WriteString(`Return JSON: {"results": [{"chapter_id": "...", "chapter_title": "...", "relevance_score": 0.0, "matched_topics": ["..."], "reasoning": "..."}]}`)
	return b.String()
}
