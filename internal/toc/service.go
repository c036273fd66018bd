// Package toc discovers a document's chapter and section boundaries.
package toc

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/YunYun501/Lazy-Learn-V2/internal/domain"
	"github.com/YunYun501/Lazy-Learn-V2/internal/extraction"
	"github.com/YunYun501/Lazy-Learn-V2/internal/observability"
	"github.com/YunYun501/Lazy-Learn-V2/internal/pdfdoc"
)

// Sources of a TOC.
const (
	SourceBookmarks = "bookmarks"
	SourceAI        = "ai"
	SourceFallback  = "fallback"
)

// FullDocumentTitle names the single chapter used when nothing else is found.
const FullDocumentTitle = "Full Document"

// DocumentLookup loads documents.
type DocumentLookup interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// JSONCompleter sends one prompt and decodes the JSON reply into out.
type JSONCompleter interface {
	CompleteJSON(ctx context.Context, system, user string, out interface{}) error
}

// Config configures the AI fallback.
type Config struct {
	FallbackPages  int
	MaxPromptChars int
}

// Service extracts tables of contents: PDF bookmarks first, then an AI read
// of the first pages, then a single "Full Document" chapter.
type Service struct {
	documents DocumentLookup
	ai        JSONCompleter
	cfg       Config
	logger    *observability.Logger
}

// NewService creates a TOC service. ai may be nil, which disables the AI
// fallback.
func NewService(documents DocumentLookup, ai JSONCompleter, cfg Config, logger *observability.Logger) *Service {
	if cfg.FallbackPages <= 0 {
		cfg.FallbackPages = 5
	}
	if cfg.MaxPromptChars <= 0 {
		cfg.MaxPromptChars = 8000
	}
	if logger == nil {
		logger = observability.Nop()
	}
	return &Service{documents: documents, ai: ai, cfg: cfg, logger: logger}
}

// ExtractTOC returns the chapters and sections of a document.
func (s *Service) ExtractTOC(ctx context.Context, documentID string) (*domain.TOC, error) {
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	log := s.logger.WithDocument(documentID).WithOperation("extract_toc")

	pdf, err := pdfdoc.Open(doc.FilePath)
	if err != nil {
		return nil, domain.ExtractionFailedError(fmt.Sprintf("open %s", doc.FilePath), err)
	}
	defer pdf.Close()

	pages := pdf.NumPages()
	entries, source := s.entries(ctx, log, pdf, pages)

	toc := BuildTOC(entries, pages)
	if len(toc.Chapters) == 0 {
		source = SourceFallback
		toc = BuildTOC(fullDocument(), pages)
	}
	toc.Source = source
	if err := toc.Validate(); err != nil {
		return nil, err
	}

	log.Info().
		Str("source", source).
		Int("chapters", len(toc.Chapters)).
		Int("pages", pages).
		Msg("TOC extracted")
	return &toc, nil
}

func (s *Service) entries(ctx context.Context, log *observability.Logger, pdf *pdfdoc.Document, pages int) ([]domain.OutlineEntry, string) {
	outline, err := pdf.Outline()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read bookmarks")
	}
	if outline = normalizeLevels(outline); len(outline) > 0 {
		return outline, SourceBookmarks
	}

	if s.ai != nil {
		entries, err := s.aiEntries(ctx, pdf, pages)
		if err != nil {
			log.Warn().Err(err).Msg("AI TOC detection failed")
		} else if len(entries) > 0 {
			return entries, SourceAI
		}
	}

	return fullDocument(), SourceFallback
}

func fullDocument() []domain.OutlineEntry {
	return []domain.OutlineEntry{{Level: 1, Title: FullDocumentTitle, Page: 1}}
}

// normalizeLevels shifts outline levels so the shallowest entry is level 1.
func normalizeLevels(outline []domain.OutlineEntry) []domain.OutlineEntry {
	if len(outline) == 0 {
		return nil
	}
	minLevel := outline[0].Level
	for _, e := range outline {
		if e.Level < minLevel {
			minLevel = e.Level
		}
	}
	if minLevel == 1 {
		return outline
	}
	shifted := make([]domain.OutlineEntry, len(outline))
	for i, e := range outline {
		e.Level = e.Level - minLevel + 1
		shifted[i] = e
	}
	return shifted
}

// BuildTOC cuts chapters at level 1 entries. A chapter ends the page before
// the next chapter starts, or at the last page. Pages beyond the document are
// clamped and level 1 entries that do not start after the previous chapter
// are ignored.
func BuildTOC(entries []domain.OutlineEntry, totalPages int) domain.TOC {
	clamped := make([]domain.OutlineEntry, 0, len(entries))
	for _, e := range entries {
		if e.Page < 1 || strings.TrimSpace(e.Title) == "" {
			continue
		}
		if totalPages > 0 && e.Page > totalPages {
			e.Page = totalPages
		}
		clamped = append(clamped, e)
	}

	var starts []int
	for i, e := range clamped {
		if e.Level != 1 {
			continue
		}
		if n := len(starts); n > 0 && e.Page <= clamped[starts[n-1]].Page {
			continue
		}
		starts = append(starts, i)
	}

	toc := domain.TOC{TotalPages: totalPages}
	for k, i := range starts {
		start := clamped[i].Page
		end := totalPages
		if k+1 < len(starts) {
			end = clamped[starts[k+1]].Page - 1
		}
		if end < start {
			end = start
		}
		number := fmt.Sprintf("%d", k+1)
		toc.Chapters = append(toc.Chapters, domain.ChapterSpec{
			ChapterNumber: number,
			Title:         strings.TrimSpace(clamped[i].Title),
			PageStart:     start,
			PageEnd:       end,
			Sections:      extraction.BuildSections(clamped, number, start, end),
		})
	}
	return toc
}

type aiChapter struct {
	Title string `json:"title"`
	Page  int    `json:"page"`
}

type aiResponse struct {
	Chapters []aiChapter `json:"chapters"`
}

const aiSystemPrompt = "You identify the chapter structure of textbooks and course documents. Reply with JSON only."

func (s *Service) aiEntries(ctx context.Context, pdf *pdfdoc.Document, pages int) ([]domain.OutlineEntry, error) {
	text, err := pdf.LeadingText(s.cfg.FallbackPages, s.cfg.MaxPromptChars)
	if err != nil {
		return nil, fmt.Errorf("read leading pages: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	prompt := fmt.Sprintf(`The document has %d pages. Below is the text of its first pages.
List its top-level chapters with the 1-based PDF page each one starts on.
Reply as {"chapters":[{"title": string, "page": integer}]}. Reply {"chapters":[]} if there is no table of contents.

%s`, pages, text)

	var resp aiResponse
	if err := s.ai.CompleteJSON(ctx, aiSystemPrompt, prompt, &resp); err != nil {
		return nil, err
	}

	entries := make([]domain.OutlineEntry, 0, len(resp.Chapters))
	for _, c := range resp.Chapters {
		if c.Page < 1 || c.Page > pages || strings.TrimSpace(c.Title) == "" {
			continue
		}
		entries = append(entries, domain.OutlineEntry{Level: 1, Title: c.Title, Page: c.Page})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Page < entries[j].Page })
	return entries, nil
}
