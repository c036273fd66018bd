// Package domain holds the ingestion pipeline's data model, its closed status
// enums and transition graph, raw fragment variants and the error taxonomy.
package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ContentType classifies a persisted extracted fragment.
type ContentType string

const (
	ContentTypeText     ContentType = "text"
	ContentTypeTable    ContentType = "table"
	ContentTypeFigure   ContentType = "figure"
	ContentTypeEquation ContentType = "equation"
)

// Course groups documents and the course materials they are scored against.
type Course struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Document is an uploaded textbook, slide deck or other course document.
type Document struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	FilePath       string         `json:"filepath"`
	CourseID       *string        `json:"course_id,omitempty"`
	PipelineStatus PipelineStatus `json:"pipeline_status"`
	LastError      *string        `json:"last_error,omitempty"`
	// ResumeStatus is the status the document held when the phase that left
	// it in error began. Empty unless PipelineStatus is error.
	ResumeStatus PipelineStatus `json:"resume_status,omitempty"`
	TotalPages     int            `json:"total_pages"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Chapter is a top-level page range of a document.
type Chapter struct {
	ID               string           `json:"id"`
	DocumentID       string           `json:"document_id"`
	ChapterNumber    string           `json:"chapter_number"`
	Title            string           `json:"title"`
	PageStart        int              `json:"page_start"`
	PageEnd          int              `json:"page_end"`
	ExtractionStatus ExtractionStatus `json:"extraction_status"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Contains reports whether the 1-based page falls within the chapter.
func (c *Chapter) Contains(page int) bool {
	return page >= c.PageStart && page <= c.PageEnd
}

// Section is a sub-division of a chapter. Level 2 sections may have level 3
// sub-sections; sub-sections have none.
type Section struct {
	ID              string    `json:"id"`
	ChapterID       string    `json:"chapter_id"`
	ParentSectionID *string   `json:"parent_section_id,omitempty"`
	SectionNumber   string    `json:"section_number"`
	Title           string    `json:"title"`
	Level           int       `json:"level"`
	PageStart       int       `json:"page_start"`
	PageEnd         int       `json:"page_end"`
	CreatedAt       time.Time `json:"created_at"`
}

// ExtractedContent is one persisted fragment of a chapter.
type ExtractedContent struct {
	ID          string      `json:"id"`
	ChapterID   string      `json:"chapter_id"`
	ContentType ContentType `json:"content_type"`
	Title       *string     `json:"title,omitempty"`
	Content     string      `json:"content"`
	FilePath    *string     `json:"file_path,omitempty"`
	PageNumber  int         `json:"page_number"`
	OrderIndex  int         `json:"order_index"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Material is an uploaded piece of university course material.
type Material struct {
	ID        string    `json:"id"`
	CourseID  string    `json:"course_id"`
	Title     string    `json:"title"`
	FilePath  string    `json:"filepath"`
	CreatedAt time.Time `json:"created_at"`
}

// Topic is a single topic from a material summary.
type Topic struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// MaterialSummary is the AI summary of a Material.
type MaterialSummary struct {
	ID          string          `json:"id"`
	MaterialID  string          `json:"material_id"`
	CourseID    string          `json:"course_id"`
	SummaryJSON json.RawMessage `json:"summary_json"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Topics decodes the topic list of the summary.
func (s *MaterialSummary) Topics() ([]Topic, error) {
	if len(s.SummaryJSON) == 0 {
		return nil, nil
	}
	var payload struct {
		Topics []Topic `json:"topics"`
	}
	if err := json.Unmarshal(s.SummaryJSON, &payload); err != nil {
		return nil, fmt.Errorf("decode summary %s: %w", s.ID, err)
	}
	return payload.Topics, nil
}

// RelevanceResult scores one chapter against a course's topics. Not persisted.
type RelevanceResult struct {
	ChapterID      string   `json:"chapter_id"`
	ChapterTitle   string   `json:"chapter_title,omitempty"`
	RelevanceScore float64  `json:"relevance_score"`
	MatchedTopics  []string `json:"matched_topics"`
	Reasoning      string   `json:"reasoning,omitempty"`
}
