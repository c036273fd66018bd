package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/YunYun501/Lazy-Learn-V2/internal/domain"
)

const chapterColumns = `id, document_id, chapter_number, title, page_start, page_end, extraction_status, created_at, updated_at`

// ChapterRepository handles chapters and their sections.
type ChapterRepository struct {
	db DB
}

// NewChapterRepository creates a new chapter repository.
func NewChapterRepository(db DB) *ChapterRepository {
	return &ChapterRepository{db: db}
}

// Create creates a new chapter.
func (r *ChapterRepository) Create(ctx context.Context, ch *domain.Chapter) error {
	if ch.PageStart < 1 || ch.PageStart > ch.PageEnd {
		return domain.ValidationError(fmt.Sprintf("chapter %q has invalid page range %d-%d", ch.Title, ch.PageStart, ch.PageEnd), nil)
	}
	if ch.ID == "" {
		ch.ID = uuid.NewString()
	}
	if ch.ExtractionStatus == "" {
		ch.ExtractionStatus = domain.ExtractionStatusPending
	}
	now := time.Now().UTC()
	ch.CreatedAt = now
	ch.UpdatedAt = now

	query := `
		INSERT INTO chapters (id, document_id, chapter_number, title, page_start, page_end, extraction_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		ch.ID, ch.DocumentID, ch.ChapterNumber, ch.Title, ch.PageStart, ch.PageEnd,
		ch.ExtractionStatus, ch.CreatedAt, ch.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert chapter %q: %w", ch.Title, err)
	}
	return nil
}

// GetByID retrieves a chapter by ID.
func (r *ChapterRepository) GetByID(ctx context.Context, id string) (*domain.Chapter, error) {
	query := `SELECT ` + chapterColumns + ` FROM chapters WHERE id = $1`
	ch, err := scanChapter(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "chapter %s", id)
	}
	return ch, nil
}

// ListByDocument lists a document's chapters in page order.
func (r *ChapterRepository) ListByDocument(ctx context.Context, documentID string) ([]*domain.Chapter, error) {
	query := `SELECT ` + chapterColumns + ` FROM chapters WHERE document_id = $1 ORDER BY page_start, id`
	return r.list(ctx, query, documentID)
}

// ListByStatus lists a document's chapters with the given extraction status.
func (r *ChapterRepository) ListByStatus(ctx context.Context, documentID string, status domain.ExtractionStatus) ([]*domain.Chapter, error) {
	query := `SELECT ` + chapterColumns + ` FROM chapters WHERE document_id = $1 AND extraction_status = $2 ORDER BY page_start, id`
	return r.list(ctx, query, documentID, status)
}

func (r *ChapterRepository) list(ctx context.Context, query string, args ...interface{}) ([]*domain.Chapter, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chapters []*domain.Chapter
	for rows.Next() {
		ch, err := scanChapter(rows)
		if err != nil {
			return nil, err
		}
		chapters = append(chapters, ch)
	}
	return chapters, rows.Err()
}

// UpdateExtractionStatus sets a chapter's extraction status.
func (r *ChapterRepository) UpdateExtractionStatus(ctx context.Context, id string, status domain.ExtractionStatus) error {
	query := `UPDATE chapters SET extraction_status = $1, updated_at = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update extraction status of chapter %s: %w", id, err)
	}
	return checkAffected(res, "chapter %s", id)
}

// DeleteByDocument removes a document's chapters; sections and contents cascade.
func (r *ChapterRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM chapters WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("delete chapters of %s: %w", documentID, err)
	}
	return nil
}

// CreateSection creates a section or sub-section.
func (r *ChapterRepository) CreateSection(ctx context.Context, sec *domain.Section) error {
	if sec.PageStart > sec.PageEnd {
		return domain.ValidationError(fmt.Sprintf("section %q has invalid page range %d-%d", sec.Title, sec.PageStart, sec.PageEnd), nil)
	}
	if sec.ID == "" {
		sec.ID = uuid.NewString()
	}
	sec.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO sections (id, chapter_id, parent_section_id, section_number, title, level, page_start, page_end, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		sec.ID, sec.ChapterID, sec.ParentSectionID, sec.SectionNumber, sec.Title,
		sec.Level, sec.PageStart, sec.PageEnd, sec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert section %q: %w", sec.Title, err)
	}
	return nil
}

// ListSections lists a chapter's sections and sub-sections in page order.
func (r *ChapterRepository) ListSections(ctx context.Context, chapterID string) ([]*domain.Section, error) {
	query := `
		SELECT id, chapter_id, parent_section_id, section_number, title, level, page_start, page_end, created_at
		FROM sections WHERE chapter_id = $1 ORDER BY page_start, level, id
	`
	rows, err := r.db.QueryContext(ctx, query, chapterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sections []*domain.Section
	for rows.Next() {
		sec := &domain.Section{}
		if err := rows.Scan(
			&sec.ID, &sec.ChapterID, &sec.ParentSectionID, &sec.SectionNumber, &sec.Title,
			&sec.Level, &sec.PageStart, &sec.PageEnd, &sec.CreatedAt,
		); err != nil {
			return nil, err
		}
		sections = append(sections, sec)
	}
	return sections, rows.Err()
}

func scanChapter(row rowScanner) (*domain.Chapter, error) {
	ch := &domain.Chapter{}
	err := row.Scan(
		&ch.ID, &ch.DocumentID, &ch.ChapterNumber, &ch.Title, &ch.PageStart, &ch.PageEnd,
		&ch.ExtractionStatus, &ch.CreatedAt, &ch.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return ch, nil
}
