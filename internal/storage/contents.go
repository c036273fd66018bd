package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/YunYun501/Lazy-Learn-V2/internal/domain"
)

// ContentRepository handles extracted content rows.
type ContentRepository struct {
	db DB
}

// NewContentRepository creates a new content repository.
func NewContentRepository(db DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// Create inserts one extracted content row.
func (r *ContentRepository) Create(ctx context.Context, c *domain.ExtractedContent) error {
	return insertContent(ctx, r.db, c)
}

// ReplaceForChapter deletes a chapter's previous content and inserts the new
// set in one transaction. Either the whole set is visible or none of it is.
func (r *ContentRepository) ReplaceForChapter(ctx context.Context, chapterID string, contents []*domain.ExtractedContent) error {
	err := withTx(ctx, r.db, func(tx DB) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM extracted_contents WHERE chapter_id = $1`, chapterID); err != nil {
			return fmt.Errorf("delete previous content: %w", err)
		}
		for _, c := range contents {
			c.ChapterID = chapterID
			if err := insertContent(ctx, tx, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.PersistenceFailedError(fmt.Sprintf("replace content of chapter %s", chapterID), err)
	}
	return nil
}

// ListByChapter lists a chapter's content in order.
func (r *ContentRepository) ListByChapter(ctx context.Context, chapterID string) ([]*domain.ExtractedContent, error) {
	query := `
		SELECT id, chapter_id, content_type, title, content, file_path, page_number, order_index, created_at
		FROM extracted_contents WHERE chapter_id = $1 ORDER BY order_index
	`
	rows, err := r.db.QueryContext(ctx, query, chapterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contents []*domain.ExtractedContent
	for rows.Next() {
		c := &domain.ExtractedContent{}
		if err := rows.Scan(
			&c.ID, &c.ChapterID, &c.ContentType, &c.Title, &c.Content, &c.FilePath,
			&c.PageNumber, &c.OrderIndex, &c.CreatedAt,
		); err != nil {
			return nil, err
		}
		contents = append(contents, c)
	}
	return contents, rows.Err()
}

// CountByChapter returns the number of content rows of a chapter.
func (r *ContentRepository) CountByChapter(ctx context.Context, chapterID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM extracted_contents WHERE chapter_id = $1`, chapterID).Scan(&n)
	return n, err
}

func insertContent(ctx context.Context, db DB, c *domain.ExtractedContent) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO extracted_contents (id, chapter_id, content_type, title, content, file_path, page_number, order_index, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := db.ExecContext(ctx, query,
		c.ID, c.ChapterID, c.ContentType, c.Title, c.Content, c.FilePath,
		c.PageNumber, c.OrderIndex, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert %s content #%d: %w", c.ContentType, c.OrderIndex, err)
	}
	return nil
}
