package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/YunYun501/Lazy-Learn-V2/internal/domain"
)

const documentColumns = `id, title, filepath, course_id, pipeline_status, last_error, resume_status, total_pages, created_at, updated_at`

// DocumentRepository handles document records and their pipeline status.
type DocumentRepository struct {
	db DB
}

// NewDocumentRepository creates a new document repository.
func NewDocumentRepository(db DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create creates a new document. An empty ID is replaced by a UUID.
func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.PipelineStatus == "" {
		doc.PipelineStatus = domain.PipelineStatusUploaded
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	query := `
		INSERT INTO documents (id, title, filepath, course_id, pipeline_status, last_error, total_pages, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		doc.ID, doc.Title, doc.FilePath, doc.CourseID, doc.PipelineStatus,
		doc.LastError, doc.TotalPages, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document %s: %w", doc.ID, err)
	}
	return nil
}

// GetByID retrieves a document by ID.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "document %s", id)
	}
	return doc, nil
}

// ListByCourse lists the documents assigned to a course, oldest first.
func (r *DocumentRepository) ListByCourse(ctx context.Context, courseID string) ([]*domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE course_id = $1 ORDER BY created_at, id`
	return r.list(ctx, query, courseID)
}

// List lists all documents, newest first.
func (r *DocumentRepository) List(ctx context.Context) ([]*domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents ORDER BY created_at DESC, id`
	return r.list(ctx, query)
}

func (r *DocumentRepository) list(ctx context.Context, query string, args ...interface{}) ([]*domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// AssignCourse links a document to a course.
func (r *DocumentRepository) AssignCourse(ctx context.Context, id, courseID string) error {
	query := `UPDATE documents SET course_id = $1, updated_at = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, courseID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("assign document %s to course %s: %w", id, courseID, err)
	}
	return checkAffected(res, "document %s", id)
}

// UpdatePipelineStatus sets the pipeline status and clears any resume point.
// A non-empty lastError is recorded with it; an empty one clears the previous
// error.
func (r *DocumentRepository) UpdatePipelineStatus(ctx context.Context, id string, status domain.PipelineStatus, lastError string) error {
	var errValue *string
	if lastError != "" {
		errValue = &lastError
	}
	query := `UPDATE documents SET pipeline_status = $1, last_error = $2, resume_status = NULL, updated_at = $3 WHERE id = $4`
	res, err := r.db.ExecContext(ctx, query, status, errValue, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update pipeline status of %s: %w", id, err)
	}
	return checkAffected(res, "document %s", id)
}

// MarkFailed moves a document to error, recording the failure message and
// the status its failed phase started from.
func (r *DocumentRepository) MarkFailed(ctx context.Context, id string, resume domain.PipelineStatus, lastError string) error {
	query := `UPDATE documents SET pipeline_status = $1, last_error = $2, resume_status = $3, updated_at = $4 WHERE id = $5`
	res, err := r.db.ExecContext(ctx, query, domain.PipelineStatusError, lastError, resume, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark document %s failed: %w", id, err)
	}
	return checkAffected(res, "document %s", id)
}

// SetTotalPages records the page count discovered during the TOC phase.
func (r *DocumentRepository) SetTotalPages(ctx context.Context, id string, pages int) error {
	query := `UPDATE documents SET total_pages = $1, updated_at = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, pages, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set total pages of %s: %w", id, err)
	}
	return checkAffected(res, "document %s", id)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	doc := &domain.Document{}
	var resume sql.NullString
	err := row.Scan(
		&doc.ID, &doc.Title, &doc.FilePath, &doc.CourseID, &doc.PipelineStatus,
		&doc.LastError, &resume, &doc.TotalPages, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.ResumeStatus = domain.PipelineStatus(resume.String)
	return doc, nil
}
