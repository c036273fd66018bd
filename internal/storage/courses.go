package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/YunYun501/Lazy-Learn-V2/internal/domain"
)

// CourseRepository handles courses, their materials and material summaries.
type CourseRepository struct {
	db DB
}

// NewCourseRepository creates a new course repository.
func NewCourseRepository(db DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// Create creates a new course.
func (r *CourseRepository) Create(ctx context.Context, course *domain.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	course.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO courses (id, name, created_at) VALUES ($1, $2, $3)`,
		course.ID, course.Name, course.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert course %q: %w", course.Name, err)
	}
	return nil
}

// GetByID retrieves a course by ID.
func (r *CourseRepository) GetByID(ctx context.Context, id string) (*domain.Course, error) {
	course := &domain.Course{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM courses WHERE id = $1`, id,
	).Scan(&course.ID, &course.Name, &course.CreatedAt)
	if err != nil {
		return nil, notFound(err, "course %s", id)
	}
	return course, nil
}

// CreateMaterial creates a new course material.
func (r *CourseRepository) CreateMaterial(ctx context.Context, m *domain.Material) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO university_materials (id, course_id, title, filepath, created_at) VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.CourseID, m.Title, m.FilePath, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert material %q: %w", m.Title, err)
	}
	return nil
}

// CreateSummary stores the summary of a material.
func (r *CourseRepository) CreateSummary(ctx context.Context, s *domain.MaterialSummary) error {
	if !json.Valid(s.SummaryJSON) {
		return domain.ValidationError("summary_json is not valid JSON", nil)
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO material_summaries (id, material_id, course_id, summary_json, created_at) VALUES ($1, $2, $3, $4, $5)`,
		s.ID, s.MaterialID, s.CourseID, string(s.SummaryJSON), s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert summary of material %s: %w", s.MaterialID, err)
	}
	return nil
}

// ListSummaries lists the material summaries of a course.
func (r *CourseRepository) ListSummaries(ctx context.Context, courseID string) ([]*domain.MaterialSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, material_id, course_id, summary_json, created_at
		FROM material_summaries WHERE course_id = $1 ORDER BY created_at, id
	`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []*domain.MaterialSummary
	for rows.Next() {
		s := &domain.MaterialSummary{}
		var raw []byte
		if err := rows.Scan(&s.ID, &s.MaterialID, &s.CourseID, &raw, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.SummaryJSON = json.RawMessage(raw)
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
