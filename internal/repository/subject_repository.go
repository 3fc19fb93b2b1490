package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/Oerlinker/BackendAISi2/internal/models"
)

// SubjectRepository reads subjects and their course assignments.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository creates a subject repository.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// FindByID returns a subject by identifier.
func (r *SubjectRepository) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	const query = `SELECT id, code, name, teacher_id, created_at FROM subjects WHERE id = $1 LIMIT 1`
	var subject models.Subject
	if err := r.db.GetContext(ctx, &subject, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find subject by id: %w", err)
	}
	return &subject, nil
}

// List returns subjects, optionally restricted to a course or teacher.
func (r *SubjectRepository) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, error) {
	query := `SELECT DISTINCT s.id, s.code, s.name, s.teacher_id, s.created_at FROM subjects s`
	var args []interface{}
	if filter.CourseID != "" {
		args = append(args, filter.CourseID)
		query += fmt.Sprintf(" JOIN course_subjects cs ON cs.subject_id = s.id AND cs.course_id = $%d", len(args))
	}
	query += " WHERE 1=1"
	if filter.TeacherID != "" {
		args = append(args, filter.TeacherID)
		query += fmt.Sprintf(" AND s.teacher_id = $%d", len(args))
	}
	query += " ORDER BY s.name ASC"

	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, args...); err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	return subjects, nil
}

// ListIDsWithGrades returns every subject that has at least one grade row.
func (r *SubjectRepository) ListIDsWithGrades(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT subject_id FROM grades ORDER BY subject_id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("list graded subjects: %w", err)
	}
	return ids, nil
}
