package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Oerlinker/BackendAISi2/internal/models"
)

// PredictionRepository persists forecasts. Rows are append-only.
type PredictionRepository struct {
	db *sqlx.DB
}

// NewPredictionRepository creates a prediction repository.
func NewPredictionRepository(db *sqlx.DB) *PredictionRepository {
	return &PredictionRepository{db: db}
}

const predictionColumns = `p.id, p.student_id, p.subject_id, p.value, p.level, p.grade_average, p.attendance_pct,
        p.participation_avg, p.source, p.confidence, p.created_at, u.full_name AS student_name, s.name AS subject_name`

const predictionJoins = ` FROM predictions p
        LEFT JOIN users u ON u.id = p.student_id
        LEFT JOIN subjects s ON s.id = p.subject_id`

// Create inserts a new prediction row.
func (r *PredictionRepository) Create(ctx context.Context, prediction *models.Prediction) error {
	if prediction.ID == "" {
		prediction.ID = uuid.NewString()
	}
	if prediction.CreatedAt.IsZero() {
		prediction.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO predictions (id, student_id, subject_id, value, level, grade_average, attendance_pct, participation_avg, source, confidence, created_at)
        VALUES (:id, :student_id, :subject_id, :value, :level, :grade_average, :attendance_pct, :participation_avg, :source, :confidence, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, prediction); err != nil {
		return fmt.Errorf("create prediction: %w", err)
	}
	return nil
}

// GetByID returns a prediction by identifier.
func (r *PredictionRepository) GetByID(ctx context.Context, id string) (*models.Prediction, error) {
	query := `SELECT ` + predictionColumns + predictionJoins + ` WHERE p.id = $1 LIMIT 1`
	var prediction models.Prediction
	if err := r.db.GetContext(ctx, &prediction, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get prediction: %w", err)
	}
	return &prediction, nil
}

// LatestForPair returns the most recent prediction for the pair created at or after since.
// sql.ErrNoRows signals that none exists.
func (r *PredictionRepository) LatestForPair(ctx context.Context, studentID, subjectID string, since time.Time) (*models.Prediction, error) {
	query := `SELECT ` + predictionColumns + predictionJoins + `
        WHERE p.student_id = $1 AND p.subject_id = $2 AND p.created_at >= $3
        ORDER BY p.created_at DESC LIMIT 1`
	var prediction models.Prediction
	if err := r.db.GetContext(ctx, &prediction, query, studentID, subjectID, since); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("latest prediction for pair: %w", err)
	}
	return &prediction, nil
}

// List returns predictions matching the filter, newest first.
func (r *PredictionRepository) List(ctx context.Context, filter models.PredictionFilter) ([]models.Prediction, error) {
	query := `SELECT ` + predictionColumns + predictionJoins + ` WHERE 1=1`
	var args []interface{}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		query += fmt.Sprintf(" AND p.student_id = $%d", len(args))
	}
	if filter.SubjectID != "" {
		args = append(args, filter.SubjectID)
		query += fmt.Sprintf(" AND p.subject_id = $%d", len(args))
	}
	if filter.CourseID != "" {
		args = append(args, filter.CourseID)
		query += fmt.Sprintf(" AND u.course_id = $%d", len(args))
	}
	if filter.TeacherID != "" {
		args = append(args, filter.TeacherID)
		query += fmt.Sprintf(" AND s.teacher_id = $%d", len(args))
	}
	if len(filter.Levels) > 0 {
		levels := make([]string, len(filter.Levels))
		for i, level := range filter.Levels {
			levels[i] = string(level)
		}
		args = append(args, pq.Array(levels))
		query += fmt.Sprintf(" AND p.level = ANY($%d)", len(args))
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		query += fmt.Sprintf(" AND p.created_at >= $%d", len(args))
	}
	query += " ORDER BY p.created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	var predictions []models.Prediction
	if err := r.db.SelectContext(ctx, &predictions, query, args...); err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	return predictions, nil
}

// CountStudentsAtLevelBySubject counts distinct students per subject owned by
// teacherID whose prediction since the given time reached level.
func (r *PredictionRepository) CountStudentsAtLevelBySubject(ctx context.Context, teacherID string, level models.PerformanceLevel, since time.Time) ([]models.SubjectLevelCount, error) {
	const query = `SELECT s.id AS subject_id, s.name AS subject_name, COUNT(DISTINCT p.student_id) AS students
        FROM predictions p
        JOIN subjects s ON s.id = p.subject_id
        WHERE s.teacher_id = $1 AND p.level = $2 AND p.created_at >= $3
        GROUP BY s.id, s.name
        HAVING COUNT(DISTINCT p.student_id) > 0
        ORDER BY students DESC, s.name ASC`
	var rows []models.SubjectLevelCount
	if err := r.db.SelectContext(ctx, &rows, query, teacherID, level, since); err != nil {
		return nil, fmt.Errorf("count students at level by subject: %w", err)
	}
	return rows, nil
}

// CourseLevelRatios returns, per course, how many enrolled students hold a
// prediction at level since the given time.
func (r *PredictionRepository) CourseLevelRatios(ctx context.Context, level models.PerformanceLevel, since time.Time) ([]models.CourseLevelRatio, error) {
	const query = `SELECT c.id AS course_id, c.name AS course_name,
        COUNT(DISTINCT p.student_id) AS at_level,
        (SELECT COUNT(*) FROM users su WHERE su.course_id = c.id AND su.role = 'STUDENT' AND su.active = TRUE) AS total_students
        FROM courses c
        LEFT JOIN users u ON u.course_id = c.id AND u.role = 'STUDENT' AND u.active = TRUE
        LEFT JOIN predictions p ON p.student_id = u.id AND p.level = $1 AND p.created_at >= $2
        GROUP BY c.id, c.name
        ORDER BY c.name ASC`
	var rows []models.CourseLevelRatio
	if err := r.db.SelectContext(ctx, &rows, query, level, since); err != nil {
		return nil, fmt.Errorf("course level ratios: %w", err)
	}
	return rows, nil
}

// CountStudentsAtLevel returns how many distinct students hold a prediction at
// level since the given time.
func (r *PredictionRepository) CountStudentsAtLevel(ctx context.Context, level models.PerformanceLevel, since time.Time) (int, error) {
	const query = `SELECT COUNT(DISTINCT student_id) FROM predictions WHERE level = $1 AND created_at >= $2`
	var total int
	if err := r.db.GetContext(ctx, &total, query, level, since); err != nil {
		return 0, fmt.Errorf("count students at level: %w", err)
	}
	return total, nil
}
