package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/Oerlinker/BackendAISi2/internal/models"
)

// GradeRepository reads trimester grades.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository creates a new grade repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// ListForPair returns the grades of a student in a subject, latest period first.
func (r *GradeRepository) ListForPair(ctx context.Context, studentID, subjectID string) ([]models.Grade, error) {
	const query = `SELECT g.id, g.student_id, g.subject_id, g.period_id, g.ser, g.saber, g.hacer, g.decidir, g.auto_ser, g.auto_decidir,
        p.start_date AS period_start, p.end_date AS period_end, g.created_at
        FROM grades g
        JOIN periods p ON p.id = g.period_id
        WHERE g.student_id = $1 AND g.subject_id = $2
        ORDER BY p.start_date DESC, g.created_at DESC`
	var grades []models.Grade
	if err := r.db.SelectContext(ctx, &grades, query, studentID, subjectID); err != nil {
		return nil, fmt.Errorf("list grades for pair: %w", err)
	}
	return grades, nil
}

// ListTrainingRows returns grades joined with attendance and participation
// aggregated inside each grade's period. An empty subjectID spans all subjects.
func (r *GradeRepository) ListTrainingRows(ctx context.Context, subjectID string) ([]models.TrainingRow, error) {
	query := `SELECT g.id AS grade_id, g.student_id, g.subject_id, g.period_id,
        g.ser, g.saber, g.hacer, g.decidir, g.auto_ser, g.auto_decidir,
        p.start_date AS period_start, p.end_date AS period_end,
        COALESCE(a.present, 0) AS attendance_present, COALESCE(a.total, 0) AS attendance_total,
        COALESCE(pa.count, 0) AS participation_count, COALESCE(pa.average, 0) AS participation_avg
        FROM grades g
        JOIN periods p ON p.id = g.period_id
        LEFT JOIN LATERAL (
            SELECT COUNT(*) FILTER (WHERE at.present) AS present, COUNT(*) AS total
            FROM attendances at
            WHERE at.student_id = g.student_id AND at.subject_id = g.subject_id
              AND at.date BETWEEN p.start_date AND p.end_date
        ) a ON TRUE
        LEFT JOIN LATERAL (
            SELECT COUNT(*) AS count, AVG(pt.value)::float8 AS average
            FROM participations pt
            WHERE pt.student_id = g.student_id AND pt.subject_id = g.subject_id
              AND pt.date BETWEEN p.start_date AND p.end_date
        ) pa ON TRUE
        WHERE 1=1`
	var args []interface{}
	if subjectID != "" {
		args = append(args, subjectID)
		query += fmt.Sprintf(" AND g.subject_id = $%d", len(args))
	}
	query += " ORDER BY p.start_date ASC, g.student_id ASC"

	var rows []models.TrainingRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list training rows: %w", err)
	}
	return rows, nil
}

// CountRecords snapshots the sizes of the source tables used for training.
func (r *GradeRepository) CountRecords(ctx context.Context) (models.RecordCounts, error) {
	const query = `SELECT
        (SELECT COUNT(*) FROM grades) AS grades,
        (SELECT COUNT(*) FROM attendances) AS attendances,
        (SELECT COUNT(*) FROM participations) AS participations,
        (SELECT COUNT(*) FROM subjects) AS subjects`
	var counts models.RecordCounts
	if err := r.db.GetContext(ctx, &counts, query); err != nil {
		return models.RecordCounts{}, fmt.Errorf("count source records: %w", err)
	}
	return counts, nil
}
