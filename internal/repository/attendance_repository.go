package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Oerlinker/BackendAISi2/internal/models"
)

// AttendanceRepository aggregates presence marks.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository creates an attendance repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// StatsBetween counts present and total marks of a student in a subject, bounds inclusive.
func (r *AttendanceRepository) StatsBetween(ctx context.Context, studentID, subjectID string, from, to time.Time) (models.AttendanceStats, error) {
	const query = `SELECT COUNT(*) FILTER (WHERE present) AS present, COUNT(*) AS total
        FROM attendances
        WHERE student_id = $1 AND subject_id = $2 AND date BETWEEN $3 AND $4`
	var stats models.AttendanceStats
	if err := r.db.GetContext(ctx, &stats, query, studentID, subjectID, from, to); err != nil {
		return models.AttendanceStats{}, fmt.Errorf("attendance stats: %w", err)
	}
	return stats, nil
}

// SubjectStatsSince aggregates every student's marks in a subject since the given time.
func (r *AttendanceRepository) SubjectStatsSince(ctx context.Context, subjectID string, since time.Time) (models.AttendanceStats, error) {
	const query = `SELECT COUNT(*) FILTER (WHERE present) AS present, COUNT(*) AS total
        FROM attendances
        WHERE subject_id = $1 AND date >= $2`
	var stats models.AttendanceStats
	if err := r.db.GetContext(ctx, &stats, query, subjectID, since); err != nil {
		return models.AttendanceStats{}, fmt.Errorf("subject attendance stats: %w", err)
	}
	return stats, nil
}

// AbsencesBySubjectSince lists subjects where the student accumulated at least minAbsences.
func (r *AttendanceRepository) AbsencesBySubjectSince(ctx context.Context, studentID string, since time.Time, minAbsences int) ([]models.SubjectAbsences, error) {
	const query = `SELECT a.subject_id, s.name AS subject_name, COUNT(*) AS absences
        FROM attendances a
        JOIN subjects s ON s.id = a.subject_id
        WHERE a.student_id = $1 AND a.present = FALSE AND a.date >= $2
        GROUP BY a.subject_id, s.name
        HAVING COUNT(*) >= $3
        ORDER BY absences DESC, s.name ASC`
	var rows []models.SubjectAbsences
	if err := r.db.SelectContext(ctx, &rows, query, studentID, since, minAbsences); err != nil {
		return nil, fmt.Errorf("absences by subject: %w", err)
	}
	return rows, nil
}

// StudentsWithAbsencesSince lists (student, subject) pairs with at least minAbsences.
func (r *AttendanceRepository) StudentsWithAbsencesSince(ctx context.Context, since time.Time, minAbsences int) ([]models.StudentAbsences, error) {
	const query = `SELECT student_id, subject_id, COUNT(*) AS absences
        FROM attendances
        WHERE present = FALSE AND date >= $1
        GROUP BY student_id, subject_id
        HAVING COUNT(*) >= $2
        ORDER BY student_id, subject_id`
	var rows []models.StudentAbsences
	if err := r.db.SelectContext(ctx, &rows, query, since, minAbsences); err != nil {
		return nil, fmt.Errorf("students with absences: %w", err)
	}
	return rows, nil
}
