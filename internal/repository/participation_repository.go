package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Oerlinker/BackendAISi2/internal/models"
)

// ParticipationRepository aggregates participation scores.
type ParticipationRepository struct {
	db *sqlx.DB
}

// NewParticipationRepository creates a participation repository.
func NewParticipationRepository(db *sqlx.DB) *ParticipationRepository {
	return &ParticipationRepository{db: db}
}

// StatsBetween returns the count and mean of scores in the window, bounds inclusive.
func (r *ParticipationRepository) StatsBetween(ctx context.Context, studentID, subjectID string, from, to time.Time) (models.ParticipationStats, error) {
	const query = `SELECT COUNT(*) AS count, COALESCE(AVG(value), 0)::float8 AS average
        FROM participations
        WHERE student_id = $1 AND subject_id = $2 AND date BETWEEN $3 AND $4`
	var stats models.ParticipationStats
	if err := r.db.GetContext(ctx, &stats, query, studentID, subjectID, from, to); err != nil {
		return models.ParticipationStats{}, fmt.Errorf("participation stats: %w", err)
	}
	return stats, nil
}
