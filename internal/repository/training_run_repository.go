package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Oerlinker/BackendAISi2/internal/models"
)

// TrainingRunRepository stores model training metadata.
type TrainingRunRepository struct {
	db *sqlx.DB
}

// NewTrainingRunRepository creates a training run repository.
func NewTrainingRunRepository(db *sqlx.DB) *TrainingRunRepository {
	return &TrainingRunRepository{db: db}
}

// Create records a finished training run.
func (r *TrainingRunRepository) Create(ctx context.Context, run *models.TrainingRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	const query = `INSERT INTO training_runs (id, status, started_at, finished_at, grade_count, attendance_count, participation_count,
        subject_count, general_trained, subjects_trained, subjects_skipped, error)
        VALUES (:id, :status, :started_at, :finished_at, :grade_count, :attendance_count, :participation_count,
        :subject_count, :general_trained, :subjects_trained, :subjects_skipped, :error)`
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("create training run: %w", err)
	}
	return nil
}

// Latest returns the most recent training run.
func (r *TrainingRunRepository) Latest(ctx context.Context) (*models.TrainingRun, error) {
	const query = `SELECT id, status, started_at, finished_at, grade_count, attendance_count, participation_count,
        subject_count, general_trained, subjects_trained, subjects_skipped, error
        FROM training_runs ORDER BY finished_at DESC LIMIT 1`
	var run models.TrainingRun
	if err := r.db.GetContext(ctx, &run, query); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("latest training run: %w", err)
	}
	return &run, nil
}
