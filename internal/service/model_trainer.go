package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Oerlinker/BackendAISi2/internal/models"
	appErrors "github.com/Oerlinker/BackendAISi2/pkg/errors"
	"github.com/Oerlinker/BackendAISi2/pkg/regression"
)

type trainingRowReader interface {
	ListTrainingRows(ctx context.Context, subjectID string) ([]models.TrainingRow, error)
}

// ModelTrainerConfig holds the row thresholds and penalty used when fitting.
type ModelTrainerConfig struct {
	SubjectMinRows int
	GeneralMinRows int
	RidgeLambda    float64
}

// ModelTrainer fits regression models from historical grades. It never
// persists anything.
type ModelTrainer struct {
	rows trainingRowReader
	cfg  ModelTrainerConfig
	now  func() time.Time
}

// NewModelTrainer constructs a trainer. Thresholds default to 20 subject rows and 30 general rows.
func NewModelTrainer(rows trainingRowReader, cfg ModelTrainerConfig, now func() time.Time) *ModelTrainer {
	if cfg.SubjectMinRows <= 0 {
		cfg.SubjectMinRows = 20
	}
	if cfg.GeneralMinRows <= 0 {
		cfg.GeneralMinRows = 30
	}
	if cfg.RidgeLambda < 0 {
		cfg.RidgeLambda = 0
	}
	if now == nil {
		now = time.Now
	}
	return &ModelTrainer{rows: rows, cfg: cfg, now: now}
}

// FitSubject fits a model on every grade of subjectID.
func (t *ModelTrainer) FitSubject(ctx context.Context, subjectID string) (*models.TrainedModel, error) {
	rows, err := t.rows.ListTrainingRows(ctx, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPredictorInternal.Code, appErrors.ErrPredictorInternal.Status, "failed to load training rows")
	}
	return t.fit(models.SubjectModelKey(subjectID), subjectID, rows, t.cfg.SubjectMinRows)
}

// FitGeneral fits a model on the grades of every subject.
func (t *ModelTrainer) FitGeneral(ctx context.Context) (*models.TrainedModel, error) {
	rows, err := t.rows.ListTrainingRows(ctx, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPredictorInternal.Code, appErrors.ErrPredictorInternal.Status, "failed to load training rows")
	}
	return t.fit(models.GeneralModelKey, "", rows, t.cfg.GeneralMinRows)
}

func (t *ModelTrainer) fit(key, subjectID string, rows []models.TrainingRow, minRows int) (*models.TrainedModel, error) {
	if len(rows) < minRows {
		return nil, appErrors.Clone(appErrors.ErrInsufficientData,
			fmt.Sprintf("model %s needs %d grade rows, found %d", key, minRows, len(rows)))
	}
	inputs := make([][]float64, len(rows))
	targets := make([]float64, len(rows))
	for i, row := range rows {
		inputs[i] = FeaturesFromTrainingRow(row).Values()
		targets[i] = row.GradeComponents.Total()
	}
	fitted, err := regression.Ridge{Lambda: t.cfg.RidgeLambda}.Fit(models.FeatureNames, inputs, targets)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPredictorInternal.Code, appErrors.ErrPredictorInternal.Status, "failed to fit model "+key)
	}
	return &models.TrainedModel{
		Key:       key,
		SubjectID: subjectID,
		TrainedAt: t.now().UTC(),
		Rows:      len(rows),
		Model:     fitted,
	}, nil
}

// PredictWithModel evaluates a trained model and clamps to [0,100].
func PredictWithModel(model *models.TrainedModel, features models.FeatureVector) (float64, error) {
	if model == nil || model.Model == nil {
		return 0, appErrors.Clone(appErrors.ErrModelUnavailable, "model has no parameters")
	}
	value, err := model.Model.Predict(features.Values())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrPredictorInternal.Code, appErrors.ErrPredictorInternal.Status, "model evaluation failed")
	}
	return clampScore(value), nil
}
