package service

import (
	"context"

	"github.com/Oerlinker/BackendAISi2/internal/models"
)

// PredictionStrategy is one link of the fallback chain.
type PredictionStrategy interface {
	Source() models.PredictionSource
	Predict(ctx context.Context, snapshot *FeatureSnapshot) (float64, error)
}

type modelLoader interface {
	Get(ctx context.Context, key string) (*models.TrainedModel, error)
}

type subjectModelFitter interface {
	FitSubject(ctx context.Context, subjectID string) (*models.TrainedModel, error)
}

// persistedModelStrategy evaluates an artifact produced by offline training.
type persistedModelStrategy struct {
	loader modelLoader
	source models.PredictionSource
	key    func(subjectID string) string
}

// NewSubjectModelStrategy predicts with the persisted model of the subject.
func NewSubjectModelStrategy(loader modelLoader) PredictionStrategy {
	return &persistedModelStrategy{loader: loader, source: models.SourceLearnedSubject, key: models.SubjectModelKey}
}

// NewGeneralModelStrategy predicts with the persisted cross-subject model.
func NewGeneralModelStrategy(loader modelLoader) PredictionStrategy {
	return &persistedModelStrategy{loader: loader, source: models.SourceLearnedGeneral, key: func(string) string { return models.GeneralModelKey }}
}

func (s *persistedModelStrategy) Source() models.PredictionSource { return s.source }

func (s *persistedModelStrategy) Predict(ctx context.Context, snapshot *FeatureSnapshot) (float64, error) {
	model, err := s.loader.Get(ctx, s.key(snapshot.Features.SubjectID))
	if err != nil {
		return 0, err
	}
	return PredictWithModel(model, snapshot.Features)
}

// onTheFlyStrategy fits a throwaway subject model from current data.
type onTheFlyStrategy struct {
	fitter subjectModelFitter
}

// NewOnTheFlyStrategy fits a subject model per request when enough rows exist.
func NewOnTheFlyStrategy(fitter subjectModelFitter) PredictionStrategy {
	return &onTheFlyStrategy{fitter: fitter}
}

func (s *onTheFlyStrategy) Source() models.PredictionSource { return models.SourceOnTheFly }

func (s *onTheFlyStrategy) Predict(ctx context.Context, snapshot *FeatureSnapshot) (float64, error) {
	model, err := s.fitter.FitSubject(ctx, snapshot.Features.SubjectID)
	if err != nil {
		return 0, err
	}
	return PredictWithModel(model, snapshot.Features)
}

type heuristicStrategy struct{}

// NewHeuristicStrategy is the terminal link; it cannot fail.
func NewHeuristicStrategy() PredictionStrategy {
	return heuristicStrategy{}
}

func (heuristicStrategy) Source() models.PredictionSource { return models.SourceHeuristic }

func (heuristicStrategy) Predict(_ context.Context, snapshot *FeatureSnapshot) (float64, error) {
	return PredictHeuristic(snapshot.Features, snapshot.History), nil
}

// DefaultStrategies returns the standard chain: subject model, general model,
// on-the-fly subject fit, heuristic.
func DefaultStrategies(loader modelLoader, fitter subjectModelFitter) []PredictionStrategy {
	return []PredictionStrategy{
		NewSubjectModelStrategy(loader),
		NewGeneralModelStrategy(loader),
		NewOnTheFlyStrategy(fitter),
		NewHeuristicStrategy(),
	}
}
