package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Oerlinker/BackendAISi2/internal/models"
	appErrors "github.com/Oerlinker/BackendAISi2/pkg/errors"
	"github.com/Oerlinker/BackendAISi2/pkg/jobs"
)

type modelFitter interface {
	FitSubject(ctx context.Context, subjectID string) (*models.TrainedModel, error)
	FitGeneral(ctx context.Context) (*models.TrainedModel, error)
}

type artifactWriter interface {
	Save(ctx context.Context, model *models.TrainedModel) error
	Keys(ctx context.Context) ([]string, error)
}

type trainingRunStore interface {
	Create(ctx context.Context, run *models.TrainingRun) error
	Latest(ctx context.Context) (*models.TrainingRun, error)
}

type recordCounter interface {
	CountRecords(ctx context.Context) (models.RecordCounts, error)
}

type trainableSubjects interface {
	ListIDsWithGrades(ctx context.Context) ([]string, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type modelInvalidator interface {
	Invalidate(key string)
}

// TrainModelRequest selects what a training pass covers. An empty subject
// trains the general model and every subject with grades.
type TrainModelRequest struct {
	SubjectID   string `json:"subject_id" validate:"omitempty,max=64"`
	GeneralOnly bool   `json:"general_only"`
}

// TrainingService fits and persists models and records a run per pass.
// Inference never waits on it.
type TrainingService struct {
	fitter    modelFitter
	artifacts artifactWriter
	runs      trainingRunStore
	counts    recordCounter
	subjects  trainableSubjects
	cache     modelInvalidator
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
	workers   int
}

// TrainingServiceParams groups constructor dependencies.
type TrainingServiceParams struct {
	Fitter    modelFitter
	Artifacts artifactWriter
	Runs      trainingRunStore
	Counts    recordCounter
	Subjects  trainableSubjects
	Cache     modelInvalidator
	Metrics   *MetricsService
	Logger    *zap.Logger
	Now       func() time.Time
	Workers   int
}

// NewTrainingService constructs the service. Workers bounds concurrent subject fits.
func NewTrainingService(params TrainingServiceParams) *TrainingService {
	if params.Workers <= 0 {
		params.Workers = 4
	}
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &TrainingService{
		fitter:    params.Fitter,
		artifacts: params.Artifacts,
		runs:      params.Runs,
		counts:    params.Counts,
		subjects:  params.Subjects,
		cache:     params.Cache,
		metrics:   params.Metrics,
		logger:    params.Logger,
		now:       params.Now,
		workers:   params.Workers,
	}
}

// Train runs one pass and stores its metadata record. A subject below the
// row threshold is skipped and leaves no artifact behind. The returned run is
// FAILED when any fit or write failed for a reason other than missing data.
func (s *TrainingService) Train(ctx context.Context, req TrainModelRequest) (*models.TrainingRun, error) {
	started := s.now().UTC()
	run := &models.TrainingRun{Status: models.TrainingRunCompleted, StartedAt: started}

	counts, err := s.counts.CountRecords(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count source records")
	}
	run.GradeCount = counts.Grades
	run.AttendanceCount = counts.Attendances
	run.ParticipationCount = counts.Participations
	run.SubjectCount = counts.Subjects

	var failures []string
	if req.SubjectID == "" {
		trained, err := s.trainOne(ctx, "general", models.GeneralModelKey, s.fitter.FitGeneral)
		run.GeneralTrained = trained
		if err != nil {
			failures = append(failures, err.Error())
		}
	}

	if !req.GeneralOnly {
		subjectIDs := []string{req.SubjectID}
		if req.SubjectID == "" {
			subjectIDs, err = s.subjects.ListIDsWithGrades(ctx)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list trainable subjects")
			}
		}

		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.workers)
		for _, id := range subjectIDs {
			subjectID := id
			g.Go(func() error {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				trained, err := s.trainOne(gctx, "subject", models.SubjectModelKey(subjectID), func(c context.Context) (*models.TrainedModel, error) {
					return s.fitter.FitSubject(c, subjectID)
				})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case trained:
					run.SubjectsTrained++
				case err == nil:
					run.SubjectsSkipped++
				default:
					run.SubjectsSkipped++
					failures = append(failures, err.Error())
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			failures = append(failures, err.Error())
		}
	}

	run.FinishedAt = s.now().UTC()
	if len(failures) > 0 {
		run.Status = models.TrainingRunFailed
		msg := fmt.Sprintf("%d failures, first: %s", len(failures), failures[0])
		run.Error = &msg
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record training run")
	}
	s.metrics.ObserveTrainingPass(run.FinishedAt.Sub(started))
	s.logger.Info("training pass finished",
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Bool("general_trained", run.GeneralTrained),
		zap.Int("subjects_trained", run.SubjectsTrained),
		zap.Int("subjects_skipped", run.SubjectsSkipped))
	return run, nil
}

// trainOne fits and stores one model. It reports trained=false with a nil
// error when there was not enough data.
func (s *TrainingService) trainOne(ctx context.Context, scope, key string, fit func(context.Context) (*models.TrainedModel, error)) (bool, error) {
	model, err := fit(ctx)
	if err != nil {
		if errors.Is(err, appErrors.ErrInsufficientData) {
			s.metrics.RecordTraining(scope, "skipped")
			s.logger.Info("model skipped", zap.String("key", key), zap.String("reason", err.Error()))
			return false, nil
		}
		s.metrics.RecordTraining(scope, "failed")
		s.logger.Error("model fit failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
	if err := s.artifacts.Save(ctx, model); err != nil {
		s.metrics.RecordTraining(scope, "failed")
		s.logger.Error("model save failed", zap.String("key", key), zap.Error(err))
		return false, err
	}
	if s.cache != nil {
		s.cache.Invalidate(key)
	}
	s.metrics.RecordTraining(scope, "trained")
	s.logger.Info("model trained", zap.String("key", key), zap.Int("rows", model.Rows), zap.Float64("r_squared", model.Model.RSquared))
	return true, nil
}

// TrainingWorker bridges queue jobs to TrainingService.
type TrainingWorker struct {
	trainer *TrainingService
	logger  *zap.Logger
}

// NewTrainingWorker constructs a worker.
func NewTrainingWorker(trainer *TrainingService, logger *zap.Logger) *TrainingWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrainingWorker{trainer: trainer, logger: logger}
}

// Handle processes a queue job. A failed run is returned as an error so the
// queue retries it.
func (w *TrainingWorker) Handle(ctx context.Context, job jobs.Job) error {
	req, ok := job.Payload.(TrainModelRequest)
	if !ok {
		return fmt.Errorf("training job %s: unexpected payload %T", job.ID, job.Payload)
	}
	run, err := w.trainer.Train(ctx, req)
	if err != nil {
		return err
	}
	if run.Status == models.TrainingRunFailed {
		msg := ""
		if run.Error != nil {
			msg = *run.Error
		}
		return fmt.Errorf("training run %s failed: %s", run.ID, msg)
	}
	return nil
}

// ModelMetadata describes the latest training pass and the stored artifacts.
type ModelMetadata struct {
	LatestRun *models.TrainingRun `json:"latest_run"`
	Models    []string            `json:"models"`
}

// TrainingJobResponse acknowledges a queued training request.
type TrainingJobResponse struct {
	JobID     string `json:"job_id"`
	SubjectID string `json:"subject_id,omitempty"`
	Queued    bool   `json:"queued"`
}

type modelCacheResetter interface {
	Reset() int
}

// ModelAdminService exposes training, reload and metadata to administrators.
type ModelAdminService struct {
	queue     jobDispatcher
	trainer   *TrainingService
	cache     modelCacheResetter
	runs      trainingRunStore
	artifacts artifactWriter
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewModelAdminService constructs the service. A nil queue trains inline.
func NewModelAdminService(queue jobDispatcher, trainer *TrainingService, cache modelCacheResetter, runs trainingRunStore, artifacts artifactWriter, logger *zap.Logger) *ModelAdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModelAdminService{
		queue:     queue,
		trainer:   trainer,
		cache:     cache,
		runs:      runs,
		artifacts: artifacts,
		validator: validator.New(),
		logger:    logger,
		now:       time.Now,
	}
}

// RequestTraining enqueues a training pass.
func (s *ModelAdminService) RequestTraining(ctx context.Context, req TrainModelRequest) (*TrainingJobResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	key := "train:all"
	if req.SubjectID != "" {
		key = "train:" + req.SubjectID
	} else if req.GeneralOnly {
		key = "train:general"
	}
	jobID := fmt.Sprintf("%s:%d", key, s.now().UnixNano())

	if s.queue == nil {
		run, err := s.trainer.Train(ctx, req)
		if err != nil {
			return nil, err
		}
		return &TrainingJobResponse{JobID: run.ID, SubjectID: req.SubjectID}, nil
	}
	if err := s.queue.Enqueue(jobs.Job{ID: jobID, Type: "model_training", Key: key, Payload: req}); err != nil {
		if errors.Is(err, jobs.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "training already queued")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue training")
	}
	return &TrainingJobResponse{JobID: jobID, SubjectID: req.SubjectID, Queued: true}, nil
}

// Reload drops every cached artifact so the next prediction reads from storage.
func (s *ModelAdminService) Reload() int {
	dropped := s.cache.Reset()
	s.logger.Info("model cache reset", zap.Int("entries", dropped))
	return dropped
}

// Metadata returns the latest training run and the stored model keys.
func (s *ModelAdminService) Metadata(ctx context.Context) (*ModelMetadata, error) {
	run, err := s.runs.Latest(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no training run recorded")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load training run")
	}
	keys, err := s.artifacts.Keys(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list model artifacts")
	}
	return &ModelMetadata{LatestRun: run, Models: keys}, nil
}
