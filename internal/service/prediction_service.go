package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Oerlinker/BackendAISi2/internal/models"
	appErrors "github.com/Oerlinker/BackendAISi2/pkg/errors"
)

type predictionStore interface {
	Create(ctx context.Context, prediction *models.Prediction) error
	GetByID(ctx context.Context, id string) (*models.Prediction, error)
	LatestForPair(ctx context.Context, studentID, subjectID string, since time.Time) (*models.Prediction, error)
	List(ctx context.Context, filter models.PredictionFilter) ([]models.Prediction, error)
}

type userDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, error)
}

type subjectDirectory interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
	List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, error)
}

type featureSource interface {
	Extract(ctx context.Context, studentID, subjectID string, window *FeatureWindow) (*FeatureSnapshot, error)
}

// GeneratePredictionRequest is the payload for an on-demand forecast.
type GeneratePredictionRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	SubjectID string `json:"subject_id" validate:"required"`
}

// PredictionResult carries a prediction and whether this call created it.
type PredictionResult struct {
	Prediction *models.Prediction
	Created    bool
}

// PredictionServiceConfig tunes freshness, risk and scan budgets.
type PredictionServiceConfig struct {
	FreshnessWindow      time.Duration
	BatchFreshnessWindow time.Duration
	RiskThreshold        float64
	DefaultScanBudget    time.Duration
	MaxScanBudget        time.Duration
}

// PredictionService runs the predictor chain, enforces freshness and scans for at-risk students.
type PredictionService struct {
	predictions predictionStore
	users       userDirectory
	subjects    subjectDirectory
	features    featureSource
	strategies  []PredictionStrategy
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
	cfg         PredictionServiceConfig
}

// PredictionServiceParams groups constructor dependencies.
type PredictionServiceParams struct {
	Predictions predictionStore
	Users       userDirectory
	Subjects    subjectDirectory
	Features    featureSource
	Strategies  []PredictionStrategy
	Metrics     *MetricsService
	Validator   *validator.Validate
	Logger      *zap.Logger
	Now         func() time.Time
	Config      PredictionServiceConfig
}

// NewPredictionService constructs the orchestrator. Without strategies only the heuristic is used.
func NewPredictionService(params PredictionServiceParams) *PredictionService {
	cfg := params.Config
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = 7 * 24 * time.Hour
	}
	if cfg.BatchFreshnessWindow <= 0 {
		cfg.BatchFreshnessWindow = 14 * 24 * time.Hour
	}
	if cfg.RiskThreshold <= 0 {
		cfg.RiskThreshold = models.MediumLevelFloor
	}
	if cfg.DefaultScanBudget <= 0 {
		cfg.DefaultScanBudget = 10 * time.Second
	}
	if cfg.MaxScanBudget <= 0 {
		cfg.MaxScanBudget = time.Minute
	}
	if cfg.DefaultScanBudget > cfg.MaxScanBudget {
		cfg.DefaultScanBudget = cfg.MaxScanBudget
	}
	strategies := params.Strategies
	if len(strategies) == 0 {
		strategies = []PredictionStrategy{NewHeuristicStrategy()}
	}
	if params.Validator == nil {
		params.Validator = validator.New()
	}
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &PredictionService{
		predictions: params.Predictions,
		users:       params.Users,
		subjects:    params.Subjects,
		features:    params.Features,
		strategies:  strategies,
		metrics:     params.Metrics,
		validator:   params.Validator,
		logger:      params.Logger,
		now:         params.Now,
		cfg:         cfg,
	}
}

// RiskThreshold exposes the configured at-risk cutoff.
func (s *PredictionService) RiskThreshold() float64 {
	return s.cfg.RiskThreshold
}

// Generate validates the pair and returns a fresh prediction, creating one when needed.
func (s *PredictionService) Generate(ctx context.Context, req GeneratePredictionRequest) (*PredictionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "student_id and subject_id are required")
	}
	if _, err := s.lookupStudent(ctx, req.StudentID); err != nil {
		return nil, err
	}
	if _, err := s.lookupSubject(ctx, req.SubjectID); err != nil {
		return nil, err
	}
	prediction, created, err := s.GetOrCreate(ctx, req.StudentID, req.SubjectID, s.cfg.FreshnessWindow)
	if err != nil {
		return nil, err
	}
	return &PredictionResult{Prediction: prediction, Created: created}, nil
}

// GetOrCreate returns the newest prediction younger than freshness unchanged,
// otherwise computes and stores a new one. created reports which happened.
func (s *PredictionService) GetOrCreate(ctx context.Context, studentID, subjectID string, freshness time.Duration) (*models.Prediction, bool, error) {
	now := s.now().UTC()
	existing, err := s.predictions.LatestForPair(ctx, studentID, subjectID, now.Add(-freshness))
	if err == nil && existing != nil {
		return existing, false, nil
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up existing prediction")
	}

	snapshot, err := s.features.Extract(ctx, studentID, subjectID, nil)
	if err != nil {
		return nil, false, err
	}
	value, source := s.predict(ctx, snapshot)
	value = round2(value)

	prediction := &models.Prediction{
		StudentID:        studentID,
		SubjectID:        subjectID,
		Value:            value,
		Level:            models.LevelFor(value),
		GradeAverage:     round2(snapshot.Features.GradeTotal()),
		AttendancePct:    round2(snapshot.Features.AttendancePct),
		ParticipationAvg: round2(snapshot.Features.ParticipationAvg),
		Source:           source,
		Confidence:       source.Confidence(),
		CreatedAt:        now,
	}
	if err := s.predictions.Create(ctx, prediction); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store prediction")
	}
	s.metrics.RecordPrediction(prediction.Source, prediction.Level)
	return prediction, true, nil
}

// predict walks the strategy chain; the heuristic backs it when every link fails.
func (s *PredictionService) predict(ctx context.Context, snapshot *FeatureSnapshot) (float64, models.PredictionSource) {
	for _, strategy := range s.strategies {
		value, err := strategy.Predict(ctx, snapshot)
		if err == nil {
			return clampScore(value), strategy.Source()
		}
		reason := fallbackReason(err)
		fields := []zap.Field{
			zap.String("source", string(strategy.Source())),
			zap.String("student_id", snapshot.Features.StudentID),
			zap.String("subject_id", snapshot.Features.SubjectID),
			zap.String("reason", reason),
			zap.Error(err),
		}
		if reason == "internal" {
			s.logger.Warn("predictor failed, falling back", fields...)
		} else {
			s.logger.Debug("predictor unavailable, falling back", fields...)
		}
		s.metrics.RecordFallback(strategy.Source(), reason)
	}
	return PredictHeuristic(snapshot.Features, snapshot.History), models.SourceHeuristic
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, appErrors.ErrModelUnavailable):
		return "unavailable"
	case errors.Is(err, appErrors.ErrInsufficientData):
		return "insufficient_data"
	default:
		return "internal"
	}
}

// Get returns a prediction visible to the actor.
func (s *PredictionService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Prediction, error) {
	prediction, err := s.predictions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "prediction not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prediction")
	}
	if err := s.authorize(ctx, prediction, actor); err != nil {
		return nil, err
	}
	return prediction, nil
}

// List returns predictions scoped to what the actor may see: students their
// own, teachers the subjects they own, admins everything.
func (s *PredictionService) List(ctx context.Context, filter models.PredictionFilter, actor *models.JWTClaims) ([]models.Prediction, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	switch actor.Role {
	case models.RoleStudent:
		filter.StudentID = actor.UserID
	case models.RoleTeacher:
		filter.TeacherID = actor.UserID
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	items, err := s.predictions.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list predictions")
	}
	return items, nil
}

func (s *PredictionService) authorize(ctx context.Context, prediction *models.Prediction, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleStudent:
		if prediction.StudentID == actor.UserID {
			return nil
		}
	case models.RoleTeacher:
		subject, err := s.subjects.FindByID(ctx, prediction.SubjectID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
		}
		if subject != nil && subject.TeacherID != nil && *subject.TeacherID == actor.UserID {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, "prediction belongs to another student")
}

// ScanRisk forecasts every (student, subject) pair selected by filter and
// reports the subjects under the risk threshold. Elapsed time is checked
// before each student; once the budget is spent the scan stops and returns
// what it has with Partial set. Per-pair failures are skipped.
func (s *PredictionService) ScanRisk(ctx context.Context, filter models.RiskScanFilter) (*models.RiskScanResult, error) {
	budget := filter.TimeBudget
	if budget <= 0 {
		budget = s.cfg.DefaultScanBudget
	}
	if budget > s.cfg.MaxScanBudget {
		budget = s.cfg.MaxScanBudget
	}

	role := models.RoleStudent
	students, err := s.users.List(ctx, models.UserFilter{Role: &role, CourseID: filter.CourseID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	var subjects []models.Subject
	if filter.SubjectID != "" {
		subject, err := s.lookupSubject(ctx, filter.SubjectID)
		if err != nil {
			return nil, err
		}
		subjects = []models.Subject{*subject}
	} else {
		subjects, err = s.subjects.List(ctx, models.SubjectFilter{CourseID: filter.CourseID})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
		}
	}

	start := s.now()
	result := &models.RiskScanResult{
		Threshold:     s.cfg.RiskThreshold,
		TotalStudents: len(students),
		Students:      make([]models.AtRiskStudent, 0),
	}

	for _, student := range students {
		if ctx.Err() != nil || s.now().Sub(start) > budget {
			result.Partial = true
			break
		}
		result.ScannedStudents++
		entry := models.AtRiskStudent{StudentID: student.ID, StudentName: student.FullName}
		if student.CourseID != nil {
			entry.CourseID = *student.CourseID
		}
		for _, subject := range subjects {
			prediction, _, err := s.GetOrCreate(ctx, student.ID, subject.ID, s.cfg.BatchFreshnessWindow)
			result.ScannedPairs++
			if err != nil {
				result.SkippedPairs++
				if !errors.Is(err, appErrors.ErrMissingHistory) {
					s.logger.Warn("risk scan skipped pair", zap.String("student_id", student.ID), zap.String("subject_id", subject.ID), zap.Error(err))
				}
				continue
			}
			if prediction.AtRisk(s.cfg.RiskThreshold) {
				entry.Subjects = append(entry.Subjects, models.AtRiskSubject{
					SubjectID:    subject.ID,
					SubjectName:  subject.Name,
					PredictionID: prediction.ID,
					Value:        prediction.Value,
					Level:        prediction.Level,
					Confidence:   prediction.Confidence,
				})
			}
		}
		if len(entry.Subjects) > 0 {
			result.Students = append(result.Students, entry)
		}
	}

	sort.SliceStable(result.Students, func(i, j int) bool {
		return len(result.Students[i].Subjects) > len(result.Students[j].Subjects)
	})

	elapsed := s.now().Sub(start)
	result.ElapsedMs = elapsed.Milliseconds()
	result.GeneratedAt = s.now().UTC()
	s.metrics.ObserveRiskScan(elapsed, result.ScannedPairs, result.SkippedPairs, result.Partial)
	if result.Partial {
		s.logger.Info("risk scan stopped on time budget",
			zap.Duration("budget", budget),
			zap.Int("scanned_students", result.ScannedStudents),
			zap.Int("total_students", result.TotalStudents))
	}
	return result, nil
}

func (s *PredictionService) lookupStudent(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if user.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return user, nil
}

func (s *PredictionService) lookupSubject(ctx context.Context, id string) (*models.Subject, error) {
	subject, err := s.subjects.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	return subject, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
