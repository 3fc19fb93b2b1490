package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Oerlinker/BackendAISi2/internal/models"
	appErrors "github.com/Oerlinker/BackendAISi2/pkg/errors"
)

// Recommendation thresholds.
const (
	attendanceCritical    = 70.0
	attendanceWarning     = 85.0
	participationCritical = 5.0
	participationWarning  = 8.0
	serFloor              = 7.0
	saberFloor            = 25.0
	hacerFloor            = 25.0
	decidirFloor          = 7.0
)

// Recommend evaluates the threshold table for one prediction. It has no side
// effects; the same inputs always produce the same ordered list. components
// is nil when the student has no grade to inspect.
func Recommend(prediction models.Prediction, attendancePct, participationAvg float64, components *models.GradeComponents) []models.Recommendation {
	out := make([]models.Recommendation, 0, 12)
	add := func(category models.RecommendationCategory, messages ...string) {
		for _, m := range messages {
			out = append(out, models.Recommendation{Category: category, Message: m})
		}
	}

	switch prediction.Level {
	case models.LevelLow:
		add(models.CategoryUrgency, "Your forecast is below the passing level. Act now and talk to your teacher this week.")
	case models.LevelMedium:
		add(models.CategoryUrgency, "Your forecast is acceptable but there is clear room to improve.")
	}

	switch {
	case attendancePct < attendanceCritical:
		add(models.CategoryAttendance,
			"Regular attendance is the base of everything else in this subject.",
			"Set reminders for each class so none slips by.",
			"If something keeps you from attending, let your teacher or tutor know.")
	case attendancePct < attendanceWarning:
		add(models.CategoryAttendance,
			"Your attendance could be better. Aim to be on time for every class.",
			"Plan your week so avoidable absences do not happen.")
	default:
		add(models.CategoryAttendance, "Great attendance. Keep it up.")
	}

	switch {
	case participationAvg < participationCritical:
		add(models.CategoryParticipation,
			"Take a more active part in class discussions.",
			"Bring one question or comment prepared to every class.",
			"Join a study group to practise explaining your ideas.")
	case participationAvg < participationWarning:
		add(models.CategoryParticipation,
			"Your contributions are good. Try to go deeper when you speak up.",
			"Link class topics to practical examples when you participate.")
	default:
		add(models.CategoryParticipation, "Your participation is excellent. Keep contributing at this level.")
	}

	if components != nil {
		if components.Ser < serFloor {
			add(models.CategoryComponents,
				"Work on attitude and values during class.",
				"Punctuality and responsibility count towards your grade.")
		}
		if components.Saber < saberFloor {
			add(models.CategoryComponents,
				"Spend more time on the theory behind each topic.",
				"Summaries and concept maps help organise what you read.",
				"Look for extra material on the topics you find hardest.")
		}
		if components.Hacer < hacerFloor {
			add(models.CategoryComponents,
				"Practise with more applied exercises and problems.",
				"Solve practice sets together with classmates.",
				"Start assignments early instead of at the last minute.")
		}
		if components.Decidir < decidirFloor {
			add(models.CategoryComponents,
				"Connect topics with each other and look at how they relate.",
				"Think about where you could use what you learn outside class.")
		}
	}

	switch {
	case prediction.Value < models.MediumLevelFloor:
		add(models.CategoryStudyTechniques,
			"Try the Pomodoro technique: 25 minutes of study, 5 of rest, repeat.",
			"Keep a fixed weekly study schedule.",
			"Find a tutor or classmate who can study with you.",
			"Work out whether you learn best by seeing, hearing or doing and adapt your methods.")
	case prediction.Value < models.HighLevelFloor:
		add(models.CategoryStudyTechniques,
			"Use mind maps to organise the material.",
			"Explain what you learned to someone else to check your understanding.",
			"Alternate subjects during study sessions to stay focused.")
	default:
		add(models.CategoryStudyTechniques,
			"Explore advanced topics related to the subject.",
			"Consider leading a study group to share what you know.")
	}
	return out
}

// RecommendationService resolves the inputs of Recommend for a stored
// prediction and caches the result.
type RecommendationService struct {
	predictions *PredictionService
	features    featureSource
	cache       *CacheService
	cacheTTL    time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// RecommendationServiceParams groups constructor dependencies.
type RecommendationServiceParams struct {
	Predictions *PredictionService
	Features    featureSource
	Cache       *CacheService
	CacheTTL    time.Duration
	Logger      *zap.Logger
	Now         func() time.Time
}

// NewRecommendationService constructs the service.
func NewRecommendationService(params RecommendationServiceParams) *RecommendationService {
	if params.CacheTTL <= 0 {
		params.CacheTTL = 30 * time.Minute
	}
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &RecommendationService{
		predictions: params.Predictions,
		features:    params.Features,
		cache:       params.Cache,
		cacheTTL:    params.CacheTTL,
		logger:      params.Logger,
		now:         params.Now,
	}
}

// ForPrediction returns the recommendations of a prediction visible to actor.
// Attendance and participation are re-measured over the recent window; a pair
// whose grades have since disappeared falls back to the values stored with the
// prediction.
func (s *RecommendationService) ForPrediction(ctx context.Context, predictionID string, actor *models.JWTClaims) (*models.RecommendationSet, error) {
	prediction, err := s.predictions.Get(ctx, predictionID, actor)
	if err != nil {
		return nil, err
	}

	key := recommendationCacheKey(predictionID)
	var cached models.RecommendationSet
	if s.cache != nil && s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	attendance := prediction.AttendancePct
	participation := prediction.ParticipationAvg
	var components *models.GradeComponents
	snapshot, err := s.features.Extract(ctx, prediction.StudentID, prediction.SubjectID, nil)
	switch {
	case err == nil:
		attendance = snapshot.Features.AttendancePct
		participation = snapshot.Features.ParticipationAvg
		latest := snapshot.Latest().GradeComponents
		components = &latest
	case errors.Is(err, appErrors.ErrMissingHistory):
		s.logger.Debug("recommendations without grade history", zap.String("prediction_id", predictionID))
	default:
		return nil, err
	}

	set := &models.RecommendationSet{
		PredictionID:     prediction.ID,
		StudentID:        prediction.StudentID,
		SubjectID:        prediction.SubjectID,
		Value:            prediction.Value,
		Level:            prediction.Level,
		AttendancePct:    round2(attendance),
		ParticipationAvg: round2(participation),
		Items:            Recommend(*prediction, attendance, participation, components),
		GeneratedAt:      s.now().UTC(),
	}
	if s.cache != nil {
		s.cache.Set(ctx, key, set, s.cacheTTL)
	}
	return set, nil
}

func recommendationCacheKey(predictionID string) string {
	return fmt.Sprintf("recommendations:%s", predictionID)
}
