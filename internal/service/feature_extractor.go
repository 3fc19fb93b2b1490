package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Oerlinker/BackendAISi2/internal/models"
	appErrors "github.com/Oerlinker/BackendAISi2/pkg/errors"
)

type gradeHistoryReader interface {
	ListForPair(ctx context.Context, studentID, subjectID string) ([]models.Grade, error)
}

type attendanceStatsReader interface {
	StatsBetween(ctx context.Context, studentID, subjectID string, from, to time.Time) (models.AttendanceStats, error)
}

type participationStatsReader interface {
	StatsBetween(ctx context.Context, studentID, subjectID string, from, to time.Time) (models.ParticipationStats, error)
}

// FeatureWindow bounds attendance and participation aggregation, inclusive.
type FeatureWindow struct {
	Start time.Time
	End   time.Time
}

// FeatureSnapshot is a live feature vector together with the grade history
// (latest period first) it was drawn from.
type FeatureSnapshot struct {
	Features models.FeatureVector
	History  []models.Grade
}

// Latest returns the grade the components were taken from.
func (s *FeatureSnapshot) Latest() models.Grade {
	return s.History[0]
}

// FeatureExtractor aggregates behavioural records into predictor inputs.
type FeatureExtractor struct {
	grades        gradeHistoryReader
	attendance    attendanceStatsReader
	participation participationStatsReader
	recentWindow  time.Duration
	metrics       *MetricsService
	logger        *zap.Logger
	now           func() time.Time
}

// FeatureExtractorParams groups constructor dependencies.
type FeatureExtractorParams struct {
	Grades        gradeHistoryReader
	Attendance    attendanceStatsReader
	Participation participationStatsReader
	RecentWindow  time.Duration
	Metrics       *MetricsService
	Logger        *zap.Logger
	Now           func() time.Time
}

// NewFeatureExtractor constructs a feature extractor. The recent window defaults to 90 days.
func NewFeatureExtractor(params FeatureExtractorParams) *FeatureExtractor {
	if params.RecentWindow <= 0 {
		params.RecentWindow = 90 * 24 * time.Hour
	}
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &FeatureExtractor{
		grades:        params.Grades,
		attendance:    params.Attendance,
		participation: params.Participation,
		recentWindow:  params.RecentWindow,
		metrics:       params.Metrics,
		logger:        params.Logger,
		now:           params.Now,
	}
}

// RecentWindow returns the default window ending now.
func (e *FeatureExtractor) RecentWindow() FeatureWindow {
	end := e.now().UTC()
	return FeatureWindow{Start: end.Add(-e.recentWindow), End: end}
}

// Extract builds the live feature vector for a pair. Components come from the
// latest grade by period start; attendance and participation are measured in
// window, or in the recent window when window is nil.
func (e *FeatureExtractor) Extract(ctx context.Context, studentID, subjectID string, window *FeatureWindow) (*FeatureSnapshot, error) {
	start := time.Now()
	history, err := e.grades.ListForPair(ctx, studentID, subjectID)
	e.metrics.ObserveDBQuery("features_grades", time.Since(start))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade history")
	}
	if len(history) == 0 {
		return nil, appErrors.Clone(appErrors.ErrMissingHistory, fmt.Sprintf("student %s has no grades in subject %s", studentID, subjectID))
	}

	w := e.RecentWindow()
	if window != nil {
		w = *window
	}

	start = time.Now()
	attendance, err := e.attendance.StatsBetween(ctx, studentID, subjectID, w.Start, w.End)
	e.metrics.ObserveDBQuery("features_attendance", time.Since(start))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate attendance")
	}
	start = time.Now()
	participation, err := e.participation.StatsBetween(ctx, studentID, subjectID, w.Start, w.End)
	e.metrics.ObserveDBQuery("features_participation", time.Since(start))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate participation")
	}

	return &FeatureSnapshot{
		Features: models.FeatureVector{
			StudentID:        studentID,
			SubjectID:        subjectID,
			AttendancePct:    attendance.Percentage(),
			ParticipationAvg: participation.Mean(),
			Components:       history[0].GradeComponents,
			WindowStart:      w.Start,
			WindowEnd:        w.End,
		},
		History: history,
	}, nil
}

// FeaturesFromTrainingRow converts a training row into the vector seen by the
// regression. Its window is the grade's own period.
func FeaturesFromTrainingRow(row models.TrainingRow) models.FeatureVector {
	attendance := models.AttendanceStats{Present: row.AttendancePresent, Total: row.AttendanceTotal}
	participation := models.ParticipationStats{Count: row.ParticipationCount, Average: row.ParticipationAvg}
	return models.FeatureVector{
		StudentID:        row.StudentID,
		SubjectID:        row.SubjectID,
		AttendancePct:    attendance.Percentage(),
		ParticipationAvg: participation.Mean(),
		Components:       row.GradeComponents,
		WindowStart:      row.PeriodStart,
		WindowEnd:        row.PeriodEnd,
	}
}
