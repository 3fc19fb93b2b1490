package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Oerlinker/BackendAISi2/internal/models"
	appErrors "github.com/Oerlinker/BackendAISi2/pkg/errors"
)

type pairForecaster interface {
	GetOrCreate(ctx context.Context, studentID, subjectID string, freshness time.Duration) (*models.Prediction, bool, error)
}

type absenceScanner interface {
	StudentsWithAbsencesSince(ctx context.Context, since time.Time, minAbsences int) ([]models.StudentAbsences, error)
}

type levelCounter interface {
	CountStudentsAtLevel(ctx context.Context, level models.PerformanceLevel, since time.Time) (int, error)
}

type draftPublisher interface {
	Publish(ctx context.Context, drafts []models.NotificationDraft) ([]models.Notification, error)
}

// AlertDispatchConfig tunes the scheduled dispatcher.
type AlertDispatchConfig struct {
	FreshnessWindow  time.Duration
	Lookback         time.Duration
	AbsenceThreshold int
	RiskRatio        float64
	TimeBudget       time.Duration
}

// DispatchSummary reports what one dispatcher pass did.
type DispatchSummary struct {
	PredictionsGenerated int  `json:"predictions_generated"`
	PredictionsFailed    int  `json:"predictions_failed"`
	Notifications        int  `json:"notifications"`
	Partial              bool `json:"partial"`
}

// AlertDispatchService refreshes stale predictions and stores the alerts
// they trigger for students, teachers and administrators.
type AlertDispatchService struct {
	forecaster pairForecaster
	users      userDirectory
	subjects   subjectDirectory
	absences   absenceScanner
	levels     levelCounter
	publisher  draftPublisher
	cache      *CacheService
	logger     *zap.Logger
	now        func() time.Time
	cfg        AlertDispatchConfig
}

// AlertDispatchParams groups constructor dependencies.
type AlertDispatchParams struct {
	Forecaster pairForecaster
	Users      userDirectory
	Subjects   subjectDirectory
	Absences   absenceScanner
	Levels     levelCounter
	Publisher  draftPublisher
	Cache      *CacheService
	Logger     *zap.Logger
	Now        func() time.Time
	Config     AlertDispatchConfig
}

// NewAlertDispatchService constructs the dispatcher.
func NewAlertDispatchService(params AlertDispatchParams) *AlertDispatchService {
	cfg := params.Config
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = 7 * 24 * time.Hour
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 14 * 24 * time.Hour
	}
	if cfg.AbsenceThreshold <= 0 {
		cfg.AbsenceThreshold = 2
	}
	if cfg.RiskRatio <= 0 {
		cfg.RiskRatio = 0.20
	}
	if cfg.TimeBudget <= 0 {
		cfg.TimeBudget = time.Minute
	}
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &AlertDispatchService{
		forecaster: params.Forecaster,
		users:      params.Users,
		subjects:   params.Subjects,
		absences:   params.Absences,
		levels:     params.Levels,
		publisher:  params.Publisher,
		cache:      params.Cache,
		logger:     params.Logger,
		now:        params.Now,
		cfg:        cfg,
	}
}

// Run executes one pass: prediction alerts, absence alerts, then the
// administrator summary. The prediction sweep honours the time budget
// between students like the risk scan does.
func (s *AlertDispatchService) Run(ctx context.Context) (*DispatchSummary, error) {
	studentRole := models.RoleStudent
	adminRole := models.RoleAdmin
	var (
		students []models.User
		admins   []models.User
		subjects []models.Subject
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		students, err = s.users.List(gctx, models.UserFilter{Role: &studentRole})
		return err
	})
	g.Go(func() error {
		var err error
		admins, err = s.users.List(gctx, models.UserFilter{Role: &adminRole})
		return err
	})
	g.Go(func() error {
		var err error
		subjects, err = s.subjects.List(gctx, models.SubjectFilter{})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load dispatch population")
	}

	summary := &DispatchSummary{}
	drafts := s.predictionDrafts(ctx, students, subjects, summary)

	absenceDrafts, err := s.absenceDrafts(ctx, students, subjects)
	if err != nil {
		return nil, err
	}
	drafts = append(drafts, absenceDrafts...)

	adminDrafts, err := s.adminDrafts(ctx, len(students), admins)
	if err != nil {
		return nil, err
	}
	drafts = append(drafts, adminDrafts...)

	SortDrafts(drafts)
	stored, err := s.publisher.Publish(ctx, drafts)
	if err != nil {
		return nil, err
	}
	summary.Notifications = len(stored)
	if summary.PredictionsGenerated > 0 {
		s.cache.Invalidate(ctx, "alerts:*")
	}
	s.logger.Info("alert dispatch finished",
		zap.Int("predictions_generated", summary.PredictionsGenerated),
		zap.Int("predictions_failed", summary.PredictionsFailed),
		zap.Int("notifications", summary.Notifications),
		zap.Bool("partial", summary.Partial))
	return summary, nil
}

func (s *AlertDispatchService) predictionDrafts(ctx context.Context, students []models.User, subjects []models.Subject, summary *DispatchSummary) []models.NotificationDraft {
	start := s.now()
	var drafts []models.NotificationDraft
	for _, student := range students {
		if ctx.Err() != nil || s.now().Sub(start) > s.cfg.TimeBudget {
			summary.Partial = true
			break
		}
		for _, subject := range subjects {
			prediction, created, err := s.forecaster.GetOrCreate(ctx, student.ID, subject.ID, s.cfg.FreshnessWindow)
			if err != nil {
				summary.PredictionsFailed++
				s.logger.Debug("dispatch prediction skipped", zap.String("student_id", student.ID), zap.String("subject_id", subject.ID), zap.Error(err))
				continue
			}
			if !created {
				continue
			}
			summary.PredictionsGenerated++
			action := stringPtr(fmt.Sprintf("/api/v1/predictions/%s/recommendations", prediction.ID))
			switch prediction.Level {
			case models.LevelLow:
				drafts = append(drafts, models.NotificationDraft{
					RecipientID: student.ID,
					Type:        models.NotificationUrgent,
					Title:       "Academic risk in " + subject.Name,
					Message:     fmt.Sprintf("Your forecast in %s is below the expected level. Check the recommendations to improve.", subject.Name),
					ActionURL:   action,
					SubjectID:   subject.ID,
					GeneratedAt: prediction.CreatedAt,
				})
				if subject.TeacherID != nil && *subject.TeacherID != "" {
					drafts = append(drafts, models.NotificationDraft{
						RecipientID: *subject.TeacherID,
						Type:        models.NotificationAlert,
						Title:       "Student at risk: " + student.FullName,
						Message:     fmt.Sprintf("%s is at academic risk in %s.", student.FullName, subject.Name),
						ActionURL:   stringPtr("/api/v1/predictions/" + prediction.ID),
						SubjectID:   subject.ID,
						GeneratedAt: prediction.CreatedAt,
					})
				}
			case models.LevelMedium:
				drafts = append(drafts, models.NotificationDraft{
					RecipientID: student.ID,
					Type:        models.NotificationInfo,
					Title:       "Average performance in " + subject.Name,
					Message:     fmt.Sprintf("Your forecast in %s is acceptable but there is room to improve.", subject.Name),
					ActionURL:   action,
					SubjectID:   subject.ID,
					GeneratedAt: prediction.CreatedAt,
				})
			}
		}
	}
	return drafts
}

func (s *AlertDispatchService) absenceDrafts(ctx context.Context, students []models.User, subjects []models.Subject) ([]models.NotificationDraft, error) {
	now := s.now().UTC()
	rows, err := s.absences.StudentsWithAbsencesSince(ctx, now.Add(-s.cfg.Lookback), s.cfg.AbsenceThreshold)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load absences")
	}
	names := make(map[string]string, len(students))
	for _, st := range students {
		names[st.ID] = st.FullName
	}
	bySubject := make(map[string]models.Subject, len(subjects))
	for _, sub := range subjects {
		bySubject[sub.ID] = sub
	}

	drafts := make([]models.NotificationDraft, 0, len(rows)*2)
	for _, row := range rows {
		name, ok := names[row.StudentID]
		if !ok {
			continue
		}
		subject := bySubject[row.SubjectID]
		subjectName := subject.Name
		if subjectName == "" {
			subjectName = row.SubjectID
		}
		action := stringPtr(fmt.Sprintf("/api/v1/attendances?subject_id=%s&student_id=%s", row.SubjectID, row.StudentID))
		drafts = append(drafts, models.NotificationDraft{
			RecipientID: row.StudentID,
			Type:        models.NotificationAlert,
			Title:       "Absences in " + subjectName,
			Message:     fmt.Sprintf("You have %d recent absences in %s. This can affect your performance.", row.Absences, subjectName),
			ActionURL:   action,
			SubjectID:   row.SubjectID,
			GeneratedAt: now,
		})
		if subject.TeacherID != nil && *subject.TeacherID != "" {
			drafts = append(drafts, models.NotificationDraft{
				RecipientID: *subject.TeacherID,
				Type:        models.NotificationInfo,
				Title:       "Student with absences: " + name,
				Message:     fmt.Sprintf("%s has %d recent absences in %s.", name, row.Absences, subjectName),
				ActionURL:   action,
				SubjectID:   row.SubjectID,
				GeneratedAt: now,
			})
		}
	}
	return drafts, nil
}

func (s *AlertDispatchService) adminDrafts(ctx context.Context, totalStudents int, admins []models.User) ([]models.NotificationDraft, error) {
	if totalStudents == 0 || len(admins) == 0 {
		return nil, nil
	}
	now := s.now().UTC()
	atRisk, err := s.levels.CountStudentsAtLevel(ctx, models.LevelLow, now.Add(-s.cfg.Lookback))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count students at risk")
	}
	ratio := float64(atRisk) / float64(totalStudents)
	if ratio <= s.cfg.RiskRatio {
		return nil, nil
	}
	drafts := make([]models.NotificationDraft, 0, len(admins))
	for _, admin := range admins {
		drafts = append(drafts, models.NotificationDraft{
			RecipientID: admin.ID,
			Type:        models.NotificationAlert,
			Title:       "Students at academic risk",
			Message:     fmt.Sprintf("%.1f%% of students are at academic risk. Review the detailed reports.", ratio*100),
			ActionURL:   stringPtr("/api/v1/predictions/at-risk"),
			GeneratedAt: now,
		})
	}
	return drafts, nil
}
