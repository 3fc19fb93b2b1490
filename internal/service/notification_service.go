package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Oerlinker/BackendAISi2/internal/models"
	appErrors "github.com/Oerlinker/BackendAISi2/pkg/errors"
)

type predictionSignals interface {
	List(ctx context.Context, filter models.PredictionFilter) ([]models.Prediction, error)
	CountStudentsAtLevelBySubject(ctx context.Context, teacherID string, level models.PerformanceLevel, since time.Time) ([]models.SubjectLevelCount, error)
	CourseLevelRatios(ctx context.Context, level models.PerformanceLevel, since time.Time) ([]models.CourseLevelRatio, error)
}

type attendanceSignals interface {
	AbsencesBySubjectSince(ctx context.Context, studentID string, since time.Time, minAbsences int) ([]models.SubjectAbsences, error)
	SubjectStatsSince(ctx context.Context, subjectID string, since time.Time) (models.AttendanceStats, error)
}

type notificationStore interface {
	CreateBatch(ctx context.Context, notifications []models.Notification) error
	GetByID(ctx context.Context, id, recipientID string) (*models.Notification, error)
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	UpdateStatus(ctx context.Context, id, recipientID string, from, to models.NotificationStatus, readAt *time.Time) (bool, error)
	MarkAllRead(ctx context.Context, recipientID string, readAt time.Time) (int64, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
}

// NotificationServiceConfig tunes the alert rules.
type NotificationServiceConfig struct {
	Lookback                time.Duration
	AbsenceThreshold        int
	TeacherAttendanceWindow time.Duration
	LowAttendanceRate       float64
	CourseRiskRatio         float64
	CacheTTL                time.Duration
}

// NotificationService builds role-scoped alert drafts and manages the inbox.
type NotificationService struct {
	predictions   predictionSignals
	attendance    attendanceSignals
	subjects      subjectDirectory
	notifications notificationStore
	cache         *CacheService
	metrics       *MetricsService
	logger        *zap.Logger
	now           func() time.Time
	cfg           NotificationServiceConfig
}

// NotificationServiceParams groups constructor dependencies.
type NotificationServiceParams struct {
	Predictions   predictionSignals
	Attendance    attendanceSignals
	Subjects      subjectDirectory
	Notifications notificationStore
	Cache         *CacheService
	Metrics       *MetricsService
	Logger        *zap.Logger
	Now           func() time.Time
	Config        NotificationServiceConfig
}

// NewNotificationService constructs the service with defaults for unset rules.
func NewNotificationService(params NotificationServiceParams) *NotificationService {
	cfg := params.Config
	if cfg.Lookback <= 0 {
		cfg.Lookback = 14 * 24 * time.Hour
	}
	if cfg.AbsenceThreshold <= 0 {
		cfg.AbsenceThreshold = 2
	}
	if cfg.TeacherAttendanceWindow <= 0 {
		cfg.TeacherAttendanceWindow = 7 * 24 * time.Hour
	}
	if cfg.LowAttendanceRate <= 0 {
		cfg.LowAttendanceRate = 70
	}
	if cfg.CourseRiskRatio <= 0 {
		cfg.CourseRiskRatio = 0.30
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 2 * time.Minute
	}
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &NotificationService{
		predictions:   params.Predictions,
		attendance:    params.Attendance,
		subjects:      params.Subjects,
		notifications: params.Notifications,
		cache:         params.Cache,
		metrics:       params.Metrics,
		logger:        params.Logger,
		now:           params.Now,
		cfg:           cfg,
	}
}

// BuildNotifications returns the actor's alert drafts ordered by type
// priority, newest first within a priority. It reads signals only.
func (s *NotificationService) BuildNotifications(ctx context.Context, actor *models.JWTClaims) ([]models.NotificationDraft, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	key := fmt.Sprintf("alerts:%s:%s", actor.Role, actor.UserID)
	var cached []models.NotificationDraft
	if s.cache != nil && s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	var (
		drafts []models.NotificationDraft
		err    error
	)
	switch actor.Role {
	case models.RoleStudent:
		drafts, err = s.studentDrafts(ctx, actor.UserID)
	case models.RoleTeacher:
		drafts, err = s.teacherDrafts(ctx, actor.UserID)
	case models.RoleAdmin:
		drafts, err = s.adminDrafts(ctx, actor.UserID)
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role has no alerts")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build notifications")
	}
	SortDrafts(drafts)
	s.metrics.RecordNotifications(actor.Role, drafts)
	if s.cache != nil {
		s.cache.Set(ctx, key, drafts, s.cfg.CacheTTL)
	}
	return drafts, nil
}

// SortDrafts orders drafts by type priority, then most recently generated first.
func SortDrafts(drafts []models.NotificationDraft) {
	sort.SliceStable(drafts, func(i, j int) bool {
		pi, pj := drafts[i].Type.Priority(), drafts[j].Type.Priority()
		if pi != pj {
			return pi < pj
		}
		return drafts[i].GeneratedAt.After(drafts[j].GeneratedAt)
	})
}

func (s *NotificationService) studentDrafts(ctx context.Context, studentID string) ([]models.NotificationDraft, error) {
	now := s.now().UTC()
	since := now.Add(-s.cfg.Lookback)

	var (
		predictions []models.Prediction
		absences    []models.SubjectAbsences
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		predictions, err = s.predictions.List(gctx, models.PredictionFilter{
			StudentID: studentID,
			Levels:    []models.PerformanceLevel{models.LevelLow, models.LevelMedium},
			Since:     &since,
		})
		return err
	})
	g.Go(func() error {
		var err error
		absences, err = s.attendance.AbsencesBySubjectSince(gctx, studentID, since, s.cfg.AbsenceThreshold)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	drafts := make([]models.NotificationDraft, 0, len(predictions)+len(absences))
	for _, p := range predictions {
		subject := p.SubjectID
		if p.SubjectName != nil {
			subject = *p.SubjectName
		}
		draft := models.NotificationDraft{
			RecipientID: studentID,
			SubjectID:   p.SubjectID,
			ActionURL:   stringPtr(fmt.Sprintf("/api/v1/predictions/%s/recommendations", p.ID)),
			GeneratedAt: p.CreatedAt,
		}
		if p.Level == models.LevelLow {
			draft.Type = models.NotificationUrgent
			draft.Title = "Low performance forecast"
			draft.Message = fmt.Sprintf("Your forecast in %s is below the expected level (%.2f).", subject, p.Value)
		} else {
			draft.Type = models.NotificationWarning
			draft.Title = "Room to improve"
			draft.Message = fmt.Sprintf("There is room to improve in %s (%.2f).", subject, p.Value)
		}
		drafts = append(drafts, draft)
	}
	for _, a := range absences {
		drafts = append(drafts, models.NotificationDraft{
			RecipientID: studentID,
			Type:        models.NotificationAlert,
			Title:       "Recent absences",
			Message:     fmt.Sprintf("You have %d recent absences in %s.", a.Absences, a.SubjectName),
			SubjectID:   a.SubjectID,
			GeneratedAt: now,
		})
	}
	return drafts, nil
}

func (s *NotificationService) teacherDrafts(ctx context.Context, teacherID string) ([]models.NotificationDraft, error) {
	now := s.now().UTC()
	since := now.Add(-s.cfg.Lookback)

	var (
		subjects []models.Subject
		counts   []models.SubjectLevelCount
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		subjects, err = s.subjects.List(gctx, models.SubjectFilter{TeacherID: teacherID})
		return err
	})
	g.Go(func() error {
		var err error
		counts, err = s.predictions.CountStudentsAtLevelBySubject(gctx, teacherID, models.LevelLow, since)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	drafts := make([]models.NotificationDraft, 0, len(counts)+len(subjects))
	for _, c := range counts {
		if c.Students <= 0 {
			continue
		}
		drafts = append(drafts, models.NotificationDraft{
			RecipientID: teacherID,
			Type:        models.NotificationInfo,
			Title:       "Students at risk",
			Message:     fmt.Sprintf("%d students are at risk of failing %s.", c.Students, c.SubjectName),
			SubjectID:   c.SubjectID,
			ActionURL:   stringPtr("/api/v1/predictions/at-risk?subject_id=" + c.SubjectID),
			GeneratedAt: now,
		})
	}

	weekStart := now.Add(-s.cfg.TeacherAttendanceWindow)
	for _, subject := range subjects {
		stats, err := s.attendance.SubjectStatsSince(ctx, subject.ID, weekStart)
		if err != nil {
			return nil, err
		}
		if stats.Total == 0 {
			continue
		}
		rate := stats.Percentage()
		if rate < s.cfg.LowAttendanceRate {
			drafts = append(drafts, models.NotificationDraft{
				RecipientID: teacherID,
				Type:        models.NotificationWarning,
				Title:       "Low attendance",
				Message:     fmt.Sprintf("Attendance in %s is low (%.1f%%).", subject.Name, rate),
				SubjectID:   subject.ID,
				GeneratedAt: now,
			})
		}
	}
	return drafts, nil
}

func (s *NotificationService) adminDrafts(ctx context.Context, adminID string) ([]models.NotificationDraft, error) {
	now := s.now().UTC()
	ratios, err := s.predictions.CourseLevelRatios(ctx, models.LevelLow, now.Add(-s.cfg.Lookback))
	if err != nil {
		return nil, err
	}
	drafts := make([]models.NotificationDraft, 0)
	for _, r := range ratios {
		if r.AtLevel == 0 || r.Ratio() <= s.cfg.CourseRiskRatio {
			continue
		}
		drafts = append(drafts, models.NotificationDraft{
			RecipientID: adminID,
			Type:        models.NotificationUrgent,
			Title:       "Course at academic risk",
			Message:     fmt.Sprintf("%d students (%.1f%%) in %s are at academic risk.", r.AtLevel, r.Ratio()*100, r.CourseName),
			CourseID:    r.CourseID,
			ActionURL:   stringPtr("/api/v1/predictions/at-risk?course_id=" + r.CourseID),
			GeneratedAt: now,
		})
	}
	return drafts, nil
}

// PublishAlerts persists the actor's current drafts as unread notifications.
func (s *NotificationService) PublishAlerts(ctx context.Context, actor *models.JWTClaims) ([]models.Notification, error) {
	drafts, err := s.BuildNotifications(ctx, actor)
	if err != nil {
		return nil, err
	}
	return s.Publish(ctx, drafts)
}

// Publish stores drafts as UNREAD notifications.
func (s *NotificationService) Publish(ctx context.Context, drafts []models.NotificationDraft) ([]models.Notification, error) {
	now := s.now().UTC()
	items := make([]models.Notification, 0, len(drafts))
	for _, d := range drafts {
		if !d.Type.Valid() || d.RecipientID == "" {
			continue
		}
		items = append(items, models.Notification{
			RecipientID: d.RecipientID,
			Type:        d.Type,
			Title:       d.Title,
			Message:     d.Message,
			Status:      models.NotificationUnread,
			ActionURL:   d.ActionURL,
			CreatedAt:   now,
		})
	}
	if err := s.notifications.CreateBatch(ctx, items); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store notifications")
	}
	return items, nil
}

// List returns a page of the actor's inbox.
func (s *NotificationService) List(ctx context.Context, actor *models.JWTClaims, filter models.NotificationFilter) ([]models.Notification, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown status")
	}
	if filter.Type != nil && !filter.Type.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown notification type")
	}
	filter.RecipientID = actor.UserID
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	items, total, err := s.notifications.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return items, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// MarkRead moves a notification from UNREAD to READ.
func (s *NotificationService) MarkRead(ctx context.Context, actor *models.JWTClaims, id string) (*models.Notification, error) {
	return s.transition(ctx, actor, id, models.NotificationRead)
}

// Archive moves a notification to ARCHIVED.
func (s *NotificationService) Archive(ctx context.Context, actor *models.JWTClaims, id string) (*models.Notification, error) {
	return s.transition(ctx, actor, id, models.NotificationArchived)
}

func (s *NotificationService) transition(ctx context.Context, actor *models.JWTClaims, id string, to models.NotificationStatus) (*models.Notification, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	current, err := s.notifications.GetByID(ctx, id, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load notification")
	}
	if !current.Status.CanTransition(to) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot move notification from %s to %s", current.Status, to))
	}
	now := s.now().UTC()
	ok, err := s.notifications.UpdateStatus(ctx, id, actor.UserID, current.Status, to, &now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update notification")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "notification changed concurrently")
	}
	current.Status = to
	if current.ReadAt == nil {
		current.ReadAt = &now
	}
	return current, nil
}

// MarkAllRead flags every unread notification of the actor and returns how many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, actor *models.JWTClaims) (int64, error) {
	if actor == nil {
		return 0, appErrors.ErrUnauthorized
	}
	updated, err := s.notifications.MarkAllRead(ctx, actor.UserID, s.now().UTC())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	return updated, nil
}

// UnreadCount returns the actor's unread total.
func (s *NotificationService) UnreadCount(ctx context.Context, actor *models.JWTClaims) (int, error) {
	if actor == nil {
		return 0, appErrors.ErrUnauthorized
	}
	total, err := s.notifications.CountUnread(ctx, actor.UserID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count notifications")
	}
	return total, nil
}

func stringPtr(v string) *string {
	return &v
}
