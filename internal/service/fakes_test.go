package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Oerlinker/BackendAISi2/internal/models"
	appErrors "github.com/Oerlinker/BackendAISi2/pkg/errors"
	"github.com/Oerlinker/BackendAISi2/pkg/jobs"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type predictionStoreFake struct {
	mu    sync.Mutex
	items []models.Prediction
}

func (f *predictionStoreFake) Create(ctx context.Context, p *models.Prediction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	f.items = append(f.items, *p)
	return nil
}

func (f *predictionStoreFake) GetByID(ctx context.Context, id string) (*models.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		if f.items[i].ID == id {
			p := f.items[i]
			return &p, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *predictionStoreFake) LatestForPair(ctx context.Context, studentID, subjectID string, since time.Time) (*models.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.Prediction
	for i := range f.items {
		p := f.items[i]
		if p.StudentID != studentID || p.SubjectID != subjectID || p.CreatedAt.Before(since) {
			continue
		}
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) {
			latest = &p
		}
	}
	if latest == nil {
		return nil, sql.ErrNoRows
	}
	return latest, nil
}

func (f *predictionStoreFake) List(ctx context.Context, filter models.PredictionFilter) ([]models.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Prediction
	for _, p := range f.items {
		if filter.StudentID != "" && p.StudentID != filter.StudentID {
			continue
		}
		if filter.SubjectID != "" && p.SubjectID != filter.SubjectID {
			continue
		}
		if filter.Since != nil && p.CreatedAt.Before(*filter.Since) {
			continue
		}
		if len(filter.Levels) > 0 {
			match := false
			for _, l := range filter.Levels {
				if l == p.Level {
					match = true
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *predictionStoreFake) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

type userDirectoryFake struct {
	users []models.User
}

func (f *userDirectoryFake) FindByID(ctx context.Context, id string) (*models.User, error) {
	for i := range f.users {
		if f.users[i].ID == id {
			u := f.users[i]
			return &u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *userDirectoryFake) List(ctx context.Context, filter models.UserFilter) ([]models.User, error) {
	var out []models.User
	for _, u := range f.users {
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		if filter.CourseID != "" && (u.CourseID == nil || *u.CourseID != filter.CourseID) {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

type subjectDirectoryFake struct {
	subjects []models.Subject
	// courses maps subject id to the courses that teach it
	courses map[string][]string
}

func (f *subjectDirectoryFake) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	for i := range f.subjects {
		if f.subjects[i].ID == id {
			s := f.subjects[i]
			return &s, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *subjectDirectoryFake) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, error) {
	var out []models.Subject
	for _, s := range f.subjects {
		if filter.TeacherID != "" && (s.TeacherID == nil || *s.TeacherID != filter.TeacherID) {
			continue
		}
		if filter.CourseID != "" && !f.taughtIn(s.ID, filter.CourseID) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *subjectDirectoryFake) taughtIn(subjectID, courseID string) bool {
	for _, c := range f.courses[subjectID] {
		if c == courseID {
			return true
		}
	}
	return false
}

func pairKey(studentID, subjectID string) string {
	return studentID + "|" + subjectID
}

type gradeHistoryFake struct {
	grades map[string][]models.Grade
	onRead func()
}

func (f *gradeHistoryFake) ListForPair(ctx context.Context, studentID, subjectID string) ([]models.Grade, error) {
	if f.onRead != nil {
		f.onRead()
	}
	return f.grades[pairKey(studentID, subjectID)], nil
}

type attendanceStatsFake struct {
	stats map[string]models.AttendanceStats
}

func (f *attendanceStatsFake) StatsBetween(ctx context.Context, studentID, subjectID string, from, to time.Time) (models.AttendanceStats, error) {
	return f.stats[pairKey(studentID, subjectID)], nil
}

type participationStatsFake struct {
	stats map[string]models.ParticipationStats
}

func (f *participationStatsFake) StatsBetween(ctx context.Context, studentID, subjectID string, from, to time.Time) (models.ParticipationStats, error) {
	return f.stats[pairKey(studentID, subjectID)], nil
}

type signalFixture struct {
	grades        *gradeHistoryFake
	attendance    *attendanceStatsFake
	participation *participationStatsFake
}

func newSignalFixture() *signalFixture {
	return &signalFixture{
		grades:        &gradeHistoryFake{grades: map[string][]models.Grade{}},
		attendance:    &attendanceStatsFake{stats: map[string]models.AttendanceStats{}},
		participation: &participationStatsFake{stats: map[string]models.ParticipationStats{}},
	}
}

func (f *signalFixture) extractor(clock *fakeClock) *FeatureExtractor {
	return NewFeatureExtractor(FeatureExtractorParams{
		Grades:        f.grades,
		Attendance:    f.attendance,
		Participation: f.participation,
		Now:           clock.Now,
	})
}

func (f *signalFixture) addGrade(studentID, subjectID string, c models.GradeComponents, periodStart time.Time) {
	key := pairKey(studentID, subjectID)
	f.grades.grades[key] = append(f.grades.grades[key], models.Grade{
		ID:              uuid.NewString(),
		StudentID:       studentID,
		SubjectID:       subjectID,
		GradeComponents: c,
		PeriodStart:     periodStart,
		PeriodEnd:       periodStart.Add(90 * 24 * time.Hour),
	})
	sort.SliceStable(f.grades.grades[key], func(i, j int) bool {
		return f.grades.grades[key][i].PeriodStart.After(f.grades.grades[key][j].PeriodStart)
	})
}

type strategyStub struct {
	source models.PredictionSource
	value  float64
	err    error
	calls  int
}

func (s *strategyStub) Source() models.PredictionSource { return s.source }

func (s *strategyStub) Predict(ctx context.Context, snapshot *FeatureSnapshot) (float64, error) {
	s.calls++
	return s.value, s.err
}

type artifactStoreFake struct {
	mu     sync.Mutex
	models map[string]*models.TrainedModel
	loads  int
}

func newArtifactStoreFake() *artifactStoreFake {
	return &artifactStoreFake{models: map[string]*models.TrainedModel{}}
}

func (f *artifactStoreFake) Save(ctx context.Context, model *models.TrainedModel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.models[model.Key] = model
	return nil
}

func (f *artifactStoreFake) Load(ctx context.Context, key string) (*models.TrainedModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	model, ok := f.models[key]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrModelUnavailable, "no trained model for "+key)
	}
	return model, nil
}

func (f *artifactStoreFake) Keys(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.models))
	for k := range f.models {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *artifactStoreFake) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.models[key]
	return ok
}

type dispatcherStub struct {
	jobs []jobs.Job
	err  error
}

func (d *dispatcherStub) Enqueue(job jobs.Job) error {
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

func strRef(v string) *string {
	return &v
}

func studentClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleStudent}
}

func teacherClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleTeacher}
}

func adminClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleAdmin}
}
