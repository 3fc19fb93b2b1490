package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oerlinker/BackendAISi2/internal/models"
	appErrors "github.com/Oerlinker/BackendAISi2/pkg/errors"
)

var strongGrade = models.GradeComponents{Ser: 8, Saber: 30, Hacer: 30, Decidir: 8, AutoSer: 4, AutoDecidir: 4}

var weakGrade = models.GradeComponents{Ser: 4, Saber: 12, Hacer: 12, Decidir: 4, AutoSer: 2, AutoDecidir: 2}

type predictionFixture struct {
	clock       *fakeClock
	signals     *signalFixture
	predictions *predictionStoreFake
	users       *userDirectoryFake
	subjects    *subjectDirectoryFake
}

func newPredictionFixture() *predictionFixture {
	return &predictionFixture{
		clock:       newFakeClock(),
		signals:     newSignalFixture(),
		predictions: &predictionStoreFake{},
		users: &userDirectoryFake{users: []models.User{
			{ID: "stu-1", FullName: "Ana Rojas", Role: models.RoleStudent, CourseID: strRef("course-1")},
			{ID: "stu-2", FullName: "Luis Vaca", Role: models.RoleStudent, CourseID: strRef("course-2")},
			{ID: "tea-1", FullName: "Marta Paz", Role: models.RoleTeacher},
		}},
		subjects: &subjectDirectoryFake{subjects: []models.Subject{
			{ID: "math", Name: "Mathematics", TeacherID: strRef("tea-1")},
			{ID: "bio", Name: "Biology"},
		}},
	}
}

func (f *predictionFixture) service(strategies ...PredictionStrategy) *PredictionService {
	return NewPredictionService(PredictionServiceParams{
		Predictions: f.predictions,
		Users:       f.users,
		Subjects:    f.subjects,
		Features:    f.signals.extractor(f.clock),
		Strategies:  strategies,
		Now:         f.clock.Now,
		Config: PredictionServiceConfig{
			FreshnessWindow:      7 * 24 * time.Hour,
			BatchFreshnessWindow: 14 * 24 * time.Hour,
			RiskThreshold:        60,
		},
	})
}

func TestGenerateHeuristicScenarioHigh(t *testing.T) {
	f := newPredictionFixture()
	f.signals.addGrade("stu-1", "math", strongGrade, f.clock.Now().AddDate(0, -2, 0))
	f.signals.attendance.stats[pairKey("stu-1", "math")] = models.AttendanceStats{Present: 19, Total: 20}
	f.signals.participation.stats[pairKey("stu-1", "math")] = models.ParticipationStats{Count: 4, Average: 9}

	result, err := f.service().Generate(context.Background(), GeneratePredictionRequest{StudentID: "stu-1", SubjectID: "math"})
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.InDelta(t, 87.65, result.Prediction.Value, 1e-9)
	assert.Equal(t, models.LevelHigh, result.Prediction.Level)
	assert.Equal(t, models.SourceHeuristic, result.Prediction.Source)
	assert.Equal(t, models.ConfidenceLow, result.Prediction.Confidence)
	assert.InDelta(t, 84, result.Prediction.GradeAverage, 1e-9)
	assert.InDelta(t, 95, result.Prediction.AttendancePct, 1e-9)
}

func TestGenerateHeuristicScenarioWithoutBehaviourRecords(t *testing.T) {
	f := newPredictionFixture()
	f.signals.addGrade("stu-1", "math", strongGrade, f.clock.Now().AddDate(0, -2, 0))

	result, err := f.service().Generate(context.Background(), GeneratePredictionRequest{StudentID: "stu-1", SubjectID: "math"})
	require.NoError(t, err)
	assert.InDelta(t, 75.4, result.Prediction.Value, 1e-9)
	assert.Equal(t, models.LevelMedium, result.Prediction.Level)
	assert.InDelta(t, 100, result.Prediction.AttendancePct, 1e-9)
	assert.InDelta(t, 0, result.Prediction.ParticipationAvg, 1e-9)
}

func TestGenerateValidatesInput(t *testing.T) {
	f := newPredictionFixture()
	svc := f.service()

	_, err := svc.Generate(context.Background(), GeneratePredictionRequest{SubjectID: "math"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Generate(context.Background(), GeneratePredictionRequest{StudentID: "ghost", SubjectID: "math"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.Generate(context.Background(), GeneratePredictionRequest{StudentID: "tea-1", SubjectID: "math"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.Generate(context.Background(), GeneratePredictionRequest{StudentID: "stu-1", SubjectID: "art"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestGenerateWithoutGradesIsMissingHistory(t *testing.T) {
	f := newPredictionFixture()
	_, err := f.service().Generate(context.Background(), GeneratePredictionRequest{StudentID: "stu-1", SubjectID: "math"})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrMissingHistory)
	assert.Equal(t, 0, f.predictions.count())
}

func TestGetOrCreateIsIdempotentWithinWindow(t *testing.T) {
	f := newPredictionFixture()
	f.signals.addGrade("stu-1", "math", strongGrade, f.clock.Now().AddDate(0, -2, 0))
	svc := f.service()
	ctx := context.Background()

	first, created, err := svc.GetOrCreate(ctx, "stu-1", "math", 7*24*time.Hour)
	require.NoError(t, err)
	assert.True(t, created)

	f.clock.Advance(6 * 24 * time.Hour)
	f.signals.attendance.stats[pairKey("stu-1", "math")] = models.AttendanceStats{Present: 1, Total: 10}
	second, created, err := svc.GetOrCreate(ctx, "stu-1", "math", 7*24*time.Hour)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, *first, *second)

	f.clock.Advance(2 * 24 * time.Hour)
	third, created, err := svc.GetOrCreate(ctx, "stu-1", "math", 7*24*time.Hour)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, third.ID)
	assert.Less(t, third.Value, first.Value)
	assert.Equal(t, 2, f.predictions.count())
}

func TestGenerateReportsAlreadyFresh(t *testing.T) {
	f := newPredictionFixture()
	f.signals.addGrade("stu-1", "math", strongGrade, f.clock.Now().AddDate(0, -2, 0))
	svc := f.service()
	req := GeneratePredictionRequest{StudentID: "stu-1", SubjectID: "math"}

	first, err := svc.Generate(context.Background(), req)
	require.NoError(t, err)
	again, err := svc.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, first.Prediction.ID, again.Prediction.ID)
}

func TestStrategyChainFallsBackToHeuristic(t *testing.T) {
	f := newPredictionFixture()
	f.signals.addGrade("stu-1", "math", strongGrade, f.clock.Now().AddDate(0, -2, 0))

	subject := &strategyStub{source: models.SourceLearnedSubject, err: appErrors.Clone(appErrors.ErrModelUnavailable, "none")}
	general := &strategyStub{source: models.SourceLearnedGeneral, err: appErrors.Clone(appErrors.ErrPredictorInternal, "corrupt")}
	fly := &strategyStub{source: models.SourceOnTheFly, err: appErrors.Clone(appErrors.ErrInsufficientData, "19 rows")}
	svc := f.service(subject, general, fly, NewHeuristicStrategy())

	prediction, _, err := svc.GetOrCreate(context.Background(), "stu-1", "math", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, models.SourceHeuristic, prediction.Source)
	assert.InDelta(t, 75.4, prediction.Value, 1e-9)
	assert.Equal(t, 1, subject.calls)
	assert.Equal(t, 1, general.calls)
	assert.Equal(t, 1, fly.calls)
}

func TestStrategyChainUsesFirstSuccessAndClamps(t *testing.T) {
	f := newPredictionFixture()
	f.signals.addGrade("stu-1", "math", strongGrade, f.clock.Now().AddDate(0, -2, 0))

	subject := &strategyStub{source: models.SourceLearnedSubject, err: appErrors.Clone(appErrors.ErrModelUnavailable, "none")}
	general := &strategyStub{source: models.SourceLearnedGeneral, value: 131.7}
	never := &strategyStub{source: models.SourceOnTheFly, value: 10}
	svc := f.service(subject, general, never)

	prediction, _, err := svc.GetOrCreate(context.Background(), "stu-1", "math", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, models.SourceLearnedGeneral, prediction.Source)
	assert.Equal(t, models.ConfidenceHigh, prediction.Confidence)
	assert.Equal(t, 100.0, prediction.Value)
	assert.Equal(t, models.LevelHigh, prediction.Level)
	assert.Equal(t, 0, never.calls)
}

func TestLevelIsTakenFromRoundedValue(t *testing.T) {
	f := newPredictionFixture()
	f.signals.addGrade("stu-1", "math", weakGrade, f.clock.Now().AddDate(0, -2, 0))
	edge := &strategyStub{source: models.SourceLearnedSubject, value: 59.996}

	prediction, _, err := f.service(edge).GetOrCreate(context.Background(), "stu-1", "math", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 60.0, prediction.Value)
	assert.Equal(t, models.LevelMedium, prediction.Level)
	assert.False(t, prediction.AtRisk(60))
}

func TestChainWithoutHeuristicStillTerminates(t *testing.T) {
	f := newPredictionFixture()
	f.signals.addGrade("stu-1", "math", weakGrade, f.clock.Now().AddDate(0, -2, 0))
	failing := &strategyStub{source: models.SourceLearnedSubject, err: appErrors.Clone(appErrors.ErrModelUnavailable, "none")}

	prediction, _, err := f.service(failing).GetOrCreate(context.Background(), "stu-1", "math", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, models.SourceHeuristic, prediction.Source)
}

func TestScanRiskStopsOnTimeBudget(t *testing.T) {
	f := newPredictionFixture()
	f.users.users = nil
	f.subjects.subjects = nil
	past := f.clock.Now().AddDate(0, -2, 0)
	for s := 0; s < 10; s++ {
		f.subjects.subjects = append(f.subjects.subjects, models.Subject{ID: fmt.Sprintf("sub-%02d", s), Name: fmt.Sprintf("Subject %d", s)})
	}
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("stu-%02d", i)
		f.users.users = append(f.users.users, models.User{ID: id, FullName: id, Role: models.RoleStudent})
		for _, sub := range f.subjects.subjects {
			f.signals.addGrade(id, sub.ID, weakGrade, past)
		}
	}
	// every pair costs 3ms of wall clock
	f.signals.grades.onRead = func() { f.clock.Advance(3 * time.Millisecond) }

	result, err := f.service().ScanRisk(context.Background(), models.RiskScanFilter{TimeBudget: time.Second})
	require.NoError(t, err)
	assert.True(t, result.Partial)
	assert.Equal(t, 50, result.TotalStudents)
	assert.Less(t, result.ScannedPairs, 500)
	assert.Less(t, result.ScannedStudents, 50)
	assert.Equal(t, result.ScannedStudents*10, result.ScannedPairs)
	assert.Len(t, result.Students, result.ScannedStudents)
}

func TestScanRiskSkipsFailingPairsAndSortsByRiskCount(t *testing.T) {
	f := newPredictionFixture()
	past := f.clock.Now().AddDate(0, -2, 0)
	f.users.users = append(f.users.users, models.User{ID: "stu-3", FullName: "No Grades", Role: models.RoleStudent})
	f.signals.addGrade("stu-1", "math", weakGrade, past)
	f.signals.addGrade("stu-1", "bio", strongGrade, past)
	f.signals.addGrade("stu-2", "math", weakGrade, past)
	f.signals.addGrade("stu-2", "bio", weakGrade, past)

	result, err := f.service().ScanRisk(context.Background(), models.RiskScanFilter{})
	require.NoError(t, err)
	assert.False(t, result.Partial)
	assert.Equal(t, 3, result.ScannedStudents)
	assert.Equal(t, 6, result.ScannedPairs)
	assert.Equal(t, 2, result.SkippedPairs)
	require.Len(t, result.Students, 2)
	assert.Equal(t, "stu-2", result.Students[0].StudentID)
	assert.Len(t, result.Students[0].Subjects, 2)
	assert.Equal(t, "stu-1", result.Students[1].StudentID)
	assert.Equal(t, "math", result.Students[1].Subjects[0].SubjectID)
	assert.Equal(t, "course-1", result.Students[1].CourseID)
}

func TestScanRiskFiltersCourseAndSubject(t *testing.T) {
	f := newPredictionFixture()
	past := f.clock.Now().AddDate(0, -2, 0)
	f.signals.addGrade("stu-1", "math", weakGrade, past)
	f.signals.addGrade("stu-2", "math", weakGrade, past)

	result, err := f.service().ScanRisk(context.Background(), models.RiskScanFilter{CourseID: "course-2", SubjectID: "math"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalStudents)
	require.Len(t, result.Students, 1)
	assert.Equal(t, "stu-2", result.Students[0].StudentID)

	_, err = f.service().ScanRisk(context.Background(), models.RiskScanFilter{SubjectID: "art"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestScanRiskCourseOnlyScansCourseSubjects(t *testing.T) {
	f := newPredictionFixture()
	f.subjects.courses = map[string][]string{"math": {"course-2"}, "bio": {"course-1"}}
	past := f.clock.Now().AddDate(0, -2, 0)
	f.signals.addGrade("stu-2", "math", weakGrade, past)
	f.signals.addGrade("stu-2", "bio", weakGrade, past)

	result, err := f.service().ScanRisk(context.Background(), models.RiskScanFilter{CourseID: "course-2"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ScannedPairs)
	require.Len(t, result.Students, 1)
	require.Len(t, result.Students[0].Subjects, 1)
	assert.Equal(t, "math", result.Students[0].Subjects[0].SubjectID)
}

func TestScanRiskReusesBatchFreshPredictions(t *testing.T) {
	f := newPredictionFixture()
	f.signals.addGrade("stu-1", "math", weakGrade, f.clock.Now().AddDate(0, -2, 0))
	svc := f.service()
	_, _, err := svc.GetOrCreate(context.Background(), "stu-1", "math", time.Hour)
	require.NoError(t, err)

	f.clock.Advance(10 * 24 * time.Hour)
	_, err = svc.ScanRisk(context.Background(), models.RiskScanFilter{SubjectID: "math", CourseID: "course-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, f.predictions.count())
}

func TestPredictionVisibilityByRole(t *testing.T) {
	f := newPredictionFixture()
	f.signals.addGrade("stu-1", "math", strongGrade, f.clock.Now().AddDate(0, -2, 0))
	f.signals.addGrade("stu-1", "bio", strongGrade, f.clock.Now().AddDate(0, -2, 0))
	svc := f.service()
	ctx := context.Background()
	mathPrediction, _, err := svc.GetOrCreate(ctx, "stu-1", "math", time.Hour)
	require.NoError(t, err)
	bioPrediction, _, err := svc.GetOrCreate(ctx, "stu-1", "bio", time.Hour)
	require.NoError(t, err)

	got, err := svc.Get(ctx, mathPrediction.ID, studentClaims("stu-1"))
	require.NoError(t, err)
	assert.Equal(t, mathPrediction.ID, got.ID)

	_, err = svc.Get(ctx, mathPrediction.ID, studentClaims("stu-2"))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.Get(ctx, mathPrediction.ID, teacherClaims("tea-1"))
	assert.NoError(t, err)
	_, err = svc.Get(ctx, bioPrediction.ID, teacherClaims("tea-1"))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.Get(ctx, bioPrediction.ID, adminClaims("adm-1"))
	assert.NoError(t, err)

	_, err = svc.Get(ctx, "missing", adminClaims("adm-1"))
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestListForcesStudentScope(t *testing.T) {
	f := newPredictionFixture()
	f.signals.addGrade("stu-1", "math", strongGrade, f.clock.Now().AddDate(0, -2, 0))
	f.signals.addGrade("stu-2", "math", strongGrade, f.clock.Now().AddDate(0, -2, 0))
	svc := f.service()
	ctx := context.Background()
	_, _, err := svc.GetOrCreate(ctx, "stu-1", "math", time.Hour)
	require.NoError(t, err)
	_, _, err = svc.GetOrCreate(ctx, "stu-2", "math", time.Hour)
	require.NoError(t, err)

	items, err := svc.List(ctx, models.PredictionFilter{StudentID: "stu-2"}, studentClaims("stu-1"))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "stu-1", items[0].StudentID)

	items, err = svc.List(ctx, models.PredictionFilter{}, adminClaims("adm-1"))
	require.NoError(t, err)
	assert.Len(t, items, 2)
}
