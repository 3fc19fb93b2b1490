package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oerlinker/BackendAISi2/internal/models"
	appErrors "github.com/Oerlinker/BackendAISi2/pkg/errors"
	"github.com/Oerlinker/BackendAISi2/pkg/jobs"
)

type trainingRowsFake struct {
	rows map[string][]models.TrainingRow
}

func (f *trainingRowsFake) ListTrainingRows(ctx context.Context, subjectID string) ([]models.TrainingRow, error) {
	if subjectID != "" {
		return f.rows[subjectID], nil
	}
	var all []models.TrainingRow
	for _, rows := range f.rows {
		all = append(all, rows...)
	}
	return all, nil
}

func (f *trainingRowsFake) ListIDsWithGrades(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(f.rows))
	for id := range f.rows {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *trainingRowsFake) CountRecords(ctx context.Context) (models.RecordCounts, error) {
	counts := models.RecordCounts{Subjects: len(f.rows)}
	for _, rows := range f.rows {
		counts.Grades += len(rows)
		for _, r := range rows {
			counts.Attendances += r.AttendanceTotal
			counts.Participations += r.ParticipationCount
		}
	}
	return counts, nil
}

func syntheticRows(subjectID string, n int) []models.TrainingRow {
	rows := make([]models.TrainingRow, n)
	for i := 0; i < n; i++ {
		rows[i] = models.TrainingRow{
			GradeID:   fmt.Sprintf("%s-%d", subjectID, i),
			StudentID: fmt.Sprintf("stu-%d", i),
			SubjectID: subjectID,
			GradeComponents: models.GradeComponents{
				Ser:         float64(5 + i%5),
				Saber:       float64(18 + (i*3)%17),
				Hacer:       float64(16 + (i*7)%19),
				Decidir:     float64(4 + i%6),
				AutoSer:     float64(2 + i%3),
				AutoDecidir: float64(1 + (i*2)%5),
			},
			AttendancePresent:  10 + i%10,
			AttendanceTotal:    20,
			ParticipationCount: 3,
			ParticipationAvg:   float64(4 + i%6),
		}
	}
	return rows
}

type trainingRunStoreFake struct {
	runs []models.TrainingRun
}

func (f *trainingRunStoreFake) Create(ctx context.Context, run *models.TrainingRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	f.runs = append(f.runs, *run)
	return nil
}

func (f *trainingRunStoreFake) Latest(ctx context.Context) (*models.TrainingRun, error) {
	if len(f.runs) == 0 {
		return nil, sql.ErrNoRows
	}
	run := f.runs[len(f.runs)-1]
	return &run, nil
}

type trainingFixture struct {
	clock     *fakeClock
	rows      *trainingRowsFake
	artifacts *artifactStoreFake
	runs      *trainingRunStoreFake
	cache     *ModelCache
	trainer   *ModelTrainer
}

func newTrainingFixture() *trainingFixture {
	clock := newFakeClock()
	rows := &trainingRowsFake{rows: map[string][]models.TrainingRow{
		"thin": syntheticRows("thin", 19),
		"rich": syntheticRows("rich", 25),
	}}
	artifacts := newArtifactStoreFake()
	return &trainingFixture{
		clock:     clock,
		rows:      rows,
		artifacts: artifacts,
		runs:      &trainingRunStoreFake{},
		cache:     NewModelCache(artifacts, nil),
		trainer:   NewModelTrainer(rows, ModelTrainerConfig{SubjectMinRows: 20, GeneralMinRows: 30, RidgeLambda: 0.01}, clock.Now),
	}
}

func (f *trainingFixture) service(fitter modelFitter) *TrainingService {
	if fitter == nil {
		fitter = f.trainer
	}
	return NewTrainingService(TrainingServiceParams{
		Fitter:    fitter,
		Artifacts: f.artifacts,
		Runs:      f.runs,
		Counts:    f.rows,
		Subjects:  f.rows,
		Cache:     f.cache,
		Now:       f.clock.Now,
		Workers:   2,
	})
}

func TestTrainSkipsSubjectsBelowRowThreshold(t *testing.T) {
	f := newTrainingFixture()
	run, err := f.service(nil).Train(context.Background(), TrainModelRequest{})
	require.NoError(t, err)

	assert.Equal(t, models.TrainingRunCompleted, run.Status)
	assert.True(t, run.GeneralTrained)
	assert.Equal(t, 1, run.SubjectsTrained)
	assert.Equal(t, 1, run.SubjectsSkipped)
	assert.Equal(t, 44, run.GradeCount)
	assert.Equal(t, 2, run.SubjectCount)
	assert.Nil(t, run.Error)

	assert.True(t, f.artifacts.has(models.GeneralModelKey))
	assert.True(t, f.artifacts.has(models.SubjectModelKey("rich")))
	assert.False(t, f.artifacts.has(models.SubjectModelKey("thin")))
	require.Len(t, f.runs.runs, 1)
	assert.Equal(t, run.ID, f.runs.runs[0].ID)
}

func TestThinSubjectInferenceFallsThroughToGeneralModel(t *testing.T) {
	f := newTrainingFixture()
	ctx := context.Background()

	_, err := f.cache.Get(ctx, models.GeneralModelKey)
	require.ErrorIs(t, err, appErrors.ErrModelUnavailable)

	_, err = f.service(nil).Train(ctx, TrainModelRequest{})
	require.NoError(t, err)

	p := newPredictionFixture()
	p.subjects.subjects = append(p.subjects.subjects, models.Subject{ID: "thin", Name: "Thin"}, models.Subject{ID: "rich", Name: "Rich"})
	p.signals.addGrade("stu-1", "thin", strongGrade, p.clock.Now().AddDate(0, -2, 0))
	p.signals.addGrade("stu-1", "rich", strongGrade, p.clock.Now().AddDate(0, -2, 0))
	svc := p.service(DefaultStrategies(f.cache, f.trainer)...)

	thin, _, err := svc.GetOrCreate(ctx, "stu-1", "thin", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, models.SourceLearnedGeneral, thin.Source)
	assert.GreaterOrEqual(t, thin.Value, 0.0)
	assert.LessOrEqual(t, thin.Value, 100.0)

	rich, _, err := svc.GetOrCreate(ctx, "stu-1", "rich", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, models.SourceLearnedSubject, rich.Source)
	assert.Equal(t, models.ConfidenceHigh, rich.Confidence)
}

func TestThinSubjectWithoutGeneralModelUsesHeuristic(t *testing.T) {
	f := newTrainingFixture()
	ctx := context.Background()
	_, err := f.service(nil).Train(ctx, TrainModelRequest{SubjectID: "thin"})
	require.NoError(t, err)
	assert.Empty(t, f.artifacts.models)

	p := newPredictionFixture()
	p.subjects.subjects = append(p.subjects.subjects, models.Subject{ID: "thin", Name: "Thin"})
	p.signals.addGrade("stu-1", "thin", strongGrade, p.clock.Now().AddDate(0, -2, 0))
	prediction, _, err := p.service(DefaultStrategies(f.cache, f.trainer)...).GetOrCreate(ctx, "stu-1", "thin", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, models.SourceHeuristic, prediction.Source)
	assert.InDelta(t, 75.4, prediction.Value, 1e-9)
}

func TestTrainSingleSubject(t *testing.T) {
	f := newTrainingFixture()
	run, err := f.service(nil).Train(context.Background(), TrainModelRequest{SubjectID: "rich"})
	require.NoError(t, err)
	assert.False(t, run.GeneralTrained)
	assert.Equal(t, 1, run.SubjectsTrained)
	assert.False(t, f.artifacts.has(models.GeneralModelKey))
}

func TestTrainGeneralOnly(t *testing.T) {
	f := newTrainingFixture()
	run, err := f.service(nil).Train(context.Background(), TrainModelRequest{GeneralOnly: true})
	require.NoError(t, err)
	assert.True(t, run.GeneralTrained)
	assert.Zero(t, run.SubjectsTrained+run.SubjectsSkipped)
}

type brokenFitter struct{}

func (brokenFitter) FitSubject(ctx context.Context, subjectID string) (*models.TrainedModel, error) {
	return nil, appErrors.Clone(appErrors.ErrInsufficientData, "few rows")
}

func (brokenFitter) FitGeneral(ctx context.Context) (*models.TrainedModel, error) {
	return nil, appErrors.Clone(appErrors.ErrPredictorInternal, "singular system")
}

func TestTrainRecordsFailedRun(t *testing.T) {
	f := newTrainingFixture()
	run, err := f.service(brokenFitter{}).Train(context.Background(), TrainModelRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.TrainingRunFailed, run.Status)
	require.NotNil(t, run.Error)
	assert.Contains(t, *run.Error, "singular system")
	assert.Equal(t, 2, run.SubjectsSkipped)

	worker := NewTrainingWorker(f.service(brokenFitter{}), nil)
	err = worker.Handle(context.Background(), jobs.Job{ID: "job-1", Payload: TrainModelRequest{}})
	assert.Error(t, err)

	err = worker.Handle(context.Background(), jobs.Job{ID: "job-2", Payload: "nope"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unexpected payload"))
}

func TestTrainingWorkerSucceeds(t *testing.T) {
	f := newTrainingFixture()
	worker := NewTrainingWorker(f.service(nil), nil)
	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: "job-1", Payload: TrainModelRequest{}}))
	assert.Len(t, f.runs.runs, 1)
}

func TestModelAdminService(t *testing.T) {
	f := newTrainingFixture()
	queue := &dispatcherStub{}
	admin := NewModelAdminService(queue, f.service(nil), f.cache, f.runs, f.artifacts, nil)
	ctx := context.Background()

	resp, err := admin.RequestTraining(ctx, TrainModelRequest{})
	require.NoError(t, err)
	assert.True(t, resp.Queued)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, "train:all", queue.jobs[0].Key)

	_, err = admin.RequestTraining(ctx, TrainModelRequest{SubjectID: strings.Repeat("x", 65)})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	queue.err = jobs.ErrDuplicate
	_, err = admin.RequestTraining(ctx, TrainModelRequest{})
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	queue.err = errors.New("queue full")
	_, err = admin.RequestTraining(ctx, TrainModelRequest{SubjectID: "rich"})
	assert.ErrorIs(t, err, appErrors.ErrInternal)

	_, err = admin.Metadata(ctx)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = f.service(nil).Train(ctx, TrainModelRequest{})
	require.NoError(t, err)
	meta, err := admin.Metadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{models.GeneralModelKey, models.SubjectModelKey("rich")}, meta.Models)
	assert.True(t, meta.LatestRun.GeneralTrained)

	_, err = f.cache.Get(ctx, models.GeneralModelKey)
	require.NoError(t, err)
	assert.Equal(t, 1, admin.Reload())
}

func TestModelAdminTrainsInlineWithoutQueue(t *testing.T) {
	f := newTrainingFixture()
	admin := NewModelAdminService(nil, f.service(nil), f.cache, f.runs, f.artifacts, nil)
	resp, err := admin.RequestTraining(context.Background(), TrainModelRequest{SubjectID: "rich"})
	require.NoError(t, err)
	assert.False(t, resp.Queued)
	assert.NotEmpty(t, resp.JobID)
	assert.True(t, f.artifacts.has(models.SubjectModelKey("rich")))
}
