package models

import (
	"time"

	"github.com/Oerlinker/BackendAISi2/pkg/regression"
)

// GeneralModelKey identifies the model fitted across every subject.
const GeneralModelKey = "general"

// SubjectModelKey identifies a subject-specific model.
func SubjectModelKey(subjectID string) string {
	return "subject_" + subjectID
}

// TrainedModel is a persisted regression artifact.
type TrainedModel struct {
	Key       string            `json:"key"`
	SubjectID string            `json:"subject_id,omitempty"`
	TrainedAt time.Time         `json:"trained_at"`
	Rows      int               `json:"rows"`
	Model     *regression.Model `json:"model"`
}

// TrainingRunStatus reports how a training run ended.
type TrainingRunStatus string

const (
	TrainingRunCompleted TrainingRunStatus = "COMPLETED"
	TrainingRunFailed    TrainingRunStatus = "FAILED"
)

// TrainingRun is the metadata record written after each training pass.
type TrainingRun struct {
	ID                 string            `db:"id" json:"id"`
	Status             TrainingRunStatus `db:"status" json:"status"`
	StartedAt          time.Time         `db:"started_at" json:"started_at"`
	FinishedAt         time.Time         `db:"finished_at" json:"finished_at"`
	GradeCount         int               `db:"grade_count" json:"grade_count"`
	AttendanceCount    int               `db:"attendance_count" json:"attendance_count"`
	ParticipationCount int               `db:"participation_count" json:"participation_count"`
	SubjectCount       int               `db:"subject_count" json:"subject_count"`
	GeneralTrained     bool              `db:"general_trained" json:"general_trained"`
	SubjectsTrained    int               `db:"subjects_trained" json:"subjects_trained"`
	SubjectsSkipped    int               `db:"subjects_skipped" json:"subjects_skipped"`
	Error              *string           `db:"error" json:"error,omitempty"`
}

// RecordCounts are source table sizes captured at training time.
type RecordCounts struct {
	Grades         int `db:"grades"`
	Attendances    int `db:"attendances"`
	Participations int `db:"participations"`
	Subjects       int `db:"subjects"`
}
