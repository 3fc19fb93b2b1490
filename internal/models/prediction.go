package models

import "time"

// PerformanceLevel discretises a 0..100 value.
type PerformanceLevel string

const (
	LevelLow    PerformanceLevel = "BAJO"
	LevelMedium PerformanceLevel = "MEDIO"
	LevelHigh   PerformanceLevel = "ALTO"
)

// Level boundaries shared by recorded and predicted totals.
const (
	MediumLevelFloor = 60.0
	HighLevelFloor   = 80.0
)

// LevelFor maps a value to its level: <60 BAJO, <80 MEDIO, otherwise ALTO.
func LevelFor(value float64) PerformanceLevel {
	switch {
	case value < MediumLevelFloor:
		return LevelLow
	case value < HighLevelFloor:
		return LevelMedium
	default:
		return LevelHigh
	}
}

// PredictionSource names the strategy that produced a forecast.
type PredictionSource string

const (
	SourceHeuristic      PredictionSource = "HEURISTIC"
	SourceLearnedSubject PredictionSource = "LEARNED_SUBJECT"
	SourceLearnedGeneral PredictionSource = "LEARNED_GENERAL"
	SourceOnTheFly       PredictionSource = "ON_THE_FLY"
)

// Confidence tags a prediction for downstream trust weighting.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// Confidence derives the tag carried by predictions from this source.
func (s PredictionSource) Confidence() Confidence {
	switch s {
	case SourceLearnedSubject, SourceLearnedGeneral:
		return ConfidenceHigh
	case SourceOnTheFly:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Prediction is an immutable forecast for a (student, subject) pair.
type Prediction struct {
	ID               string           `db:"id" json:"id"`
	StudentID        string           `db:"student_id" json:"student_id"`
	SubjectID        string           `db:"subject_id" json:"subject_id"`
	Value            float64          `db:"value" json:"value"`
	Level            PerformanceLevel `db:"level" json:"level"`
	GradeAverage     float64          `db:"grade_average" json:"grade_average"`
	AttendancePct    float64          `db:"attendance_pct" json:"attendance_pct"`
	ParticipationAvg float64          `db:"participation_avg" json:"participation_avg"`
	Source           PredictionSource `db:"source" json:"source"`
	Confidence       Confidence       `db:"confidence" json:"confidence"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	StudentName      *string          `db:"student_name" json:"student_name,omitempty"`
	SubjectName      *string          `db:"subject_name" json:"subject_name,omitempty"`
}

// AtRisk reports whether the forecast falls under the given threshold.
func (p Prediction) AtRisk(threshold float64) bool {
	return p.Value < threshold
}

// PredictionFilter scopes prediction listings.
type PredictionFilter struct {
	StudentID string
	SubjectID string
	CourseID  string
	TeacherID string
	Levels    []PerformanceLevel
	Since     *time.Time
	Limit     int
}

// SubjectLevelCount counts distinct students per subject at a level.
type SubjectLevelCount struct {
	SubjectID   string `db:"subject_id" json:"subject_id"`
	SubjectName string `db:"subject_name" json:"subject_name"`
	Students    int    `db:"students" json:"students"`
}

// CourseLevelRatio compares students at a level with the course population.
type CourseLevelRatio struct {
	CourseID      string `db:"course_id" json:"course_id"`
	CourseName    string `db:"course_name" json:"course_name"`
	AtLevel       int    `db:"at_level" json:"at_level"`
	TotalStudents int    `db:"total_students" json:"total_students"`
}

// Ratio returns AtLevel/TotalStudents, 0 for an empty course.
func (c CourseLevelRatio) Ratio() float64 {
	if c.TotalStudents <= 0 {
		return 0
	}
	return float64(c.AtLevel) / float64(c.TotalStudents)
}
