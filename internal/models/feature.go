package models

import "time"

// FeatureNames lists regression inputs in the order produced by FeatureVector.Values.
var FeatureNames = []string{
	"ser", "saber", "hacer", "decidir", "auto_ser", "auto_decidir",
	"attendance_pct", "participation_avg",
}

// FeatureVector is the numeric summary fed to predictors. It is never stored.
type FeatureVector struct {
	StudentID        string          `json:"student_id"`
	SubjectID        string          `json:"subject_id"`
	AttendancePct    float64         `json:"attendance_pct"`
	ParticipationAvg float64         `json:"participation_avg"`
	Components       GradeComponents `json:"components"`
	WindowStart      time.Time       `json:"window_start"`
	WindowEnd        time.Time       `json:"window_end"`
}

// GradeTotal is the sum of the six components of the grade behind the vector.
func (f FeatureVector) GradeTotal() float64 {
	return f.Components.Total()
}

// Values flattens the vector in FeatureNames order.
func (f FeatureVector) Values() []float64 {
	c := f.Components
	return []float64{
		c.Ser, c.Saber, c.Hacer, c.Decidir, c.AutoSer, c.AutoDecidir,
		f.AttendancePct, f.ParticipationAvg,
	}
}

// TrainingRow is a grade joined with attendance and participation aggregates
// measured inside the grade's own period.
type TrainingRow struct {
	GradeID   string `db:"grade_id"`
	StudentID string `db:"student_id"`
	SubjectID string `db:"subject_id"`
	PeriodID  string `db:"period_id"`
	GradeComponents
	PeriodStart        time.Time `db:"period_start"`
	PeriodEnd          time.Time `db:"period_end"`
	AttendancePresent  int       `db:"attendance_present"`
	AttendanceTotal    int       `db:"attendance_total"`
	ParticipationCount int       `db:"participation_count"`
	ParticipationAvg   float64   `db:"participation_avg"`
}
