package models

import "time"

// Upper bounds of each grade component.
const (
	MaxSer         = 10.0
	MaxSaber       = 35.0
	MaxHacer       = 35.0
	MaxDecidir     = 10.0
	MaxAutoSer     = 5.0
	MaxAutoDecidir = 5.0
)

// GradeComponents are the six assessed dimensions of a trimester grade.
type GradeComponents struct {
	Ser         float64 `db:"ser" json:"ser"`
	Saber       float64 `db:"saber" json:"saber"`
	Hacer       float64 `db:"hacer" json:"hacer"`
	Decidir     float64 `db:"decidir" json:"decidir"`
	AutoSer     float64 `db:"auto_ser" json:"auto_ser"`
	AutoDecidir float64 `db:"auto_decidir" json:"auto_decidir"`
}

// Total is the sum of the six components on the 0..100 scale.
func (c GradeComponents) Total() float64 {
	return c.Ser + c.Saber + c.Hacer + c.Decidir + c.AutoSer + c.AutoDecidir
}

// Valid reports whether every component is inside its range.
func (c GradeComponents) Valid() bool {
	return within(c.Ser, MaxSer) && within(c.Saber, MaxSaber) && within(c.Hacer, MaxHacer) &&
		within(c.Decidir, MaxDecidir) && within(c.AutoSer, MaxAutoSer) && within(c.AutoDecidir, MaxAutoDecidir)
}

func within(v, max float64) bool {
	return v >= 0 && v <= max
}

// Grade is one (student, subject, period) record. At most one exists per triple.
type Grade struct {
	ID        string `db:"id" json:"id"`
	StudentID string `db:"student_id" json:"student_id"`
	SubjectID string `db:"subject_id" json:"subject_id"`
	PeriodID  string `db:"period_id" json:"period_id"`
	GradeComponents
	PeriodStart time.Time `db:"period_start" json:"period_start"`
	PeriodEnd   time.Time `db:"period_end" json:"period_end"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Total returns the grade total.
func (g Grade) Total() float64 {
	return g.GradeComponents.Total()
}
