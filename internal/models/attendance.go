package models

import "time"

// Attendance is a boolean presence mark for one class date.
type Attendance struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	SubjectID string    `db:"subject_id" json:"subject_id"`
	Date      time.Time `db:"date" json:"date"`
	Present   bool      `db:"present" json:"present"`
}

// AttendanceStats counts presence marks over a window.
type AttendanceStats struct {
	Present int `db:"present" json:"present"`
	Total   int `db:"total" json:"total"`
}

// Percentage returns present/total as 0..100. No recorded classes counts as
// perfect attendance.
func (s AttendanceStats) Percentage() float64 {
	if s.Total <= 0 {
		return 100
	}
	return float64(s.Present) / float64(s.Total) * 100
}

// SubjectAbsences aggregates absences of one student in one subject.
type SubjectAbsences struct {
	SubjectID   string `db:"subject_id" json:"subject_id"`
	SubjectName string `db:"subject_name" json:"subject_name"`
	Absences    int    `db:"absences" json:"absences"`
}

// StudentAbsences aggregates absences of one student across subjects.
type StudentAbsences struct {
	StudentID string `db:"student_id" json:"student_id"`
	SubjectID string `db:"subject_id" json:"subject_id"`
	Absences  int    `db:"absences" json:"absences"`
}
