package models

import "time"

// Participation is a scored (1..10) classroom contribution.
type Participation struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	SubjectID string    `db:"subject_id" json:"subject_id"`
	Date      time.Time `db:"date" json:"date"`
	Kind      string    `db:"kind" json:"kind"`
	Value     int       `db:"value" json:"value"`
}

// ParticipationStats summarises participation over a window.
type ParticipationStats struct {
	Count   int     `db:"count" json:"count"`
	Average float64 `db:"average" json:"average"`
}

// Mean returns the window average, 0 when nothing was recorded.
func (s ParticipationStats) Mean() float64 {
	if s.Count <= 0 {
		return 0
	}
	return s.Average
}
