package models

import "time"

// Subject represents an academic subject, optionally owned by a teacher.
type Subject struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	TeacherID *string   `db:"teacher_id" json:"teacher_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// SubjectFilter scopes subject listings.
type SubjectFilter struct {
	CourseID  string
	TeacherID string
}
