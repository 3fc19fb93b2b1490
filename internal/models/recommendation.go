package models

import "time"

// RecommendationCategory buckets advice. Declaration order is output order.
type RecommendationCategory string

const (
	CategoryUrgency         RecommendationCategory = "URGENCY"
	CategoryAttendance      RecommendationCategory = "ATTENDANCE"
	CategoryParticipation   RecommendationCategory = "PARTICIPATION"
	CategoryComponents      RecommendationCategory = "COMPONENTS"
	CategoryStudyTechniques RecommendationCategory = "STUDY_TECHNIQUES"
)

// Recommendation is a single piece of advice.
type Recommendation struct {
	Category RecommendationCategory `json:"category"`
	Message  string                 `json:"message"`
}

// RecommendationSet is the advice produced for one prediction.
type RecommendationSet struct {
	PredictionID     string           `json:"prediction_id"`
	StudentID        string           `json:"student_id"`
	SubjectID        string           `json:"subject_id"`
	Value            float64          `json:"value"`
	Level            PerformanceLevel `json:"level"`
	AttendancePct    float64          `json:"attendance_pct"`
	ParticipationAvg float64          `json:"participation_avg"`
	Items            []Recommendation `json:"recommendations"`
	GeneratedAt      time.Time        `json:"generated_at"`
}
