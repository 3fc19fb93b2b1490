package models

import "time"

// RiskScanFilter narrows the students and subjects considered by a scan.
type RiskScanFilter struct {
	CourseID   string
	SubjectID  string
	TimeBudget time.Duration
}

// AtRiskSubject is one subject whose forecast is under the risk threshold.
type AtRiskSubject struct {
	SubjectID    string           `json:"subject_id"`
	SubjectName  string           `json:"subject_name"`
	PredictionID string           `json:"prediction_id"`
	Value        float64          `json:"value"`
	Level        PerformanceLevel `json:"level"`
	Confidence   Confidence       `json:"confidence"`
}

// AtRiskStudent groups the at-risk subjects of one student.
type AtRiskStudent struct {
	StudentID   string          `json:"student_id"`
	StudentName string          `json:"student_name"`
	CourseID    string          `json:"course_id,omitempty"`
	Subjects    []AtRiskSubject `json:"subjects"`
}

// RiskScanResult is the outcome of a time-budgeted bulk scan.
type RiskScanResult struct {
	Partial         bool            `json:"partial"`
	Threshold       float64         `json:"threshold"`
	TotalStudents   int             `json:"total_students"`
	ScannedStudents int             `json:"scanned_students"`
	ScannedPairs    int             `json:"scanned_pairs"`
	SkippedPairs    int             `json:"skipped_pairs"`
	Students        []AtRiskStudent `json:"students"`
	ElapsedMs       int64           `json:"elapsed_ms"`
	GeneratedAt     time.Time       `json:"generated_at"`
}
