package service

import (
	"math"

	"github.com/Oerlinker/BackendAISi2/internal/models"
)

// Heuristic weights.
const (
	heuristicAttendanceWeight    = 0.25
	heuristicParticipationPoints = 15.0
	heuristicGradeWeight         = 0.6
	heuristicTrendLimit          = 5.0
)

// PredictHeuristic forecasts a total from a weighted sum of attendance,
// participation and the latest grade, adjusted by the last grade-to-grade
// change. history is ordered latest first. The result is always in [0,100].
func PredictHeuristic(features models.FeatureVector, history []models.Grade) float64 {
	participation := features.ParticipationAvg
	if participation > 10 {
		participation = 10
	}
	if participation < 0 {
		participation = 0
	}
	value := heuristicAttendanceWeight*features.AttendancePct +
		heuristicParticipationPoints*participation/10 +
		heuristicGradeWeight*features.GradeTotal() +
		gradeTrend(history)
	return clampScore(value)
}

func gradeTrend(history []models.Grade) float64 {
	if len(history) < 2 {
		return 0
	}
	delta := history[0].Total() - history[1].Total()
	if delta > heuristicTrendLimit {
		return heuristicTrendLimit
	}
	if delta < -heuristicTrendLimit {
		return -heuristicTrendLimit
	}
	return delta
}

func clampScore(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
