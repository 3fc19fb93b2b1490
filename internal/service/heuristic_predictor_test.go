package service

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Oerlinker/BackendAISi2/internal/models"
)

func gradeWithTotal(c models.GradeComponents) models.Grade {
	return models.Grade{GradeComponents: c}
}

func TestPredictHeuristicScenarios(t *testing.T) {
	features := models.FeatureVector{AttendancePct: 95, ParticipationAvg: 9, Components: strongGrade}
	assert.InDelta(t, 87.65, PredictHeuristic(features, []models.Grade{gradeWithTotal(strongGrade)}), 1e-9)

	features = models.FeatureVector{AttendancePct: 100, ParticipationAvg: 0, Components: strongGrade}
	assert.InDelta(t, 75.4, PredictHeuristic(features, []models.Grade{gradeWithTotal(strongGrade)}), 1e-9)
}

func TestPredictHeuristicTrendIsBounded(t *testing.T) {
	latest := gradeWithTotal(strongGrade)
	previous := gradeWithTotal(weakGrade)
	features := models.FeatureVector{AttendancePct: 100, Components: strongGrade}

	up := PredictHeuristic(features, []models.Grade{latest, previous})
	assert.InDelta(t, 75.4+5, up, 1e-9)

	features.Components = weakGrade
	down := PredictHeuristic(features, []models.Grade{previous, latest})
	assert.InDelta(t, 25+0.6*36-5, down, 1e-9)

	small := gradeWithTotal(models.GradeComponents{Ser: 8, Saber: 30, Hacer: 28, Decidir: 8, AutoSer: 4, AutoDecidir: 4})
	features.Components = strongGrade
	assert.InDelta(t, 75.4+2, PredictHeuristic(features, []models.Grade{latest, small}), 1e-9)
}

func TestPredictHeuristicClampsExtremes(t *testing.T) {
	full := models.GradeComponents{Ser: 10, Saber: 35, Hacer: 35, Decidir: 10, AutoSer: 5, AutoDecidir: 5}
	cases := []models.FeatureVector{
		{AttendancePct: 100, ParticipationAvg: 10, Components: full},
		{AttendancePct: 1e6, ParticipationAvg: 1e6, Components: full},
		{AttendancePct: -1e6, ParticipationAvg: -50},
		{AttendancePct: math.NaN()},
		{AttendancePct: math.Inf(1)},
		{AttendancePct: math.Inf(-1)},
	}
	histories := [][]models.Grade{
		nil,
		{gradeWithTotal(full), gradeWithTotal(models.GradeComponents{})},
		{gradeWithTotal(models.GradeComponents{}), gradeWithTotal(full)},
	}
	for _, features := range cases {
		for _, history := range histories {
			value := PredictHeuristic(features, history)
			assert.GreaterOrEqual(t, value, 0.0)
			assert.LessOrEqual(t, value, 100.0)
		}
	}
}
