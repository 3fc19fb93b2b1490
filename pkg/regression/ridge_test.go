package regression

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearSamples() ([][]float64, []float64) {
	rows := make([][]float64, 0, 40)
	targets := make([]float64, 0, 40)
	for i := 0; i < 40; i++ {
		a := float64(i % 10)
		b := float64((i * 7) % 13)
		rows = append(rows, []float64{a, b})
		targets = append(targets, 3+2*a-0.5*b)
	}
	return rows, targets
}

func TestRidgeRecoversLinearRelation(t *testing.T) {
	rows, targets := linearSamples()
	model, err := Ridge{Lambda: 0}.Fit([]string{"a", "b"}, rows, targets)
	require.NoError(t, err)

	got, err := model.Predict([]float64{4, 6})
	require.NoError(t, err)
	assert.InDelta(t, 3+8-3, got, 1e-6)
	assert.InDelta(t, 1.0, model.RSquared, 1e-9)
	assert.Equal(t, 40, model.Samples)
}

func TestRidgePenaltyShrinksCoefficients(t *testing.T) {
	rows, targets := linearSamples()
	plain, err := Ridge{}.Fit([]string{"a", "b"}, rows, targets)
	require.NoError(t, err)
	penalized, err := Ridge{Lambda: 100}.Fit([]string{"a", "b"}, rows, targets)
	require.NoError(t, err)

	assert.Less(t, norm(penalized.Coefficients), norm(plain.Coefficients))
}

func TestRidgeConstantColumnDoesNotBreakSolve(t *testing.T) {
	rows := [][]float64{{1, 5}, {2, 5}, {3, 5}, {4, 5}}
	targets := []float64{2, 4, 6, 8}
	model, err := Ridge{Lambda: 0.01}.Fit([]string{"x", "flat"}, rows, targets)
	require.NoError(t, err)
	got, err := model.Predict([]float64{2.5, 5})
	require.NoError(t, err)
	assert.InDelta(t, 5, got, 0.05)
}

func TestRidgeRejectsBadShapes(t *testing.T) {
	_, err := Ridge{}.Fit([]string{"a"}, nil, nil)
	assert.ErrorIs(t, err, ErrNoSamples)

	_, err = Ridge{}.Fit([]string{"a"}, [][]float64{{1}, {2}}, []float64{1})
	assert.ErrorIs(t, err, ErrShape)

	_, err = Ridge{}.Fit([]string{"a", "b"}, [][]float64{{1}}, []float64{1})
	assert.ErrorIs(t, err, ErrShape)
}

func TestModelSurvivesJSONRoundTrip(t *testing.T) {
	rows, targets := linearSamples()
	model, err := Ridge{Lambda: 0.5}.Fit([]string{"a", "b"}, rows, targets)
	require.NoError(t, err)

	raw, err := json.Marshal(model)
	require.NoError(t, err)
	var loaded Model
	require.NoError(t, json.Unmarshal(raw, &loaded))

	want, _ := model.Predict([]float64{7, 2})
	got, err := loaded.Predict([]float64{7, 2})
	require.NoError(t, err)
	assert.InDelta(t, want, got, 1e-9)
}

func norm(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v * v
	}
	return sum
}
