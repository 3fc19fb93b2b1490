// Package regression fits linear models used for grade forecasting.
package regression

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrNoSamples is returned when Fit receives an empty design matrix.
var ErrNoSamples = errors.New("regression: no samples")

// ErrShape is returned when rows and targets disagree in size.
var ErrShape = errors.New("regression: inconsistent sample shape")

// Model is a fitted linear model over standardized inputs. It is safe to
// marshal as JSON and reload later.
type Model struct {
	Features     []string  `json:"features"`
	Means        []float64 `json:"means"`
	Scales       []float64 `json:"scales"`
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
	Lambda       float64   `json:"lambda"`
	Samples      int       `json:"samples"`
	RSquared     float64   `json:"r_squared"`
}

// Ridge fits ordinary least squares with an L2 penalty on every coefficient
// except the intercept.
type Ridge struct {
	Lambda float64
}

// Fit estimates coefficients by solving (XᵀX + λI)β = Xᵀy on standardized columns.
func (r Ridge) Fit(features []string, rows [][]float64, targets []float64) (*Model, error) {
	n := len(rows)
	if n == 0 {
		return nil, ErrNoSamples
	}
	if len(targets) != n {
		return nil, fmt.Errorf("%w: %d rows, %d targets", ErrShape, n, len(targets))
	}
	p := len(features)
	for i, row := range rows {
		if len(row) != p {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrShape, i, len(row), p)
		}
	}

	means := make([]float64, p)
	scales := make([]float64, p)
	column := make([]float64, n)
	for j := 0; j < p; j++ {
		for i := range rows {
			column[i] = rows[i][j]
		}
		mean, std := stat.MeanStdDev(column, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		means[j], scales[j] = mean, std
	}

	x := mat.NewDense(n, p+1, nil)
	for i, row := range rows {
		x.Set(i, 0, 1)
		for j, value := range row {
			x.Set(i, j+1, (value-means[j])/scales[j])
		}
	}
	y := mat.NewVecDense(n, append([]float64(nil), targets...))

	var gram mat.Dense
	gram.Mul(x.T(), x)
	for j := 1; j <= p; j++ {
		gram.Set(j, j, gram.At(j, j)+r.Lambda)
	}
	var moment mat.VecDense
	moment.MulVec(x.T(), y)

	var beta mat.VecDense
	if err := beta.SolveVec(&gram, &moment); err != nil {
		return nil, fmt.Errorf("regression: solve normal equations: %w", err)
	}

	model := &Model{
		Features:     append([]string(nil), features...),
		Means:        means,
		Scales:       scales,
		Coefficients: make([]float64, p),
		Intercept:    beta.AtVec(0),
		Lambda:       r.Lambda,
		Samples:      n,
	}
	for j := 0; j < p; j++ {
		model.Coefficients[j] = beta.AtVec(j + 1)
	}

	predicted := make([]float64, n)
	for i, row := range rows {
		predicted[i], _ = model.Predict(row)
	}
	model.RSquared = stat.RSquaredFrom(predicted, targets, nil)
	return model, nil
}

// Predict evaluates the model on a raw, unstandardized row.
func (m *Model) Predict(row []float64) (float64, error) {
	if m == nil {
		return 0, errors.New("regression: nil model")
	}
	if len(row) != len(m.Coefficients) || len(m.Means) != len(m.Coefficients) || len(m.Scales) != len(m.Coefficients) {
		return 0, fmt.Errorf("%w: got %d values, model expects %d", ErrShape, len(row), len(m.Coefficients))
	}
	value := m.Intercept
	for j, raw := range row {
		scale := m.Scales[j]
		if scale == 0 {
			scale = 1
		}
		value += m.Coefficients[j] * (raw - m.Means[j]) / scale
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, errors.New("regression: non-finite prediction")
	}
	return value, nil
}
