package risk

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEstimator() *Estimator {
	return NewEstimator(nil, 42, zerolog.Nop())
}

func TestCalculateVaR_DegenerateInput(t *testing.T) {
	e := newTestEstimator()

	tests := []struct {
		name    string
		returns []float64
	}{
		{"empty series", []float64{}},
		{"nil series", nil},
		{"single return", []float64{0.01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, method := range []string{MethodHistorical, MethodParametric, MethodMonteCarlo} {
				result := e.CalculateVaR(tt.returns, 10000, 0.95, 1, method)
				assert.Zero(t, result.VaRPercent, "method %s", method)
				assert.Zero(t, result.VaRAbsolute, "method %s", method)
				assert.Zero(t, result.CVaRPercent, "method %s", method)
				assert.Equal(t, method, result.Method)
				assert.Equal(t, 10000.0, result.PortfolioValue)
			}
		})
	}
}

func TestCalculateVaR_Historical(t *testing.T) {
	e := newTestEstimator()

	// 20 returns, worst being -5%. At 95% confidence the 5th percentile
	// sits near the worst observations.
	returns := []float64{
		0.01, 0.02, -0.01, 0.005, -0.02, 0.015, -0.005, 0.01, -0.03, 0.02,
		0.005, -0.015, 0.01, -0.01, 0.025, -0.05, 0.01, 0.005, -0.02, 0.015,
	}

	result := e.CalculateVaR(returns, 100000, 0.95, 1, MethodHistorical)

	require.Greater(t, result.VaRPercent, 0.0)
	assert.Less(t, result.VaRPercent, 5.1)
	assert.InDelta(t, result.VaRAbsolute, 100000*result.VaRPercent/100, 1e-6)
	assert.GreaterOrEqual(t, result.CVaRPercent, result.VaRPercent)
	assert.Equal(t, MethodHistorical, result.Method)
}

func TestCalculateVaR_HorizonScaling(t *testing.T) {
	e := newTestEstimator()
	returns := []float64{0.01, -0.02, 0.015, -0.01, 0.005, -0.03, 0.02, -0.015}

	oneDay := e.CalculateVaR(returns, 50000, 0.95, 1, MethodHistorical)
	tenDay := e.CalculateVaR(returns, 50000, 0.95, 10, MethodHistorical)

	assert.InDelta(t, oneDay.VaRPercent*math.Sqrt(10), tenDay.VaRPercent, 1e-9)
	assert.InDelta(t, oneDay.CVaRPercent*math.Sqrt(10), tenDay.CVaRPercent, 1e-9)
}

func TestCalculateVaR_ConfidenceMonotonicity(t *testing.T) {
	e := newTestEstimator()
	returns := []float64{
		0.012, -0.008, 0.004, -0.021, 0.017, -0.003, 0.009, -0.014,
		0.006, -0.027, 0.011, -0.005, 0.019, -0.009, 0.002, -0.016,
		0.008, -0.012, 0.014, -0.033, 0.007, -0.002, 0.013, -0.018,
	}

	for _, method := range []string{MethodHistorical, MethodParametric} {
		v95 := e.CalculateVaR(returns, 10000, 0.95, 1, method)
		v99 := e.CalculateVaR(returns, 10000, 0.99, 1, method)
		assert.GreaterOrEqual(t, v99.VaRPercent, v95.VaRPercent, "method %s", method)
	}
}

func TestCalculateVaR_Parametric(t *testing.T) {
	e := newTestEstimator()
	returns := []float64{0.01, -0.01, 0.02, -0.02, 0.015, -0.015, 0.005, -0.005}

	result := e.CalculateVaR(returns, 100000, 0.95, 1, MethodParametric)

	// VaR = |z * sigma|, z(0.95) = 1.65
	sigma := populationStdDev(returns)
	expected := 1.65 * sigma * 100
	assert.InDelta(t, expected, result.VaRPercent, 1e-9)

	// CVaR = VaR * (1 + z^2/2)
	assert.InDelta(t, result.VaRPercent*(1+1.65*1.65/2), result.CVaRPercent, 1e-9)
}

func TestCalculateVaR_MonteCarloReproducible(t *testing.T) {
	returns := []float64{0.01, -0.02, 0.015, -0.01, 0.005, -0.03, 0.02, -0.015}

	a := NewEstimator(nil, 7, zerolog.Nop()).CalculateVaR(returns, 10000, 0.95, 1, MethodMonteCarlo)
	b := NewEstimator(nil, 7, zerolog.Nop()).CalculateVaR(returns, 10000, 0.95, 1, MethodMonteCarlo)

	assert.Equal(t, a.VaRPercent, b.VaRPercent)
	assert.Equal(t, a.CVaRPercent, b.CVaRPercent)
	assert.Greater(t, a.VaRPercent, 0.0)
}

func TestZScore(t *testing.T) {
	tests := []struct {
		confidence float64
		expected   float64
	}{
		{0.90, 1.28},
		{0.95, 1.65},
		{0.975, 1.96},
		{0.99, 2.33},
		{0.995, 2.58},
		{0.80, 1.28},  // clamps below the table
		{0.999, 2.58}, // clamps above the table
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.expected, zScore(tt.confidence), 1e-9, "confidence %v", tt.confidence)
	}

	// Linear interpolation between 0.95 and 0.975
	mid := zScore(0.9625)
	assert.Greater(t, mid, 1.65)
	assert.Less(t, mid, 1.96)
}

func TestCalculateMultiHorizonVaR(t *testing.T) {
	e := newTestEstimator()
	returns := []float64{0.01, -0.02, 0.015, -0.01, 0.005, -0.03, 0.02, -0.015}

	results := e.CalculateMultiHorizonVaR(returns, 10000, 0.95, []int{1, 5, 10})

	require.Len(t, results, 3)
	assert.Equal(t, 1, results[0].HorizonDays)
	assert.Equal(t, 5, results[1].HorizonDays)
	assert.Equal(t, 10, results[2].HorizonDays)

	// Longer horizons carry more risk
	assert.Less(t, results[0].VaRPercent, results[1].VaRPercent)
	assert.Less(t, results[1].VaRPercent, results[2].VaRPercent)
}

func populationStdDev(data []float64) float64 {
	var mean float64
	for _, v := range data {
		mean += v
	}
	mean /= float64(len(data))

	var sum float64
	for _, v := range data {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(data)))
}
