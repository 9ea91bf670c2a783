package risk

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var simReturns = []float64{
	0.012, -0.008, 0.004, -0.021, 0.017, -0.003, 0.009, -0.014,
	0.006, -0.027, 0.011, -0.005, 0.019, -0.009, 0.002, -0.016,
}

func TestRunSimulation_DegenerateInput(t *testing.T) {
	e := newTestEstimator()

	result := e.RunSimulation(nil, 10000, 1000, 30)

	require.Len(t, result.SimulatedValues, 1)
	assert.Equal(t, 10000.0, result.SimulatedValues[0])
	assert.Equal(t, 10000.0, result.BestCase)
	assert.Equal(t, 10000.0, result.WorstCase)
	assert.Zero(t, result.VaR95)
	assert.Zero(t, result.ProbabilityOfLoss)
}

func TestRunSimulation_Statistics(t *testing.T) {
	e := newTestEstimator()

	result := e.RunSimulation(simReturns, 10000, 2000, 30)

	require.Len(t, result.SimulatedValues, 2000)
	assert.GreaterOrEqual(t, result.ProbabilityOfLoss, 0.0)
	assert.LessOrEqual(t, result.ProbabilityOfLoss, 1.0)
	assert.Greater(t, result.StdReturn, 0.0)
	assert.GreaterOrEqual(t, result.BestCase, result.WorstCase)

	// Loss magnitudes are reported positive and ordered by severity
	assert.GreaterOrEqual(t, result.VaR99, result.VaR95)
	assert.GreaterOrEqual(t, result.CVaR95, result.VaR95)
}

func TestRunSimulation_Reproducible(t *testing.T) {
	a := NewEstimator(nil, 11, zerolog.Nop()).RunSimulation(simReturns, 10000, 500, 10)
	b := NewEstimator(nil, 11, zerolog.Nop()).RunSimulation(simReturns, 10000, 500, 10)

	assert.Equal(t, a.MeanReturn, b.MeanReturn)
	assert.Equal(t, a.VaR95, b.VaR95)
	assert.Equal(t, a.SimulatedValues, b.SimulatedValues)
}

func TestCalculateRiskOfRuin(t *testing.T) {
	e := newTestEstimator()

	t.Run("already at target", func(t *testing.T) {
		result := e.CalculateRiskOfRuin(simReturns, 5000, 5000, 100, 30)
		assert.Equal(t, 1.0, result.RiskOfRuin)
		require.NotNil(t, result.ExpectedDaysToRuin)
		assert.Zero(t, *result.ExpectedDaysToRuin)
	})

	t.Run("degenerate history", func(t *testing.T) {
		result := e.CalculateRiskOfRuin([]float64{0.01}, 10000, 5000, 100, 30)
		assert.Zero(t, result.RiskOfRuin)
		assert.Nil(t, result.ExpectedDaysToRuin)
	})

	t.Run("distant target rarely ruins", func(t *testing.T) {
		result := e.CalculateRiskOfRuin(simReturns, 10000, 100, 500, 30)
		assert.Less(t, result.RiskOfRuin, 0.05)
	})

	t.Run("volatile series near target ruins often", func(t *testing.T) {
		volatile := []float64{0.15, -0.2, 0.1, -0.25, 0.18, -0.15, 0.05, -0.3}
		result := e.CalculateRiskOfRuin(volatile, 10000, 9000, 500, 60)
		assert.Greater(t, result.RiskOfRuin, 0.5)
		require.NotNil(t, result.ExpectedDaysToRuin)
		assert.Greater(t, *result.ExpectedDaysToRuin, 0.0)
	})
}
