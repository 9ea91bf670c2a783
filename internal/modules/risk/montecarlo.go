package risk

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/aristath/custodian/pkg/formulas"
)

// RunSimulation projects the portfolio forward by compounding i.i.d. normal
// daily returns fitted to the historical series. Fewer than 2 historical
// returns yields a zero-risk result anchored at the initial value.
func (e *Estimator) RunSimulation(returns []float64, initialValue float64, numSimulations, horizonDays int) MonteCarloResult {
	if numSimulations < 1 {
		numSimulations = 1
	}
	if horizonDays < 1 {
		horizonDays = 1
	}
	if len(returns) < 2 {
		return MonteCarloResult{
			SimulatedValues: []float64{initialValue},
			BestCase:        initialValue,
			WorstCase:       initialValue,
		}
	}

	dist := distuv.Normal{
		Mu:    formulas.Mean(returns),
		Sigma: formulas.StdDev(returns),
		Src:   rand.NewPCG(e.seed, e.seed),
	}

	cumReturns := make([]float64, numSimulations)
	values := make([]float64, numSimulations)
	for i := 0; i < numSimulations; i++ {
		compound := 1.0
		for d := 0; d < horizonDays; d++ {
			compound *= 1 + dist.Rand()
		}
		cumReturns[i] = compound - 1
		values[i] = initialValue * compound
	}

	losses := 0
	var lossSum float64
	for _, r := range cumReturns {
		if r < 0 {
			losses++
			lossSum += r
		}
	}

	result := MonteCarloResult{
		SimulatedValues:   values,
		MeanReturn:        formulas.Mean(cumReturns),
		StdReturn:         formulas.StdDev(cumReturns),
		MedianReturn:      formulas.Percentile(cumReturns, 50),
		ProbabilityOfLoss: float64(losses) / float64(numSimulations),
		BestCase:          formulas.Percentile(values, 95),
		WorstCase:         formulas.Percentile(values, 5),
	}

	// Tail losses are reported as positive magnitudes.
	if p5 := formulas.Percentile(cumReturns, 5); p5 < 0 {
		result.VaR95 = -p5
	}
	if p1 := formulas.Percentile(cumReturns, 1); p1 < 0 {
		result.VaR99 = -p1
	}
	if tail := formulas.TailMean(cumReturns, 0.05); tail < 0 {
		result.CVaR95 = -tail
	}
	if losses > 0 {
		result.ExpectedShortfall = math.Abs(lossSum / float64(losses))
	}
	return result
}

// CalculateRiskOfRuin estimates the probability that the portfolio falls to
// or below targetValue within horizonDays, compounding day by day per trial.
// ExpectedDaysToRuin is the mean days-to-ruin across ruined trials, nil when
// no trial was ruined.
func (e *Estimator) CalculateRiskOfRuin(returns []float64, initialValue, targetValue float64, numSimulations, horizonDays int) RuinResult {
	if numSimulations < 1 {
		numSimulations = 1
	}
	if horizonDays < 1 {
		horizonDays = 1
	}
	if len(returns) < 2 || initialValue <= targetValue {
		if initialValue <= targetValue {
			zero := 0.0
			return RuinResult{RiskOfRuin: 1, ExpectedDaysToRuin: &zero}
		}
		return RuinResult{}
	}

	dist := distuv.Normal{
		Mu:    formulas.Mean(returns),
		Sigma: formulas.StdDev(returns),
		Src:   rand.NewPCG(e.seed, e.seed),
	}

	ruined := 0
	var daysSum float64
	for i := 0; i < numSimulations; i++ {
		value := initialValue
		for d := 1; d <= horizonDays; d++ {
			value *= 1 + dist.Rand()
			if value <= targetValue {
				ruined++
				daysSum += float64(d)
				break
			}
		}
	}

	result := RuinResult{RiskOfRuin: float64(ruined) / float64(numSimulations)}
	if ruined > 0 {
		mean := daysSum / float64(ruined)
		result.ExpectedDaysToRuin = &mean
	}
	return result
}
