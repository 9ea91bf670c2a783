package risk

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/aristath/custodian/internal/modules/calculations"
	"github.com/aristath/custodian/pkg/formulas"
)

// zTable maps confidence levels to standard normal z-scores for the
// parametric method. Levels between entries are linearly interpolated.
var zTable = []struct {
	confidence float64
	z          float64
}{
	{0.90, 1.28},
	{0.95, 1.65},
	{0.975, 1.96},
	{0.99, 2.33},
	{0.995, 2.58},
}

// Estimator calculates Value-at-Risk and related tail risk measures.
// Results for expensive methods are cached by input fingerprint.
type Estimator struct {
	cache *calculations.Cache
	seed  uint64
	log   zerolog.Logger
}

// NewEstimator creates a risk estimator. cache may be nil, in which case
// every calculation runs fresh.
func NewEstimator(cache *calculations.Cache, seed uint64, log zerolog.Logger) *Estimator {
	return &Estimator{
		cache: cache,
		seed:  seed,
		log:   log.With().Str("service", "risk_estimator").Logger(),
	}
}

// CalculateVaR computes Value-at-Risk and Conditional VaR for a return
// series using the given method. Fewer than 2 returns yields an all-zero
// result rather than an error so callers degrade to "no measurable risk"
// instead of failing.
func (e *Estimator) CalculateVaR(returns []float64, portfolioValue, confidence float64, horizonDays int, method string) VaRResult {
	result := VaRResult{
		ConfidenceLevel: confidence,
		TimeHorizonDays: horizonDays,
		Method:          method,
		PortfolioValue:  portfolioValue,
		Timestamp:       time.Now().UTC(),
	}
	if len(returns) < 2 {
		e.log.Debug().Int("returns", len(returns)).Msg("Insufficient history for VaR, returning zero result")
		return result
	}
	if horizonDays < 1 {
		horizonDays = 1
		result.TimeHorizonDays = 1
	}

	var varReturn, cvarReturn float64
	switch method {
	case MethodParametric:
		varReturn, cvarReturn = parametricVaR(returns, confidence)
		varReturn, cvarReturn = scaleToHorizon(varReturn, cvarReturn, horizonDays)
	case MethodMonteCarlo:
		// Draws are already parameterized to the horizon, no further scaling.
		varReturn, cvarReturn = e.monteCarloVaR(returns, confidence, horizonDays)
	default:
		varReturn, cvarReturn = historicalVaR(returns, confidence)
		varReturn, cvarReturn = scaleToHorizon(varReturn, cvarReturn, horizonDays)
	}

	result.VaRPercent = varReturn * 100
	result.VaRAbsolute = portfolioValue * varReturn
	result.CVaRPercent = cvarReturn * 100
	result.CVaRAbsolute = portfolioValue * cvarReturn
	return result
}

// CalculateMultiHorizonVaR computes historical VaR across several horizons
// in one pass. Results are cached by the input fingerprint.
func (e *Estimator) CalculateMultiHorizonVaR(returns []float64, portfolioValue, confidence float64, horizons []int) []HorizonVaR {
	key := multiHorizonKey(returns, portfolioValue, confidence, horizons)
	if e.cache != nil {
		var cached []HorizonVaR
		if e.cache.Get("var_multi_horizon", key, &cached) {
			return cached
		}
	}

	results := make([]HorizonVaR, 0, len(horizons))
	for _, h := range horizons {
		r := e.CalculateVaR(returns, portfolioValue, confidence, h, MethodHistorical)
		results = append(results, HorizonVaR{
			HorizonDays:  h,
			VaRAbsolute:  r.VaRAbsolute,
			VaRPercent:   r.VaRPercent,
			CVaRAbsolute: r.CVaRAbsolute,
			CVaRPercent:  r.CVaRPercent,
		})
	}

	if e.cache != nil {
		if err := e.cache.Set("var_multi_horizon", key, results, calculations.TTLVaR); err != nil {
			e.log.Warn().Err(err).Msg("Failed to cache multi-horizon VaR")
		}
	}
	return results
}

// historicalVaR returns the single-day (VaR, CVaR) loss fractions from the
// empirical return distribution. Both are non-negative; a tail percentile
// above zero means no loss at that confidence and yields zero.
func historicalVaR(returns []float64, confidence float64) (float64, float64) {
	tailPct := (1 - confidence) * 100
	p := formulas.Percentile(returns, tailPct)

	var varReturn float64
	if p < 0 {
		varReturn = -p
	}

	var cvarReturn float64
	if tail := formulas.TailMean(returns, 1-confidence); tail < 0 {
		cvarReturn = -tail
	}
	// CVaR is the mean beyond VaR and can never be smaller.
	if cvarReturn < varReturn {
		cvarReturn = varReturn
	}
	return varReturn, cvarReturn
}

// parametricVaR assumes normally distributed returns. CVaR uses the
// standard approximation CVaR = VaR * (1 + z^2/2).
func parametricVaR(returns []float64, confidence float64) (float64, float64) {
	sigma := formulas.StdDev(returns)
	z := zScore(confidence)
	varReturn := math.Abs(z * sigma)
	cvarReturn := varReturn * (1 + z*z/2)
	return varReturn, cvarReturn
}

// monteCarloVaR resamples 10,000 horizon returns from a normal distribution
// fitted to the observed daily series, then applies the historical estimator
// to the simulated distribution. The generator is seeded so results reproduce.
func (e *Estimator) monteCarloVaR(returns []float64, confidence float64, horizonDays int) (float64, float64) {
	const draws = 10000

	h := float64(horizonDays)
	dist := distuv.Normal{
		Mu:    formulas.Mean(returns) * h,
		Sigma: formulas.StdDev(returns) * math.Sqrt(h),
		Src:   rand.NewPCG(e.seed, e.seed),
	}
	if dist.Sigma <= 0 {
		v, c := historicalVaR(returns, confidence)
		return scaleToHorizon(v, c, horizonDays)
	}

	simulated := make([]float64, draws)
	for i := range simulated {
		simulated[i] = dist.Rand()
	}
	return historicalVaR(simulated, confidence)
}

// scaleToHorizon scales single-day loss fractions by the square root of time
func scaleToHorizon(varReturn, cvarReturn float64, horizonDays int) (float64, float64) {
	scale := math.Sqrt(float64(horizonDays))
	return varReturn * scale, cvarReturn * scale
}

// zScore interpolates the z-table for the given confidence level.
// Levels outside the table clamp to the nearest entry.
func zScore(confidence float64) float64 {
	if confidence <= zTable[0].confidence {
		return zTable[0].z
	}
	last := zTable[len(zTable)-1]
	if confidence >= last.confidence {
		return last.z
	}
	for i := 1; i < len(zTable); i++ {
		if confidence <= zTable[i].confidence {
			lo, hi := zTable[i-1], zTable[i]
			frac := (confidence - lo.confidence) / (hi.confidence - lo.confidence)
			return lo.z + frac*(hi.z-lo.z)
		}
	}
	return last.z
}

// multiHorizonKey fingerprints the inputs of a multi-horizon calculation
func multiHorizonKey(returns []float64, portfolioValue, confidence float64, horizons []int) string {
	h := sha256.New()
	buf := make([]byte, 8)
	for _, r := range returns {
		binary.LittleEndian.PutUint64(buf, math.Float64bits(r))
		h.Write(buf)
	}
	binary.LittleEndian.PutUint64(buf, math.Float64bits(portfolioValue))
	h.Write(buf)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(confidence))
	h.Write(buf)

	sorted := make([]int, len(horizons))
	copy(sorted, horizons)
	sort.Ints(sorted)
	for _, d := range sorted {
		fmt.Fprintf(h, "%d,", d)
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}
