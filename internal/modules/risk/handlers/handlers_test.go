package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/custodian/internal/config"
	"github.com/aristath/custodian/internal/modules/risk"
)

type stubHistory struct {
	returns []float64
	value   float64
	err     error
}

func (s *stubHistory) ReturnSeries(ctx context.Context, scope string, lookbackDays int) ([]float64, error) {
	return s.returns, s.err
}

func (s *stubHistory) PortfolioValue(ctx context.Context) (float64, error) {
	return s.value, s.err
}

func (s *stubHistory) CashBalance(ctx context.Context, userID int64) (float64, error) {
	return 0, nil
}

func testRouter(t *testing.T, hist *stubHistory) chi.Router {
	t.Helper()
	log := zerolog.Nop()

	varCfg := config.VaRConfig{
		ConfidenceLevel: 0.95,
		TimeHorizonDays: 1,
		Method:          risk.MethodHistorical,
		MaxVaRPercent:   5,
		LookbackDays:    252,
	}
	mcCfg := config.MonteCarloConfig{NumSimulations: 100, TimeHorizonDays: 30, RandomSeed: 7}

	estimator := risk.NewEstimator(nil, mcCfg.RandomSeed, log)
	ks := risk.NewKillSwitch(config.KillSwitchConfig{
		Enabled:                  true,
		MaxDrawdownPercent:       15,
		WarningThresholdPercent:  10,
		CriticalThresholdPercent: 12,
		RecoveryThresholdPercent: 5,
	}, nil, nil, nil, log)
	manager := risk.NewManager(varCfg, estimator, ks, hist, nil, log)

	r := chi.NewRouter()
	NewHandler(estimator, ks, manager, hist, varCfg, mcCfg, log).RegisterRoutes(r)
	return r
}

type multiHorizonResponse struct {
	Data struct {
		Results []struct {
			HorizonDays int     `json:"horizon_days"`
			VaRPercent  float64 `json:"var_percent"`
		} `json:"results"`
		ConfidenceLevel float64 `json:"confidence_level"`
		PortfolioValue  float64 `json:"portfolio_value"`
	} `json:"data"`
}

func TestMultiHorizonVaR_DefaultHorizons(t *testing.T) {
	hist := &stubHistory{
		returns: []float64{-0.02, 0.01, -0.03, 0.02, -0.01, 0.015, -0.025, 0.005},
		value:   100000,
	}
	router := testRouter(t, hist)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/risk/var/multi-horizon", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body multiHorizonResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	require.Len(t, body.Data.Results, 3)
	assert.Equal(t, 0.95, body.Data.ConfidenceLevel)
	assert.Equal(t, 100000.0, body.Data.PortfolioValue)

	// Square-root-of-time scaling: risk grows with the horizon
	for i, res := range body.Data.Results {
		assert.Equal(t, []int{1, 7, 30}[i], res.HorizonDays)
		assert.Greater(t, res.VaRPercent, 0.0)
		if i > 0 {
			assert.Greater(t, res.VaRPercent, body.Data.Results[i-1].VaRPercent)
		}
	}
}

func TestMultiHorizonVaR_CustomHorizons(t *testing.T) {
	hist := &stubHistory{
		returns: []float64{-0.02, 0.01, -0.03, 0.02},
		value:   50000,
	}
	router := testRouter(t, hist)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/risk/var/multi-horizon?horizons=1,5,10&confidence=0.99", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body multiHorizonResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	require.Len(t, body.Data.Results, 3)
	assert.Equal(t, 0.99, body.Data.ConfidenceLevel)
	for i, expected := range []int{1, 5, 10} {
		assert.Equal(t, expected, body.Data.Results[i].HorizonDays)
	}
}

func TestMultiHorizonVaR_RejectsBadParams(t *testing.T) {
	router := testRouter(t, &stubHistory{value: 1000})

	cases := []struct {
		name string
		url  string
	}{
		{"non-numeric horizon", "/risk/var/multi-horizon?horizons=1,soon"},
		{"zero horizon", "/risk/var/multi-horizon?horizons=0"},
		{"negative horizon", "/risk/var/multi-horizon?horizons=7,-1"},
		{"confidence out of range", "/risk/var/multi-horizon?confidence=1.5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.url, nil))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}
