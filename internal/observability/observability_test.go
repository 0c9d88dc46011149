package observability_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"BasketLedger/internal/observability"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_IndependentRegistries(t *testing.T) {
	first := observability.NewMetrics(prometheus.NewRegistry())
	second := observability.NewMetrics(prometheus.NewRegistry())

	first.CommandsApplied.WithLabelValues("bundle").Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(first.CommandsApplied.WithLabelValues("bundle")))
	assert.Equal(t, float64(0), testutil.ToFloat64(second.CommandsApplied.WithLabelValues("bundle")))
}

func TestReadiness(t *testing.T) {
	h := observability.NewHealthChecker()

	rec := httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h.SetReady(true)
	rec = httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	h.AddCheck("postgres", func() error { return errors.New("connection refused") })
	rec = httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")

	rec = httptest.NewRecorder()
	h.LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSetup_WithoutFile(t *testing.T) {
	closer := observability.Setup(observability.LogConfig{Level: "debug"})
	require.NoError(t, closer.Close())

	logger := observability.NewLogger("test")
	assert.NotNil(t, logger)
}
