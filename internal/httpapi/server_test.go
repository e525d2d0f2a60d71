package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/fundrank/internal/provider"
)

func opsServer(accounts ...provider.AccountConfig) *Server {
	pool := provider.NewPool(provider.DefaultPoolConfig(), accounts, zerolog.Nop())
	return New(pool, prometheus.NewRegistry(), zerolog.Nop())
}

func TestHealth_OK(t *testing.T) {
	srv := opsServer(provider.AccountConfig{
		Provider: "fincore", Credential: "k1", MinuteQuota: 30, DayQuota: 2500,
	})

	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body healthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	require.Len(t, body.Accounts, 1)
	assert.Equal(t, provider.HealthHealthy, body.Accounts[0].Health)
	assert.Equal(t, 30, body.Accounts[0].MinuteQuota)
}

func TestHealth_DegradedWhenProviderHasNoUsableAccount(t *testing.T) {
	pool := provider.NewPool(provider.DefaultPoolConfig(), []provider.AccountConfig{
		{Provider: "fincore", Credential: "k1", MinuteQuota: 30, DayQuota: 2500, RPS: 1000, Burst: 1000},
	}, zerolog.Nop())
	srv := New(pool, prometheus.NewRegistry(), zerolog.Nop())

	lease, err := pool.Acquire("fincore")
	require.NoError(t, err)
	pool.Release(lease, provider.OutcomeAuthError)

	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body healthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := opsServer()

	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	srv := opsServer()

	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
