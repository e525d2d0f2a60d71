// Package httpapi serves the operational endpoints: health with account
// pool state, and prometheus metrics.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/quantfold/fundrank/internal/provider"
)

// Server exposes /health and /metrics for batch runs that want scraping.
type Server struct {
	pool *provider.Pool
	reg  *prometheus.Registry
	log  zerolog.Logger
}

// New builds the ops server.
func New(pool *provider.Pool, reg *prometheus.Registry, log zerolog.Logger) *Server {
	return &Server{pool: pool, reg: reg, log: log.With().Str("component", "httpapi").Logger()}
}

// Router returns the configured mux router.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return r
}

// ListenAndServe blocks serving the ops endpoints.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.log.Info().Str("addr", addr).Msg("ops endpoints listening")
	return srv.ListenAndServe()
}

type healthResponse struct {
	Status   string                     `json:"status"`
	Accounts []provider.AccountSnapshot `json:"accounts"`
	Time     time.Time                  `json:"time"`
}

// handleHealth reports overall status plus per-account quota state. The
// service is degraded when every account of some provider is out.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	accounts := s.pool.Snapshot()

	usableByProvider := make(map[string]bool)
	for _, a := range accounts {
		if a.Health == provider.HealthHealthy {
			usableByProvider[a.Provider] = true
		} else if _, ok := usableByProvider[a.Provider]; !ok {
			usableByProvider[a.Provider] = false
		}
	}
	status := "ok"
	for _, usable := range usableByProvider {
		if !usable {
			status = "degraded"
			break
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(healthResponse{
		Status:   status,
		Accounts: accounts,
		Time:     time.Now().UTC(),
	}); err != nil {
		s.log.Warn().Err(err).Msg("writing health response failed")
	}
}
