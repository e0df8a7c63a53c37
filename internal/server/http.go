// Package server exposes the read-only HTTP/JSON API: price history,
// position lookups, raw event pages and the integrity check, plus the
// operational endpoints (metrics, health probes).
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"PerpVenue/internal/observability"
	"PerpVenue/internal/query"
)

type HTTPServer struct {
	addr    string
	queries *query.Service
	health  *observability.HealthChecker
	log     zerolog.Logger
	server  *http.Server
}

func NewHTTPServer(addr string, queries *query.Service, health *observability.HealthChecker, log zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		addr:    addr,
		queries: queries,
		health:  health,
		log:     log,
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.LivenessHandler)
	mux.HandleFunc("/readyz", health.ReadinessHandler)
	mux.HandleFunc("/v1/prices/", s.handlePrices)
	mux.HandleFunc("/v1/positions", s.handlePositions)
	mux.HandleFunc("/v1/events", s.handleEvents)
	mux.HandleFunc("/v1/integrity", s.handleIntegrity)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled.
func (s *HTTPServer) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutCtx)
	}()

	s.log.Info().Str("addr", s.addr).Msg("http server listening")
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// GET /v1/prices/{pair}?limit=N
func (s *HTTPServer) handlePrices(w http.ResponseWriter, r *http.Request) {
	pair := strings.TrimPrefix(r.URL.Path, "/v1/prices/")
	if pair == "" {
		writeError(w, http.StatusBadRequest, "pair is required")
		return
	}

	points, err := s.queries.RecentPrices(r.Context(), pair, intParam(r, "limit", 100))
	if err != nil {
		s.log.Error().Err(err).Str("pair", pair).Msg("price query failed")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, map[string]interface{}{"prices": points})
}

// GET /v1/positions?trader={uuid}&include_closed=true
func (s *HTTPServer) handlePositions(w http.ResponseWriter, r *http.Request) {
	trader, err := uuid.Parse(r.URL.Query().Get("trader"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "trader must be a uuid")
		return
	}
	includeClosed := r.URL.Query().Get("include_closed") == "true"

	records, err := s.queries.Positions(r.Context(), trader, includeClosed)
	if err != nil {
		s.log.Error().Err(err).Str("trader", trader.String()).Msg("position query failed")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, map[string]interface{}{"positions": records})
}

// GET /v1/events?after={sequence}&limit=N
func (s *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	after := int64(intParam(r, "after", -1))
	records, err := s.queries.Events(r.Context(), after, intParam(r, "limit", 100))
	if err != nil {
		s.log.Error().Err(err).Msg("event query failed")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, map[string]interface{}{"events": records})
}

// GET /v1/integrity
func (s *HTTPServer) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := s.queries.VerifyIntegrity(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("integrity check failed")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, report)
}

func intParam(r *http.Request, name string, defaultVal int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
