// Package dashboard serves the read-only monitoring surface: a JSON API
// over recent opportunities and ticks, process health and prometheus
// metrics, plus a terminal summary view.
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/arbiscan/arbiscan/internal/domain"
)

// Reader is the slice of the store the dashboard queries.
type Reader interface {
	Ping(ctx context.Context) error
	RecentOpportunities(ctx context.Context, since time.Time, limit int) ([]domain.Opportunity, error)
	LatestPerExchange(ctx context.Context, symbol string, since time.Time) ([]domain.Quote, error)
	ListActivePairs(ctx context.Context) ([]domain.CurrencyPair, error)
}

// Server is the HTTP read surface.
type Server struct {
	reader Reader
	window time.Duration
}

func NewServer(reader Reader) *Server {
	return &Server{reader: reader, window: 5 * time.Minute}
}

// Router wires all routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/api/opportunities", s.handleOpportunities).Methods(http.MethodGet)
	r.HandleFunc("/api/pairs", s.handlePairs).Methods(http.MethodGet)
	r.HandleFunc("/api/ticks/{base}/{quote}", s.handleTicks).Methods(http.MethodGet)
	return r
}

// ListenAndServe blocks until the context ends, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("dashboard listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.reader.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded", "error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleOpportunities(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			since = parsed
		}
	}

	opps, err := s.reader.RecentOpportunities(r.Context(), since, 100)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":         len(opps),
		"opportunities": opps,
	})
}

func (s *Server) handlePairs(w http.ResponseWriter, r *http.Request) {
	pairs, err := s.reader.ListActivePairs(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, pairs)
}

func (s *Server) handleTicks(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	symbol := domain.JoinSymbol(vars["base"], vars["quote"])

	quotes, err := s.reader.LatestPerExchange(r.Context(), symbol, time.Now().Add(-s.window))
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"quotes": quotes,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debug().Err(err).Msg("response encode failed")
	}
}
