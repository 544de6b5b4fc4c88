// Package server exposes a small read-only HTTP API over the fact base:
// run history, coverage, rankings, and market summaries.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/uzstroy/marketintel/internal/analysis"
	"github.com/uzstroy/marketintel/internal/config"
	"github.com/uzstroy/marketintel/internal/db"
	"github.com/uzstroy/marketintel/internal/runlog"
)

// Server serves the status API.
type Server struct {
	pool     db.Pool
	analyzer *analysis.Analyzer
	ledger   *runlog.Ledger
	cfg      config.ServerConfig
}

// New wires a Server from its collaborators.
func New(pool db.Pool, cfg config.ServerConfig) *Server {
	return &Server{
		pool:     pool,
		analyzer: analysis.NewAnalyzer(pool),
		ledger:   runlog.NewLedger(pool),
		cfg:      cfg,
	}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/runs", s.handleRuns)
		r.Get("/overview", s.handleOverview)
		r.Get("/regions", s.handleRegions)
		r.Get("/contractors", s.handleContractors)
		r.Get("/companies/{stir}", s.handleCompany)
	})
	return r
}

// ListenAndServe runs the server until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("status api listening", zap.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return eris.Wrap(err, "server: shutdown")
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server: listen")
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.pool.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	runs, err := s.ledger.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := s.analyzer.Overview(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	slices, err := s.analyzer.ByRegion(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, slices)
}

func (s *Server) handleContractors(w http.ResponseWriter, r *http.Request) {
	filter := analysis.RankingFilter{
		Region:     r.URL.Query().Get("region"),
		NameSearch: r.URL.Query().Get("q"),
		MinWins:    queryInt(r, "min_wins", 0),
		Limit:      queryInt(r, "limit", 50),
	}
	contractors, err := s.analyzer.TopContractors(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, contractors)
}

func (s *Server) handleCompany(w http.ResponseWriter, r *http.Request) {
	stir := chi.URLParam(r, "stir")
	profile, err := s.analyzer.Profile(r.Context(), stir)
	if err != nil {
		if eris.Is(err, analysis.ErrCompanyNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "company not found"})
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	zap.L().Error("server: request failed", zap.Error(err))
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
