// Package server exposes coordinator status and the gather/normalize
// operations over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/intel-cli/internal/coordinator"
	"github.com/sells-group/intel-cli/internal/intel"
	"github.com/sells-group/intel-cli/internal/model"
	"github.com/sells-group/intel-cli/internal/normalize"
	"github.com/sells-group/intel-cli/internal/provider"
)

const maxBodyBytes = 4 << 20

// Options configures a Server.
type Options struct {
	Port        int
	CORSOrigins []string
}

// Server serves the status and intel routes. Gatherer and Registry may be
// nil, in which case their routes answer 503.
type Server struct {
	coord      *coordinator.Coordinator
	gatherer   *intel.Gatherer
	registry   *provider.Registry
	normalizer *normalize.Normalizer
	opts       Options
}

// New creates a Server.
func New(coord *coordinator.Coordinator, gatherer *intel.Gatherer, registry *provider.Registry, normalizer *normalize.Normalizer, opts Options) *Server {
	if normalizer == nil {
		normalizer = normalize.New()
	}
	return &Server{
		coord:      coord,
		gatherer:   gatherer,
		registry:   registry,
		normalizer: normalizer,
		opts:       opts,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins: s.opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         300,
		}),
	)

	r.Get("/health", s.handleHealth)

	r.Route("/status", func(r chi.Router) {
		r.Get("/budgets", s.handleBudgets)
		r.Get("/ratelimits", s.handleRateLimits)
		r.Get("/breakers", s.handleBreakers)
		r.Post("/reset", s.handleReset)
	})

	r.Get("/providers", s.handleProviders)

	r.Route("/intel", func(r chi.Router) {
		r.Post("/gather", s.handleGather)
		r.Post("/normalize", s.handleNormalize)
	})

	return r
}

// Serve listens on the configured port until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.opts.Port),
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", s.opts.Port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBudgets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.BudgetStatus())
}

func (s *Server) handleRateLimits(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.RateLimitStatus())
}

func (s *Server) handleBreakers(w http.ResponseWriter, _ *http.Request) {
	states := s.coord.BreakerStatus()
	if states == nil {
		states = map[string]string{}
	}
	writeJSON(w, http.StatusOK, states)
}

// handleReset clears budgets, rate limits or both, selected by ?target=.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("target")
	switch target {
	case "budgets":
		s.coord.ResetBudgets()
	case "ratelimits":
		s.coord.ResetRateLimits()
	case "", "all":
		target = "all"
		s.coord.ResetBudgets()
		s.coord.ResetRateLimits()
	default:
		writeError(w, http.StatusBadRequest, "target must be budgets, ratelimits or all")
		return
	}
	zap.L().Info("status reset", zap.String("target", target))
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset", "target": target})
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		writeError(w, http.StatusServiceUnavailable, "no providers registered")
		return
	}
	writeJSON(w, http.StatusOK, s.registry.Healthcheck(r.Context()))
}

func (s *Server) handleGather(w http.ResponseWriter, r *http.Request) {
	if s.gatherer == nil {
		writeError(w, http.StatusServiceUnavailable, "gathering is not configured")
		return
	}

	var req provider.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := s.gatherer.Gather(r.Context(), req)
	switch {
	case errors.Is(err, intel.ErrNoProviders):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil && res == nil:
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

// handleNormalize maps posted datums; ?merge=true also runs the merge pass.
func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	var data []model.IntelDatum
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&data); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	out := s.normalizer.NormalizeResults(data)
	if r.URL.Query().Get("merge") == "true" {
		out = normalize.MergeEntityResults(out)
	}
	writeJSON(w, http.StatusOK, out)
}
