package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MikeSquared-Agency/verity/internal/ledger"
	"github.com/MikeSquared-Agency/verity/internal/metadata"
	"github.com/MikeSquared-Agency/verity/internal/metrics"
)

// MetadataStore persists rating metadata blobs.
type MetadataStore interface {
	Put(ctx context.Context, b metadata.Blob) (ledger.MetadataRef, error)
	Get(ctx context.Context, ref ledger.MetadataRef) (metadata.Blob, error)
}

type Deps struct {
	Ledger   *ledger.Ledger
	Metadata MetadataStore
	// Metrics is optional; without it /metrics is not served.
	Metrics  *metrics.Metrics
	APIToken string
	Logger   *slog.Logger
	// Ready is optional and backs /ready, e.g. a database ping.
	Ready func(ctx context.Context) error
}

type Server struct {
	router   *chi.Mux
	port     int
	http     *http.Server
	ledger   *ledger.Ledger
	metadata MetadataStore
	ready    func(ctx context.Context) error
	logger   *slog.Logger
}

func NewServer(port int, d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	if d.Metrics != nil {
		router.Use(d.Metrics.Middleware)
	}

	s := &Server{
		router:   router,
		port:     port,
		ledger:   d.Ledger,
		metadata: d.Metadata,
		ready:    d.Ready,
		logger:   d.Logger,
	}

	router.Get("/health", s.health)
	router.Get("/ready", s.readiness)
	if d.Metrics != nil {
		router.Handle("/metrics", d.Metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/verity/status", s.status)

		r.Group(func(r chi.Router) {
			r.Use(BearerAuthMiddleware(d.APIToken))

			r.Get("/accounts/{rater}", s.account)

			r.Route("/models/{slug}", func(r chi.Router) {
				r.Get("/score", s.score)
				r.Get("/stats", s.stats)
				r.Get("/ratings", s.ratings)
				r.Post("/ratings", s.submitRating)
				r.Put("/ratings", s.updateRating)
				r.Get("/ratings/{index}/metadata", s.ratingMetadata)
				r.Post("/ratings/{index}/slash", s.slash)
				r.Post("/ratings/{index}/refund", s.claimRefund)
				r.Post("/refunds/mark", s.markRefundable)
				r.Get("/refunds/pending", s.pendingRefunds)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Post("/pause", s.pause)
				r.Post("/unpause", s.unpause)
				r.Put("/max-stake", s.updateMaxStake)
			})
		})
	})

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("API server starting", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"agent":     "verity",
		"paused":    s.ledger.Paused(),
		"max_stake": s.ledger.MaxStake(),
		"entities":  len(s.ledger.Entities()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
