// Package api serves snapshot history and on-demand scoring over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crm-scoring/internal/model"
	"github.com/sells-group/crm-scoring/internal/store"
)

// Scorer scores one subject on demand.
type Scorer interface {
	Score(ctx context.Context, id string) (*model.ScoreSnapshot, error)
}

// Config holds the HTTP server settings.
type Config struct {
	Port           int
	AllowedOrigins []string
	// ScoreTimeout bounds a POST /subjects/{id}/score request.
	ScoreTimeout time.Duration
}

// Server is the scoring HTTP API.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	cfg     Config
}

// NewServer builds the router. metricsHandler may be nil.
func NewServer(cfg Config, st store.HistoryStore, scorer Scorer, metricsHandler http.Handler) *Server {
	if cfg.ScoreTimeout <= 0 {
		cfg.ScoreTimeout = 60 * time.Second
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	h := NewHandler(st, scorer, cfg.ScoreTimeout)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/subjects/{id}", func(r chi.Router) {
		r.Get("/history", h.History)
		r.Get("/latest", h.Latest)
		r.Post("/score", h.Score)
	})
	r.Get("/risk/{category}", h.Risk)
	r.Get("/alerts", h.Alerts)
	r.Post("/alerts/{id}/resolve", h.ResolveAlert)

	return &Server{router: r, handler: h, cfg: cfg}
}

// Router returns the chi router, for tests.
func (s *Server) Router() http.Handler { return s.router }

// ListenAndServe blocks until the server stops. ctx cancellation triggers a
// graceful shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("api: shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("api: shutdown", zap.Error(err))
		}
	}()

	zap.L().Info("api: starting server", zap.Int("port", s.cfg.Port))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "api: listen")
	}
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
