package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cloo-solutions/docqa/internal/api/handlers"
	"github.com/cloo-solutions/docqa/internal/api/middleware"
)

type RouterConfig struct {
	// APIKey, when set, is required as a bearer token on every route but /health.
	APIKey string
	// MaxBodyBytes caps document uploads. Query bodies have a fixed, smaller cap.
	MaxBodyBytes    int64
	Logger          *slog.Logger
	DocumentHandler *handlers.DocumentHandler
	QueryHandler    *handlers.QueryHandler
}

const (
	defaultMaxBodyBytes int64 = 20 * 1024 * 1024
	maxQueryBodyBytes   int64 = 64 * 1024
)

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	maxBodyBytes := cfg.MaxBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog(logger))

	r.Get("/health", cfg.QueryHandler.Health)

	r.Group(func(r chi.Router) {
		r.Use(middleware.BearerAuth(cfg.APIKey))

		r.Route("/documents", func(r chi.Router) {
			r.Use(middleware.MaxBodyBytes(maxBodyBytes))
			r.Post("/", cfg.DocumentHandler.Ingest)
			r.Get("/", cfg.DocumentHandler.List)
			r.Get("/{id}", cfg.DocumentHandler.Get)
			r.Post("/{id}/reprocess", cfg.DocumentHandler.Reprocess)
			r.Delete("/{id}", cfg.DocumentHandler.Delete)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.MaxBodyBytes(maxQueryBodyBytes))
			r.Post("/retrieve", cfg.QueryHandler.Retrieve)
			r.Post("/ask", cfg.QueryHandler.Ask)
		})
	})

	return r
}
