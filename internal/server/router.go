package server

import (
	"net/http"

	"github.com/cloo-solutions/policyqa/internal/api/handlers"
	"github.com/cloo-solutions/policyqa/internal/api/middleware"
	"github.com/go-chi/chi/v5"
)

type RouterConfig struct {
	BearerToken  string
	MaxBodyBytes int64
	RunHandler   *handlers.RunHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	maxBodyBytes := cfg.MaxBodyBytes
	if maxBodyBytes == 0 {
		maxBodyBytes = middleware.DefaultMaxBodyBytes
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", handlers.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.BearerAuth(cfg.BearerToken))

		r.Post("/hackrx/run", cfg.RunHandler.Run)
	})

	return r
}
