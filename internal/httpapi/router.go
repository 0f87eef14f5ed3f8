// Package httpapi serves the worker's read-only status endpoints.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"televid/internal/httpapi/handlers"
	"televid/internal/pkg/logger"
	"televid/internal/pkg/middleware"
	"televid/internal/ports"
)

type Deps struct {
	RDB     *redis.Client
	SP      ports.StorageProvider
	State   handlers.StateSource
	Log     *logger.Logger
	Service string
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("httpapi")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))

	h := handlers.New(handlers.Deps{
		RDB:     d.RDB,
		SP:      d.SP,
		State:   d.State,
		Log:     log,
		Service: d.Service,
	})

	r.Get("/health", h.Health)
	r.Get("/status", h.Status)

	return r
}
