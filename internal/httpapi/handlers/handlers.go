package handlers

import (
	"github.com/redis/go-redis/v9"

	"televid/internal/pkg/logger"
	"televid/internal/ports"
	"televid/internal/worker"
)

// StateSource is the read side of the worker loop state.
type StateSource interface {
	Snapshot() worker.Snapshot
}

type Deps struct {
	RDB     *redis.Client
	SP      ports.StorageProvider
	State   StateSource
	Log     *logger.Logger
	Service string
}

type Handler struct {
	rdb     *redis.Client
	sp      ports.StorageProvider
	state   StateSource
	log     *logger.Logger
	service string
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Handler{
		rdb:     d.RDB,
		sp:      d.SP,
		state:   d.State,
		log:     log,
		service: d.Service,
	}
}
