package worker

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"televid/internal/config"
	"televid/internal/pkg/errors"
	"televid/internal/pkg/logger"
	"televid/internal/ports"
	"televid/internal/storage"
	"televid/internal/worker/caption"
	"televid/internal/worker/composition"
	"televid/internal/worker/deploy"
	"televid/internal/worker/encoder"
	"televid/internal/worker/media"
	"televid/internal/worker/processor"
	"televid/internal/worker/queue"
)

// JobProcessor runs one raw payload to completion.
type JobProcessor interface {
	ProcessJob(ctx context.Context, payload string) error
}

type Deps struct {
	Worker      config.Worker
	StopTimeout time.Duration
	Queue       queue.Queue
	Processor   JobProcessor
	Stopper     deploy.Stopper
	State       *State
	Log         *logger.Logger

	// RDB and Storage are nil when not configured. They are exposed for the
	// status server's deep health check.
	RDB     *redis.Client
	Storage ports.StorageProvider
}

// Close releases clients opened by NewDeps.
func (d Deps) Close() error {
	if d.RDB != nil {
		return d.RDB.Close()
	}
	return nil
}

// NewDeps wires the production collaborators described by cfg.
func NewDeps(ctx context.Context, cfg config.Config, log *logger.Logger) (Deps, error) {
	if log == nil {
		log = logger.NewDefault()
	}
	hc := &http.Client{}

	var rdb *redis.Client
	if cfg.Queue.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Queue.RedisAddr})
	}

	q, err := queue.New(cfg.Queue, rdb, hc)
	if err != nil {
		return Deps{}, err
	}

	sp, err := storage.NewProvider(ctx, cfg.Storage)
	if err != nil {
		return Deps{}, err
	}

	captions, err := caption.New(cfg.Caption)
	if err != nil {
		return Deps{}, errors.Wrap(err, "worker.deps", "caption renderer")
	}

	ff := encoder.NewFFmpeg(cfg.Encoder, log)

	var archive ports.StorageProvider
	if cfg.Storage.ArchiveOutputs {
		archive = sp
	}

	proc := processor.New(processor.Deps{
		WorkDir:   cfg.WorkDir,
		Acquirer:  processor.NewInputHandler(cfg.Telegram, cfg.Download, hc, sp),
		Prober:    media.NewProber(ff, cfg.Composition.ImageDuration),
		Captions:  captions,
		Builder:   composition.NewBuilder(cfg.Composition),
		Encoder:   ff,
		Deliverer: processor.NewOutputHandler(cfg.Delivery, hc),
		Archive:   archive,
		Log:       log,
	})

	return Deps{
		Worker:      cfg.Worker,
		StopTimeout: cfg.Deploy.Timeout,
		Queue:       q,
		Processor:   proc,
		Stopper:     deploy.NewStopper(cfg.Deploy, hc, log),
		State:       NewState(cfg.Worker.Mode),
		Log:         log,
		RDB:         rdb,
		Storage:     sp,
	}, nil
}
