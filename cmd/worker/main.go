package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"televid/internal/config"
	"televid/internal/httpapi"
	"televid/internal/pkg/logger"
	"televid/internal/pkg/shutdown"
	"televid/internal/worker"
)

func main() {
	// A missing .env is normal in deployed containers.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault().LogFatal("invalid configuration", err)
	}

	log := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		AddSource:   cfg.Log.AddSource,
		ServiceName: cfg.Log.Service,
	})

	log.Info("starting televid worker",
		"mode", cfg.Worker.Mode,
		"queue_transport", cfg.Queue.Transport,
		"fade_style", cfg.Composition.FadeStyle,
		"storage_provider", cfg.Storage.Provider,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMgr := shutdown.NewManager(log, 30*time.Second)
	// Runs last: signals stay captured until the other handlers finish.
	shutdownMgr.RegisterSimple("signals", stop)

	deps, err := worker.NewDeps(ctx, cfg, log)
	if err != nil {
		log.LogFatal("failed to build worker dependencies", err)
	}
	shutdownMgr.Register("clients", func(ctx context.Context) error {
		return deps.Close()
	})

	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		log.LogFatal("failed to create work directory", err, "work_dir", cfg.WorkDir)
	}

	if cfg.Status.Addr != "" {
		server := &http.Server{
			Addr: cfg.Status.Addr,
			Handler: httpapi.NewRouter(httpapi.Deps{
				RDB:     deps.RDB,
				SP:      deps.Storage,
				State:   deps.State,
				Log:     log,
				Service: cfg.Log.Service,
			}),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		shutdownMgr.Register("status-server", func(ctx context.Context) error {
			return server.Shutdown(ctx)
		})

		go func() {
			log.Info("status server listening", "addr", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("status server failed", "error", err.Error())
			}
		}()
	}

	runErr := worker.Run(ctx, deps)
	shutdownMgr.Shutdown()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.LogFatal("worker exited with error", runErr)
	}
	log.Info("worker exited")
}
