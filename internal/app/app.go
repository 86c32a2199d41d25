package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/joho/godotenv"
	"github.com/valyala/fasthttp"

	"cardstate/internal/retention"
	"cardstate/pkg/config"
	"cardstate/pkg/ingest"
	"cardstate/pkg/logger"
	"cardstate/pkg/store"
)

// App encapsulates the server components and lifecycle: the pebble store,
// the ingest pipeline, the retention scheduler, and both HTTP listeners.
type App struct {
	cfg       *config.Config
	version   string
	commit    string
	buildDate string

	proc      *ingest.Processor
	retCancel context.CancelFunc

	srv     *http.Server
	fastSrv *fasthttp.Server
}

// New initializes resources that do not require a running context (store,
// queue, runtime config). Call Run to start the servers and block until
// shutdown.
func New(cfg *config.Config, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")

	config.SetRuntime(cfg)

	if err := store.Open(cfg.Storage.DBPath); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", cfg.Storage.DBPath, err)
	}

	if qcap := cfg.Ingest.Queue.Capacity; qcap > 0 && qcap != ingest.DefaultQueue.Cap() {
		ingest.SetDefaultQueue(ingest.NewQueue(qcap))
	}
	ingest.SetMaxPooledBuffer(int(cfg.Ingest.Queue.MaxPooledBufferBytes.Int64()))

	a := &App{
		cfg:       cfg,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		proc:      ingest.NewProcessor(ingest.DefaultQueue, cfg.Ingest.Processor.Shards),
	}
	return a, nil
}

// Run starts the ingest pipeline, the retention scheduler and both HTTP
// servers, and blocks until ctx is canceled or a fatal server error occurs.
// Shutdown drains the queue before closing the store so accepted events are
// not lost.
func (a *App) Run(ctx context.Context) error {
	a.proc.Start()

	if err := a.startRetention(ctx); err != nil {
		a.proc.Stop()
		_ = store.Close()
		return err
	}

	a.printBanner()

	errCh := a.startHTTP()
	fastErrCh := a.startMutations()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	case runErr = <-fastErrCh:
	}

	a.shutdown()
	return runErr
}

func (a *App) startRetention(ctx context.Context) error {
	cancel, err := retention.Start(ctx, a.cfg.Retention)
	if err != nil {
		return err
	}
	a.retCancel = cancel
	return nil
}

func (a *App) shutdown() {
	logger.Info("shutdown_started")
	a.stopHTTP()
	if a.retCancel != nil {
		a.retCancel()
	}
	// stop accepting, drain what was already queued
	a.proc.Stop()
	if err := store.Close(); err != nil {
		logger.Error("store_close_failed", "error", err)
	}
	logger.Info("shutdown_complete")
}
