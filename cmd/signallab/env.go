package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"signal-replay-lab/internal/archive"
	"signal-replay-lab/internal/clock"
	"signal-replay-lab/internal/config"
	"signal-replay-lab/internal/domain"
	"signal-replay-lab/internal/logger"
	"signal-replay-lab/internal/observability"
	"signal-replay-lab/internal/storage"
	chstore "signal-replay-lab/internal/storage/clickhouse"
	"signal-replay-lab/internal/storage/memory"
	pgstore "signal-replay-lab/internal/storage/postgres"
)

// env holds the wired dependencies of one command invocation.
type env struct {
	cfg        *config.Config
	log        *zap.Logger
	resolution clock.Resolution
	interval   domain.Interval

	signals storage.SignalStore
	candles storage.CandleStore
	index   storage.CatalogStore
	blobs   archive.Storage

	closers []func()
}

// loadConfig loads and validates the config and builds the logger.
func loadConfig() (*config.Config, *zap.Logger, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return nil, nil, fmt.Errorf("loading config: %w", err)
		}
	} else {
		cfg = config.Defaults()
	}
	if debug {
		cfg.Log.Development = true
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config validation failed: %w", err)
	}

	log, err := logger.NewWithLevel(cfg.Log.Development, cfg.Log.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("creating logger: %w", err)
	}
	if cfgFile == "" {
		log.Warn("no config file specified, using defaults")
	}
	return cfg, log, nil
}

// setup loads the config, opens the stores and the archive, and imports
// --data when set.
func setup(ctx context.Context) (*env, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}

	res, err := clock.ParseResolution(cfg.Replay.Resolution)
	if err != nil {
		return nil, err
	}
	e := &env{
		cfg:        cfg,
		log:        log,
		resolution: res,
		interval:   domain.Interval(cfg.Replay.Interval),
	}
	e.closers = append(e.closers, func() { _ = log.Sync() })

	if err := e.openStores(ctx); err != nil {
		e.close()
		return nil, err
	}

	e.blobs, err = archive.Open(cfg.Archive.Type, cfg.Archive.Path, archive.S3Config{
		Bucket:    cfg.Archive.S3.Bucket,
		Endpoint:  cfg.Archive.S3.Endpoint,
		Region:    cfg.Archive.S3.Region,
		AccessKey: cfg.Archive.S3.AccessKey,
		SecretKey: cfg.Archive.S3.SecretKey,
		Prefix:    cfg.Archive.S3.Prefix,
	})
	if err != nil {
		e.close()
		return nil, fmt.Errorf("opening archive: %w", err)
	}

	if cfg.Metrics.Enabled {
		e.serveMetrics()
	}

	if dataDir != "" {
		if err := loadDataDir(ctx, e, dataDir); err != nil {
			e.close()
			return nil, err
		}
	}
	return e, nil
}

func (e *env) openStores(ctx context.Context) error {
	if e.cfg.Storage.UseMemory {
		e.log.Info("using in-memory storage")
		e.signals = memory.NewSignalStore()
		e.candles = memory.NewCandleStore()
		e.index = memory.NewCatalogStore()
		return nil
	}

	pool, err := pgstore.NewPool(ctx, e.cfg.Storage.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	e.closers = append(e.closers, pool.Close)

	conn, err := chstore.NewConn(ctx, e.cfg.Storage.ClickHouseDSN)
	if err != nil {
		return fmt.Errorf("connect to clickhouse: %w", err)
	}
	e.closers = append(e.closers, func() { _ = conn.Close() })

	e.signals = pgstore.NewSignalStore(pool)
	e.index = pgstore.NewCatalogStore(pool)
	e.candles = chstore.NewCandleStore(conn)
	e.log.Info("connected to storage")
	return nil
}

func (e *env) serveMetrics() {
	mux := http.NewServeMux()
	mux.Handle(e.cfg.Metrics.Path, observability.Handler())
	srv := &http.Server{
		Addr:              e.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.log.Error("metrics server error", zap.Error(err))
		}
	}()
	e.log.Info("serving metrics", zap.String("addr", e.cfg.Metrics.Addr), zap.String("path", e.cfg.Metrics.Path))

	e.closers = append(e.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
}

// close releases resources in reverse order of acquisition.
func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}
