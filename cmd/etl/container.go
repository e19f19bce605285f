package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"staretl/internal/config"
	"staretl/internal/datasource"
	"staretl/internal/etl"
	"staretl/internal/metrics"
	"staretl/internal/metrics/datadog"
	"staretl/internal/metrics/prompush"
	"staretl/internal/storage"
)

// Seams for tests.
var (
	newRepositoryFn = storage.New
	newSourceFn     = datasource.New
)

// runOnce opens the source and the destination, executes one pipeline run
// and releases both. Connections are never kept between scheduled runs.
func runOnce(ctx context.Context, cfg config.Config, log *zap.Logger) (etl.Summary, error) {
	if d, _ := cfg.RunTimeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	repo, err := initRepository(ctx, cfg, log)
	if err != nil {
		return etl.Summary{}, err
	}
	defer repo.Close()

	src, err := openSource(ctx, cfg, log)
	if err != nil {
		return etl.Summary{}, err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := src.Close(closeCtx); err != nil {
			log.Warn("source close failed", zap.Error(err))
		}
	}()

	runner := etl.NewRunner(src, repo, etl.Options{
		Job:       cfg.Job,
		BatchSize: cfg.Destination.BatchSize,
		Logger:    log,
	})
	return runner.Run(ctx)
}

func initRepository(ctx context.Context, cfg config.Config, log *zap.Logger) (storage.Repository, error) {
	repo, err := newRepositoryFn(ctx, storage.Config{
		Kind:      cfg.Destination.Kind,
		DSN:       cfg.Destination.DSN,
		BatchSize: cfg.Destination.BatchSize,
		Logger:    log,
	})
	if err != nil {
		return nil, fmt.Errorf("init destination: %w", err)
	}
	return repo, nil
}

func openSource(ctx context.Context, cfg config.Config, log *zap.Logger) (datasource.Collections, error) {
	timeout, _ := cfg.SourceTimeout()
	src, err := newSourceFn(ctx, datasource.Config{
		Kind:     cfg.Source.Kind,
		URI:      cfg.Source.URI,
		Database: cfg.Source.Database,
		Dir:      cfg.Source.Dir,
		Timeout:  timeout,
		Logger:   log,
	})
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	return src, nil
}

// initMetrics installs the configured metrics backend and returns the
// function that flushes and releases it. Backend failures are logged and
// leave metrics disabled; they never stop a run.
func initMetrics(m config.Metrics, job string, log *zap.Logger) func() {
	nop := func() {}
	switch m.Backend {
	case "prometheus":
		b, err := prompush.NewBackend(job, m.PushgatewayURL)
		if err != nil {
			log.Warn("metrics disabled: prometheus backend", zap.Error(err))
			return nop
		}
		metrics.SetBackend(b)
		log.Info("metrics enabled", zap.String("backend", m.Backend), zap.String("url", m.PushgatewayURL), zap.String("job", job))
		return func() {
			if err := metrics.Flush(); err != nil {
				log.Warn("metrics flush failed", zap.Error(err))
			}
		}
	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{Addr: m.DatadogAddr, Tags: []string{"job:" + job}})
		if err != nil {
			log.Warn("metrics disabled: datadog backend", zap.Error(err))
			return nop
		}
		metrics.SetBackend(b)
		log.Info("metrics enabled", zap.String("backend", m.Backend), zap.String("addr", m.DatadogAddr), zap.String("job", job))
		return func() {
			if err := metrics.Flush(); err != nil {
				log.Warn("metrics flush failed", zap.Error(err))
			}
			if err := b.Close(); err != nil {
				log.Warn("metrics close failed", zap.Error(err))
			}
		}
	case "", "none":
		log.Debug("metrics disabled")
		return nop
	default:
		log.Warn("unknown metrics backend; metrics disabled", zap.String("backend", m.Backend))
		return nop
	}
}
