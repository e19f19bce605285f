package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"staretl/internal/config"
)

// cronLogger adapts zap to cron's logger interface.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

// scheduledJob returns the run wrapped so that a tick arriving while the
// previous run is still busy is skipped.
func scheduledJob(ctx context.Context, cfg config.Config, log *zap.Logger, flush func()) cron.Job {
	run := cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		sum, err := runOnce(ctx, cfg, log)
		flush()
		if err != nil {
			log.Error("scheduled run failed", zap.Error(err))
			return
		}
		log.Debug("scheduled run finished", zap.Int64("inserted", sum.Inserted()))
	})
	return cron.NewChain(cron.SkipIfStillRunning(cronLogger{log.Sugar()})).Then(run)
}

// schedule runs the pipeline immediately and then on every tick of
// cfg.Runtime.Schedule until ctx is cancelled. Runs never overlap. It waits
// for a run in progress before returning.
func schedule(ctx context.Context, cfg config.Config, log *zap.Logger, flush func()) error {
	sched, err := cron.ParseStandard(cfg.Runtime.Schedule)
	if err != nil {
		return fmt.Errorf("parse schedule %q: %w", cfg.Runtime.Schedule, err)
	}
	c := cron.New(cron.WithLogger(cronLogger{log.Sugar()}))
	job := scheduledJob(ctx, cfg, log, flush)
	c.Schedule(sched, job)
	c.Start()
	log.Info("scheduler started", zap.String("schedule", cfg.Runtime.Schedule))

	var first sync.WaitGroup
	first.Add(1)
	go func() {
		defer first.Done()
		job.Run()
	}()

	<-ctx.Done()
	log.Info("scheduler stopping; waiting for the run in progress")
	<-c.Stop().Done()
	first.Wait()
	return nil
}
