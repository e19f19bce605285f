package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"staretl/internal/config"
	"staretl/internal/etlerr"
	"staretl/internal/schema"
	"staretl/internal/storage"
	"staretl/internal/storage/memory"
)

func writeExports(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"users.json":    `[{"_id": "u1", "id": 1, "firstName": "Emily"}]`,
		"products.json": `{"products": [{"id": 100, "title": "Mascara", "brand": "Essence"}], "total": 1}`,
		"carts.json": `{"id": 5000, "userId": 1, "transaction_date": 1709994600,
			"products": [{"id": 100, "quantity": 2, "price": 10, "total": 20, "discountPercentage": 0, "discountedTotal": 20}]}`,
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	return dir
}

func fileToMemory(dir string) config.Config {
	cfg := config.Defaults()
	cfg.Source = config.Source{Kind: "file", Dir: dir}
	cfg.Destination = config.Destination{Kind: "memory"}
	return cfg
}

// useRepo points the destination seam at repo for the duration of the test
// and counts how often it is opened.
func useRepo(t *testing.T, repo storage.Repository) *atomic.Int32 {
	t.Helper()
	var opened atomic.Int32
	prev := newRepositoryFn
	newRepositoryFn = func(context.Context, storage.Config) (storage.Repository, error) {
		opened.Add(1)
		return repo, nil
	}
	t.Cleanup(func() { newRepositoryFn = prev })
	return &opened
}

func TestRunOnce_FileSourceTwice(t *testing.T) {
	repo := memory.New(nil)
	useRepo(t, repo)
	cfg := fileToMemory(writeExports(t))

	sum, err := runOnce(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, int64(5), sum.Inserted())
	assert.Equal(t, 1, repo.Count(schema.FactSalesItems))
	assert.Equal(t, "5000_100", repo.Rows(schema.FactSalesItems)[0]["item_id"])
	assert.Equal(t, "Essence", repo.Rows(schema.DimProducts)[0]["brand"])

	again, err := runOnce(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Zero(t, again.Inserted())
}

func TestRunOnce_DestinationFailure(t *testing.T) {
	prev := newRepositoryFn
	newRepositoryFn = func(context.Context, storage.Config) (storage.Repository, error) {
		return nil, etlerr.Connectivity("postgres://db", "ping", errors.New("connection refused"))
	}
	t.Cleanup(func() { newRepositoryFn = prev })

	_, err := runOnce(context.Background(), fileToMemory(t.TempDir()), zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, etlerr.ErrConnectivity)
}

func TestRunOnce_SourceFailureClosesDestination(t *testing.T) {
	useRepo(t, memory.New(nil))
	cfg := fileToMemory(filepath.Join(t.TempDir(), "missing"))
	_, err := runOnce(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open source")
}

func TestSchedule_RunsImmediatelyAndStops(t *testing.T) {
	repo := memory.New(nil)
	opened := useRepo(t, repo)
	cfg := fileToMemory(writeExports(t))
	cfg.Runtime.Schedule = "@every 1h"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	var flushed atomic.Int32
	go func() { done <- schedule(ctx, cfg, zap.NewNop(), func() { flushed.Add(1) }) }()

	require.Eventually(t, func() bool { return flushed.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, int32(1), opened.Load())
	assert.Equal(t, 1, repo.Count(schema.FactSales))
}

func TestSchedule_InvalidSpec(t *testing.T) {
	t.Parallel()
	cfg := config.Defaults()
	cfg.Runtime.Schedule = "whenever"
	err := schedule(context.Background(), cfg, zap.NewNop(), func() {})
	require.Error(t, err)
}

func TestApplyFlags(t *testing.T) {
	t.Parallel()
	cfg := config.Defaults()
	cfg.Metrics.PushgatewayURL = "http://from-env:9091"
	applyFlags(&cfg, "prometheus", "", "@daily", true, true)
	assert.Equal(t, "prometheus", cfg.Metrics.Backend)
	assert.Equal(t, "http://from-env:9091", cfg.Metrics.PushgatewayURL, "empty flags keep config values")
	assert.Equal(t, "@daily", cfg.Runtime.Schedule)
	assert.True(t, cfg.Runtime.Strict)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestInitMetrics_FallsBackToNop(t *testing.T) {
	t.Parallel()
	for _, m := range []config.Metrics{
		{Backend: "none"},
		{Backend: "statsd"},
		{Backend: "datadog"},    // no agent address
		{Backend: "prometheus"}, // no gateway
	} {
		flush := initMetrics(m, "test", zap.NewNop())
		require.NotNil(t, flush, m.Backend)
		flush()
	}
}
