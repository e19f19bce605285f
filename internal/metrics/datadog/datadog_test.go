package datadog

import (
	"testing"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staretl/internal/metrics"
)

type countCall struct {
	name  string
	value int64
	tags  []string
}

type histCall struct {
	name  string
	value float64
	tags  []string
}

// recorder captures the calls the backend makes; the embedded NoOpClient
// answers the rest of statsd.ClientInterface.
type recorder struct {
	statsd.NoOpClient
	counts  []countCall
	hists   []histCall
	flushed int
}

func (r *recorder) Count(name string, value int64, tags []string, _ float64) error {
	r.counts = append(r.counts, countCall{name, value, tags})
	return nil
}

func (r *recorder) Histogram(name string, value float64, tags []string, _ float64) error {
	r.hists = append(r.hists, histCall{name, value, tags})
	return nil
}

func (r *recorder) Flush() error {
	r.flushed++
	return nil
}

func TestBackend_ForwardsWithSortedTags(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	b := &Backend{client: rec}

	b.IncCounter(metrics.RowsTotal, 7.9, metrics.Labels{"table": "dim_date", "kind": metrics.KindInserted, "job": "star"})
	b.ObserveHistogram(metrics.StepDuration, 0.5, metrics.Labels{"step": "index", "status": "success"})
	b.IncCounter(metrics.StepTotal, 1, nil)
	require.NoError(t, b.Flush())

	require.Len(t, rec.counts, 2)
	assert.Equal(t, countCall{metrics.RowsTotal, 7, []string{"job:star", "kind:inserted", "table:dim_date"}}, rec.counts[0])
	assert.Nil(t, rec.counts[1].tags)
	assert.Equal(t, []histCall{{metrics.StepDuration, 0.5, []string{"status:success", "step:index"}}}, rec.hists)
	assert.Equal(t, 1, rec.flushed)
}

func TestNewBackend(t *testing.T) {
	t.Parallel()
	_, err := NewBackend(Config{})
	assert.Error(t, err)

	b, err := NewBackend(Config{Addr: "127.0.0.1:8125", Namespace: "staretl.", Tags: []string{"env:test"}})
	require.NoError(t, err)
	assert.NoError(t, b.Close())
}
