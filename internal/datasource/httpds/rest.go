package httpds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"staretl/internal/datasource"
	"staretl/internal/etlerr"
	"staretl/internal/logging"
	jsonparser "staretl/internal/parser/json"
	"staretl/internal/records"
)

// REST serves collections from GET <base>/<name>?limit=0, the shape of
// DummyJSON-style APIs. Responses may be a JSON array or an envelope object
// keyed by the collection name.
type REST struct {
	base   *url.URL
	client *Client
	log    *zap.Logger
}

// NewREST validates base and returns a REST source using client.
func NewREST(base string, client *Client, log *zap.Logger) (*REST, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, etlerr.Configuration("source.uri", "invalid REST base URL %q", base)
	}
	if client == nil {
		client = NewClient(Config{MaxRetries: 3})
	}
	return &REST{base: u, client: client, log: logging.OrNop(log)}, nil
}

// Fetch downloads and decodes one collection.
func (r *REST) Fetch(ctx context.Context, name string) ([]records.Record, error) {
	u := r.base.JoinPath(name)
	q := u.Query()
	q.Set("limit", "0")
	u.RawQuery = q.Encode()

	start := time.Now()
	resp, err := r.client.Get(ctx, u.String(), http.Header{"Accept": {"application/json"}})
	if err != nil {
		return nil, etlerr.Connectivity("source", "GET "+name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("GET %s: unexpected status %s", u.Redacted(), resp.Status)
	}
	docs, err := jsonparser.DecodeAll(resp.Body, jsonparser.Options{Envelope: name})
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	r.log.Debug("collection downloaded", zap.String("url", u.Redacted()),
		zap.Int("documents", len(docs)), zap.Duration("elapsed", time.Since(start)))
	return docs, nil
}

// Close releases idle connections.
func (r *REST) Close(context.Context) error {
	r.client.httpClient.CloseIdleConnections()
	return nil
}

func init() {
	datasource.Register("http", func(_ context.Context, cfg datasource.Config) (datasource.Collections, error) {
		return NewREST(cfg.URI, NewClient(Config{Timeout: cfg.Timeout, MaxRetries: 3}), cfg.Logger)
	})
}
