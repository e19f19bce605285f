// Package mongo reads source collections from MongoDB with the v2 driver.
package mongo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"staretl/internal/datasource"
	"staretl/internal/etlerr"
	"staretl/internal/logging"
	"staretl/internal/records"
)

// DefaultDatabase is used when no catalog name is configured.
const DefaultDatabase = "raw_data"

const (
	pingTimeout  = 10 * time.Second
	fetchTimeout = 5 * time.Minute
)

// store is the slice of the driver the source needs.
type store interface {
	Ping(ctx context.Context) error
	Find(ctx context.Context, db, coll string) ([]bson.D, error)
	Disconnect(ctx context.Context) error
}

// connect is swapped in tests.
var connect = func(ctx context.Context, uri string) (store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	return driverStore{client}, nil
}

type driverStore struct{ c *mongo.Client }

func (s driverStore) Ping(ctx context.Context) error { return s.c.Ping(ctx, nil) }

func (s driverStore) Find(ctx context.Context, db, coll string) ([]bson.D, error) {
	cur, err := s.c.Database(db).Collection(coll).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	var docs []bson.D
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("cursor: %w", err)
	}
	return docs, nil
}

func (s driverStore) Disconnect(ctx context.Context) error { return s.c.Disconnect(ctx) }

// Source fetches whole collections from one database.
type Source struct {
	st      store
	db      string
	timeout time.Duration
	log     *zap.Logger
}

// Open connects to uri and pings the deployment. A missing uri is a
// ConfigurationError; a failed connect or ping is a ConnectivityError.
func Open(ctx context.Context, uri, database string, log *zap.Logger) (*Source, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, etlerr.Configuration("source.uri", "MONGO_URI must not be empty")
	}
	if database == "" {
		database = DefaultDatabase
	}
	st, err := connect(ctx, uri)
	if err != nil {
		return nil, etlerr.Connectivity("source", "connect", err)
	}
	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := st.Ping(pctx); err != nil {
		_ = st.Disconnect(context.WithoutCancel(ctx))
		return nil, etlerr.Connectivity("source", "ping", err)
	}
	return &Source{st: st, db: database, timeout: fetchTimeout, log: logging.OrNop(log)}, nil
}

// Fetch returns every document of collection name as plain Go values.
func (s *Source) Fetch(ctx context.Context, name string) ([]records.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()
	docs, err := s.st.Find(ctx, s.db, name)
	if err != nil {
		return nil, etlerr.Connectivity("source", "fetch "+name, err)
	}
	out := make([]records.Record, len(docs))
	for i, d := range docs {
		out[i] = records.Record(document(d))
	}
	s.log.Debug("collection fetched",
		zap.String("database", s.db), zap.String("collection", name),
		zap.Int("documents", len(out)), zap.Duration("elapsed", time.Since(start)))
	return out, nil
}

// Close disconnects the client.
func (s *Source) Close(ctx context.Context) error {
	return s.st.Disconnect(ctx)
}

func document(d bson.D) map[string]any {
	m := make(map[string]any, len(d))
	for _, e := range d {
		m[e.Key] = plain(e.Value)
	}
	return m
}

// plain converts BSON values to the scalar and container types used by
// shaping: int32 widens to int64, dates become UTC times, ObjectIDs and
// decimals become strings.
func plain(v any) any {
	switch x := v.(type) {
	case bson.D:
		return document(x)
	case bson.M:
		m := make(map[string]any, len(x))
		for k, e := range x {
			m[k] = plain(e)
		}
		return m
	case bson.A:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = plain(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = plain(e)
		}
		return out
	case int32:
		return int64(x)
	case bson.ObjectID:
		return x.Hex()
	case bson.DateTime:
		return x.Time().UTC()
	case bson.Decimal128:
		return x.String()
	case bson.Timestamp:
		return time.Unix(int64(x.T), 0).UTC()
	case bson.Null, bson.Undefined:
		return nil
	default:
		return v
	}
}

func init() {
	datasource.Register("mongo", func(ctx context.Context, cfg datasource.Config) (datasource.Collections, error) {
		s, err := Open(ctx, cfg.URI, cfg.Database, cfg.Logger)
		if err != nil {
			return nil, err
		}
		if cfg.Timeout > 0 {
			s.timeout = cfg.Timeout
		}
		return s, nil
	})
}
