// Package config defines the run configuration of the star-schema ETL and
// loads it from a file, an optional .env file and the environment.
//
// Precedence, lowest first: Defaults, the config file (YAML or JSON by
// extension), the .env file, then real environment variables. Variables
// already set in the environment are never overwritten by .env.
//
// Example (YAML):
//
//	job: staretl
//	source:      { kind: mongo, uri: "mongodb://localhost:27017", database: raw_data }
//	destination: { kind: postgres, dsn: "postgres://etl@localhost/warehouse" }
//	runtime:     { schedule: "@every 1h", timeout: 30m }
//	metrics:     { backend: prometheus, pushgateway_url: "http://localhost:9091" }
//	log:         { level: info, format: json }
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"staretl/internal/etlerr"
)

// Config is the top-level run configuration.
type Config struct {
	// Job labels metrics and log lines.
	Job         string      `yaml:"job" json:"job" validate:"required"`
	Source      Source      `yaml:"source" json:"source"`
	Destination Destination `yaml:"destination" json:"destination"`
	Runtime     Runtime     `yaml:"runtime" json:"runtime"`
	Metrics     Metrics     `yaml:"metrics" json:"metrics"`
	Log         Log         `yaml:"log" json:"log"`
}

// Source selects where the users, products and carts collections come from.
type Source struct {
	// Kind is one of mongo, file or http.
	Kind string `yaml:"kind" json:"kind" validate:"required"`
	// URI is the document store connection string (mongo) or the REST base
	// URL (http).
	URI string `yaml:"uri" json:"uri"`
	// Database is the catalog holding the collections.
	Database string `yaml:"database" json:"database"`
	// Dir holds <collection>.json exports for the file kind.
	Dir string `yaml:"dir" json:"dir"`
	// Timeout bounds a single collection fetch, e.g. "5m".
	Timeout string `yaml:"timeout" json:"timeout"`
}

// Destination selects the warehouse backend.
type Destination struct {
	// Kind is one of postgres, sqlite, mysql, mssql or memory.
	Kind      string `yaml:"kind" json:"kind" validate:"required"`
	DSN       string `yaml:"dsn" json:"dsn"`
	BatchSize int    `yaml:"batch_size" json:"batch_size" validate:"gte=0"`
}

// Runtime controls how runs are triggered.
type Runtime struct {
	// Schedule is a cron spec (standard five fields or a descriptor such as
	// "@every 1h"). Empty means run once and exit.
	Schedule string `yaml:"schedule" json:"schedule"`
	// Timeout bounds one whole run. Empty means no bound.
	Timeout string `yaml:"timeout" json:"timeout"`
	// Strict makes a failed run exit non-zero.
	Strict bool `yaml:"strict" json:"strict"`
}

// Metrics selects the metrics backend.
type Metrics struct {
	Backend        string `yaml:"backend" json:"backend" validate:"omitempty,oneof=none prometheus datadog"`
	PushgatewayURL string `yaml:"pushgateway_url" json:"pushgateway_url" validate:"omitempty,url"`
	DatadogAddr    string `yaml:"datadog_addr" json:"datadog_addr"`
}

// Log configures the zap logger.
type Log struct {
	Level  string `yaml:"level" json:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" json:"format" validate:"omitempty,oneof=json console"`
}

// DefaultDatabase is the source catalog used when none is configured.
const DefaultDatabase = "raw_data"

// Defaults returns the configuration used before any file or variable is
// applied.
func Defaults() Config {
	return Config{
		Job:         "staretl",
		Source:      Source{Kind: "mongo", Database: DefaultDatabase},
		Destination: Destination{Kind: "postgres", BatchSize: 1000},
		Metrics:     Metrics{Backend: "none"},
		Log:         Log{Level: "info", Format: "json"},
	}
}

// Load builds a Config from Defaults, the file at path (skipped when path is
// empty), the .env file at envFile (skipped when empty or absent) and the
// environment.
func Load(path, envFile string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, etlerr.Configuration("env_file", "read %s: %v", envFile, err)
		}
	}
	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Decode parses data as YAML or JSON depending on the extension of name.
func Decode(name string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return etlerr.Configuration("config", "parse %s: %v", name, err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return etlerr.Configuration("config", "parse %s: %v", name, err)
		}
	default:
		return etlerr.Configuration("config", "unsupported config file extension %q", filepath.Ext(name))
	}
	return nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return etlerr.Configuration("config", "read %s: %v", path, err)
	}
	return Decode(path, data, cfg)
}

// ApplyEnv overrides cfg with the environment variables lookup knows about.
//
//	MONGO_URI            source.uri
//	MONGO_DB             source.database
//	POSTGRES_URI         destination.dsn
//	ETL_SOURCE_KIND      source.kind
//	ETL_SOURCE_DIR       source.dir
//	ETL_DESTINATION_KIND destination.kind
//	ETL_BATCH_SIZE       destination.batch_size
//	ETL_SCHEDULE         runtime.schedule
//	ETL_TIMEOUT          runtime.timeout
//	ETL_LOG_LEVEL        log.level
//	METRICS_BACKEND      metrics.backend
//	PUSHGATEWAY_URL      metrics.pushgateway_url
//	DD_AGENT_ADDR        metrics.datadog_addr
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"MONGO_URI":            &cfg.Source.URI,
		"MONGO_DB":             &cfg.Source.Database,
		"POSTGRES_URI":         &cfg.Destination.DSN,
		"ETL_SOURCE_KIND":      &cfg.Source.Kind,
		"ETL_SOURCE_DIR":       &cfg.Source.Dir,
		"ETL_DESTINATION_KIND": &cfg.Destination.Kind,
		"ETL_SCHEDULE":         &cfg.Runtime.Schedule,
		"ETL_TIMEOUT":          &cfg.Runtime.Timeout,
		"ETL_LOG_LEVEL":        &cfg.Log.Level,
		"METRICS_BACKEND":      &cfg.Metrics.Backend,
		"PUSHGATEWAY_URL":      &cfg.Metrics.PushgatewayURL,
		"DD_AGENT_ADDR":        &cfg.Metrics.DatadogAddr,
	}
	for name, dst := range str {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	if v, ok := lookup("ETL_BATCH_SIZE"); ok && strings.TrimSpace(v) != "" {
		n, err := cast.ToIntE(strings.TrimSpace(v))
		if err != nil {
			return etlerr.Configuration("ETL_BATCH_SIZE", "not an integer: %q", v)
		}
		cfg.Destination.BatchSize = n
	}
	return nil
}

// SourceTimeout parses Source.Timeout. Empty yields zero.
func (c Config) SourceTimeout() (time.Duration, error) {
	return duration("source.timeout", c.Source.Timeout)
}

// RunTimeout parses Runtime.Timeout. Empty yields zero.
func (c Config) RunTimeout() (time.Duration, error) {
	return duration("runtime.timeout", c.Runtime.Timeout)
}

func duration(field, s string) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	d, err := cast.ToDurationE(s)
	if err != nil || d < 0 {
		return 0, etlerr.Configuration(field, "invalid duration %q", s)
	}
	return d, nil
}

// Redacted returns a copy safe to log: credentials in URIs are masked.
func (c Config) Redacted() Config {
	c.Source.URI = redact(c.Source.URI)
	c.Destination.DSN = redact(c.Destination.DSN)
	return c
}

func redact(uri string) string {
	scheme := strings.Index(uri, "://")
	at := strings.LastIndex(uri, "@")
	if scheme < 0 || at < scheme {
		return uri
	}
	return fmt.Sprintf("%s://***%s", uri[:scheme], uri[at:])
}
