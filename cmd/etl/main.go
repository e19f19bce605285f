package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"staretl/internal/config"
	"staretl/internal/logging"

	// Register every source and destination kind; the config picks one.
	_ "staretl/internal/datasource/all"
	_ "staretl/internal/storage/all"
)

// main loads and validates the configuration, sets up logging and metrics,
// then runs the pipeline once or on a cron schedule.
func main() {
	var (
		cfgPath           string
		envFile           string
		metricsBackendFlg string
		pushGatewayURLFlg string
		scheduleFlg       string
		validate          bool
		strict            bool
	)

	flag.StringVar(&cfgPath, "config", "", "config file path (.yaml, .yml or .json); optional")
	flag.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend: none, prometheus or datadog (overrides METRICS_BACKEND)")
	flag.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides PUSHGATEWAY_URL)")
	flag.StringVar(&scheduleFlg, "schedule", "", "cron spec for repeated runs, e.g. \"@every 1h\" (overrides ETL_SCHEDULE)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	flag.BoolVar(&strict, "strict", false, "exit non-zero when a run fails")
	verbose := flag.Bool("v", false, "enable debug logs")
	flag.Parse()

	cfg, err := config.Load(cfgPath, envFile)
	if err != nil {
		fatalf("load config: %v", err)
	}
	applyFlags(&cfg, metricsBackendFlg, pushGatewayURLFlg, scheduleFlg, strict, *verbose)

	issues := config.ValidateConfig(cfg)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if err := config.Err(issues); err != nil {
		fatalf("configuration is invalid: %v", err)
	}
	if validate {
		fmt.Fprintln(os.Stderr, "configuration is valid")
		os.Exit(0)
	}

	log, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		fatalf("init logger: %v", err)
	}
	defer func() { _ = log.Sync() }()
	log.Debug("configuration", zap.Any("config", cfg.Redacted()))

	flush := initMetrics(cfg.Metrics, cfg.Job, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var runErr error
	if cfg.Runtime.Schedule != "" {
		runErr = schedule(ctx, cfg, log, flush)
	} else {
		_, runErr = runOnce(ctx, cfg, log)
		flush()
	}
	if runErr != nil {
		// runOnce already logged the run summary; this line carries the stack.
		log.Error("etl failed", zap.Error(runErr), zap.Stack("stack"))
		if cfg.Runtime.Strict {
			_ = log.Sync()
			stop()
			os.Exit(1)
		}
	}
}

// applyFlags layers non-empty flags over the loaded configuration.
func applyFlags(cfg *config.Config, backend, gateway, sched string, strict, verbose bool) {
	if backend != "" {
		cfg.Metrics.Backend = backend
	}
	if gateway != "" {
		cfg.Metrics.PushgatewayURL = gateway
	}
	if sched != "" {
		cfg.Runtime.Schedule = sched
	}
	if strict {
		cfg.Runtime.Strict = true
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
