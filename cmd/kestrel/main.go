// Kestrel - Fraud risk scoring for transaction batches.
// Copyright (c) 2026 OpenRisk Labs
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/openrisk-labs/kestrel/internal/api"
	"github.com/openrisk-labs/kestrel/internal/bus"
	"github.com/openrisk-labs/kestrel/internal/cache"
	"github.com/openrisk-labs/kestrel/internal/domain"
	"github.com/openrisk-labs/kestrel/internal/metrics"
	"github.com/openrisk-labs/kestrel/internal/pipeline"
	"github.com/openrisk-labs/kestrel/internal/repository"
	"github.com/openrisk-labs/kestrel/internal/rules"
	"github.com/openrisk-labs/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// A local .env is optional; environment always wins over defaults.
	_ = godotenv.Load()

	records := flag.Int("records", 0, "number of synthetic transactions to generate")
	accounts := flag.Int("accounts", 0, "number of synthetic accounts")
	fraudRatio := flag.Float64("fraud-ratio", -1, "fraction of generated transactions with injected fraud patterns")
	seed := flag.Int64("seed", 0, "RNG seed for the generator (0 = time-seeded)")
	csvPath := flag.String("csv", "", "path of the generated transaction CSV")
	dbPath := flag.String("db", "", "SQLite database path")
	exportPath := flag.String("export", "", "path of the scored-results CSV export")
	reportDir := flag.String("out", "", "directory for the markdown report")
	topN := flag.Int("top", 0, "size of the high-risk listing")
	steps := flag.String("steps", "", "comma-separated pipeline steps (generate,load,score,report); empty = all")
	serve := flag.Bool("serve", false, "start the HTTP API after the pipeline run")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug || os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	cfg := domain.DefaultConfig()
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	applyEnv(cfg)
	applyFlags(cfg, records, accounts, fraudRatio, seed, csvPath, dbPath, exportPath, reportDir, topN)

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Rule Engine
	engine, err := rules.NewEngine(cfg.Risk)
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", len(engine.Rules()))

	collector := metrics.NewCollector()

	runner := pipeline.NewRunner(cfg, repo, engine, busImpl, cacheImpl, collector)

	// Custom rules live in the database; a fresh store means none.
	if n, err := runner.LoadCustomRules(ctx); err != nil {
		slog.Error("failed to load custom rules", "error", err)
		os.Exit(1)
	} else if n > 0 {
		slog.Info("custom rules loaded", "count", n)
	}

	// Alert worker persists alerts published during scoring.
	alertWorker := worker.NewWorker(busImpl, repo, collector)
	if err := alertWorker.Start(); err != nil {
		slog.Error("failed to start alert worker", "error", err)
		os.Exit(1)
	}
	defer alertWorker.Stop()
	slog.Info("alert worker started")

	stepList, err := pipeline.ParseSteps(*steps)
	if err != nil {
		slog.Error("invalid steps", "error", err)
		os.Exit(1)
	}

	if err := runner.Run(ctx, stepList); err != nil {
		slog.Error("pipeline run failed", "error", err)
		os.Exit(1)
	}

	if !*serve {
		slog.Info("kestrel run complete")
		return
	}

	srv := api.NewServer(cfg, repo, cacheImpl, engine, runner, collector, Version)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// applyEnv overrides configuration from KESTREL_* environment variables.
func applyEnv(cfg *domain.Config) {
	if v := os.Getenv("KESTREL_DB_DRIVER"); v != "" {
		cfg.Repository.Driver = v
	}
	if v := os.Getenv("KESTREL_DB_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("KESTREL_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("KESTREL_POSTGRES_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("KESTREL_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("KESTREL_POSTGRES_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}
	if v := os.Getenv("KESTREL_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("KESTREL_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("KESTREL_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("KESTREL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("KESTREL_CSV_PATH"); v != "" {
		cfg.Pipeline.CSVPath = v
	}
	if v := os.Getenv("KESTREL_EXPORT_PATH"); v != "" {
		cfg.Pipeline.ExportPath = v
	}
	if v := os.Getenv("KESTREL_REPORT_DIR"); v != "" {
		cfg.Pipeline.ReportDir = v
	}
}

// applyFlags overrides configuration from command-line flags. Flags win
// over the environment.
func applyFlags(cfg *domain.Config, records, accounts *int, fraudRatio *float64, seed *int64, csvPath, dbPath, exportPath, reportDir *string, topN *int) {
	if *records > 0 {
		cfg.Pipeline.Records = *records
	}
	if *accounts > 0 {
		cfg.Pipeline.Accounts = *accounts
	}
	if *fraudRatio >= 0 {
		cfg.Pipeline.FraudRatio = *fraudRatio
	}
	if *seed != 0 {
		cfg.Pipeline.Seed = *seed
	}
	if *csvPath != "" {
		cfg.Pipeline.CSVPath = *csvPath
	}
	if *dbPath != "" {
		cfg.Repository.SQLitePath = *dbPath
	}
	if *exportPath != "" {
		cfg.Pipeline.ExportPath = *exportPath
	}
	if *reportDir != "" {
		cfg.Pipeline.ReportDir = *reportDir
	}
	if *topN > 0 {
		cfg.Pipeline.TopN = *topN
	}
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  Kestrel - fraud risk scoring")
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    GET  /api/v1/summary           - Risk level summary")
	fmt.Println("    GET  /api/v1/detection         - Detection quality metrics")
	fmt.Println("    GET  /api/v1/high-risk         - Highest-risk transactions")
	fmt.Println("    GET  /api/v1/transactions/{id} - Get transaction by ID")
	fmt.Println("    GET  /api/v1/alerts            - Recent alerts")
	fmt.Println("    GET  /api/v1/rules             - List rules")
	fmt.Println("    POST /api/v1/rules             - Create a custom rule")
	fmt.Println("    POST /api/v1/rules/reload      - Hot-reload custom rules")
	fmt.Println("    POST /api/v1/pipeline/run      - Re-run pipeline steps")
	fmt.Println("    GET  /health                   - Health check")
	fmt.Println("    GET  /metrics                  - Prometheus metrics")
	fmt.Println()
}
