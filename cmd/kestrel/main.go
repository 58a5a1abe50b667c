// Kestrel - Transaction risk scoring and mule-network detection.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/audit"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/cases"
	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/simulate"
	"github.com/opensource-finance/kestrel/internal/stream"
	"github.com/opensource-finance/kestrel/internal/velocity"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// A missing .env file is fine; the process environment still applies.
	_ = godotenv.Load()

	cfg, err := loadConfig(os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(cfg.Logging, os.Getenv("KESTREL_DEBUG") == "true"))

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Repository; driver "none" runs without persistence
	var repo domain.Repository
	if cfg.Repository.Driver != "none" {
		r, err := repository.New(cfg.Repository)
		if err != nil {
			slog.Error("failed to initialize repository", "error", err)
			os.Exit(1)
		}
		defer r.Close()
		repo = r
		slog.Info("repository initialized", "driver", cfg.Repository.Driver)
	}

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	var recorder *audit.Recorder
	if repo != nil {
		recorder = audit.NewRecorder(repo)
		if err := recorder.Resume(ctx); err != nil {
			slog.Error("failed to resume audit sequence", "error", err)
			os.Exit(1)
		}
	} else {
		recorder = audit.NewRecorder(nil)
	}

	// Live scoring never reads the simulation label.
	scoringOpts, err := scoring.OptionsFromConfig(cfg.Scoring)
	if err != nil {
		slog.Error("invalid scoring configuration", "error", err)
		os.Exit(1)
	}
	engine, err := scoring.New(scoringOpts)
	if err != nil {
		slog.Error("failed to initialize scoring engine", "error", err)
		os.Exit(1)
	}
	processor, err := decision.NewProcessor(engine, cfg.Decision)
	if err != nil {
		slog.Error("failed to initialize decision processor", "error", err)
		os.Exit(1)
	}
	slog.Info("scoring engine initialized",
		"factors", len(engine.Factors()),
		"challenge_at", cfg.Decision.ChallengeAt,
		"decline_at", cfg.Decision.DeclineAt,
	)

	generator, err := simulate.NewFromConfig(cfg)
	if err != nil {
		slog.Error("failed to initialize generator", "error", err)
		os.Exit(1)
	}

	asyncWorker := worker.NewWorker(busImpl, repo, cacheImpl, recorder)
	if err := asyncWorker.Start(worker.Config{CacheTTL: cfg.Cache.TransactionTTL}); err != nil {
		slog.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	session := stream.NewSession(generator, busImpl, cfg.Stream)
	if cfg.Stream.AutoStart {
		if err := session.Start(ctx); err != nil {
			slog.Error("failed to start stream", "error", err)
		}
	}

	var caseManager *cases.Manager
	if repo != nil {
		caseManager = cases.NewManager(repo, recorder, busImpl)
	}

	srv := api.NewServer(cfg.Server, api.Dependencies{
		Repo:      repo,
		Cache:     cacheImpl,
		Bus:       busImpl,
		Engine:    engine,
		Processor: processor,
		Generator: generator,
		Stream:    session,
		Cases:     caseManager,
		Velocity:  velocity.NewService(repo, cacheImpl),
	}, Version)

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

	session.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	if err := asyncWorker.Stop(); err != nil {
		slog.Error("failed to stop worker", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  KESTREL")
	fmt.Println("  Transaction risk scoring and mule-network detection")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /transactions/score     - Score a transaction")
	fmt.Println("    POST /transactions/generate  - Generate scored transactions")
	fmt.Println("    GET  /transactions/{id}      - Get transaction by ID")
	fmt.Println("    POST /clusters/generate      - Generate a mule-network cluster")
	fmt.Println("    POST /clusters/analyze       - Analyze caller transfers")
	fmt.Println("    GET  /clusters/{id}/sar      - SAR-ready summary")
	fmt.Println("    POST /stream/start           - Start the live stream")
	fmt.Println("    POST /cases                  - Open an investigation case")
	fmt.Println("    GET  /audit/export           - Export the audit trail")
	fmt.Println("    GET  /health                 - Health check")
	fmt.Println()
}
