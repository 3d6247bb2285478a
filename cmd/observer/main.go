package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mrohitth/data-observability-platform/internal/config"
	"github.com/mrohitth/data-observability-platform/internal/contract"
	"github.com/mrohitth/data-observability-platform/internal/db"
	"github.com/mrohitth/data-observability-platform/internal/detector"
	"github.com/mrohitth/data-observability-platform/internal/logger"
	"github.com/mrohitth/data-observability-platform/internal/notifier"
	"github.com/mrohitth/data-observability-platform/internal/orchestrator"
	"github.com/mrohitth/data-observability-platform/internal/profiler"
	"github.com/mrohitth/data-observability-platform/internal/repos"
	"github.com/mrohitth/data-observability-platform/internal/retry"
	"github.com/mrohitth/data-observability-platform/internal/server"
	"github.com/mrohitth/data-observability-platform/internal/utils"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	// Config
	log.Info("Loading configuration...")
	cfg := config.Load(log)
	if err := cfg.Validate(); err != nil {
		log.Error("Invalid configuration", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Databases
	policy := retry.NewPolicy(cfg.Retry)
	manager, err := db.NewManager(cfg, policy, log)
	if err != nil {
		log.Error("Database initialization failed", "error", err)
		return 1
	}
	defer manager.Close()
	if err := manager.Migrate(ctx); err != nil {
		log.Error("Migration failed", "error", err)
		return 1
	}

	// Repos
	baselineRepo := repos.NewBaselineRepo(manager.CDC().DB(), log)
	alertRepo := repos.NewAlertRepo(manager.CDC().DB(), cfg.Monitoring.DedupWindow, log)

	// Alert bus
	var bus notifier.AlertBus
	if cfg.Notifier.Enabled {
		redisBus, err := notifier.NewRedisBus(cfg.Notifier, log)
		if err != nil {
			log.Warn("Alert bus unavailable, continuing without it", "error", err)
		} else {
			bus = redisBus
			defer redisBus.Close()
		}
	}

	// Services
	prof := profiler.New(cfg.Monitoring, manager.Batch(), manager.CDC(), baselineRepo, log)
	det := detector.New(cfg.Monitoring, manager.CDC(), baselineRepo, alertRepo, bus, log)

	contractPath := utils.GetEnv("CONTRACT_PATH", "contracts/cdc_order_contract.yaml", log)
	cdcLogDir := utils.GetEnv("CDC_LOG_DIR", "data/cdc_logs", log)
	var guard *contract.Guard
	if _, err := os.Stat(contractPath); err == nil {
		doc, err := contract.Load(contractPath)
		if err != nil {
			log.Error("Failed to load contract", "path", contractPath, "error", err)
			return 1
		}
		guard, err = contract.NewGuard(doc, manager.CDC(), alertRepo, bus, cdcLogDir, log)
		if err != nil {
			log.Error("Failed to build contract guard", "error", err)
			return 1
		}
	} else {
		log.Warn("No contract document found, skipping contract validation", "path", contractPath)
	}

	// Status server
	var srv *server.Server
	if cfg.Server.Enabled {
		srv = server.New(cfg.Server, logMode, manager, alertRepo, log)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn("Status server shutdown failed", "error", err)
			}
		}()
	}

	// Orchestration
	orch := orchestrator.New(cfg.Performance.ConcurrentWorkers, log)
	orch.Add("profiler", func(ctx context.Context) (int, error) {
		sum, err := prof.Run(ctx)
		if err != nil {
			return 0, err
		}
		log.Info("Profiling completed",
			"baselines_stored", sum.BaselinesStored,
			"skipped_metrics", sum.SkippedMetrics,
		)
		return 0, nil
	})
	orch.Add("detector", func(ctx context.Context) (int, error) {
		findings, err := det.Run(ctx)
		return findings.Anomalies, err
	})
	if guard != nil {
		orch.Add("contract_guard", func(ctx context.Context) (int, error) {
			sum, err := guard.Run(ctx)
			if err != nil {
				return 0, err
			}
			return sum.TotalViolations, nil
		})
	}

	result := orch.Run(ctx)
	if srv != nil {
		srv.SetLastRun(result)
	}

	log.Info("Monitoring run summary",
		"state", result.State,
		"anomalies", result.Anomalies,
		"duration", result.Duration,
		"tasks", len(result.Tasks),
	)

	if result.State != orchestrator.Succeeded {
		return 1
	}
	return 0
}
