package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/mrohitth/data-observability-platform/internal/config"
	"github.com/mrohitth/data-observability-platform/internal/logger"
	"github.com/mrohitth/data-observability-platform/internal/retry"
	"github.com/mrohitth/data-observability-platform/internal/types"
)

// Manager owns the batch and cdc sources and gives every component one
// place to ask for a connection.
type Manager struct {
	batch *Source
	cdc   *Source
	log   *logger.Logger
}

func NewManager(cfg config.Config, policy *retry.Policy, baseLog *logger.Logger) (*Manager, error) {
	log := baseLog.With("service", "DatabaseManager")

	batch, err := NewSource(config.SourceBatch, cfg.BatchDB, cfg.Monitoring, policy, baseLog)
	if err != nil {
		return nil, err
	}
	cdc, err := NewSource(config.SourceCDC, cfg.CDCDB, cfg.Monitoring, policy, baseLog)
	if err != nil {
		batch.Close()
		return nil, err
	}

	log.Info("Database manager initialized")
	return &Manager{batch: batch, cdc: cdc, log: log}, nil
}

func (m *Manager) Get(name string) (*Source, error) {
	switch name {
	case config.SourceBatch:
		return m.batch, nil
	case config.SourceCDC:
		return m.cdc, nil
	default:
		return nil, fmt.Errorf("unknown database source: %s", name)
	}
}

func (m *Manager) Batch() *Source { return m.batch }
func (m *Manager) CDC() *Source   { return m.cdc }

// Migrate creates the monitoring tables on the cdc source, where baselines
// and alerts live.
func (m *Manager) Migrate(ctx context.Context) error {
	m.log.Info("Migrating monitoring tables...")
	err := m.cdc.Execute(ctx, func(tx *gorm.DB) error {
		return tx.AutoMigrate(&types.Baseline{}, &types.Alert{})
	})
	if err != nil {
		return fmt.Errorf("monitoring table migration failed: %w", err)
	}
	return nil
}

func (m *Manager) HealthCheck(ctx context.Context) map[string]bool {
	return map[string]bool{
		config.SourceBatch: m.batch.HealthCheck(ctx),
		config.SourceCDC:   m.cdc.HealthCheck(ctx),
	}
}

func (m *Manager) Status() map[string]Status {
	return map[string]Status{
		config.SourceBatch: m.batch.Status(),
		config.SourceCDC:   m.cdc.Status(),
	}
}

func (m *Manager) Close() {
	m.batch.Close()
	m.cdc.Close()
	m.log.Info("All database connections closed")
}
