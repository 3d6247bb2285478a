package contract

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/mrohitth/data-observability-platform/internal/logger"
	"github.com/mrohitth/data-observability-platform/internal/notifier"
	"github.com/mrohitth/data-observability-platform/internal/repos"
	"github.com/mrohitth/data-observability-platform/internal/types"
)

// Store is the slice of db.Source the guard needs.
type Store interface {
	Execute(ctx context.Context, op func(tx *gorm.DB) error) error
}

// Summary reports what one validation pass found.
type Summary struct {
	RecordsValidated   int                   `json:"records_validated"`
	ValidRecords       int                   `json:"valid_records"`
	InvalidRecords     int                   `json:"invalid_records"`
	TotalViolations    int                   `json:"total_violations"`
	CriticalViolations int                   `json:"critical_violations"`
	ViolationCounts    map[ViolationType]int `json:"violation_counts"`
}

// Guard samples records from the contract's target table and from JSON log
// files, validates them, and records every violation as an alert.
type Guard struct {
	contract  *Contract
	validator *Validator
	cdc       Store
	alerts    repos.AlertRepo
	bus       notifier.AlertBus
	logDir    string
	log       *logger.Logger

	// record loaders, swapped in tests
	tableRecords func(ctx context.Context, limit int) ([]map[string]any, error)
}

func NewGuard(c *Contract, cdc Store, alerts repos.AlertRepo, bus notifier.AlertBus, logDir string, baseLog *logger.Logger) (*Guard, error) {
	v, err := NewValidator(c)
	if err != nil {
		return nil, err
	}
	g := &Guard{
		contract:  c,
		validator: v,
		cdc:       cdc,
		alerts:    alerts,
		bus:       bus,
		logDir:    logDir,
		log:       baseLog.With("service", "ContractGuard", "contract", c.ContractName),
	}
	g.tableRecords = g.queryTableRecords
	return g, nil
}

func (g *Guard) sampleSize() int {
	if g.contract.Sampling.SampleSize > 0 {
		return g.contract.Sampling.SampleSize
	}
	return 100
}

// jsonSampleSize caps how many log files one pass reads. Without a declared
// sample size it defaults far lower than the table sample; files can hold
// many records each.
func (g *Guard) jsonSampleSize() int {
	if g.contract.Sampling.SampleSize > 0 {
		return g.contract.Sampling.SampleSize
	}
	return 10
}

// queryTableRecords samples the newest rows from the target table. Column
// values arrive as driver types; timestamps are rendered as RFC 3339
// strings so datetime fields validate the same as JSON log records.
func (g *Guard) queryTableRecords(ctx context.Context, limit int) ([]map[string]any, error) {
	var rows []map[string]any
	err := g.cdc.Execute(ctx, func(tx *gorm.DB) error {
		return tx.Table(g.contract.TargetTable).
			Order("cdc_timestamp DESC").
			Limit(limit).
			Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sample %s: %w", g.contract.TargetTable, err)
	}
	for _, row := range rows {
		for k, v := range row {
			if t, ok := v.(time.Time); ok {
				row[k] = t.UTC().Format(time.RFC3339)
			}
		}
	}
	return rows, nil
}

// loadJSONRecords reads records from *.json files under the log directory.
// A file may hold one object or an array of objects. Unparseable files are
// logged and skipped.
func (g *Guard) loadJSONRecords(limit int) []map[string]any {
	if g.logDir == "" {
		return nil
	}
	files, err := filepath.Glob(filepath.Join(g.logDir, "*.json"))
	if err != nil || len(files) == 0 {
		if len(files) == 0 {
			g.log.Warn("No JSON log files found", "dir", g.logDir)
		}
		return nil
	}
	if len(files) > limit {
		files = files[:limit]
	}

	var records []map[string]any
	for _, f := range files {
		raw, err := os.ReadFile(f)
		if err != nil {
			g.log.Warn("Failed to read log file", "file", f, "error", err)
			continue
		}
		var many []map[string]any
		if err := json.Unmarshal(raw, &many); err == nil {
			records = append(records, many...)
			continue
		}
		var one map[string]any
		if err := json.Unmarshal(raw, &one); err != nil {
			g.log.Warn("Failed to parse log file", "file", f, "error", err)
			continue
		}
		records = append(records, one)
	}
	g.log.Info("Loaded JSON log records", "files", len(files), "records", len(records))
	return records
}

// logViolation persists one violation as a CONTRACT_VIOLATION alert and,
// for critical violation types, publishes it on the bus.
func (g *Guard) logViolation(ctx context.Context, v Violation) error {
	details, _ := json.Marshal(v)
	a := &types.Alert{
		AlertType:    types.AlertContractViolation,
		Description:  v.Description,
		SourceTable:  g.contract.TargetTable,
		ContractName: g.contract.ContractName,
		FieldName:    v.FieldName,
		Details:      datatypes.JSON(details),
	}
	if v.ExpectedType != "" {
		expected := v.ExpectedType
		a.ExpectedType = &expected
	}
	if v.ActualType != "" {
		actual := v.ActualType
		a.ActualType = &actual
	}

	var inserted bool
	err := g.cdc.Execute(ctx, func(tx *gorm.DB) error {
		var err error
		inserted, err = g.alerts.Log(ctx, tx, a)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to log contract violation: %w", err)
	}
	if inserted && v.Type.Critical() && g.bus != nil {
		if err := g.bus.Publish(ctx, a); err != nil {
			g.log.Warn("Failed to publish violation", "error", err, "field", v.FieldName)
		}
	}
	return nil
}

// Run samples records from the table and the log directory, validates each
// one, and persists every violation found. No records to validate is a
// warning, not a failure.
func (g *Guard) Run(ctx context.Context) (Summary, error) {
	summary := Summary{ViolationCounts: map[ViolationType]int{}}

	records, err := g.tableRecords(ctx, g.sampleSize())
	if err != nil {
		return summary, err
	}
	records = append(records, g.loadJSONRecords(g.jsonSampleSize())...)

	if len(records) == 0 {
		g.log.Warn("No records found for validation")
		return summary, nil
	}

	for i, record := range records {
		result := g.validator.ValidateRecord(record)
		summary.RecordsValidated++
		if result.Valid {
			summary.ValidRecords++
			continue
		}
		summary.InvalidRecords++

		for _, v := range result.Violations {
			v.RecordIndex = i
			summary.TotalViolations++
			summary.ViolationCounts[v.Type]++
			if v.Type.Critical() {
				summary.CriticalViolations++
			}
			if g.contract.LogToDatabase() {
				if err := g.logViolation(ctx, v); err != nil {
					return summary, err
				}
			}
		}
	}

	if summary.TotalViolations == 0 {
		g.log.Info("Contract validation completed", "records", summary.RecordsValidated)
	} else {
		g.log.Error("Contract validation found violations",
			"records", summary.RecordsValidated,
			"violations", summary.TotalViolations,
			"critical", summary.CriticalViolations,
		)
	}
	return summary, nil
}
