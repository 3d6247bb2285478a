package detector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/mrohitth/data-observability-platform/internal/config"
	"github.com/mrohitth/data-observability-platform/internal/logger"
	"github.com/mrohitth/data-observability-platform/internal/notifier"
	"github.com/mrohitth/data-observability-platform/internal/repos"
	"github.com/mrohitth/data-observability-platform/internal/types"
)

const monitoredTable = "dim_orders_history"

// Store is the slice of db.Source the detector needs.
type Store interface {
	Execute(ctx context.Context, op func(tx *gorm.DB) error) error
}

// CheckResult reports the outcome of one detection check. Performed is
// false when a precondition was missing (no baseline, no data); SkipReason
// says which one.
type CheckResult struct {
	Check       string  `json:"check"`
	Performed   bool    `json:"performed"`
	Triggered   bool    `json:"triggered"`
	SkipReason  string  `json:"skip_reason,omitempty"`
	MetricValue float64 `json:"metric_value"`
	ZScore      float64 `json:"z_score,omitempty"`
}

// Findings aggregates one detection pass.
type Findings struct {
	Volume    CheckResult `json:"volume"`
	Freshness CheckResult `json:"freshness"`
	Anomalies int         `json:"anomalies"`
}

// Detector compares current ingestion behavior against stored baselines and
// raises alerts when it drifts past the configured thresholds.
type Detector struct {
	mon       config.MonitoringConfig
	cdc       Store
	baselines repos.BaselineRepo
	alerts    repos.AlertRepo
	bus       notifier.AlertBus
	log       *logger.Logger

	// probes and clock, swapped in tests
	currentVolume func(ctx context.Context) (int64, *time.Time, error)
	latestEvent   func(ctx context.Context) (*time.Time, error)
	now           func() time.Time
}

func New(mon config.MonitoringConfig, cdc Store, baselines repos.BaselineRepo, alerts repos.AlertRepo, bus notifier.AlertBus, baseLog *logger.Logger) *Detector {
	d := &Detector{
		mon:       mon,
		cdc:       cdc,
		baselines: baselines,
		alerts:    alerts,
		bus:       bus,
		log:       baseLog.With("service", "Detector"),
		now:       func() time.Time { return time.Now().UTC() },
	}
	d.currentVolume = d.queryCurrentVolume
	d.latestEvent = d.queryLatestEvent
	return d
}

// ZScore measures how far current sits from mean in standard deviations.
// A degenerate baseline with zero spread scores 0 rather than dividing by it.
func ZScore(current, mean, stddev float64) float64 {
	if stddev == 0 {
		return 0
	}
	return math.Abs((current - mean) / stddev)
}

func (d *Detector) queryCurrentVolume(ctx context.Context) (int64, *time.Time, error) {
	var row struct {
		CurrentCount    int64
		LatestTimestamp *time.Time
	}
	err := d.cdc.Execute(ctx, func(tx *gorm.DB) error {
		return tx.Raw(`
			SELECT COUNT(*) AS current_count, MAX(created_at) AS latest_timestamp
			FROM dim_orders_history
			WHERE created_at >= CURRENT_TIMESTAMP - INTERVAL '1 hour'`).Scan(&row).Error
	})
	if err != nil {
		return 0, nil, fmt.Errorf("current volume query failed: %w", err)
	}
	return row.CurrentCount, row.LatestTimestamp, nil
}

func (d *Detector) queryLatestEvent(ctx context.Context) (*time.Time, error) {
	var row struct {
		LatestCDCTimestamp *time.Time
	}
	err := d.cdc.Execute(ctx, func(tx *gorm.DB) error {
		return tx.Raw(`SELECT MAX(cdc_timestamp) AS latest_cdc_timestamp FROM dim_orders_history`).Scan(&row).Error
	})
	if err != nil {
		return nil, fmt.Errorf("freshness query failed: %w", err)
	}
	return row.LatestCDCTimestamp, nil
}

// CheckVolume compares the last hour's ingestion count against the stored
// hourly baseline. Missing baseline or an empty current window skips the
// check instead of failing it.
func (d *Detector) CheckVolume(ctx context.Context) (CheckResult, error) {
	result := CheckResult{Check: "volume"}

	var baseline *types.Baseline
	err := d.cdc.Execute(ctx, func(tx *gorm.DB) error {
		b, err := d.baselines.GetLatest(ctx, tx, types.MetricHourlyIngestionRate, monitoredTable)
		if err != nil {
			return err
		}
		baseline = b
		return nil
	})
	if errors.Is(err, repos.ErrNoBaseline) {
		result.SkipReason = "no baseline available"
		d.log.Warn("Cannot perform volume check: no baseline available")
		return result, nil
	}
	if err != nil {
		return result, err
	}

	count, latest, err := d.currentVolume(ctx)
	if err != nil {
		return result, err
	}
	if latest == nil {
		result.SkipReason = "no current data"
		d.log.Warn("Cannot perform volume check: no current data")
		return result, nil
	}

	z := ZScore(float64(count), baseline.MeanValue, baseline.StdDeviation)
	result.Performed = true
	result.MetricValue = float64(count)
	result.ZScore = z

	threshold := d.mon.VolumeAnomalyThreshold
	if z > threshold {
		result.Triggered = true
		metricValue := float64(count)
		thresholdValue := baseline.MeanValue + threshold*baseline.StdDeviation
		details, _ := json.Marshal(map[string]any{
			"current_count":    count,
			"baseline_mean":    baseline.MeanValue,
			"baseline_std_dev": baseline.StdDeviation,
			"sample_size":      baseline.SampleSize,
			"z_score":          z,
			"latest_timestamp": latest.UTC().Format(time.RFC3339),
			"threshold":        threshold,
		})
		if err := d.logAlert(ctx, &types.Alert{
			AlertType:      types.AlertVolumeAnomaly,
			AlertSeverity:  d.mon.AlertSeverity,
			Description:    fmt.Sprintf("Volume anomaly detected: %d records (Z-Score: %.2f)", count, z),
			SourceTable:    monitoredTable,
			MetricValue:    &metricValue,
			ThresholdValue: &thresholdValue,
			ZScore:         &z,
			Details:        datatypes.JSON(details),
		}); err != nil {
			return result, err
		}
		d.log.Error("Volume anomaly detected", "z_score", z, "threshold", threshold)
	} else {
		d.log.Info("Volume check passed", "z_score", z, "threshold", threshold)
	}
	return result, nil
}

// CheckFreshness measures minutes since the newest event timestamp.
// Timestamps arrive without a zone from the driver and are read as UTC.
func (d *Detector) CheckFreshness(ctx context.Context) (CheckResult, error) {
	result := CheckResult{Check: "freshness"}

	latest, err := d.latestEvent(ctx)
	if err != nil {
		return result, err
	}
	if latest == nil {
		result.SkipReason = "no timestamp data"
		d.log.Warn("Cannot perform freshness check: no timestamp data")
		return result, nil
	}

	now := d.now()
	ageMinutes := now.Sub(latest.UTC()).Minutes()
	result.Performed = true
	result.MetricValue = ageMinutes

	threshold := float64(d.mon.FreshnessThresholdMinutes)
	if ageMinutes > threshold {
		result.Triggered = true
		details, _ := json.Marshal(map[string]any{
			"latest_timestamp":   latest.UTC().Format(time.RFC3339),
			"current_timestamp":  now.Format(time.RFC3339),
			"minutes_since_last": ageMinutes,
			"threshold_minutes":  d.mon.FreshnessThresholdMinutes,
		})
		if err := d.logAlert(ctx, &types.Alert{
			AlertType:      types.AlertStaleDataFlow,
			AlertSeverity:  d.mon.AlertSeverity,
			Description:    fmt.Sprintf("Data flow stale: %.1f minutes since last record", ageMinutes),
			SourceTable:    monitoredTable,
			MetricValue:    &ageMinutes,
			ThresholdValue: &threshold,
			Details:        datatypes.JSON(details),
		}); err != nil {
			return result, err
		}
		d.log.Error("Freshness anomaly detected", "minutes_since_last", ageMinutes, "threshold_minutes", threshold)
	} else {
		d.log.Info("Freshness check passed", "minutes_since_last", ageMinutes, "threshold_minutes", threshold)
	}
	return result, nil
}

// logAlert persists the alert idempotently and, when a row was actually
// written and a bus is wired, publishes it. Publish failures are logged,
// not propagated; the alert of record is the database row.
func (d *Detector) logAlert(ctx context.Context, a *types.Alert) error {
	var inserted bool
	err := d.cdc.Execute(ctx, func(tx *gorm.DB) error {
		var err error
		inserted, err = d.alerts.Log(ctx, tx, a)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to log alert: %w", err)
	}
	if inserted && d.bus != nil {
		if err := d.bus.Publish(ctx, a); err != nil {
			d.log.Warn("Failed to publish alert", "error", err, "alert_type", a.AlertType)
		}
	}
	return nil
}

// Run executes both checks. One check failing does not stop the other;
// their errors are joined.
func (d *Detector) Run(ctx context.Context) (Findings, error) {
	var out Findings
	var errs []error

	volume, err := d.CheckVolume(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	out.Volume = volume

	freshness, err := d.CheckFreshness(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	out.Freshness = freshness

	if volume.Triggered {
		out.Anomalies++
	}
	if freshness.Triggered {
		out.Anomalies++
	}
	return out, errors.Join(errs...)
}
