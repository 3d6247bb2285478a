package profiler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/mrohitth/data-observability-platform/internal/config"
	"github.com/mrohitth/data-observability-platform/internal/logger"
	"github.com/mrohitth/data-observability-platform/internal/repos"
	"github.com/mrohitth/data-observability-platform/internal/types"
)

// ErrInsufficientData reports that a statistic was requested over an empty
// series. Callers treat it as "skip this metric", not as a failure.
var ErrInsufficientData = errors.New("insufficient data for statistics")

// Point is one bucket of an ordered metric series, newest first.
type Point struct {
	Bucket time.Time
	Value  float64
}

// Stats holds the summary of one series.
type Stats struct {
	Mean       float64
	StdDev     float64
	SampleSize int
}

// Summary reports what one profiling run accomplished.
type Summary struct {
	BaselinesStored int
	SkippedMetrics  []string
}

// Store is the slice of db.Source the profiler needs.
type Store interface {
	Execute(ctx context.Context, op func(tx *gorm.DB) error) error
	Database() string
}

// Profiler derives statistical baselines from the monitored tables and
// persists them for the detector to compare against.
type Profiler struct {
	mon       config.MonitoringConfig
	batch     Store
	cdc       Store
	baselines repos.BaselineRepo
	log       *logger.Logger

	// series fetchers, swapped in tests
	dailySeries  func(ctx context.Context) ([]Point, error)
	hourlySeries func(ctx context.Context) ([]Point, error)
}

func New(mon config.MonitoringConfig, batch, cdc Store, baselines repos.BaselineRepo, baseLog *logger.Logger) *Profiler {
	p := &Profiler{
		mon:       mon,
		batch:     batch,
		cdc:       cdc,
		baselines: baselines,
		log:       baseLog.With("service", "Profiler"),
	}
	p.dailySeries = p.queryDailyRowCounts
	p.hourlySeries = p.queryHourlyIngestion
	return p
}

// queryDailyRowCounts buckets the batch fact table by calendar day over the
// configured lookback. An empty window yields an empty slice.
func (p *Profiler) queryDailyRowCounts(ctx context.Context) ([]Point, error) {
	var rows []Point
	err := p.batch.Execute(ctx, func(tx *gorm.DB) error {
		return tx.Raw(`
			SELECT DATE(order_timestamp) AS bucket, COUNT(*) AS value
			FROM marts.fact_orders
			WHERE order_timestamp >= CURRENT_DATE - make_interval(days => ?)
			GROUP BY DATE(order_timestamp)
			ORDER BY bucket DESC`, p.mon.ProfileDaysBack).Scan(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("daily row count query failed: %w", err)
	}
	return rows, nil
}

// queryHourlyIngestion buckets the history table by ingestion hour over the
// configured lookback.
func (p *Profiler) queryHourlyIngestion(ctx context.Context) ([]Point, error) {
	var rows []Point
	err := p.cdc.Execute(ctx, func(tx *gorm.DB) error {
		return tx.Raw(`
			SELECT DATE_TRUNC('hour', created_at) AS bucket, COUNT(*) AS value
			FROM dim_orders_history
			WHERE created_at >= CURRENT_TIMESTAMP - make_interval(hours => ?)
			GROUP BY DATE_TRUNC('hour', created_at)
			ORDER BY bucket DESC`, p.mon.ProfileHoursBack).Scan(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("hourly ingestion query failed: %w", err)
	}
	return rows, nil
}

// Statistics computes the arithmetic mean and sample standard deviation of
// values. A single observation has a standard deviation of exactly 0.
func Statistics(values []float64) (Stats, error) {
	n := len(values)
	if n == 0 {
		return Stats{}, ErrInsufficientData
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)

	stddev := 0.0
	if n > 1 {
		var ss float64
		for _, v := range values {
			d := v - mean
			ss += d * d
		}
		stddev = math.Sqrt(ss / float64(n-1))
	}
	return Stats{Mean: mean, StdDev: stddev, SampleSize: n}, nil
}

type metricJob struct {
	metric string
	source Store
	table  string
	fetch  func(ctx context.Context) ([]Point, error)
}

// Run profiles every configured metric and upserts the resulting baselines.
// Metrics with no observations in the lookback window are skipped and
// reported; they do not fail the run.
func (p *Profiler) Run(ctx context.Context) (Summary, error) {
	jobs := []metricJob{
		{types.MetricDailyRowCount, p.batch, "marts.fact_orders", p.dailySeries},
		{types.MetricHourlyIngestionRate, p.cdc, "dim_orders_history", p.hourlySeries},
	}

	var out Summary
	for _, job := range jobs {
		series, err := job.fetch(ctx)
		if err != nil {
			return out, err
		}
		if len(series) == 0 {
			p.log.Warn("No data in profiling window, skipping metric",
				"metric", job.metric, "table", job.table)
			out.SkippedMetrics = append(out.SkippedMetrics, job.metric)
			continue
		}

		values := make([]float64, len(series))
		for i, pt := range series {
			values[i] = pt.Value
		}
		stats, err := Statistics(values)
		if err != nil {
			out.SkippedMetrics = append(out.SkippedMetrics, job.metric)
			continue
		}

		b := &types.Baseline{
			MetricName:           job.metric,
			SourceDatabase:       job.source.Database(),
			TableName:            job.table,
			MeanValue:            stats.Mean,
			StdDeviation:         stats.StdDev,
			SampleSize:           stats.SampleSize,
			CalculationTimestamp: time.Now().UTC(),
		}
		err = p.cdc.Execute(ctx, func(tx *gorm.DB) error {
			return p.baselines.Upsert(ctx, tx, b)
		})
		if err != nil {
			return out, fmt.Errorf("failed to store baseline for %s: %w", job.metric, err)
		}
		out.BaselinesStored++
		p.log.Info("Baseline stored",
			"metric", job.metric,
			"table", job.table,
			"mean", stats.Mean,
			"std_dev", stats.StdDev,
			"sample_size", stats.SampleSize,
		)
	}
	return out, nil
}
