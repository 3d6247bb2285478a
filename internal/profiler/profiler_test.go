package profiler

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/mrohitth/data-observability-platform/internal/config"
	"github.com/mrohitth/data-observability-platform/internal/logger"
	"github.com/mrohitth/data-observability-platform/internal/types"
)

func TestStatistics_EmptyInput(t *testing.T) {
	_, err := Statistics(nil)
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestStatistics_SingleValueHasZeroStdDev(t *testing.T) {
	stats, err := Statistics([]float64{42})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Mean != 42 {
		t.Fatalf("expected mean 42, got %v", stats.Mean)
	}
	if stats.StdDev != 0 {
		t.Fatalf("expected stddev exactly 0 for a single value, got %v", stats.StdDev)
	}
	if stats.SampleSize != 1 {
		t.Fatalf("expected sample size 1, got %d", stats.SampleSize)
	}
}

func TestStatistics_SampleStdDev(t *testing.T) {
	// mean 4, sample variance 10/3
	stats, err := Statistics([]float64{2, 4, 6})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Mean != 4 {
		t.Fatalf("expected mean 4, got %v", stats.Mean)
	}
	want := math.Sqrt(10.0 / 3.0)
	if math.Abs(stats.StdDev-want) > 1e-12 {
		t.Fatalf("expected sample stddev %v, got %v", want, stats.StdDev)
	}
}

type fakeStore struct {
	database  string
	execCalls int
}

func (f *fakeStore) Execute(ctx context.Context, op func(tx *gorm.DB) error) error {
	f.execCalls++
	return op(nil)
}

func (f *fakeStore) Database() string { return f.database }

type recordingBaselineRepo struct {
	upserts []*types.Baseline
}

func (r *recordingBaselineRepo) Upsert(ctx context.Context, tx *gorm.DB, b *types.Baseline) error {
	r.upserts = append(r.upserts, b)
	return nil
}

func (r *recordingBaselineRepo) GetLatest(ctx context.Context, tx *gorm.DB, metricName, tableName string) (*types.Baseline, error) {
	return nil, gorm.ErrRecordNotFound
}

func (r *recordingBaselineRepo) CountsByMetric(ctx context.Context, tx *gorm.DB) (map[string]int64, error) {
	return nil, nil
}

func testProfiler(repo *recordingBaselineRepo) (*Profiler, *fakeStore) {
	mon := config.MonitoringConfig{ProfileDaysBack: 30, ProfileHoursBack: 24}
	cdc := &fakeStore{database: "cdc_history_db"}
	p := New(mon, &fakeStore{database: "batch_analytics_db"}, cdc, repo, logger.NewNop())
	return p, cdc
}

func TestRun_StoresBaselinePerMetric(t *testing.T) {
	repo := &recordingBaselineRepo{}
	p, cdc := testProfiler(repo)
	now := time.Now().UTC()
	p.dailySeries = func(ctx context.Context) ([]Point, error) {
		return []Point{{now, 100}, {now.Add(-24 * time.Hour), 120}}, nil
	}
	p.hourlySeries = func(ctx context.Context) ([]Point, error) {
		return []Point{{now, 10}, {now.Add(-time.Hour), 10}, {now.Add(-2 * time.Hour), 13}}, nil
	}

	sum, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if sum.BaselinesStored != 2 || len(sum.SkippedMetrics) != 0 {
		t.Fatalf("expected 2 baselines and no skips, got %+v", sum)
	}
	if len(repo.upserts) != 2 {
		t.Fatalf("expected 2 upserts, got %d", len(repo.upserts))
	}

	daily := repo.upserts[0]
	if daily.MetricName != types.MetricDailyRowCount {
		t.Fatalf("expected daily metric first, got %s", daily.MetricName)
	}
	if daily.SourceDatabase != "batch_analytics_db" || daily.TableName != "marts.fact_orders" {
		t.Fatalf("unexpected daily baseline identity: %+v", daily)
	}
	if daily.MeanValue != 110 || daily.SampleSize != 2 {
		t.Fatalf("unexpected daily stats: mean=%v n=%d", daily.MeanValue, daily.SampleSize)
	}

	hourly := repo.upserts[1]
	if hourly.MetricName != types.MetricHourlyIngestionRate || hourly.SourceDatabase != "cdc_history_db" {
		t.Fatalf("unexpected hourly baseline identity: %+v", hourly)
	}
	if hourly.MeanValue != 11 {
		t.Fatalf("expected hourly mean 11, got %v", hourly.MeanValue)
	}

	// Both upserts go through the store's resilient execute path, not a
	// bare handle.
	if cdc.execCalls != 2 {
		t.Fatalf("expected 2 executes for 2 upserts, got %d", cdc.execCalls)
	}
}

func TestRun_EmptySeriesIsSkippedNotFailed(t *testing.T) {
	repo := &recordingBaselineRepo{}
	p, _ := testProfiler(repo)
	p.dailySeries = func(ctx context.Context) ([]Point, error) { return nil, nil }
	p.hourlySeries = func(ctx context.Context) ([]Point, error) {
		return []Point{{time.Now().UTC(), 5}}, nil
	}

	sum, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if sum.BaselinesStored != 1 {
		t.Fatalf("expected 1 baseline, got %d", sum.BaselinesStored)
	}
	if len(sum.SkippedMetrics) != 1 || sum.SkippedMetrics[0] != types.MetricDailyRowCount {
		t.Fatalf("expected daily metric skipped, got %v", sum.SkippedMetrics)
	}
}

func TestRun_QueryErrorPropagates(t *testing.T) {
	repo := &recordingBaselineRepo{}
	p, _ := testProfiler(repo)
	boom := errors.New("connection refused")
	p.dailySeries = func(ctx context.Context) ([]Point, error) { return nil, boom }

	_, err := p.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected query error to propagate, got %v", err)
	}
	if len(repo.upserts) != 0 {
		t.Fatalf("expected no upserts after failure, got %d", len(repo.upserts))
	}
}
