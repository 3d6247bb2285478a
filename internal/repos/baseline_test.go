package repos

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mrohitth/data-observability-platform/internal/logger"
	"github.com/mrohitth/data-observability-platform/internal/types"
)

func TestBaselineUpsert_SecondWriteOverwritesInPlace(t *testing.T) {
	db := testDB(t)
	repo := NewBaselineRepo(db, logger.NewNop())
	ctx := context.Background()

	first := &types.Baseline{
		MetricName:           types.MetricHourlyIngestionRate,
		SourceDatabase:       "cdc_history_db",
		TableName:            "dim_orders_history",
		MeanValue:            1000,
		StdDeviation:         100,
		SampleSize:           24,
		CalculationTimestamp: time.Now().UTC().Add(-time.Hour),
	}
	if err := repo.Upsert(ctx, nil, first); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	second := &types.Baseline{
		MetricName:     types.MetricHourlyIngestionRate,
		SourceDatabase: "cdc_history_db",
		TableName:      "dim_orders_history",
		MeanValue:      1200,
		StdDeviation:   80,
		SampleSize:     24,
	}
	if err := repo.Upsert(ctx, nil, second); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	var count int64
	db.Model(&types.Baseline{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected exactly one baseline row, got %d", count)
	}

	got, err := repo.GetLatest(ctx, nil, types.MetricHourlyIngestionRate, "dim_orders_history")
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}
	if got.MeanValue != 1200 || got.StdDeviation != 80 {
		t.Fatalf("expected latest values 1200/80, got %v/%v", got.MeanValue, got.StdDeviation)
	}
	if !got.CalculationTimestamp.After(first.CalculationTimestamp) {
		t.Fatalf("expected refreshed calculation timestamp")
	}
}

func TestBaselineUpsert_DistinctKeysCreateDistinctRows(t *testing.T) {
	db := testDB(t)
	repo := NewBaselineRepo(db, logger.NewNop())
	ctx := context.Background()

	for _, metric := range []string{types.MetricDailyRowCount, types.MetricHourlyIngestionRate} {
		if err := repo.Upsert(ctx, nil, &types.Baseline{
			MetricName:     metric,
			SourceDatabase: "batch_analytics_db",
			TableName:      "marts.fact_orders",
			MeanValue:      1,
			SampleSize:     1,
		}); err != nil {
			t.Fatalf("upsert %s failed: %v", metric, err)
		}
	}

	var count int64
	db.Model(&types.Baseline{}).Count(&count)
	if count != 2 {
		t.Fatalf("expected two rows for two metrics, got %d", count)
	}
}

func TestBaselineGetLatest_MissingRowIsErrNoBaseline(t *testing.T) {
	db := testDB(t)
	repo := NewBaselineRepo(db, logger.NewNop())

	_, err := repo.GetLatest(context.Background(), nil, types.MetricDailyRowCount, "nowhere")
	if !errors.Is(err, ErrNoBaseline) {
		t.Fatalf("expected ErrNoBaseline, got %v", err)
	}
}

func TestBaselineCountsByMetric(t *testing.T) {
	db := testDB(t)
	repo := NewBaselineRepo(db, logger.NewNop())
	ctx := context.Background()

	seed := []struct{ metric, table string }{
		{types.MetricDailyRowCount, "marts.fact_orders"},
		{types.MetricHourlyIngestionRate, "dim_orders_history"},
	}
	for _, s := range seed {
		if err := repo.Upsert(ctx, nil, &types.Baseline{
			MetricName: s.metric, SourceDatabase: "db", TableName: s.table,
			MeanValue: 1, SampleSize: 1,
		}); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	counts, err := repo.CountsByMetric(ctx, nil)
	if err != nil {
		t.Fatalf("CountsByMetric failed: %v", err)
	}
	if counts[types.MetricDailyRowCount] != 1 || counts[types.MetricHourlyIngestionRate] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}
