package types

import (
	"time"

	"github.com/google/uuid"
)

// Metric names the profiler maintains baselines for.
const (
	MetricDailyRowCount       = "daily_row_count"
	MetricHourlyIngestionRate = "hourly_ingestion_rate"
)

// Baseline is the stored statistical reference for one metric on one table.
// Recalculation overwrites the row in place; there is never more than one
// row per (metric, source, table).
type Baseline struct {
	ID                   uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	MetricName           string    `gorm:"size:100;not null;uniqueIndex:idx_baseline_key" json:"metric_name"`
	SourceDatabase       string    `gorm:"size:50;not null;uniqueIndex:idx_baseline_key" json:"source_database"`
	TableName            string    `gorm:"size:100;not null;uniqueIndex:idx_baseline_key" json:"table_name"`
	MeanValue            float64   `gorm:"not null" json:"mean_value"`
	StdDeviation         float64   `gorm:"not null" json:"std_deviation"`
	SampleSize           int       `gorm:"not null" json:"sample_size"`
	CalculationTimestamp time.Time `gorm:"not null" json:"calculation_timestamp"`
}
