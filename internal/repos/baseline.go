package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrohitth/data-observability-platform/internal/logger"
	"github.com/mrohitth/data-observability-platform/internal/types"
)

// ErrNoBaseline reports that no baseline exists yet for the requested
// metric and table, as distinct from a connectivity or query failure.
var ErrNoBaseline = errors.New("no baseline available")

type BaselineRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, b *types.Baseline) error
	GetLatest(ctx context.Context, tx *gorm.DB, metricName, tableName string) (*types.Baseline, error)
	CountsByMetric(ctx context.Context, tx *gorm.DB) (map[string]int64, error)
}

type baselineRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBaselineRepo(db *gorm.DB, baseLog *logger.Logger) BaselineRepo {
	return &baselineRepo{
		db:  db,
		log: baseLog.With("repo", "BaselineRepo"),
	}
}

// Upsert writes a baseline keyed by (metric, source, table). On conflict
// the statistics and calculation timestamp are overwritten in place; a
// second row for the same key is never created.
func (r *baselineRepo) Upsert(ctx context.Context, tx *gorm.DB, b *types.Baseline) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.CalculationTimestamp.IsZero() {
		b.CalculationTimestamp = time.Now().UTC()
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "metric_name"}, {Name: "source_database"}, {Name: "table_name"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"mean_value", "std_deviation", "sample_size", "calculation_timestamp",
			}),
		}).
		Create(b).Error
}

func (r *baselineRepo) GetLatest(ctx context.Context, tx *gorm.DB, metricName, tableName string) (*types.Baseline, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.Baseline
	err := transaction.WithContext(ctx).
		Where("metric_name = ? AND table_name = ?", metricName, tableName).
		Order("calculation_timestamp DESC").
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, ErrNoBaseline
	}
	return &row, nil
}

func (r *baselineRepo) CountsByMetric(ctx context.Context, tx *gorm.DB) (map[string]int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []struct {
		MetricName string
		Count      int64
	}
	err := transaction.WithContext(ctx).
		Model(&types.Baseline{}).
		Select("metric_name, COUNT(*) as count").
		Group("metric_name").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.MetricName] = row.Count
	}
	return out, nil
}
