package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrohitth/data-observability-platform/internal/logger"
	"github.com/mrohitth/data-observability-platform/internal/types"
)

type AlertRepo interface {
	// Log inserts an alert idempotently. Returns true when a row was
	// written, false when an equivalent alert already existed in the
	// same dedup window.
	Log(ctx context.Context, tx *gorm.DB, a *types.Alert) (bool, error)
	RecentCounts(ctx context.Context, tx *gorm.DB, window time.Duration) (map[types.AlertType]int64, error)
	Resolve(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type alertRepo struct {
	db          *gorm.DB
	log         *logger.Logger
	dedupWindow time.Duration
}

func NewAlertRepo(db *gorm.DB, dedupWindow time.Duration, baseLog *logger.Logger) AlertRepo {
	return &alertRepo{
		db:          db,
		log:         baseLog.With("repo", "AlertRepo"),
		dedupWindow: dedupWindow,
	}
}

func (r *alertRepo) Log(ctx context.Context, tx *gorm.DB, a *types.Alert) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.AlertSeverity == "" {
		a.AlertSeverity = types.SeverityCritical
	}
	if a.AlertTimestamp.IsZero() {
		a.AlertTimestamp = time.Now().UTC()
	}
	a.WindowStart = a.AlertTimestamp.Truncate(r.dedupWindow)

	res := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "alert_type"}, {Name: "source_table"},
				{Name: "contract_name"}, {Name: "field_name"},
				{Name: "window_start"},
			},
			DoNothing: true,
		}).
		Create(a)
	if res.Error != nil {
		return false, res.Error
	}
	inserted := res.RowsAffected > 0
	if !inserted {
		r.log.Debug("Duplicate alert suppressed",
			"alert_type", a.AlertType,
			"source_table", a.SourceTable,
			"window_start", a.WindowStart,
		)
	}
	return inserted, nil
}

func (r *alertRepo) RecentCounts(ctx context.Context, tx *gorm.DB, window time.Duration) (map[types.AlertType]int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	cutoff := time.Now().UTC().Add(-window)
	var rows []struct {
		AlertType types.AlertType
		Count     int64
	}
	err := transaction.WithContext(ctx).
		Model(&types.Alert{}).
		Select("alert_type, COUNT(*) as count").
		Where("alert_timestamp >= ?", cutoff).
		Group("alert_type").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[types.AlertType]int64, len(rows))
	for _, row := range rows {
		out[row.AlertType] = row.Count
	}
	return out, nil
}

// Resolve marks an alert handled. Nothing in the run loop calls this; it
// exists for operators closing out investigated alerts.
func (r *alertRepo) Resolve(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now().UTC()
	return transaction.WithContext(ctx).
		Model(&types.Alert{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"resolved":           true,
			"resolved_timestamp": now,
		}).Error
}
