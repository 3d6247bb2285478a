package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type AlertType string

const (
	AlertVolumeAnomaly     AlertType = "VOLUME_ANOMALY"
	AlertStaleDataFlow     AlertType = "STALE_DATA_FLOW"
	AlertContractViolation AlertType = "CONTRACT_VIOLATION"
)

const SeverityCritical = "CRITICAL"

// Alert is one detected anomaly or contract violation. The unique index
// covers the dedup window start rather than the raw emission timestamp, so
// an equivalent alert within the same window is recorded at most once.
// ContractName and FieldName are part of the key and therefore stored as
// empty strings, not NULLs, when absent.
type Alert struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AlertType     AlertType `gorm:"size:50;not null;uniqueIndex:idx_alert_dedup" json:"alert_type"`
	AlertSeverity string    `gorm:"size:20;not null;default:'CRITICAL'" json:"alert_severity"`
	Description   string    `gorm:"type:text;not null" json:"description"`
	SourceTable   string    `gorm:"size:100;not null;uniqueIndex:idx_alert_dedup" json:"source_table"`

	ContractName string  `gorm:"size:100;not null;default:'';uniqueIndex:idx_alert_dedup" json:"contract_name,omitempty"`
	FieldName    string  `gorm:"size:100;not null;default:'';uniqueIndex:idx_alert_dedup" json:"field_name,omitempty"`
	ExpectedType *string `gorm:"size:50" json:"expected_type,omitempty"`
	ActualType   *string `gorm:"size:50" json:"actual_type,omitempty"`

	MetricValue    *float64 `json:"metric_value,omitempty"`
	ThresholdValue *float64 `json:"threshold_value,omitempty"`
	ZScore         *float64 `json:"z_score,omitempty"`

	Details        datatypes.JSON `gorm:"type:jsonb" json:"details,omitempty"`
	AlertTimestamp time.Time      `gorm:"not null" json:"alert_timestamp"`
	WindowStart    time.Time      `gorm:"not null;uniqueIndex:idx_alert_dedup" json:"window_start"`

	Resolved          bool       `gorm:"not null;default:false" json:"resolved"`
	ResolvedTimestamp *time.Time `json:"resolved_timestamp,omitempty"`
}

func (Alert) TableName() string { return "alerts" }
