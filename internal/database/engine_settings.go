package database

import (
	"time"

	"gorm.io/gorm"
)

// EngineSettings controls the self-healing engine behavior (singleton row)
type EngineSettings struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// Detection scan
	ScanEnabled         bool   `gorm:"default:true" json:"scan_enabled"`
	ScanIntervalMinutes int    `gorm:"default:5" json:"scan_interval_minutes"`
	TimeWindowMinutes   int    `gorm:"default:60" json:"time_window_minutes"`
	MinSeverity         string `gorm:"size:16;default:'low'" json:"min_severity"`

	// Execution
	DefaultTimeoutSeconds int `gorm:"default:60" json:"default_timeout_seconds"`

	// Rollback policy
	MaxRollbackWindowHours   int    `gorm:"default:24" json:"max_rollback_window_hours"`
	RollbackRequiresApproval bool   `gorm:"default:false" json:"rollback_requires_approval"`
	RollbackDenylist         string `gorm:"type:text" json:"rollback_denylist"` // comma-separated action types

	// Detector thresholds
	StuckTaskThresholdMinutes       int     `gorm:"default:120" json:"stuck_task_threshold_minutes"`
	IntegrationFailureThreshold     int     `gorm:"default:3" json:"integration_failure_threshold"`
	WorkloadImbalanceRatio          float64 `gorm:"type:decimal(4,2);default:2.0" json:"workload_imbalance_ratio"`
	ApprovalPendingThresholdMinutes int     `gorm:"default:240" json:"approval_pending_threshold_minutes"`

	// Slack delivery
	SlackEnabled  bool   `gorm:"default:false" json:"slack_enabled"`
	SlackBotToken string `gorm:"type:text" json:"slack_bot_token"`
	SlackChannel  string `gorm:"size:255" json:"slack_channel"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (EngineSettings) TableName() string {
	return "engine_settings"
}

// NewDefaultEngineSettings returns settings with default values
func NewDefaultEngineSettings() *EngineSettings {
	return &EngineSettings{
		ScanEnabled:                     true,
		ScanIntervalMinutes:             5,
		TimeWindowMinutes:               60,
		MinSeverity:                     string(PatternSeverityLow),
		DefaultTimeoutSeconds:           60,
		MaxRollbackWindowHours:          24,
		RollbackRequiresApproval:        false,
		StuckTaskThresholdMinutes:       120,
		IntegrationFailureThreshold:     3,
		WorkloadImbalanceRatio:          2.0,
		ApprovalPendingThresholdMinutes: 240,
	}
}

// DefaultTimeout returns the configured execution deadline as a duration
func (s *EngineSettings) DefaultTimeout() time.Duration {
	if s.DefaultTimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(s.DefaultTimeoutSeconds) * time.Second
}

// SlackConfigured returns true if Slack delivery can be attempted
func (s *EngineSettings) SlackConfigured() bool {
	return s.SlackEnabled && s.SlackBotToken != "" && s.SlackChannel != ""
}

// GetOrCreateEngineSettings retrieves or creates engine settings (singleton).
// Accepts a db parameter to support transaction contexts and testing.
func GetOrCreateEngineSettings(db *gorm.DB) (*EngineSettings, error) {
	var settings EngineSettings
	result := db.First(&settings)
	if result.Error == gorm.ErrRecordNotFound {
		settings = *NewDefaultEngineSettings()
		if err := db.Create(&settings).Error; err != nil {
			return nil, err
		}
	} else if result.Error != nil {
		return nil, result.Error
	}
	return &settings, nil
}

// UpdateEngineSettings updates engine settings.
// Uses Save() which handles both insert and update operations.
func UpdateEngineSettings(db *gorm.DB, settings *EngineSettings) error {
	return db.Save(settings).Error
}
