package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy holds engine defaults loaded from a YAML policy file. Fields are
// pointers so that an omitted key leaves the database default untouched.
type Policy struct {
	Scan struct {
		Enabled           *bool   `yaml:"enabled"`
		IntervalMinutes   *int    `yaml:"interval_minutes"`
		TimeWindowMinutes *int    `yaml:"time_window_minutes"`
		MinSeverity       *string `yaml:"min_severity"`
	} `yaml:"scan"`

	Execution struct {
		DefaultTimeoutSeconds *int `yaml:"default_timeout_seconds"`
	} `yaml:"execution"`

	Rollback struct {
		MaxWindowHours   *int     `yaml:"max_window_hours"`
		RequiresApproval *bool    `yaml:"requires_approval"`
		Denylist         []string `yaml:"denylist"`
	} `yaml:"rollback"`

	Detectors struct {
		StuckTaskThresholdMinutes       *int     `yaml:"stuck_task_threshold_minutes"`
		IntegrationFailureThreshold     *int     `yaml:"integration_failure_threshold"`
		WorkloadImbalanceRatio          *float64 `yaml:"workload_imbalance_ratio"`
		ApprovalPendingThresholdMinutes *int     `yaml:"approval_pending_threshold_minutes"`
	} `yaml:"detectors"`
}

// LoadPolicy reads and parses a YAML policy file
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var policy Policy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	return &policy, nil
}
