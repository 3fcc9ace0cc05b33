// Package detectors holds the built-in pattern detectors. Each detector runs a
// threshold-driven query over the operational read model and normalizes the
// findings into patterns; thresholds live in the engine settings singleton.
package detectors

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/automend/automend/internal/database"
	"github.com/automend/automend/internal/patterns"
)

// StuckWorkflowDetector finds open tasks that have not moved for longer than
// the configured threshold.
type StuckWorkflowDetector struct {
	db *gorm.DB
}

// NewStuckWorkflowDetector creates a stuck workflow detector
func NewStuckWorkflowDetector(db *gorm.DB) *StuckWorkflowDetector {
	return &StuckWorkflowDetector{db: db}
}

// PatternType returns the pattern type this detector produces
func (d *StuckWorkflowDetector) PatternType() string {
	return patterns.TypeStuckWorkflow
}

// Detect finds tasks stuck past the threshold
func (d *StuckWorkflowDetector) Detect(orgID string, windowMinutes int) ([]patterns.Pattern, error) {
	settings, err := database.GetOrCreateEngineSettings(d.db)
	if err != nil {
		return nil, err
	}

	threshold := time.Duration(settings.StuckTaskThresholdMinutes) * time.Minute
	cutoff := time.Now().Add(-threshold)

	var tasks []database.WorkflowTask
	err = d.db.Where("organization_id = ? AND status IN ? AND updated_at < ?",
		orgID, database.OpenTaskStatuses(), cutoff).
		Order("updated_at asc").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("stuck workflow query failed: %w", err)
	}
	if len(tasks) == 0 {
		return nil, nil
	}

	entities := make([]string, 0, len(tasks))
	for _, t := range tasks {
		entities = append(entities, t.UUID)
	}

	oldest := tasks[0].UpdatedAt
	severity := database.PatternSeverityMedium
	switch {
	case time.Since(oldest) > 4*threshold:
		severity = database.PatternSeverityCritical
	case time.Since(oldest) > 2*threshold:
		severity = database.PatternSeverityHigh
	}

	now := time.Now()
	p := patterns.Pattern{
		ID:               patterns.Fingerprint(orgID, patterns.TypeStuckWorkflow, entities),
		Type:             patterns.TypeStuckWorkflow,
		OrganizationID:   orgID,
		Description:      fmt.Sprintf("%d workflow tasks have not progressed for over %d minutes", len(tasks), settings.StuckTaskThresholdMinutes),
		Severity:         severity,
		AffectedEntities: entities,
		Occurrences:      len(tasks),
		FirstDetectedAt:  oldest,
		LastDetectedAt:   now,
		SuggestedActions: []string{"reassign_tasks", "escalate"},
	}
	return []patterns.Pattern{p}, nil
}
