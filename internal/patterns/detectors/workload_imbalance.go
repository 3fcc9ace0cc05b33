package detectors

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/automend/automend/internal/database"
	"github.com/automend/automend/internal/patterns"
)

// WorkloadImbalanceDetector finds people carrying far more open tasks than the
// organization average.
type WorkloadImbalanceDetector struct {
	db *gorm.DB
}

// NewWorkloadImbalanceDetector creates a workload imbalance detector
func NewWorkloadImbalanceDetector(db *gorm.DB) *WorkloadImbalanceDetector {
	return &WorkloadImbalanceDetector{db: db}
}

// PatternType returns the pattern type this detector produces
func (d *WorkloadImbalanceDetector) PatternType() string {
	return patterns.TypeWorkloadImbalance
}

// minOverloadedTasks avoids flagging tiny workloads where the ratio is noisy
const minOverloadedTasks = 3

// Detect compares per-person open task counts against the organization average
func (d *WorkloadImbalanceDetector) Detect(orgID string, windowMinutes int) ([]patterns.Pattern, error) {
	settings, err := database.GetOrCreateEngineSettings(d.db)
	if err != nil {
		return nil, err
	}

	var people []database.Person
	err = d.db.Where("organization_id = ? AND is_active = ?", orgID, true).Find(&people).Error
	if err != nil {
		return nil, fmt.Errorf("workload imbalance person query failed: %w", err)
	}
	if len(people) < 2 {
		return nil, nil
	}

	counts := make(map[string]int64, len(people))
	var total int64
	for _, p := range people {
		var n int64
		err := d.db.Model(&database.WorkflowTask{}).
			Where("organization_id = ? AND assignee_uuid = ? AND status IN ?",
				orgID, p.UUID, database.OpenTaskStatuses()).
			Count(&n).Error
		if err != nil {
			return nil, fmt.Errorf("workload imbalance task count failed: %w", err)
		}
		counts[p.UUID] = n
		total += n
	}
	if total == 0 {
		return nil, nil
	}

	avg := float64(total) / float64(len(people))
	ratio := settings.WorkloadImbalanceRatio
	if ratio <= 1 {
		ratio = 2.0
	}

	var overloaded []string
	var overloadedTasks int64
	for _, p := range people {
		n := counts[p.UUID]
		if n >= minOverloadedTasks && float64(n) >= ratio*avg {
			overloaded = append(overloaded, p.UUID)
			overloadedTasks += n
		}
	}
	if len(overloaded) == 0 {
		return nil, nil
	}

	severity := database.PatternSeverityMedium
	if len(overloaded) > 1 {
		severity = database.PatternSeverityHigh
	}

	now := time.Now()
	p := patterns.Pattern{
		ID:               patterns.Fingerprint(orgID, patterns.TypeWorkloadImbalance, overloaded),
		Type:             patterns.TypeWorkloadImbalance,
		OrganizationID:   orgID,
		Description:      fmt.Sprintf("%d people carry %.1fx the average open workload", len(overloaded), ratio),
		Severity:         severity,
		AffectedEntities: overloaded,
		Occurrences:      int(overloadedTasks),
		FirstDetectedAt:  now.Add(-time.Duration(windowMinutes) * time.Minute),
		LastDetectedAt:   now,
		SuggestedActions: []string{"reassign_tasks"},
	}
	return []patterns.Pattern{p}, nil
}
