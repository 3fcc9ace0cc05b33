package detectors

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/automend/automend/internal/database"
	"github.com/automend/automend/internal/patterns"
)

// ApprovalBottleneckDetector finds approvers sitting on requests far past the
// configured age threshold. One pattern per approver.
type ApprovalBottleneckDetector struct {
	db *gorm.DB
}

// NewApprovalBottleneckDetector creates an approval bottleneck detector
func NewApprovalBottleneckDetector(db *gorm.DB) *ApprovalBottleneckDetector {
	return &ApprovalBottleneckDetector{db: db}
}

// PatternType returns the pattern type this detector produces
func (d *ApprovalBottleneckDetector) PatternType() string {
	return patterns.TypeApprovalBottleneck
}

// Detect finds pending approvals older than the threshold, grouped by approver
func (d *ApprovalBottleneckDetector) Detect(orgID string, windowMinutes int) ([]patterns.Pattern, error) {
	settings, err := database.GetOrCreateEngineSettings(d.db)
	if err != nil {
		return nil, err
	}

	threshold := time.Duration(settings.ApprovalPendingThresholdMinutes) * time.Minute
	cutoff := time.Now().Add(-threshold)

	var requests []database.ApprovalRequest
	err = d.db.Where("organization_id = ? AND status = ? AND created_at < ?",
		orgID, "pending", cutoff).
		Order("created_at asc").
		Find(&requests).Error
	if err != nil {
		return nil, fmt.Errorf("approval bottleneck query failed: %w", err)
	}

	byApprover := make(map[string][]database.ApprovalRequest)
	for _, r := range requests {
		byApprover[r.ApproverUUID] = append(byApprover[r.ApproverUUID], r)
	}

	now := time.Now()
	var result []patterns.Pattern
	for approver, overdue := range byApprover {
		severity := database.PatternSeverityMedium
		switch {
		case len(overdue) >= 10:
			severity = database.PatternSeverityCritical
		case len(overdue) >= 5:
			severity = database.PatternSeverityHigh
		}

		entities := make([]string, 0, len(overdue)+1)
		entities = append(entities, approver)
		for _, r := range overdue {
			entities = append(entities, r.UUID)
		}

		result = append(result, patterns.Pattern{
			ID:               patterns.Fingerprint(orgID, patterns.TypeApprovalBottleneck, entities),
			Type:             patterns.TypeApprovalBottleneck,
			OrganizationID:   orgID,
			Description:      fmt.Sprintf("%d approvals pending over %d minutes with one approver", len(overdue), settings.ApprovalPendingThresholdMinutes),
			Severity:         severity,
			AffectedEntities: entities,
			Occurrences:      len(overdue),
			FirstDetectedAt:  overdue[0].CreatedAt,
			LastDetectedAt:   now,
			SuggestedActions: []string{"escalate", "notify"},
		})
	}
	return result, nil
}
