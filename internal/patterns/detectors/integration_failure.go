package detectors

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/automend/automend/internal/database"
	"github.com/automend/automend/internal/patterns"
)

// IntegrationFailureDetector finds integrations whose failure count within the
// time window crosses the configured threshold. One pattern per integration.
type IntegrationFailureDetector struct {
	db *gorm.DB
}

// NewIntegrationFailureDetector creates an integration failure detector
func NewIntegrationFailureDetector(db *gorm.DB) *IntegrationFailureDetector {
	return &IntegrationFailureDetector{db: db}
}

// PatternType returns the pattern type this detector produces
func (d *IntegrationFailureDetector) PatternType() string {
	return patterns.TypeIntegrationFailure
}

// Detect finds integrations failing repeatedly within the window
func (d *IntegrationFailureDetector) Detect(orgID string, windowMinutes int) ([]patterns.Pattern, error) {
	settings, err := database.GetOrCreateEngineSettings(d.db)
	if err != nil {
		return nil, err
	}

	windowStart := time.Now().Add(-time.Duration(windowMinutes) * time.Minute)

	var events []database.IntegrationEvent
	err = d.db.Where("organization_id = ? AND success = ? AND occurred_at >= ?",
		orgID, false, windowStart).
		Order("occurred_at asc").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("integration failure query failed: %w", err)
	}

	byIntegration := make(map[string][]database.IntegrationEvent)
	for _, e := range events {
		byIntegration[e.Integration] = append(byIntegration[e.Integration], e)
	}

	threshold := settings.IntegrationFailureThreshold
	if threshold <= 0 {
		threshold = 3
	}

	var result []patterns.Pattern
	for integration, failures := range byIntegration {
		if len(failures) < threshold {
			continue
		}

		severity := database.PatternSeverityMedium
		switch {
		case len(failures) >= 4*threshold:
			severity = database.PatternSeverityCritical
		case len(failures) >= 2*threshold:
			severity = database.PatternSeverityHigh
		}

		entities := []string{integration}
		result = append(result, patterns.Pattern{
			ID:               patterns.Fingerprint(orgID, patterns.TypeIntegrationFailure, entities),
			Type:             patterns.TypeIntegrationFailure,
			OrganizationID:   orgID,
			Description:      fmt.Sprintf("integration %q failed %d times in the last %d minutes", integration, len(failures), windowMinutes),
			Severity:         severity,
			AffectedEntities: entities,
			Occurrences:      len(failures),
			FirstDetectedAt:  failures[0].OccurredAt,
			LastDetectedAt:   failures[len(failures)-1].OccurredAt,
			SuggestedActions: []string{"notify", "escalate"},
		})
	}
	return result, nil
}
