package patterns

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/automend/automend/internal/database"
)

// Pattern type names produced by the built-in detectors
const (
	TypeStuckWorkflow      = "stuck_workflow"
	TypeIntegrationFailure = "integration_failure"
	TypeWorkloadImbalance  = "workload_imbalance"
	TypeApprovalBottleneck = "approval_bottleneck"
)

// Pattern is a normalized description of a detected operational anomaly.
// Patterns are transient detection-cycle artifacts: they are never persisted,
// only merged, matched and handed to the executor.
type Pattern struct {
	ID               string                   `json:"id"`
	Type             string                   `json:"type"`
	OrganizationID   string                   `json:"organization_id"`
	Description      string                   `json:"description"`
	Severity         database.PatternSeverity `json:"severity"`
	AffectedEntities []string                 `json:"affected_entities"`
	Occurrences      int                      `json:"occurrences"`
	FirstDetectedAt  time.Time                `json:"first_detected_at"`
	LastDetectedAt   time.Time                `json:"last_detected_at"`
	SuggestedActions []string                 `json:"suggested_actions"`
	MatchedActionIDs []uint                   `json:"matched_action_ids,omitempty"`
}

// Fingerprint derives a stable pattern ID from the organization, pattern type
// and the sorted affected entities. The same underlying condition always maps
// to the same ID across scans, which keeps per-pattern escalation state stable.
func Fingerprint(orgID, patternType string, entities []string) string {
	sorted := append([]string(nil), entities...)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write([]byte(orgID))
	h.Write([]byte{0})
	h.Write([]byte(patternType))
	for _, e := range sorted {
		h.Write([]byte{0})
		h.Write([]byte(e))
	}
	return fmt.Sprintf("%s:%s", patternType, hex.EncodeToString(h.Sum(nil))[:12])
}

// GroupKey returns the merge key: pattern type plus the sorted affected entities
func (p *Pattern) GroupKey() string {
	sorted := append([]string(nil), p.AffectedEntities...)
	sort.Strings(sorted)
	return p.Type + "|" + strings.Join(sorted, ",")
}

// Snapshot serializes the pattern for persistence in a follow-up row
func (p *Pattern) Snapshot() database.JSONB {
	return database.JSONB{
		"id":                p.ID,
		"type":              p.Type,
		"organization_id":   p.OrganizationID,
		"description":       p.Description,
		"severity":          string(p.Severity),
		"affected_entities": p.AffectedEntities,
		"occurrences":       p.Occurrences,
		"first_detected_at": p.FirstDetectedAt.Format(time.RFC3339),
		"last_detected_at":  p.LastDetectedAt.Format(time.RFC3339),
		"suggested_actions": p.SuggestedActions,
	}
}

// FromSnapshot rebuilds a pattern from a persisted snapshot
func FromSnapshot(snapshot database.JSONB) (*Pattern, error) {
	getString := func(key string) string {
		s, _ := snapshot[key].(string)
		return s
	}
	getStrings := func(key string) []string {
		switch raw := snapshot[key].(type) {
		case []string:
			return raw
		case []interface{}:
			// JSONB trips through encoding/json as []interface{}
			out := make([]string, 0, len(raw))
			for _, v := range raw {
				if s, ok := v.(string); ok {
					out = append(out, s)
				}
			}
			return out
		default:
			return nil
		}
	}

	p := &Pattern{
		ID:               getString("id"),
		Type:             getString("type"),
		OrganizationID:   getString("organization_id"),
		Description:      getString("description"),
		Severity:         database.PatternSeverity(getString("severity")),
		AffectedEntities: getStrings("affected_entities"),
		SuggestedActions: getStrings("suggested_actions"),
	}
	if p.ID == "" || p.Type == "" {
		return nil, fmt.Errorf("pattern snapshot is missing id or type")
	}

	switch n := snapshot["occurrences"].(type) {
	case int:
		p.Occurrences = n
	case float64:
		p.Occurrences = int(n)
	}
	if t, err := time.Parse(time.RFC3339, getString("first_detected_at")); err == nil {
		p.FirstDetectedAt = t
	}
	if t, err := time.Parse(time.RFC3339, getString("last_detected_at")); err == nil {
		p.LastDetectedAt = t
	}
	return p, nil
}
