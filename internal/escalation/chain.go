// Package escalation implements multi-level, availability-aware escalation
// chains as an action plugin. Escalation progress is tracked per
// (action, pattern) pair in a persisted, versioned state row.
package escalation

import (
	"fmt"
	"sort"

	"github.com/automend/automend/internal/database"
)

// Target resolution rules for a chain level
const (
	TargetTypePerson  = "person"
	TargetTypeRole    = "role"
	TargetTypeManager = "manager"
)

// Level is one step of an escalation chain. Levels are addressed by their
// configured number, which does not have to be contiguous.
type Level struct {
	Level      int    `json:"level"`
	TargetType string `json:"target_type"`
	// TargetUUID names the person for target_type person, or the person whose
	// manager should be notified for target_type manager.
	TargetUUID string `json:"target_uuid,omitempty"`
	Role       string `json:"role,omitempty"`
	// SkipUnavailable allows falling through to the next configured level when
	// this one cannot be resolved to an available person.
	SkipUnavailable bool `json:"skip_unavailable,omitempty"`
	WaitMinutes     int  `json:"wait_minutes,omitempty"`
}

// ParseChain reads and validates the escalation chain from an action config.
// The returned levels are sorted by ascending level number.
func ParseChain(config database.JSONB) ([]Level, []string) {
	raw, ok := config["levels"]
	if !ok {
		return nil, []string{"levels must be set"}
	}
	entries, ok := raw.([]interface{})
	if !ok || len(entries) == 0 {
		return nil, []string{"levels must be a non-empty list"}
	}

	var errs []string
	levels := make([]Level, 0, len(entries))
	seen := make(map[int]bool)

	for i, entry := range entries {
		m, ok := entry.(map[string]interface{})
		if !ok {
			errs = append(errs, fmt.Sprintf("level %d: not an object", i))
			continue
		}
		level := Level{
			TargetType: getString(m, "target_type"),
			TargetUUID: getString(m, "target_uuid"),
			Role:       getString(m, "role"),
		}
		level.Level = getInt(m, "level")
		level.WaitMinutes = getInt(m, "wait_minutes")
		if skip, ok := m["skip_unavailable"].(bool); ok {
			level.SkipUnavailable = skip
		}

		if level.Level < 1 {
			errs = append(errs, fmt.Sprintf("level %d: level number must be positive", i))
		}
		if seen[level.Level] {
			errs = append(errs, fmt.Sprintf("duplicate level %d", level.Level))
		}
		seen[level.Level] = true

		switch level.TargetType {
		case TargetTypePerson:
			if level.TargetUUID == "" {
				errs = append(errs, fmt.Sprintf("level %d: target_uuid required for person target", level.Level))
			}
		case TargetTypeRole:
			if level.Role == "" {
				errs = append(errs, fmt.Sprintf("level %d: role required for role target", level.Level))
			}
		case TargetTypeManager:
			// target_uuid optional: without it the manager is resolved from the
			// pattern's affected entities, with a role fallback
		default:
			errs = append(errs, fmt.Sprintf("level %d: unknown target type %q", level.Level, level.TargetType))
		}

		if level.WaitMinutes < 0 {
			errs = append(errs, fmt.Sprintf("level %d: wait_minutes cannot be negative", level.Level))
		}

		levels = append(levels, level)
	}

	if len(errs) > 0 {
		return nil, errs
	}

	sort.Slice(levels, func(i, j int) bool { return levels[i].Level < levels[j].Level })
	return levels, nil
}

// NextLevel returns the first configured level above current, or nil when the
// chain is exhausted.
func NextLevel(levels []Level, current int) *Level {
	for i := range levels {
		if levels[i].Level > current {
			return &levels[i]
		}
	}
	return nil
}

func getString(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

func getInt(m map[string]interface{}, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
