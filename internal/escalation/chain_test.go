package escalation

import (
	"strings"
	"testing"

	"github.com/automend/automend/internal/database"
)

func chainConfig(levels ...map[string]interface{}) database.JSONB {
	entries := make([]interface{}, len(levels))
	for i, l := range levels {
		entries[i] = l
	}
	return database.JSONB{"levels": entries}
}

func TestParseChain_SortsByLevel(t *testing.T) {
	config := chainConfig(
		map[string]interface{}{"level": float64(3), "target_type": "role", "role": "director"},
		map[string]interface{}{"level": float64(1), "target_type": "person", "target_uuid": "p-1"},
		map[string]interface{}{"level": float64(2), "target_type": "manager", "target_uuid": "p-1"},
	)

	levels, errs := ParseChain(config)
	if len(errs) > 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(levels) != 3 {
		t.Fatalf("expected 3 levels, got %d", len(levels))
	}
	for i, want := range []int{1, 2, 3} {
		if levels[i].Level != want {
			t.Errorf("position %d: expected level %d, got %d", i, want, levels[i].Level)
		}
	}
}

func TestParseChain_RejectsDuplicateLevels(t *testing.T) {
	config := chainConfig(
		map[string]interface{}{"level": float64(1), "target_type": "role", "role": "a"},
		map[string]interface{}{"level": float64(1), "target_type": "role", "role": "b"},
	)
	_, errs := ParseChain(config)
	if len(errs) == 0 {
		t.Fatal("expected duplicate level error")
	}
	if !strings.Contains(errs[0], "duplicate level 1") {
		t.Errorf("unexpected error %q", errs[0])
	}
}

func TestParseChain_RejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name   string
		config database.JSONB
		want   string
	}{
		{"missing levels", database.JSONB{}, "levels must be set"},
		{"empty levels", database.JSONB{"levels": []interface{}{}}, "levels must be a non-empty list"},
		{"unknown target type", chainConfig(
			map[string]interface{}{"level": float64(1), "target_type": "pager"}), "unknown target type"},
		{"person without target", chainConfig(
			map[string]interface{}{"level": float64(1), "target_type": "person"}), "target_uuid required"},
		{"role without role", chainConfig(
			map[string]interface{}{"level": float64(1), "target_type": "role"}), "role required"},
		{"negative wait", chainConfig(
			map[string]interface{}{"level": float64(1), "target_type": "role", "role": "a", "wait_minutes": float64(-5)}),
			"wait_minutes cannot be negative"},
		{"zero level", chainConfig(
			map[string]interface{}{"level": float64(0), "target_type": "role", "role": "a"}),
			"level number must be positive"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, errs := ParseChain(tc.config)
			if len(errs) == 0 {
				t.Fatal("expected validation errors")
			}
			found := false
			for _, e := range errs {
				if strings.Contains(e, tc.want) {
					found = true
				}
			}
			if !found {
				t.Errorf("expected an error containing %q, got %v", tc.want, errs)
			}
		})
	}
}

func TestParseChain_ManagerWithoutTargetIsValid(t *testing.T) {
	config := chainConfig(map[string]interface{}{"level": float64(1), "target_type": "manager"})
	if _, errs := ParseChain(config); len(errs) > 0 {
		t.Errorf("expected manager without target_uuid to be valid, got %v", errs)
	}
}

func TestNextLevel(t *testing.T) {
	levels := []Level{{Level: 1}, {Level: 3}, {Level: 5}}

	if got := NextLevel(levels, 0); got == nil || got.Level != 1 {
		t.Errorf("expected level 1, got %v", got)
	}
	if got := NextLevel(levels, 1); got == nil || got.Level != 3 {
		t.Errorf("expected level 3 after 1, got %v", got)
	}
	if got := NextLevel(levels, 4); got == nil || got.Level != 5 {
		t.Errorf("expected level 5 after 4, got %v", got)
	}
	if got := NextLevel(levels, 5); got != nil {
		t.Errorf("expected nil past the last level, got %v", got)
	}
}
