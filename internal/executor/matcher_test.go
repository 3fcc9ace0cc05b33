package executor

import (
	"testing"
	"time"

	"github.com/automend/automend/internal/database"
	"github.com/automend/automend/internal/patterns"
)

func makeDetectedPattern(patternType, id string) patterns.Pattern {
	now := time.Now()
	return patterns.Pattern{
		ID:              id,
		Type:            patternType,
		OrganizationID:  "org-1",
		Severity:        database.PatternSeverityMedium,
		Occurrences:     1,
		FirstDetectedAt: now,
		LastDetectedAt:  now,
	}
}

func TestMatcher_MatchesByPatternType(t *testing.T) {
	db := setupTestDB(t)
	matcher := NewMatcher(db)

	stuck := createAction(t, db, "notify", false)
	stuck.TriggerPatternType = patterns.TypeStuckWorkflow
	db.Save(stuck)

	integration := createAction(t, db, "escalate", false)
	integration.TriggerPatternType = patterns.TypeIntegrationFailure
	db.Save(integration)

	pats := []patterns.Pattern{
		makeDetectedPattern(patterns.TypeStuckWorkflow, "stuck_workflow:aaa"),
		makeDetectedPattern(patterns.TypeIntegrationFailure, "integration_failure:bbb"),
		makeDetectedPattern(patterns.TypeWorkloadImbalance, "workload_imbalance:ccc"),
	}

	matches, err := matcher.Match("org-1", pats)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := matches["stuck_workflow:aaa"]; len(got) != 1 || got[0] != stuck.ID {
		t.Errorf("expected stuck pattern matched to action %d, got %v", stuck.ID, got)
	}
	if got := matches["integration_failure:bbb"]; len(got) != 1 || got[0] != integration.ID {
		t.Errorf("expected integration pattern matched to action %d, got %v", integration.ID, got)
	}
	if got := matches["workload_imbalance:ccc"]; len(got) != 0 {
		t.Errorf("expected no match for workload pattern, got %v", got)
	}

	if len(pats[0].MatchedActionIDs) != 1 || pats[0].MatchedActionIDs[0] != stuck.ID {
		t.Errorf("expected MatchedActionIDs filled on the pattern, got %v", pats[0].MatchedActionIDs)
	}
}

func TestMatcher_SkipsInactiveAndManualActions(t *testing.T) {
	db := setupTestDB(t)
	matcher := NewMatcher(db)

	inactive := createAction(t, db, "notify", false)
	inactive.IsActive = false
	db.Save(inactive)

	manual := createAction(t, db, "notify", false)
	manual.TriggerType = database.TriggerTypeManual
	db.Save(manual)

	pats := []patterns.Pattern{makeDetectedPattern(patterns.TypeStuckWorkflow, "stuck_workflow:aaa")}
	matches, err := matcher.Match("org-1", pats)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches["stuck_workflow:aaa"]) != 0 {
		t.Errorf("expected inactive and manual actions to be skipped, got %v", matches["stuck_workflow:aaa"])
	}
}

func TestMatcher_ScopedToOrganization(t *testing.T) {
	db := setupTestDB(t)
	matcher := NewMatcher(db)

	other := createAction(t, db, "notify", false)
	other.OrganizationID = "org-2"
	db.Save(other)

	pats := []patterns.Pattern{makeDetectedPattern(patterns.TypeStuckWorkflow, "stuck_workflow:aaa")}
	matches, err := matcher.Match("org-1", pats)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches["stuck_workflow:aaa"]) != 0 {
		t.Errorf("expected no cross-organization matches, got %v", matches["stuck_workflow:aaa"])
	}
}

func TestMatcher_MultipleActionsPerPattern(t *testing.T) {
	db := setupTestDB(t)
	matcher := NewMatcher(db)

	first := createAction(t, db, "notify", false)
	second := createAction(t, db, "escalate", false)

	pats := []patterns.Pattern{makeDetectedPattern(patterns.TypeStuckWorkflow, "stuck_workflow:aaa")}
	matches, err := matcher.Match("org-1", pats)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := matches["stuck_workflow:aaa"]
	if len(got) != 2 {
		t.Fatalf("expected 2 matched actions, got %v", got)
	}
	seen := map[uint]bool{got[0]: true, got[1]: true}
	if !seen[first.ID] || !seen[second.ID] {
		t.Errorf("expected both actions matched, got %v", got)
	}
}
