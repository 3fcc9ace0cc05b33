package executor

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/automend/automend/internal/database"
	"github.com/automend/automend/internal/patterns"
)

// Matcher resolves detected patterns to the operator-configured actions they
// should trigger.
type Matcher struct {
	db *gorm.DB
}

// NewMatcher creates a pattern-action matcher
func NewMatcher(db *gorm.DB) *Matcher {
	return &Matcher{db: db}
}

// Match returns, per pattern ID, the IDs of every active pattern-triggered
// action whose trigger pattern type equals the pattern's type. All matches are
// candidates; ranking is not the matcher's job. The MatchedActionIDs field of
// each pattern is filled in as a side effect.
func (m *Matcher) Match(orgID string, pats []patterns.Pattern) (map[string][]uint, error) {
	matches := make(map[string][]uint, len(pats))
	if len(pats) == 0 {
		return matches, nil
	}

	var actions []database.AutomatedAction
	err := m.db.Where("organization_id = ? AND is_active = ? AND trigger_type = ?",
		orgID, true, database.TriggerTypePattern).
		Find(&actions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load active actions: %w", err)
	}

	byPatternType := make(map[string][]uint)
	for _, a := range actions {
		byPatternType[a.TriggerPatternType] = append(byPatternType[a.TriggerPatternType], a.ID)
	}

	for i := range pats {
		ids := byPatternType[pats[i].Type]
		matches[pats[i].ID] = ids
		pats[i].MatchedActionIDs = ids
	}
	return matches, nil
}
