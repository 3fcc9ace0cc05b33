package database

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ErrEscalationStateConflict is returned when a concurrent writer advanced the
// same escalation state first (optimistic version mismatch).
var ErrEscalationStateConflict = errors.New("escalation state was modified concurrently")

// GetOrCreateEscalationState loads the state row for (actionID, patternID),
// creating a level-0 row if none exists yet.
func GetOrCreateEscalationState(db *gorm.DB, actionID uint, patternID string) (*EscalationState, error) {
	var state EscalationState
	err := db.Where("action_id = ? AND pattern_id = ?", actionID, patternID).First(&state).Error
	if err == gorm.ErrRecordNotFound {
		state = EscalationState{
			ActionID:  actionID,
			PatternID: patternID,
		}
		if err := db.Create(&state).Error; err != nil {
			return nil, fmt.Errorf("failed to create escalation state: %w", err)
		}
		return &state, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// AdvanceEscalationState moves the state to newLevel with an optimistic
// version check. The level only ever increases; a concurrent advance or a
// stale read surfaces as ErrEscalationStateConflict.
func AdvanceEscalationState(db *gorm.DB, state *EscalationState, newLevel int) error {
	if newLevel <= state.CurrentLevel {
		return fmt.Errorf("escalation level may only increase (current %d, requested %d)", state.CurrentLevel, newLevel)
	}

	now := time.Now()
	result := db.Model(&EscalationState{}).
		Where("id = ? AND version = ?", state.ID, state.Version).
		Updates(map[string]interface{}{
			"current_level": newLevel,
			"escalated_at":  now,
			"version":       state.Version + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrEscalationStateConflict
	}

	state.CurrentLevel = newLevel
	state.EscalatedAt = &now
	state.Version++
	return nil
}
