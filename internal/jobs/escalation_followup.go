package jobs

import (
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/automend/automend/internal/database"
	"github.com/automend/automend/internal/executor"
	"github.com/automend/automend/internal/patterns"
)

// FollowUpWorker honors the delayed re-invocations the escalation plugin
// records. The plugin only decides that a delay is wanted; this worker stores
// the request and re-runs the action once it is due.
type FollowUpWorker struct {
	db     *gorm.DB
	engine *executor.Engine
}

// NewFollowUpWorker creates the follow-up worker
func NewFollowUpWorker(db *gorm.DB, engine *executor.Engine) *FollowUpWorker {
	return &FollowUpWorker{db: db, engine: engine}
}

// ScheduleFollowUp records a delayed re-invocation. Implements the escalation
// plugin's scheduler contract.
func (w *FollowUpWorker) ScheduleFollowUp(actionID uint, patternID string, dueAt time.Time, snapshot database.JSONB) error {
	followUp := &database.EscalationFollowUp{
		ActionID:        actionID,
		PatternID:       patternID,
		DueAt:           dueAt,
		Status:          database.FollowUpStatusPending,
		PatternSnapshot: snapshot,
	}
	if err := w.db.Create(followUp).Error; err != nil {
		return fmt.Errorf("failed to schedule follow-up: %w", err)
	}
	log.Printf("Follow-up for action %d / %s scheduled at %s", actionID, patternID, dueAt.Format(time.RFC3339))
	return nil
}

// ProcessDue re-runs every pending follow-up whose due time has passed.
// Returns the number processed.
func (w *FollowUpWorker) ProcessDue() (int, error) {
	var due []database.EscalationFollowUp
	err := w.db.Where("status = ? AND due_at <= ?", database.FollowUpStatusPending, time.Now()).
		Find(&due).Error
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, followUp := range due {
		// Claim before running so two workers cannot both fire it
		claim := w.db.Model(&database.EscalationFollowUp{}).
			Where("id = ? AND status = ?", followUp.ID, database.FollowUpStatusPending).
			Update("status", database.FollowUpStatusDone)
		if claim.Error != nil || claim.RowsAffected == 0 {
			continue
		}

		if err := w.fire(&followUp); err != nil {
			log.Printf("Follow-up %d failed: %v", followUp.ID, err)
			w.db.Model(&database.EscalationFollowUp{}).
				Where("id = ?", followUp.ID).
				Updates(map[string]interface{}{
					"status":        database.FollowUpStatusFailed,
					"error_message": err.Error(),
				})
			continue
		}
		processed++
	}
	return processed, nil
}

func (w *FollowUpWorker) fire(followUp *database.EscalationFollowUp) error {
	var action database.AutomatedAction
	if err := w.db.First(&action, followUp.ActionID).Error; err != nil {
		return fmt.Errorf("action %d no longer exists: %w", followUp.ActionID, err)
	}
	if !action.IsActive {
		return fmt.Errorf("action %q is no longer active", action.Name)
	}

	execCtx := &executor.ExecutionContext{
		OrganizationID: action.OrganizationID,
		TriggerReason:  fmt.Sprintf("escalation follow-up for %s", followUp.PatternID),
		TriggeredBy:    "escalation-followup",
		PatternID:      followUp.PatternID,
	}
	if pattern, err := patterns.FromSnapshot(followUp.PatternSnapshot); err == nil {
		execCtx.Pattern = pattern
	}

	execution, err := w.engine.ExecuteAction(&action, execCtx, executor.Options{})
	if err != nil {
		return err
	}
	if execution.Status == database.ExecutionStatusFailed {
		return fmt.Errorf("follow-up execution failed: %s", execution.ErrorMessage)
	}
	return nil
}

// Start begins the periodic processing
func (w *FollowUpWorker) Start(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			processed, err := w.ProcessDue()
			if err != nil {
				log.Printf("Follow-up worker error: %v", err)
			} else if processed > 0 {
				log.Printf("Follow-up worker: processed %d escalation follow-ups", processed)
			}
		case <-stop:
			log.Println("Follow-up worker stopped")
			return
		}
	}
}
