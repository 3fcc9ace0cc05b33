package escalation

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/automend/automend/internal/database"
	"github.com/automend/automend/internal/executor"
	"github.com/automend/automend/internal/metrics"
	"github.com/automend/automend/internal/patterns"
)

// manualPatternKey tracks escalation state for actions triggered without a
// detected pattern.
const manualPatternKey = "manual"

// Directory resolves people for escalation targets. Implemented by the
// directory service.
type Directory interface {
	PersonByUUID(orgID, personUUID string) (*database.Person, error)
	BestAvailableByRole(orgID, role string) (*database.Person, error)
	ManagerOf(orgID, personUUID string) (*database.Person, error)
}

// Notifier delivers a persisted notice to a person
type Notifier interface {
	Notify(orgID, recipientUUID, kind, title, message string) error
}

// Scheduler records that a delayed re-invocation of the escalation is wanted.
// The component only decides that a delay is needed; honoring it is the
// follow-up worker's job.
type Scheduler interface {
	ScheduleFollowUp(actionID uint, patternID string, dueAt time.Time, snapshot database.JSONB) error
}

// Executor is the escalate action plugin. Each invocation advances the
// per-(action, pattern) chain by one level and notifies the resolved target.
type Executor struct {
	db        *gorm.DB
	directory Directory
	notifier  Notifier
	scheduler Scheduler
}

// NewExecutor creates the escalate plugin
func NewExecutor(db *gorm.DB, directory Directory, notifier Notifier, scheduler Scheduler) *Executor {
	return &Executor{db: db, directory: directory, notifier: notifier, scheduler: scheduler}
}

// ActionType returns the action type this plugin handles
func (p *Executor) ActionType() string {
	return "escalate"
}

// CanRollback reports that escalations can be compensated with a cancellation
// notice. The chain level itself is never decremented.
func (p *Executor) CanRollback() bool {
	return true
}

// ValidateConfig checks the escalation chain config
func (p *Executor) ValidateConfig(config database.JSONB) []string {
	_, errs := ParseChain(config)
	return errs
}

// Execute advances the escalation chain one level
func (p *Executor) Execute(ctx context.Context, action *database.AutomatedAction, execCtx *executor.ExecutionContext) (*executor.Result, error) {
	levels, errs := ParseChain(action.ActionConfig)
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid escalation chain: %v", errs)
	}

	pattern := execCtx.Pattern
	patternID := execCtx.PatternID
	if patternID == "" {
		patternID = manualPatternKey
	}
	if pattern == nil {
		// Approval re-entry and manual runs carry no pattern; degrade to the
		// trigger reason so the notice still says why
		pattern = &patterns.Pattern{
			ID:              patternID,
			Description:     execCtx.TriggerReason,
			Severity:        database.PatternSeverityMedium,
			Occurrences:     1,
			FirstDetectedAt: time.Now(),
			LastDetectedAt:  time.Now(),
		}
	}

	state, err := database.GetOrCreateEscalationState(p.db, action.ID, patternID)
	if err != nil {
		return nil, fmt.Errorf("failed to load escalation state: %w", err)
	}

	level := NextLevel(levels, state.CurrentLevel)
	if level == nil {
		return &executor.Result{
			Message: fmt.Sprintf("escalation chain exhausted at level %d", state.CurrentLevel),
			Output:  database.JSONB{"already_at_highest_level": true},
		}, nil
	}

	target, resolveErr := p.resolveTarget(execCtx.OrganizationID, level, pattern)
	if resolveErr != nil && level.SkipUnavailable {
		// One level of look-ahead, not a full chain unwind
		if next := NextLevel(levels, level.Level); next != nil {
			if fallback, err := p.resolveTarget(execCtx.OrganizationID, next, pattern); err == nil {
				log.Printf("Escalation %s: level %d unavailable (%v), skipping to level %d",
					patternID, level.Level, resolveErr, next.Level)
				level, target, resolveErr = next, fallback, nil
			}
		}
	}
	if resolveErr != nil {
		return nil, fmt.Errorf("no target for escalation level %d: %w", level.Level, resolveErr)
	}

	// Claim the level before notifying so a concurrent invocation for the same
	// key cannot double-notify
	if err := database.AdvanceEscalationState(p.db, state, level.Level); err != nil {
		return nil, fmt.Errorf("failed to advance escalation state: %w", err)
	}

	notice := FormatNotice(level.Level, pattern)
	title := fmt.Sprintf("Escalation: %s", action.Name)
	if err := p.notifier.Notify(execCtx.OrganizationID, target.UUID, "escalation", title, notice); err != nil {
		return nil, fmt.Errorf("failed to notify %s: %w", target.Name, err)
	}

	record := &database.Escalation{
		OrganizationID: execCtx.OrganizationID,
		ActionID:       action.ID,
		PatternID:      patternID,
		Level:          level.Level,
		TargetType:     level.TargetType,
		TargetUUID:     target.UUID,
		TargetName:     target.Name,
		Status:         database.EscalationStatusNotified,
	}
	if err := p.db.Create(record).Error; err != nil {
		return nil, fmt.Errorf("failed to record escalation: %w", err)
	}

	if level.WaitMinutes > 0 && NextLevel(levels, level.Level) != nil && p.scheduler != nil {
		dueAt := time.Now().Add(time.Duration(level.WaitMinutes) * time.Minute)
		if err := p.scheduler.ScheduleFollowUp(action.ID, patternID, dueAt, pattern.Snapshot()); err != nil {
			log.Printf("Escalation %s: failed to schedule follow-up: %v", patternID, err)
		}
	}

	p.audit(execCtx.OrganizationID, "escalation_notified", record.UUID, database.JSONB{
		"pattern_id":  patternID,
		"level":       level.Level,
		"target_name": target.Name,
	})
	metrics.RecordEscalationNotice(strconv.Itoa(level.Level))
	log.Printf("Escalated %s to level %d (%s %s)", patternID, level.Level, level.TargetType, target.Name)

	return &executor.Result{
		Message: fmt.Sprintf("escalated to level %d: %s", level.Level, target.Name),
		Output: database.JSONB{
			"level":       level.Level,
			"target_type": level.TargetType,
			"target_uuid": target.UUID,
			"target_name": target.Name,
		},
		RollbackData: database.JSONB{
			"escalation_uuid": record.UUID,
			"target_uuid":     target.UUID,
			"level":           level.Level,
			"pattern_id":      patternID,
		},
	}, nil
}

// Rollback cancels the escalation record and tells the notified target to
// stand down. Escalation progress is one-directional, so the chain level stays
// where it is.
func (p *Executor) Rollback(ctx context.Context, action *database.AutomatedAction, execution *database.ActionExecution, data database.JSONB) error {
	escalationUUID, _ := data["escalation_uuid"].(string)
	if escalationUUID == "" {
		return fmt.Errorf("rollback data has no escalation_uuid")
	}

	var record database.Escalation
	if err := p.db.Where("uuid = ?", escalationUUID).First(&record).Error; err != nil {
		return fmt.Errorf("escalation %s not found: %w", escalationUUID, err)
	}
	if record.Status == database.EscalationStatusCancelled {
		return nil
	}

	now := time.Now()
	err := p.db.Model(&database.Escalation{}).
		Where("id = ?", record.ID).
		Updates(map[string]interface{}{
			"status":       database.EscalationStatusCancelled,
			"cancelled_at": now,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to cancel escalation %s: %w", escalationUUID, err)
	}

	notice := FormatCancellationNotice(record.Level, record.PatternID)
	title := fmt.Sprintf("Escalation cancelled: %s", action.Name)
	if err := p.notifier.Notify(record.OrganizationID, record.TargetUUID, "escalation_cancelled", title, notice); err != nil {
		log.Printf("Escalation %s: failed to send cancellation notice: %v", escalationUUID, err)
	}

	p.audit(record.OrganizationID, "escalation_cancelled", record.UUID, database.JSONB{
		"pattern_id": record.PatternID,
		"level":      record.Level,
	})
	return nil
}

// audit writes a best-effort trail entry; failures are logged, never returned
func (p *Executor) audit(orgID, operation, entityID string, details database.JSONB) {
	entry := &database.AuditLog{
		OrganizationID: orgID,
		Actor:          "engine",
		Operation:      operation,
		EntityType:     "escalation",
		EntityID:       entityID,
		Details:        details,
	}
	if err := p.db.Create(entry).Error; err != nil {
		log.Printf("Escalation: failed to write audit entry %s: %v", operation, err)
	}
}

// resolveTarget applies the level's resolution rule. A resolved person must be
// available.
func (p *Executor) resolveTarget(orgID string, level *Level, pattern *patterns.Pattern) (*database.Person, error) {
	switch level.TargetType {
	case TargetTypePerson:
		person, err := p.directory.PersonByUUID(orgID, level.TargetUUID)
		if err != nil {
			return nil, err
		}
		if !person.IsAvailable() {
			return nil, fmt.Errorf("%s is not available", person.Name)
		}
		return person, nil

	case TargetTypeRole:
		return p.directory.BestAvailableByRole(orgID, level.Role)

	case TargetTypeManager:
		subject := level.TargetUUID
		if subject == "" && len(pattern.AffectedEntities) > 0 {
			subject = pattern.AffectedEntities[0]
		}
		return p.directory.ManagerOf(orgID, subject)

	default:
		return nil, fmt.Errorf("unknown target type %q", level.TargetType)
	}
}
