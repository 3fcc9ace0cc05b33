package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/automend/automend/internal/database"
	"github.com/automend/automend/internal/metrics"
	"github.com/automend/automend/internal/patterns"
)

// EventSink receives execution lifecycle events (e.g. a WebSocket hub).
// Implementations must not block.
type EventSink interface {
	PublishExecution(eventType string, execution *database.ActionExecution, actionType string)
}

// Options controls one execution
type Options struct {
	// BypassApproval skips the approval gate even when the action requires it
	BypassApproval bool

	// DryRun records a synthetic success without invoking the plugin
	DryRun bool

	// Timeout overrides the engine default deadline; zero uses the default
	Timeout time.Duration
}

// Engine owns the execution state machine. All status transitions are guarded
// UPDATEs on the expected source status, so concurrent callers lose cleanly
// instead of double-applying.
type Engine struct {
	db       *gorm.DB
	registry *Registry
	events   EventSink
}

// NewEngine creates an execution engine over the given plugin registry
func NewEngine(db *gorm.DB, registry *Registry) *Engine {
	return &Engine{db: db, registry: registry}
}

// Registry returns the engine's plugin registry
func (e *Engine) Registry() *Registry {
	return e.registry
}

// SetEventSink attaches a lifecycle event sink
func (e *Engine) SetEventSink(sink EventSink) {
	e.events = sink
}

func (e *Engine) publish(eventType string, execution *database.ActionExecution, actionType string) {
	if e.events != nil {
		e.events.PublishExecution(eventType, execution, actionType)
	}
}

// ExecuteAction creates an execution for the action and runs it unless the
// approval gate holds it. The returned execution reflects the final state
// (or pending_approval when gated).
func (e *Engine) ExecuteAction(action *database.AutomatedAction, execCtx *ExecutionContext, opts Options) (*database.ActionExecution, error) {
	execution := &database.ActionExecution{
		ActionID:      action.ID,
		TriggerReason: execCtx.TriggerReason,
		TriggeredBy:   execCtx.TriggeredBy,
		Status:        database.ExecutionStatusPendingApproval,
		DryRun:        opts.DryRun,
	}
	if execCtx.Pattern != nil && execCtx.PatternID == "" {
		execCtx.PatternID = execCtx.Pattern.ID
	}
	execution.PatternID = execCtx.PatternID
	if err := e.db.Create(execution).Error; err != nil {
		return nil, fmt.Errorf("failed to create execution record: %w", err)
	}
	e.publish("created", execution, action.ActionType)

	if action.RequiresApproval && !opts.BypassApproval {
		log.Printf("Execution %s for action %q is awaiting approval", execution.UUID, action.Name)
		return execution, nil
	}

	e.run(execution, action, execCtx, opts)
	return execution, nil
}

// ApproveExecution re-enters the execution path for a pending execution
func (e *Engine) ApproveExecution(executionUUID, approver string) (*database.ActionExecution, error) {
	execution, err := e.GetExecution(executionUUID)
	if err != nil {
		return nil, err
	}
	if execution.Status != database.ExecutionStatusPendingApproval {
		return nil, &StateConflictError{Op: "approve", Status: execution.Status}
	}

	result := e.db.Model(&database.ActionExecution{}).
		Where("id = ? AND status = ?", execution.ID, database.ExecutionStatusPendingApproval).
		Updates(map[string]interface{}{
			"status":      database.ExecutionStatusApproved,
			"approved_by": approver,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, &StateConflictError{Op: "approve", Status: execution.Status}
	}
	execution.Status = database.ExecutionStatusApproved
	execution.ApprovedBy = approver

	action, err := e.getAction(execution.ActionID)
	if err != nil {
		return nil, err
	}
	e.publish("approved", execution, action.ActionType)

	execCtx := &ExecutionContext{
		OrganizationID: action.OrganizationID,
		TriggerReason:  execution.TriggerReason,
		TriggeredBy:    approver,
		PatternID:      execution.PatternID,
	}
	e.run(execution, action, execCtx, Options{DryRun: execution.DryRun})
	return execution, nil
}

// CancelExecution cancels work that has not yet left pending_approval
func (e *Engine) CancelExecution(executionUUID, actor string) error {
	execution, err := e.GetExecution(executionUUID)
	if err != nil {
		return err
	}

	result := e.db.Model(&database.ActionExecution{}).
		Where("id = ? AND status = ?", execution.ID, database.ExecutionStatusPendingApproval).
		Updates(map[string]interface{}{
			"status":        database.ExecutionStatusCancelled,
			"error_message": fmt.Sprintf("cancelled by %s", actor),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return &StateConflictError{Op: "cancel", Status: execution.Status}
	}

	execution.Status = database.ExecutionStatusCancelled
	if action, err := e.getAction(execution.ActionID); err == nil {
		metrics.RecordExecution(action.ActionType, string(database.ExecutionStatusCancelled))
		e.publish("cancelled", execution, action.ActionType)
	}
	return nil
}

// RollbackExecution compensates a completed execution through the plugin's
// rollback hook. A second rollback attempt is rejected.
func (e *Engine) RollbackExecution(executionUUID, actor string) error {
	execution, err := e.GetExecution(executionUUID)
	if err != nil {
		return err
	}
	action, err := e.getAction(execution.ActionID)
	if err != nil {
		return err
	}

	if execution.WasRolledBack {
		return &StateConflictError{Op: "roll back again", Status: execution.Status}
	}
	if execution.Status != database.ExecutionStatusCompleted {
		return &StateConflictError{Op: "roll back", Status: execution.Status}
	}
	if len(execution.RollbackData) == 0 {
		return &ConfigurationError{Reason: fmt.Sprintf("execution %s has no rollback data", execution.UUID)}
	}

	plugin, ok := e.registry.Get(action.ActionType)
	if !ok {
		return &ConfigurationError{Reason: fmt.Sprintf("no executor registered for action type %q", action.ActionType)}
	}
	rollbacker, ok := plugin.(Rollbacker)
	if !ok || !plugin.CanRollback() {
		return &ConfigurationError{Reason: fmt.Sprintf("action type %q does not support rollback", action.ActionType)}
	}

	// Claim the rollback first so two concurrent requests cannot both run the
	// compensating action.
	claim := e.db.Model(&database.ActionExecution{}).
		Where("id = ? AND status = ? AND was_rolled_back = ?",
			execution.ID, database.ExecutionStatusCompleted, false).
		Update("was_rolled_back", true)
	if claim.Error != nil {
		return claim.Error
	}
	if claim.RowsAffected == 0 {
		return &StateConflictError{Op: "roll back again", Status: execution.Status}
	}

	if err := rollbacker.Rollback(context.Background(), action, execution, execution.RollbackData); err != nil {
		// Release the claim so the operator can retry after fixing the cause
		e.db.Model(&database.ActionExecution{}).
			Where("id = ?", execution.ID).
			Update("was_rolled_back", false)
		metrics.RecordRollback("failed")
		return fmt.Errorf("rollback of execution %s failed: %w", execution.UUID, err)
	}

	now := time.Now()
	err = e.db.Model(&database.ActionExecution{}).
		Where("id = ?", execution.ID).
		Updates(map[string]interface{}{
			"status":         database.ExecutionStatusRolledBack,
			"rolled_back_at": now,
			"rolled_back_by": actor,
		}).Error
	if err != nil {
		return err
	}

	execution.Status = database.ExecutionStatusRolledBack
	execution.WasRolledBack = true
	execution.RolledBackAt = &now
	execution.RolledBackBy = actor
	metrics.RecordRollback("completed")
	e.publish("rolled_back", execution, action.ActionType)
	log.Printf("Execution %s rolled back by %s", execution.UUID, actor)
	return nil
}

// ExecuteActionsForPatterns fans a matched pattern set out to its actions,
// executing each independently. One action's failure never blocks the others.
func (e *Engine) ExecuteActionsForPatterns(orgID string, pats []patterns.Pattern, matches map[string][]uint, opts Options) []*database.ActionExecution {
	var executions []*database.ActionExecution
	for i := range pats {
		pattern := &pats[i]
		for _, actionID := range matches[pattern.ID] {
			action, err := e.getAction(actionID)
			if err != nil {
				log.Printf("Pattern %s: skipping action %d: %v", pattern.ID, actionID, err)
				continue
			}

			execCtx := &ExecutionContext{
				OrganizationID: orgID,
				TriggerReason:  fmt.Sprintf("pattern %s: %s", pattern.ID, pattern.Description),
				TriggeredBy:    "pattern-scan",
				Pattern:        pattern,
			}
			execution, err := e.ExecuteAction(action, execCtx, opts)
			if err != nil {
				log.Printf("Pattern %s: action %q failed to start: %v", pattern.ID, action.Name, err)
				continue
			}
			executions = append(executions, execution)
		}
	}
	return executions
}

// GetExecution loads an execution by UUID
func (e *Engine) GetExecution(executionUUID string) (*database.ActionExecution, error) {
	var execution database.ActionExecution
	err := e.db.Where("uuid = ?", executionUUID).First(&execution).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Entity: "execution", Key: executionUUID}
	}
	if err != nil {
		return nil, err
	}
	return &execution, nil
}

func (e *Engine) getAction(id uint) (*database.AutomatedAction, error) {
	var action database.AutomatedAction
	err := e.db.First(&action, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Entity: "action", Key: fmt.Sprint(id)}
	}
	if err != nil {
		return nil, err
	}
	return &action, nil
}

// run drives an execution from pending_approval/approved to a terminal state.
// Plugin errors are always converted into a failure record; nothing escapes
// and leaves the execution stuck in executing.
func (e *Engine) run(execution *database.ActionExecution, action *database.AutomatedAction, execCtx *ExecutionContext, opts Options) {
	if !e.transitionToExecuting(execution) {
		return
	}
	e.publish("executing", execution, action.ActionType)

	plugin, ok := e.registry.Get(action.ActionType)
	if !ok {
		e.fail(execution, action, &ConfigurationError{
			Reason: fmt.Sprintf("no executor registered for action type %q", action.ActionType),
		})
		return
	}

	if validator, ok := plugin.(ConfigValidator); ok {
		if errs := validator.ValidateConfig(action.ActionConfig); len(errs) > 0 {
			e.fail(execution, action, &ValidationError{Errors: errs})
			return
		}
	}

	if opts.DryRun {
		e.complete(execution, action, &Result{
			Message: "dry run: no side effects executed",
			Output:  database.JSONB{"dry_run": true},
		})
		return
	}

	result, err := e.invokeWithDeadline(plugin, action, execCtx, opts.Timeout)
	if err != nil {
		e.fail(execution, action, err)
		return
	}
	e.complete(execution, action, result)
}

// invokeWithDeadline races the plugin call against the execution deadline.
// The deadline context is passed into the plugin so cooperative plugins can
// stop early; a plugin that ignores it is abandoned, not cancelled.
func (e *Engine) invokeWithDeadline(plugin ActionExecutor, action *database.AutomatedAction, execCtx *ExecutionContext, timeout time.Duration) (*Result, error) {
	if timeout <= 0 {
		timeout = e.defaultTimeout()
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	type outcome struct {
		result *Result
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("plugin panicked: %v", r)}
			}
		}()
		result, err := plugin.Execute(ctx, action, execCtx)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		// A cooperative plugin that stopped on the deadline reports the same
		// timeout failure as an abandoned one
		if errors.Is(out.err, context.DeadlineExceeded) {
			return nil, &TimeoutError{Timeout: timeout}
		}
		return out.result, out.err
	case <-ctx.Done():
		return nil, &TimeoutError{Timeout: timeout}
	}
}

func (e *Engine) defaultTimeout() time.Duration {
	settings, err := database.GetOrCreateEngineSettings(e.db)
	if err != nil {
		log.Printf("Executor: could not load engine settings, using 60s timeout: %v", err)
		return 60 * time.Second
	}
	return settings.DefaultTimeout()
}

// transitionToExecuting moves pending_approval or approved to executing
func (e *Engine) transitionToExecuting(execution *database.ActionExecution) bool {
	now := time.Now()
	result := e.db.Model(&database.ActionExecution{}).
		Where("id = ? AND status IN ?", execution.ID,
			[]database.ExecutionStatus{database.ExecutionStatusPendingApproval, database.ExecutionStatusApproved}).
		Updates(map[string]interface{}{
			"status":      database.ExecutionStatusExecuting,
			"executed_at": now,
		})
	if result.Error != nil {
		log.Printf("Executor: failed to transition execution %s to executing: %v", execution.UUID, result.Error)
		return false
	}
	if result.RowsAffected == 0 {
		log.Printf("Executor: execution %s left %s before it could start", execution.UUID, execution.Status)
		return false
	}
	execution.Status = database.ExecutionStatusExecuting
	execution.ExecutedAt = &now
	return true
}

func (e *Engine) complete(execution *database.ActionExecution, action *database.AutomatedAction, result *Result) {
	now := time.Now()
	output := result.Output
	if output == nil {
		output = database.JSONB{}
	}
	if result.Message != "" {
		output["message"] = result.Message
	}

	err := e.db.Model(&database.ActionExecution{}).
		Where("id = ? AND status = ?", execution.ID, database.ExecutionStatusExecuting).
		Updates(map[string]interface{}{
			"status":        database.ExecutionStatusCompleted,
			"completed_at":  now,
			"result":        output,
			"rollback_data": result.RollbackData,
		}).Error
	if err != nil {
		log.Printf("Executor: failed to mark execution %s completed: %v", execution.UUID, err)
		return
	}
	execution.Status = database.ExecutionStatusCompleted
	execution.CompletedAt = &now
	execution.Result = output
	execution.RollbackData = result.RollbackData

	// Dry runs do not touch the action statistics
	if !execution.DryRun {
		e.bumpActionCounters(action, true)
	}
	metrics.RecordExecution(action.ActionType, string(database.ExecutionStatusCompleted))
	e.publish("completed", execution, action.ActionType)
}

func (e *Engine) fail(execution *database.ActionExecution, action *database.AutomatedAction, cause error) {
	now := time.Now()
	err := e.db.Model(&database.ActionExecution{}).
		Where("id = ? AND status = ?", execution.ID, database.ExecutionStatusExecuting).
		Updates(map[string]interface{}{
			"status":        database.ExecutionStatusFailed,
			"completed_at":  now,
			"error_message": cause.Error(),
		}).Error
	if err != nil {
		log.Printf("Executor: failed to mark execution %s failed: %v", execution.UUID, err)
		return
	}
	execution.Status = database.ExecutionStatusFailed
	execution.CompletedAt = &now
	execution.ErrorMessage = cause.Error()

	if !execution.DryRun {
		e.bumpActionCounters(action, false)
	}
	metrics.RecordExecution(action.ActionType, string(database.ExecutionStatusFailed))
	e.publish("failed", execution, action.ActionType)
	log.Printf("Executor: execution %s of action %q failed: %v", execution.UUID, action.Name, cause)
}

// bumpActionCounters atomically updates the action's run statistics
func (e *Engine) bumpActionCounters(action *database.AutomatedAction, success bool) {
	column := "failure_count"
	if success {
		column = "success_count"
	}
	err := e.db.Model(&database.AutomatedAction{}).
		Where("id = ?", action.ID).
		Updates(map[string]interface{}{
			column:              gorm.Expr(column+" + ?", 1),
			"last_triggered_at": time.Now(),
		}).Error
	if err != nil {
		log.Printf("Executor: failed to update counters for action %q: %v", action.Name, err)
	}
}
