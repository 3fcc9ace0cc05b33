package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/automend/automend/internal/database"
	"github.com/automend/automend/internal/patterns"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	err = db.AutoMigrate(
		&database.EngineSettings{},
		&database.AutomatedAction{},
		&database.ActionExecution{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// fakeExecutor is a scriptable plugin for engine tests
type fakeExecutor struct {
	actionType     string
	result         *Result
	err            error
	delay          time.Duration
	ignoreDeadline bool
	configErrors   []string
	rollbackable   bool
	rollbackErr    error
	calls          int
	rollbacks      int
}

func (f *fakeExecutor) ActionType() string { return f.actionType }
func (f *fakeExecutor) CanRollback() bool  { return f.rollbackable }

func (f *fakeExecutor) Execute(ctx context.Context, action *database.AutomatedAction, execCtx *ExecutionContext) (*Result, error) {
	f.calls++
	if f.delay > 0 {
		if f.ignoreDeadline {
			time.Sleep(f.delay)
		} else {
			select {
			case <-time.After(f.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &Result{Message: "ok"}, nil
}

func (f *fakeExecutor) ValidateConfig(config database.JSONB) []string {
	return f.configErrors
}

func (f *fakeExecutor) Rollback(ctx context.Context, action *database.AutomatedAction, execution *database.ActionExecution, data database.JSONB) error {
	f.rollbacks++
	return f.rollbackErr
}

func newTestEngine(t *testing.T, db *gorm.DB, plugins ...ActionExecutor) *Engine {
	t.Helper()
	registry := NewRegistry()
	for _, p := range plugins {
		if err := registry.Register(p); err != nil {
			t.Fatalf("failed to register plugin: %v", err)
		}
	}
	return NewEngine(db, registry)
}

func createAction(t *testing.T, db *gorm.DB, actionType string, requiresApproval bool) *database.AutomatedAction {
	t.Helper()
	action := &database.AutomatedAction{
		OrganizationID:     "org-1",
		Name:               "test " + actionType,
		ActionType:         actionType,
		TriggerType:        database.TriggerTypePattern,
		TriggerPatternType: patterns.TypeStuckWorkflow,
		RequiresApproval:   requiresApproval,
		IsActive:           true,
	}
	if err := db.Create(action).Error; err != nil {
		t.Fatalf("failed to create action: %v", err)
	}
	return action
}

func reloadExecution(t *testing.T, db *gorm.DB, id uint) *database.ActionExecution {
	t.Helper()
	var exec database.ActionExecution
	if err := db.First(&exec, id).Error; err != nil {
		t.Fatalf("failed to reload execution: %v", err)
	}
	return &exec
}

func reloadAction(t *testing.T, db *gorm.DB, id uint) *database.AutomatedAction {
	t.Helper()
	var action database.AutomatedAction
	if err := db.First(&action, id).Error; err != nil {
		t.Fatalf("failed to reload action: %v", err)
	}
	return &action
}

func TestExecuteAction_SuccessPath(t *testing.T) {
	db := setupTestDB(t)
	plugin := &fakeExecutor{actionType: "notify", result: &Result{
		Message:      "done",
		RollbackData: database.JSONB{"undo": "data"},
	}}
	engine := newTestEngine(t, db, plugin)
	action := createAction(t, db, "notify", false)

	execution, err := engine.ExecuteAction(action, &ExecutionContext{
		OrganizationID: "org-1",
		TriggerReason:  "manual test",
	}, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if execution.Status != database.ExecutionStatusCompleted {
		t.Errorf("expected completed, got %s", execution.Status)
	}
	if execution.ExecutedAt == nil || execution.CompletedAt == nil {
		t.Error("expected executed_at and completed_at to be set")
	}
	if execution.RollbackData["undo"] != "data" {
		t.Errorf("expected rollback data stored, got %v", execution.RollbackData)
	}

	updated := reloadAction(t, db, action.ID)
	if updated.SuccessCount != 1 || updated.FailureCount != 0 {
		t.Errorf("expected success_count=1 failure_count=0, got %d/%d", updated.SuccessCount, updated.FailureCount)
	}
	if updated.LastTriggeredAt == nil {
		t.Error("expected last_triggered_at to be set")
	}
}

func TestExecuteAction_PluginFailure(t *testing.T) {
	db := setupTestDB(t)
	plugin := &fakeExecutor{actionType: "notify", err: errors.New("downstream unavailable")}
	engine := newTestEngine(t, db, plugin)
	action := createAction(t, db, "notify", false)

	execution, err := engine.ExecuteAction(action, &ExecutionContext{OrganizationID: "org-1"}, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if execution.Status != database.ExecutionStatusFailed {
		t.Errorf("expected failed, got %s", execution.Status)
	}
	if execution.ErrorMessage == "" {
		t.Error("expected error message to be recorded")
	}

	updated := reloadAction(t, db, action.ID)
	if updated.FailureCount != 1 || updated.SuccessCount != 0 {
		t.Errorf("expected failure_count=1 success_count=0, got %d/%d", updated.FailureCount, updated.SuccessCount)
	}
}

func TestExecuteAction_UnregisteredTypeFails(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestEngine(t, db)
	action := createAction(t, db, "no_such_plugin", false)

	execution, err := engine.ExecuteAction(action, &ExecutionContext{OrganizationID: "org-1"}, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if execution.Status != database.ExecutionStatusFailed {
		t.Errorf("expected failed for unregistered type, got %s", execution.Status)
	}
	if execution.ErrorMessage == "" {
		t.Error("expected configuration error message")
	}
}

func TestExecuteAction_ValidationAbortsBeforeSideEffects(t *testing.T) {
	db := setupTestDB(t)
	plugin := &fakeExecutor{actionType: "notify", configErrors: []string{"message must be set"}}
	engine := newTestEngine(t, db, plugin)
	action := createAction(t, db, "notify", false)

	execution, _ := engine.ExecuteAction(action, &ExecutionContext{OrganizationID: "org-1"}, Options{})
	if execution.Status != database.ExecutionStatusFailed {
		t.Errorf("expected failed, got %s", execution.Status)
	}
	if plugin.calls != 0 {
		t.Errorf("expected plugin to not run on validation failure, ran %d times", plugin.calls)
	}
}

func TestExecuteAction_Timeout(t *testing.T) {
	db := setupTestDB(t)
	plugin := &fakeExecutor{actionType: "notify", delay: 500 * time.Millisecond, ignoreDeadline: true}
	engine := newTestEngine(t, db, plugin)
	action := createAction(t, db, "notify", false)

	execution, err := engine.ExecuteAction(action, &ExecutionContext{OrganizationID: "org-1"},
		Options{Timeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if execution.Status != database.ExecutionStatusFailed {
		t.Errorf("expected failed on timeout, got %s", execution.Status)
	}

	want := (&TimeoutError{Timeout: 20 * time.Millisecond}).Error()
	if execution.ErrorMessage != want {
		t.Errorf("expected timeout message %q, got %q", want, execution.ErrorMessage)
	}
}

func TestExecuteAction_CooperativePluginTimeout(t *testing.T) {
	db := setupTestDB(t)
	// The plugin honors the deadline and returns ctx.Err() itself; the
	// recorded failure must read the same as an abandoned plugin's.
	plugin := &fakeExecutor{actionType: "notify", delay: 500 * time.Millisecond}
	engine := newTestEngine(t, db, plugin)
	action := createAction(t, db, "notify", false)

	execution, err := engine.ExecuteAction(action, &ExecutionContext{OrganizationID: "org-1"},
		Options{Timeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if execution.Status != database.ExecutionStatusFailed {
		t.Errorf("expected failed on timeout, got %s", execution.Status)
	}

	want := (&TimeoutError{Timeout: 20 * time.Millisecond}).Error()
	if execution.ErrorMessage != want {
		t.Errorf("expected timeout message %q, got %q", want, execution.ErrorMessage)
	}
}

func TestExecuteAction_ApprovalGate(t *testing.T) {
	db := setupTestDB(t)
	plugin := &fakeExecutor{actionType: "notify"}
	engine := newTestEngine(t, db, plugin)
	action := createAction(t, db, "notify", true)

	execution, err := engine.ExecuteAction(action, &ExecutionContext{OrganizationID: "org-1"}, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if execution.Status != database.ExecutionStatusPendingApproval {
		t.Errorf("expected pending_approval, got %s", execution.Status)
	}
	if plugin.calls != 0 {
		t.Errorf("expected plugin to not run before approval, ran %d times", plugin.calls)
	}

	// Counters untouched while gated
	updated := reloadAction(t, db, action.ID)
	if updated.SuccessCount != 0 || updated.FailureCount != 0 {
		t.Errorf("expected untouched counters, got %d/%d", updated.SuccessCount, updated.FailureCount)
	}
}

func TestExecuteAction_BypassApproval(t *testing.T) {
	db := setupTestDB(t)
	plugin := &fakeExecutor{actionType: "notify"}
	engine := newTestEngine(t, db, plugin)
	action := createAction(t, db, "notify", true)

	execution, _ := engine.ExecuteAction(action, &ExecutionContext{OrganizationID: "org-1"},
		Options{BypassApproval: true})
	if execution.Status != database.ExecutionStatusCompleted {
		t.Errorf("expected completed with bypass, got %s", execution.Status)
	}
}

func TestApproveExecution_RunsTheAction(t *testing.T) {
	db := setupTestDB(t)
	plugin := &fakeExecutor{actionType: "notify"}
	engine := newTestEngine(t, db, plugin)
	action := createAction(t, db, "notify", true)

	pending, _ := engine.ExecuteAction(action, &ExecutionContext{OrganizationID: "org-1", PatternID: "p-1"}, Options{})

	approved, err := engine.ApproveExecution(pending.UUID, "operator@corp")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if approved.Status != database.ExecutionStatusCompleted {
		t.Errorf("expected completed after approval, got %s", approved.Status)
	}
	if approved.ApprovedBy != "operator@corp" {
		t.Errorf("expected approver recorded, got %q", approved.ApprovedBy)
	}
	if plugin.calls != 1 {
		t.Errorf("expected one plugin call, got %d", plugin.calls)
	}

	stored := reloadExecution(t, db, pending.ID)
	if stored.PatternID != "p-1" {
		t.Errorf("expected pattern id preserved, got %q", stored.PatternID)
	}
}

func TestApproveExecution_WrongStateRejected(t *testing.T) {
	db := setupTestDB(t)
	plugin := &fakeExecutor{actionType: "notify"}
	engine := newTestEngine(t, db, plugin)
	action := createAction(t, db, "notify", false)

	execution, _ := engine.ExecuteAction(action, &ExecutionContext{OrganizationID: "org-1"}, Options{})
	if execution.Status != database.ExecutionStatusCompleted {
		t.Fatalf("setup: expected completed, got %s", execution.Status)
	}

	_, err := engine.ApproveExecution(execution.UUID, "operator")
	var conflict *StateConflictError
	if !errors.As(err, &conflict) {
		t.Errorf("expected StateConflictError, got %v", err)
	}
}

func TestApproveExecution_MissingExecution(t *testing.T) {
	db := setupTestDB(t)
	engine := newTestEngine(t, db)

	_, err := engine.ApproveExecution("does-not-exist", "operator")
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestCancelExecution_OnlyFromPendingApproval(t *testing.T) {
	db := setupTestDB(t)
	plugin := &fakeExecutor{actionType: "notify"}
	engine := newTestEngine(t, db, plugin)
	action := createAction(t, db, "notify", true)

	pending, _ := engine.ExecuteAction(action, &ExecutionContext{OrganizationID: "org-1"}, Options{})
	if err := engine.CancelExecution(pending.UUID, "operator"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := reloadExecution(t, db, pending.ID)
	if stored.Status != database.ExecutionStatusCancelled {
		t.Errorf("expected cancelled, got %s", stored.Status)
	}

	// Cancelled execution cannot be approved or cancelled again
	if _, err := engine.ApproveExecution(pending.UUID, "operator"); err == nil {
		t.Error("expected error approving a cancelled execution")
	}
	var conflict *StateConflictError
	if err := engine.CancelExecution(pending.UUID, "operator"); !errors.As(err, &conflict) {
		t.Errorf("expected StateConflictError on double cancel, got %v", err)
	}
}

func TestDryRun_RecordsSyntheticSuccessWithoutCounters(t *testing.T) {
	db := setupTestDB(t)
	plugin := &fakeExecutor{actionType: "notify"}
	engine := newTestEngine(t, db, plugin)
	action := createAction(t, db, "notify", false)

	execution, _ := engine.ExecuteAction(action, &ExecutionContext{OrganizationID: "org-1"},
		Options{DryRun: true})
	if execution.Status != database.ExecutionStatusCompleted {
		t.Errorf("expected completed, got %s", execution.Status)
	}
	if plugin.calls != 0 {
		t.Errorf("expected plugin to not run on dry run, ran %d times", plugin.calls)
	}
	if execution.Result["dry_run"] != true {
		t.Errorf("expected synthetic dry run result, got %v", execution.Result)
	}

	updated := reloadAction(t, db, action.ID)
	if updated.SuccessCount != 0 {
		t.Errorf("expected dry run to not bump counters, got success_count=%d", updated.SuccessCount)
	}
}

func TestRollbackExecution_HappyPathAndIdempotenceGuard(t *testing.T) {
	db := setupTestDB(t)
	plugin := &fakeExecutor{actionType: "reassign_tasks", rollbackable: true, result: &Result{
		RollbackData: database.JSONB{"assignments": []interface{}{}},
	}}
	engine := newTestEngine(t, db, plugin)
	action := createAction(t, db, "reassign_tasks", false)

	execution, _ := engine.ExecuteAction(action, &ExecutionContext{OrganizationID: "org-1"}, Options{})
	if execution.Status != database.ExecutionStatusCompleted {
		t.Fatalf("setup: expected completed, got %s", execution.Status)
	}

	if err := engine.RollbackExecution(execution.UUID, "operator"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plugin.rollbacks != 1 {
		t.Errorf("expected one rollback call, got %d", plugin.rollbacks)
	}

	stored := reloadExecution(t, db, execution.ID)
	if stored.Status != database.ExecutionStatusRolledBack || !stored.WasRolledBack {
		t.Errorf("expected rolled_back with flag set, got %s / %v", stored.Status, stored.WasRolledBack)
	}
	if stored.RolledBackBy != "operator" || stored.RolledBackAt == nil {
		t.Error("expected rollback attribution to be recorded")
	}

	// Second rollback attempt is rejected and does not reach the plugin
	var conflict *StateConflictError
	if err := engine.RollbackExecution(execution.UUID, "operator"); !errors.As(err, &conflict) {
		t.Errorf("expected StateConflictError on double rollback, got %v", err)
	}
	if plugin.rollbacks != 1 {
		t.Errorf("expected no second rollback call, got %d", plugin.rollbacks)
	}
}

func TestRollbackExecution_RejectsNonCompleted(t *testing.T) {
	db := setupTestDB(t)
	plugin := &fakeExecutor{actionType: "reassign_tasks", rollbackable: true, err: errors.New("boom")}
	engine := newTestEngine(t, db, plugin)
	action := createAction(t, db, "reassign_tasks", false)

	execution, _ := engine.ExecuteAction(action, &ExecutionContext{OrganizationID: "org-1"}, Options{})
	if execution.Status != database.ExecutionStatusFailed {
		t.Fatalf("setup: expected failed, got %s", execution.Status)
	}

	var conflict *StateConflictError
	if err := engine.RollbackExecution(execution.UUID, "operator"); !errors.As(err, &conflict) {
		t.Errorf("expected StateConflictError for failed execution, got %v", err)
	}
}

func TestRollbackExecution_RequiresRollbackData(t *testing.T) {
	db := setupTestDB(t)
	plugin := &fakeExecutor{actionType: "reassign_tasks", rollbackable: true}
	engine := newTestEngine(t, db, plugin)
	action := createAction(t, db, "reassign_tasks", false)

	// Completes without rollback data
	execution, _ := engine.ExecuteAction(action, &ExecutionContext{OrganizationID: "org-1"}, Options{})

	var configErr *ConfigurationError
	if err := engine.RollbackExecution(execution.UUID, "operator"); !errors.As(err, &configErr) {
		t.Errorf("expected ConfigurationError without rollback data, got %v", err)
	}
}

func TestRollbackExecution_FailureReleasesClaim(t *testing.T) {
	db := setupTestDB(t)
	plugin := &fakeExecutor{actionType: "reassign_tasks", rollbackable: true,
		result:      &Result{RollbackData: database.JSONB{"assignments": []interface{}{}}},
		rollbackErr: errors.New("restore failed")}
	engine := newTestEngine(t, db, plugin)
	action := createAction(t, db, "reassign_tasks", false)

	execution, _ := engine.ExecuteAction(action, &ExecutionContext{OrganizationID: "org-1"}, Options{})

	if err := engine.RollbackExecution(execution.UUID, "operator"); err == nil {
		t.Fatal("expected rollback error")
	}

	stored := reloadExecution(t, db, execution.ID)
	if stored.WasRolledBack {
		t.Error("expected claim released after rollback failure")
	}
	if stored.Status != database.ExecutionStatusCompleted {
		t.Errorf("expected execution still completed, got %s", stored.Status)
	}

	// Operator can retry after fixing the cause
	plugin.rollbackErr = nil
	if err := engine.RollbackExecution(execution.UUID, "operator"); err != nil {
		t.Errorf("expected retry to succeed, got %v", err)
	}
}

func TestExecuteActionsForPatterns_IndependentFanOut(t *testing.T) {
	db := setupTestDB(t)
	good := &fakeExecutor{actionType: "notify"}
	bad := &fakeExecutor{actionType: "reassign_tasks", err: errors.New("boom")}
	engine := newTestEngine(t, db, good, bad)

	goodAction := createAction(t, db, "notify", false)
	badAction := createAction(t, db, "reassign_tasks", false)

	now := time.Now()
	pattern := patterns.Pattern{
		ID:              "stuck_workflow:abc",
		Type:            patterns.TypeStuckWorkflow,
		OrganizationID:  "org-1",
		Severity:        database.PatternSeverityHigh,
		Occurrences:     1,
		FirstDetectedAt: now,
		LastDetectedAt:  now,
	}
	matches := map[string][]uint{pattern.ID: {badAction.ID, goodAction.ID}}

	executions := engine.ExecuteActionsForPatterns("org-1", []patterns.Pattern{pattern}, matches, Options{})
	if len(executions) != 2 {
		t.Fatalf("expected 2 executions, got %d", len(executions))
	}

	statuses := map[database.ExecutionStatus]int{}
	for _, e := range executions {
		statuses[e.Status]++
	}
	if statuses[database.ExecutionStatusCompleted] != 1 || statuses[database.ExecutionStatusFailed] != 1 {
		t.Errorf("expected one completed and one failed, got %v", statuses)
	}
}
