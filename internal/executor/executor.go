// Package executor owns the action execution state machine: approval gating,
// timeout enforcement, rollback and the plugin registry actions dispatch
// through.
package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/automend/automend/internal/database"
	"github.com/automend/automend/internal/patterns"
)

// ExecutionContext carries the trigger context into a plugin invocation
type ExecutionContext struct {
	OrganizationID string
	TriggerReason  string
	TriggeredBy    string

	// PatternID is the stable fingerprint of the triggering pattern; set even
	// when the full Pattern is no longer available (approval re-entry).
	PatternID string

	// Pattern is the detection that triggered the action; nil for manual runs
	// and approval re-entries.
	Pattern *patterns.Pattern
}

// Result is what a plugin returns on success
type Result struct {
	Message string
	Output  database.JSONB

	// RollbackData holds whatever the plugin needs to compensate this
	// execution later; nil means nothing to roll back.
	RollbackData database.JSONB
}

// ActionExecutor is the plugin contract for one action type
type ActionExecutor interface {
	// ActionType returns the action type this plugin handles (e.g., "escalate")
	ActionType() string

	// Execute runs the action. Plugins must honor ctx cancellation: after the
	// deadline fires the engine abandons the call but cannot stop it.
	Execute(ctx context.Context, action *database.AutomatedAction, execCtx *ExecutionContext) (*Result, error)

	// CanRollback reports whether this plugin supports compensation
	CanRollback() bool
}

// ConfigValidator is an optional plugin hook validating action config before
// any side effect.
type ConfigValidator interface {
	ValidateConfig(config database.JSONB) []string
}

// Rollbacker is the optional compensation hook of a plugin
type Rollbacker interface {
	Rollback(ctx context.Context, action *database.AutomatedAction, execution *database.ActionExecution, data database.JSONB) error
}

// Registry holds the registered action executors, populated at startup
type Registry struct {
	mu        sync.RWMutex
	executors map[string]ActionExecutor
}

// NewRegistry creates an empty action executor registry
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[string]ActionExecutor),
	}
}

// Register adds an action executor to the registry
func (r *Registry) Register(e ActionExecutor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	actionType := e.ActionType()
	if actionType == "" {
		return fmt.Errorf("action executor has empty action type")
	}
	if _, exists := r.executors[actionType]; exists {
		return fmt.Errorf("executor for action type %q is already registered", actionType)
	}
	r.executors[actionType] = e
	return nil
}

// Get returns the executor for an action type
func (r *Registry) Get(actionType string) (ActionExecutor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[actionType]
	return e, ok
}

// Types returns all registered action types, sorted
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// CanRollback reports whether the registered plugin for actionType supports
// compensation. Unregistered types cannot roll back.
func (r *Registry) CanRollback(actionType string) bool {
	e, ok := r.Get(actionType)
	return ok && e.CanRollback()
}

// ValidateConfig runs the plugin's config validation hook if it has one.
// Returns nil when the plugin has no hook or the config passes.
func (r *Registry) ValidateConfig(actionType string, config database.JSONB) error {
	e, ok := r.Get(actionType)
	if !ok {
		return &ConfigurationError{Reason: fmt.Sprintf("no executor registered for action type %q", actionType)}
	}
	validator, ok := e.(ConfigValidator)
	if !ok {
		return nil
	}
	if errs := validator.ValidateConfig(config); len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}
