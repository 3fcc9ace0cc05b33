package executor

import (
	"fmt"
	"strings"
	"time"

	"github.com/automend/automend/internal/database"
)

// ConfigurationError marks an execution that failed because of bad operator
// configuration (e.g. an unregistered action type). Fatal for the current
// execution; never retried automatically.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// ValidationError collects the problems a plugin's validate hook found in an
// action config. Rejected before any side effect.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "invalid action config: " + strings.Join(e.Errors, "; ")
}

// TimeoutError marks an execution that exceeded its deadline. The plugin's
// side effects may have already started and are not compensated by the
// timeout path.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("execution exceeded the %s deadline; side effects may be partially applied", e.Timeout)
}

// NotFoundError marks a missing execution, action or rollback request
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.Key)
}

// StateConflictError marks an operation attempted against an execution in the
// wrong state (approving a non-pending execution, double rollback, ...).
// Callers must not retry blindly.
type StateConflictError struct {
	Op     string
	Status database.ExecutionStatus
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("cannot %s an execution in status %q", e.Op, e.Status)
}
