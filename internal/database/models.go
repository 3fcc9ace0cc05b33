package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, j)
}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// StringSlice stores a list of strings as a JSON array column
type StringSlice []string

// Scan implements the sql.Scanner interface
func (s *StringSlice) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, s)
}

// Value implements the driver.Valuer interface
func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

// PatternSeverity represents normalized severity of a detected pattern
type PatternSeverity string

const (
	PatternSeverityLow      PatternSeverity = "low"
	PatternSeverityMedium   PatternSeverity = "medium"
	PatternSeverityHigh     PatternSeverity = "high"
	PatternSeverityCritical PatternSeverity = "critical"
)

// SeverityRank returns a numeric rank for ordering severities (higher is worse)
func SeverityRank(s PatternSeverity) int {
	switch s {
	case PatternSeverityCritical:
		return 4
	case PatternSeverityHigh:
		return 3
	case PatternSeverityMedium:
		return 2
	case PatternSeverityLow:
		return 1
	default:
		return 0
	}
}

// GetSeverityEmoji returns an emoji for the pattern severity
func GetSeverityEmoji(severity PatternSeverity) string {
	switch severity {
	case PatternSeverityCritical:
		return ":red_circle:"
	case PatternSeverityHigh:
		return ":large_orange_circle:"
	case PatternSeverityMedium:
		return ":large_yellow_circle:"
	case PatternSeverityLow:
		return ":large_blue_circle:"
	default:
		return ":white_circle:"
	}
}

// TriggerType represents how an automated action is triggered
type TriggerType string

const (
	TriggerTypePattern TriggerType = "pattern"
	TriggerTypeManual  TriggerType = "manual"
)

// AutomatedAction is an operator-authored remedial action bound to a trigger
type AutomatedAction struct {
	ID                 uint        `gorm:"primaryKey" json:"id"`
	UUID               string      `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	OrganizationID     string      `gorm:"size:36;not null;index" json:"organization_id"`
	Name               string      `gorm:"size:255;not null" json:"name"`
	Description        string      `gorm:"type:text" json:"description"`
	ActionType         string      `gorm:"size:64;not null;index" json:"action_type"`
	ActionConfig       JSONB       `gorm:"type:jsonb" json:"action_config"`
	TriggerType        TriggerType `gorm:"type:varchar(50);not null;default:'pattern';index" json:"trigger_type"`
	TriggerPatternType string      `gorm:"size:64;index" json:"trigger_pattern_type"`
	RequiresApproval   bool        `gorm:"default:false" json:"requires_approval"`
	IsActive           bool        `gorm:"default:true" json:"is_active"`
	SuccessCount       int         `gorm:"default:0" json:"success_count"`
	FailureCount       int         `gorm:"default:0" json:"failure_count"`
	LastTriggeredAt    *time.Time  `json:"last_triggered_at,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// BeforeCreate hook to set UUID
func (a *AutomatedAction) BeforeCreate(tx *gorm.DB) error {
	if a.UUID == "" {
		a.UUID = uuid.New().String()
	}
	return nil
}

// ExecutionStatus represents the state of an action execution
type ExecutionStatus string

const (
	ExecutionStatusPendingApproval ExecutionStatus = "pending_approval"
	ExecutionStatusApproved        ExecutionStatus = "approved"
	ExecutionStatusExecuting       ExecutionStatus = "executing"
	ExecutionStatusCompleted       ExecutionStatus = "completed"
	ExecutionStatusFailed          ExecutionStatus = "failed"
	ExecutionStatusCancelled       ExecutionStatus = "cancelled"
	ExecutionStatusRolledBack      ExecutionStatus = "rolled_back"
)

// IsTerminal returns true for states an execution cannot leave, except that
// a completed execution may still transition to rolled_back.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusFailed, ExecutionStatusCancelled, ExecutionStatusRolledBack:
		return true
	default:
		return false
	}
}

// ActionExecution is one concrete, stateful attempt to run an action
type ActionExecution struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	UUID          string          `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	ActionID      uint            `gorm:"not null;index" json:"action_id"`
	PatternID     string          `gorm:"size:128;index" json:"pattern_id"`
	TriggerReason string          `gorm:"type:text" json:"trigger_reason"`
	TriggeredBy   string          `gorm:"size:255" json:"triggered_by"`
	Status        ExecutionStatus `gorm:"type:varchar(50);not null;default:'pending_approval';index" json:"status"`
	DryRun        bool            `gorm:"default:false" json:"dry_run"`
	ApprovedBy    string          `gorm:"size:255" json:"approved_by,omitempty"`
	ExecutedAt    *time.Time      `json:"executed_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	Result        JSONB           `gorm:"type:jsonb" json:"result,omitempty"`
	ErrorMessage  string          `gorm:"type:text" json:"error_message,omitempty"`
	RollbackData  JSONB           `gorm:"type:jsonb" json:"rollback_data,omitempty"`
	WasRolledBack bool            `gorm:"default:false" json:"was_rolled_back"`
	RolledBackAt  *time.Time      `json:"rolled_back_at,omitempty"`
	RolledBackBy  string          `gorm:"size:255" json:"rolled_back_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`

	// Relationships
	Action AutomatedAction `gorm:"foreignKey:ActionID" json:"action,omitempty"`
}

// BeforeCreate hook to set UUID
func (e *ActionExecution) BeforeCreate(tx *gorm.DB) error {
	if e.UUID == "" {
		e.UUID = uuid.New().String()
	}
	return nil
}

// EscalationStatus represents the lifecycle of a single escalation notice
type EscalationStatus string

const (
	EscalationStatusNotified     EscalationStatus = "notified"
	EscalationStatusAcknowledged EscalationStatus = "acknowledged"
	EscalationStatusCancelled    EscalationStatus = "cancelled"
)

// Escalation is one delivered escalation notice, the history entry of an
// escalation chain advancing one level.
type Escalation struct {
	ID             uint             `gorm:"primaryKey" json:"id"`
	UUID           string           `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	OrganizationID string           `gorm:"size:36;not null;index" json:"organization_id"`
	ActionID       uint             `gorm:"not null;index" json:"action_id"`
	PatternID      string           `gorm:"size:128;not null;index" json:"pattern_id"`
	Level          int              `gorm:"not null" json:"level"`
	TargetType     string           `gorm:"size:32;not null" json:"target_type"`
	TargetUUID     string           `gorm:"size:36;not null" json:"target_uuid"`
	TargetName     string           `gorm:"size:255" json:"target_name"`
	Status         EscalationStatus `gorm:"type:varchar(50);not null;default:'notified'" json:"status"`
	NotifiedAt     time.Time        `json:"notified_at"`
	AcknowledgedAt *time.Time       `json:"acknowledged_at,omitempty"`
	CancelledAt    *time.Time       `json:"cancelled_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// BeforeCreate hook to set UUID and NotifiedAt
func (e *Escalation) BeforeCreate(tx *gorm.DB) error {
	if e.UUID == "" {
		e.UUID = uuid.New().String()
	}
	if e.NotifiedAt.IsZero() {
		e.NotifiedAt = time.Now()
	}
	return nil
}

// EscalationState tracks the current chain level per (action, pattern).
// Version is an optimistic concurrency token: advances are read-modify-write
// with a guarded UPDATE on the expected version.
type EscalationState struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	ActionID    uint       `gorm:"not null;uniqueIndex:idx_escalation_state_key" json:"action_id"`
	PatternID   string     `gorm:"size:128;not null;uniqueIndex:idx_escalation_state_key" json:"pattern_id"`
	CurrentLevel int       `gorm:"default:0" json:"current_level"`
	EscalatedAt *time.Time `json:"escalated_at,omitempty"`
	Version     int        `gorm:"default:0" json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// FollowUpStatus represents the state of a scheduled escalation follow-up
type FollowUpStatus string

const (
	FollowUpStatusPending FollowUpStatus = "pending"
	FollowUpStatusDone    FollowUpStatus = "done"
	FollowUpStatusFailed  FollowUpStatus = "failed"
)

// EscalationFollowUp is a scheduled future re-invocation of an escalation
// action, created when a chain level specifies a positive wait time.
type EscalationFollowUp struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	ActionID        uint           `gorm:"not null;index" json:"action_id"`
	PatternID       string         `gorm:"size:128;not null" json:"pattern_id"`
	DueAt           time.Time      `gorm:"not null;index" json:"due_at"`
	Status          FollowUpStatus `gorm:"type:varchar(50);not null;default:'pending';index" json:"status"`
	PatternSnapshot JSONB          `gorm:"type:jsonb" json:"pattern_snapshot"`
	ErrorMessage    string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// RollbackRequestStatus represents the state of a rollback request
type RollbackRequestStatus string

const (
	RollbackRequestStatusPending   RollbackRequestStatus = "pending"
	RollbackRequestStatusApproved  RollbackRequestStatus = "approved"
	RollbackRequestStatusRejected  RollbackRequestStatus = "rejected"
	RollbackRequestStatusCompleted RollbackRequestStatus = "completed"
	RollbackRequestStatusFailed    RollbackRequestStatus = "failed"
)

// RollbackRequest is an approval-gated request to compensate a completed execution
type RollbackRequest struct {
	ID          uint                  `gorm:"primaryKey" json:"id"`
	UUID        string                `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	ExecutionID uint                  `gorm:"not null;index" json:"execution_id"`
	RequestedBy string                `gorm:"size:255;not null" json:"requested_by"`
	Reason      string                `gorm:"type:text" json:"reason"`
	Status      RollbackRequestStatus `gorm:"type:varchar(50);not null;default:'pending';index" json:"status"`
	ApprovedBy  string                `gorm:"size:255" json:"approved_by,omitempty"`
	RejectedBy  string                `gorm:"size:255" json:"rejected_by,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`

	// Relationships
	Execution ActionExecution `gorm:"foreignKey:ExecutionID" json:"execution,omitempty"`
}

// BeforeCreate hook to set UUID
func (r *RollbackRequest) BeforeCreate(tx *gorm.DB) error {
	if r.UUID == "" {
		r.UUID = uuid.New().String()
	}
	return nil
}

// Notification is a persisted notice delivered to a person
type Notification struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrganizationID string    `gorm:"size:36;not null;index" json:"organization_id"`
	RecipientUUID  string    `gorm:"size:36;not null;index" json:"recipient_uuid"`
	Kind           string    `gorm:"size:64;not null" json:"kind"`
	Title          string    `gorm:"size:255" json:"title"`
	Message        string    `gorm:"type:text" json:"message"`
	CreatedAt      time.Time `json:"created_at"`
}

// AuditLog is a best-effort record of an engine operation
type AuditLog struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrganizationID string    `gorm:"size:36;index" json:"organization_id"`
	Actor          string    `gorm:"size:255" json:"actor"`
	Operation      string    `gorm:"size:64;not null;index" json:"operation"`
	EntityType     string    `gorm:"size:64" json:"entity_type"`
	EntityID       string    `gorm:"size:128" json:"entity_id"`
	Details        JSONB     `gorm:"type:jsonb" json:"details,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ========== Operational Read Model ==========
//
// The tables the detectors scan. Populated by the wider platform; the engine
// only reads them, except for task reassignment.

// Organization is a tenant of the platform
type Organization struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UUID      string    `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate hook to set UUID
func (o *Organization) BeforeCreate(tx *gorm.DB) error {
	if o.UUID == "" {
		o.UUID = uuid.New().String()
	}
	return nil
}

// Person is a member of an organization, a candidate escalation target
type Person struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UUID           string    `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	OrganizationID string    `gorm:"size:36;not null;index" json:"organization_id"`
	Name           string    `gorm:"size:255;not null" json:"name"`
	Email          string    `gorm:"size:255" json:"email"`
	Role           string    `gorm:"size:64;index" json:"role"`
	ManagerUUID    string    `gorm:"size:36" json:"manager_uuid,omitempty"`
	IsActive       bool      `gorm:"default:true" json:"is_active"`
	IsOnLeave      bool      `gorm:"default:false" json:"is_on_leave"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// BeforeCreate hook to set UUID
func (p *Person) BeforeCreate(tx *gorm.DB) error {
	if p.UUID == "" {
		p.UUID = uuid.New().String()
	}
	return nil
}

// IsAvailable returns true if the person can be assigned work or notified
func (p *Person) IsAvailable() bool {
	return p.IsActive && !p.IsOnLeave
}

// TaskStatus represents the state of a workflow task
type TaskStatus string

const (
	TaskStatusOpen       TaskStatus = "open"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
)

// OpenTaskStatuses lists the statuses counted as open workload
func OpenTaskStatuses() []TaskStatus {
	return []TaskStatus{TaskStatusOpen, TaskStatusInProgress}
}

// WorkflowTask is a unit of work flowing through the platform
type WorkflowTask struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	UUID           string     `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	OrganizationID string     `gorm:"size:36;not null;index" json:"organization_id"`
	Name           string     `gorm:"size:255" json:"name"`
	AssigneeUUID   string     `gorm:"size:36;index" json:"assignee_uuid"`
	Status         TaskStatus `gorm:"type:varchar(50);not null;default:'open';index" json:"status"`
	DueAt          *time.Time `json:"due_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// BeforeCreate hook to set UUID
func (t *WorkflowTask) BeforeCreate(tx *gorm.DB) error {
	if t.UUID == "" {
		t.UUID = uuid.New().String()
	}
	return nil
}

// ApprovalRequest is a pending approval flowing through the platform
type ApprovalRequest struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UUID           string    `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	OrganizationID string    `gorm:"size:36;not null;index" json:"organization_id"`
	ApproverUUID   string    `gorm:"size:36;index" json:"approver_uuid"`
	Subject        string    `gorm:"size:255" json:"subject"`
	Status         string    `gorm:"size:50;not null;default:'pending';index" json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// BeforeCreate hook to set UUID
func (a *ApprovalRequest) BeforeCreate(tx *gorm.DB) error {
	if a.UUID == "" {
		a.UUID = uuid.New().String()
	}
	return nil
}

// IntegrationEvent records an outbound integration call outcome
type IntegrationEvent struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrganizationID string    `gorm:"size:36;not null;index" json:"organization_id"`
	Integration    string    `gorm:"size:128;not null;index" json:"integration"`
	Success        bool      `gorm:"index" json:"success"`
	Message        string    `gorm:"type:text" json:"message"`
	OccurredAt     time.Time `gorm:"index" json:"occurred_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// BeforeCreate hook to set OccurredAt
func (e *IntegrationEvent) BeforeCreate(tx *gorm.DB) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	return nil
}

// ========== Table names ==========

func (AutomatedAction) TableName() string    { return "automated_actions" }
func (ActionExecution) TableName() string    { return "action_executions" }
func (Escalation) TableName() string         { return "escalations" }
func (EscalationState) TableName() string    { return "escalation_states" }
func (EscalationFollowUp) TableName() string { return "escalation_follow_ups" }
func (RollbackRequest) TableName() string    { return "rollback_requests" }
func (Notification) TableName() string       { return "notifications" }
func (AuditLog) TableName() string           { return "audit_logs" }
func (Organization) TableName() string       { return "organizations" }
func (Person) TableName() string             { return "persons" }
func (WorkflowTask) TableName() string       { return "workflow_tasks" }
func (ApprovalRequest) TableName() string    { return "approval_requests" }
func (IntegrationEvent) TableName() string   { return "integration_events" }

// ParseDenylist splits a comma-separated action-type denylist into a set
func ParseDenylist(raw string) map[string]bool {
	set := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			set[part] = true
		}
	}
	return set
}
