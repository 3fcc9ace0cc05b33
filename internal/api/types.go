package api

// CreateActionRequest is the payload for creating or updating an automated
// action.
type CreateActionRequest struct {
	OrganizationID     string                 `json:"organization_id" validate:"required"`
	Name               string                 `json:"name" validate:"required,min=1,max=255"`
	Description        string                 `json:"description" validate:"max=2000"`
	ActionType         string                 `json:"action_type" validate:"required"`
	ActionConfig       map[string]interface{} `json:"action_config"`
	TriggerType        string                 `json:"trigger_type" validate:"required,oneof=pattern manual"`
	TriggerPatternType string                 `json:"trigger_pattern_type"`
	RequiresApproval   bool                   `json:"requires_approval"`
	IsActive           bool                   `json:"is_active"`
}

// ExecuteActionRequest triggers a manual execution of an action
type ExecuteActionRequest struct {
	TriggeredBy string `json:"triggered_by" validate:"required"`
	Reason      string `json:"reason" validate:"max=2000"`
	DryRun      bool   `json:"dry_run"`
}

// ApproveExecutionRequest approves a pending execution
type ApproveExecutionRequest struct {
	ApprovedBy string `json:"approved_by" validate:"required"`
}

// CancelExecutionRequest cancels a pending execution
type CancelExecutionRequest struct {
	CancelledBy string `json:"cancelled_by" validate:"required"`
}

// RollbackRequestPayload asks for a completed execution to be compensated
type RollbackRequestPayload struct {
	RequestedBy string `json:"requested_by" validate:"required"`
	Reason      string `json:"reason" validate:"required,max=2000"`
}

// RollbackDecisionRequest approves or rejects a pending rollback request
type RollbackDecisionRequest struct {
	DecidedBy string `json:"decided_by" validate:"required"`
}

// UpdateEngineSettingsRequest carries the operator-editable engine settings.
// Pointer fields distinguish omitted keys from zero values.
type UpdateEngineSettingsRequest struct {
	ScanEnabled         *bool   `json:"scan_enabled"`
	ScanIntervalMinutes *int    `json:"scan_interval_minutes" validate:"omitempty,min=1,max=1440"`
	TimeWindowMinutes   *int    `json:"time_window_minutes" validate:"omitempty,min=5,max=10080"`
	MinSeverity         *string `json:"min_severity" validate:"omitempty,oneof=low medium high critical"`

	DefaultTimeoutSeconds *int `json:"default_timeout_seconds" validate:"omitempty,min=1,max=3600"`

	MaxRollbackWindowHours   *int    `json:"max_rollback_window_hours" validate:"omitempty,min=1,max=720"`
	RollbackRequiresApproval *bool   `json:"rollback_requires_approval"`
	RollbackDenylist         *string `json:"rollback_denylist"`

	StuckTaskThresholdMinutes       *int     `json:"stuck_task_threshold_minutes" validate:"omitempty,min=1"`
	IntegrationFailureThreshold     *int     `json:"integration_failure_threshold" validate:"omitempty,min=1"`
	WorkloadImbalanceRatio          *float64 `json:"workload_imbalance_ratio" validate:"omitempty,gt=1"`
	ApprovalPendingThresholdMinutes *int     `json:"approval_pending_threshold_minutes" validate:"omitempty,min=1"`

	SlackEnabled  *bool   `json:"slack_enabled"`
	SlackBotToken *string `json:"slack_bot_token"`
	SlackChannel  *string `json:"slack_channel"`
}

// PaginatedResponse wraps list responses with pagination metadata
type PaginatedResponse struct {
	Data       interface{}    `json:"data"`
	Pagination PaginationMeta `json:"pagination"`
}

// PaginationMeta describes the page window of a paginated response
type PaginationMeta struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}
