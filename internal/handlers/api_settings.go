package handlers

import (
	"net/http"

	"github.com/automend/automend/internal/api"
	"github.com/automend/automend/internal/database"
)

// handleGetEngineSettings handles GET /api/settings/engine
func (h *APIHandler) handleGetEngineSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := database.GetOrCreateEngineSettings(h.db)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to load engine settings")
		return
	}
	api.RespondJSON(w, http.StatusOK, engineSettingsResponse(settings))
}

// handleUpdateEngineSettings handles PUT /api/settings/engine
func (h *APIHandler) handleUpdateEngineSettings(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateEngineSettingsRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	settings, err := database.GetOrCreateEngineSettings(h.db)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to load engine settings")
		return
	}

	if req.ScanEnabled != nil {
		settings.ScanEnabled = *req.ScanEnabled
	}
	if req.ScanIntervalMinutes != nil {
		settings.ScanIntervalMinutes = *req.ScanIntervalMinutes
	}
	if req.TimeWindowMinutes != nil {
		settings.TimeWindowMinutes = *req.TimeWindowMinutes
	}
	if req.MinSeverity != nil {
		settings.MinSeverity = *req.MinSeverity
	}
	if req.DefaultTimeoutSeconds != nil {
		settings.DefaultTimeoutSeconds = *req.DefaultTimeoutSeconds
	}
	if req.MaxRollbackWindowHours != nil {
		settings.MaxRollbackWindowHours = *req.MaxRollbackWindowHours
	}
	if req.RollbackRequiresApproval != nil {
		settings.RollbackRequiresApproval = *req.RollbackRequiresApproval
	}
	if req.RollbackDenylist != nil {
		settings.RollbackDenylist = *req.RollbackDenylist
	}
	if req.StuckTaskThresholdMinutes != nil {
		settings.StuckTaskThresholdMinutes = *req.StuckTaskThresholdMinutes
	}
	if req.IntegrationFailureThreshold != nil {
		settings.IntegrationFailureThreshold = *req.IntegrationFailureThreshold
	}
	if req.WorkloadImbalanceRatio != nil {
		settings.WorkloadImbalanceRatio = *req.WorkloadImbalanceRatio
	}
	if req.ApprovalPendingThresholdMinutes != nil {
		settings.ApprovalPendingThresholdMinutes = *req.ApprovalPendingThresholdMinutes
	}
	if req.SlackEnabled != nil {
		settings.SlackEnabled = *req.SlackEnabled
	}
	if req.SlackBotToken != nil {
		settings.SlackBotToken = *req.SlackBotToken
	}
	if req.SlackChannel != nil {
		settings.SlackChannel = *req.SlackChannel
	}

	if err := database.UpdateEngineSettings(h.db, settings); err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to update engine settings")
		return
	}

	api.RespondJSON(w, http.StatusOK, engineSettingsResponse(settings))
}

// engineSettingsResponse shapes the settings for the API, masking the Slack
// bot token.
func engineSettingsResponse(settings *database.EngineSettings) map[string]interface{} {
	return map[string]interface{}{
		"scan_enabled":                       settings.ScanEnabled,
		"scan_interval_minutes":              settings.ScanIntervalMinutes,
		"time_window_minutes":                settings.TimeWindowMinutes,
		"min_severity":                       settings.MinSeverity,
		"default_timeout_seconds":            settings.DefaultTimeoutSeconds,
		"max_rollback_window_hours":          settings.MaxRollbackWindowHours,
		"rollback_requires_approval":         settings.RollbackRequiresApproval,
		"rollback_denylist":                  settings.RollbackDenylist,
		"stuck_task_threshold_minutes":       settings.StuckTaskThresholdMinutes,
		"integration_failure_threshold":      settings.IntegrationFailureThreshold,
		"workload_imbalance_ratio":           settings.WorkloadImbalanceRatio,
		"approval_pending_threshold_minutes": settings.ApprovalPendingThresholdMinutes,
		"slack_enabled":                      settings.SlackEnabled,
		"slack_bot_token":                    maskToken(settings.SlackBotToken),
		"slack_channel":                      settings.SlackChannel,
		"slack_configured":                   settings.SlackConfigured(),
		"updated_at":                         settings.UpdatedAt,
	}
}

// maskToken masks a token for display, showing only the last 4 characters
func maskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 4 {
		return "****"
	}
	return "****" + token[len(token)-4:]
}
