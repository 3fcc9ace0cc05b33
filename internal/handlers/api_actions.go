package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/automend/automend/internal/api"
	"github.com/automend/automend/internal/database"
	"github.com/automend/automend/internal/executor"
	"github.com/automend/automend/internal/services"
)

// orgFromQuery reads the required org query parameter
func orgFromQuery(w http.ResponseWriter, r *http.Request) (string, bool) {
	org := r.URL.Query().Get("org")
	if org == "" {
		api.RespondError(w, http.StatusBadRequest, "org query parameter is required")
		return "", false
	}
	return org, true
}

// respondServiceError maps engine error types to HTTP statuses
func respondServiceError(w http.ResponseWriter, err error) {
	var notFound *executor.NotFoundError
	var conflict *executor.StateConflictError
	var validation *executor.ValidationError
	var configuration *executor.ConfigurationError
	var ineligible *services.IneligibleError

	switch {
	case errors.As(err, &notFound):
		api.RespondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &conflict):
		api.RespondErrorWithCode(w, http.StatusConflict, "state_conflict", err.Error())
	case errors.As(err, &ineligible):
		api.RespondErrorWithCode(w, http.StatusConflict, "rollback_ineligible", err.Error())
	case errors.As(err, &validation):
		api.RespondErrorWithCode(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
	case errors.As(err, &configuration):
		api.RespondErrorWithCode(w, http.StatusUnprocessableEntity, "configuration_error", err.Error())
	default:
		log.Printf("API error: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Internal error")
	}
}

func actionInputFromRequest(req *api.CreateActionRequest) services.ActionInput {
	return services.ActionInput{
		Name:               req.Name,
		Description:        req.Description,
		ActionType:         req.ActionType,
		ActionConfig:       database.JSONB(req.ActionConfig),
		TriggerType:        database.TriggerType(req.TriggerType),
		TriggerPatternType: req.TriggerPatternType,
		RequiresApproval:   req.RequiresApproval,
		IsActive:           req.IsActive,
	}
}

// handleListActions handles GET /api/actions
func (h *APIHandler) handleListActions(w http.ResponseWriter, r *http.Request) {
	org, ok := orgFromQuery(w, r)
	if !ok {
		return
	}

	actions, err := h.actionService.ListActions(org)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, actions)
}

// handleCreateAction handles POST /api/actions
func (h *APIHandler) handleCreateAction(w http.ResponseWriter, r *http.Request) {
	var req api.CreateActionRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	action, err := h.actionService.CreateAction(req.OrganizationID, actionInputFromRequest(&req))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusCreated, action)
}

// handleGetAction handles GET /api/actions/{uuid}
func (h *APIHandler) handleGetAction(w http.ResponseWriter, r *http.Request) {
	org, ok := orgFromQuery(w, r)
	if !ok {
		return
	}

	action, err := h.actionService.GetAction(org, r.PathValue("uuid"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, action)
}

// handleUpdateAction handles PUT /api/actions/{uuid}
func (h *APIHandler) handleUpdateAction(w http.ResponseWriter, r *http.Request) {
	var req api.CreateActionRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	action, err := h.actionService.UpdateAction(req.OrganizationID, r.PathValue("uuid"), actionInputFromRequest(&req))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, action)
}

// handleDeleteAction handles DELETE /api/actions/{uuid}
func (h *APIHandler) handleDeleteAction(w http.ResponseWriter, r *http.Request) {
	org, ok := orgFromQuery(w, r)
	if !ok {
		return
	}

	if err := h.actionService.DeleteAction(org, r.PathValue("uuid")); err != nil {
		respondServiceError(w, err)
		return
	}
	api.RespondNoContent(w)
}

// handleExecuteAction handles POST /api/actions/{uuid}/execute
func (h *APIHandler) handleExecuteAction(w http.ResponseWriter, r *http.Request) {
	org, ok := orgFromQuery(w, r)
	if !ok {
		return
	}

	var req api.ExecuteActionRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	action, err := h.actionService.GetAction(org, r.PathValue("uuid"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = fmt.Sprintf("manual trigger by %s", req.TriggeredBy)
	}
	execution, err := h.engine.ExecuteAction(action, &executor.ExecutionContext{
		OrganizationID: org,
		TriggerReason:  reason,
		TriggeredBy:    req.TriggeredBy,
	}, executor.Options{DryRun: req.DryRun})
	if err != nil {
		respondServiceError(w, err)
		return
	}

	h.auditService.Record(org, req.TriggeredBy, "action_executed", "action", action.UUID,
		database.JSONB{"execution_uuid": execution.UUID, "dry_run": req.DryRun})
	api.RespondJSON(w, http.StatusAccepted, execution)
}
