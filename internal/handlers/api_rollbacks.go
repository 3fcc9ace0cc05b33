package handlers

import (
	"net/http"

	"github.com/automend/automend/internal/api"
	"github.com/automend/automend/internal/database"
)

// handleRollbackEligibility handles GET /api/executions/{uuid}/rollback-eligibility
func (h *APIHandler) handleRollbackEligibility(w http.ResponseWriter, r *http.Request) {
	eligibility, err := h.rollbackService.CheckRollbackEligibility(r.PathValue("uuid"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, eligibility)
}

// handleRequestRollback handles POST /api/executions/{uuid}/rollback
func (h *APIHandler) handleRequestRollback(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromQuery(w, r)
	if !ok {
		return
	}

	var req api.RollbackRequestPayload
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	executionUUID := r.PathValue("uuid")
	request, err := h.rollbackService.RequestRollback(orgID, executionUUID, req.RequestedBy, req.Reason)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	if request != nil {
		// Queued for approval.
		api.RespondJSON(w, http.StatusAccepted, request)
		return
	}

	execution, err := h.engine.GetExecution(executionUUID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, execution)
}

// handleListRollbackRequests handles GET /api/rollback-requests
func (h *APIHandler) handleListRollbackRequests(w http.ResponseWriter, r *http.Request) {
	status := database.RollbackRequestStatus(r.URL.Query().Get("status"))
	requests, err := h.rollbackService.ListRequests(status)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to get rollback requests")
		return
	}
	api.RespondJSON(w, http.StatusOK, requests)
}

// handleApproveRollback handles POST /api/rollback-requests/{uuid}/approve
func (h *APIHandler) handleApproveRollback(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromQuery(w, r)
	if !ok {
		return
	}

	var req api.RollbackDecisionRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	request, err := h.rollbackService.ApproveRollback(orgID, r.PathValue("uuid"), req.DecidedBy)
	if err != nil && request == nil {
		respondServiceError(w, err)
		return
	}
	if err != nil {
		// The request was approved but the rollback itself failed; the
		// record carries the failed status and the caller gets the cause.
		api.RespondJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"request": request,
			"error":   err.Error(),
		})
		return
	}
	api.RespondJSON(w, http.StatusOK, request)
}

// handleRejectRollback handles POST /api/rollback-requests/{uuid}/reject
func (h *APIHandler) handleRejectRollback(w http.ResponseWriter, r *http.Request) {
	orgID, ok := orgFromQuery(w, r)
	if !ok {
		return
	}

	var req api.RollbackDecisionRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	request, err := h.rollbackService.RejectRollback(orgID, r.PathValue("uuid"), req.DecidedBy)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, request)
}
