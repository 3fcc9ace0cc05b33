package handlers

import (
	"net/http"

	"github.com/automend/automend/internal/api"
	"github.com/automend/automend/internal/database"
)

// handleListExecutions handles GET /api/executions
func (h *APIHandler) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	query := h.db.Model(&database.ActionExecution{}).Order("created_at DESC")
	countQuery := h.db.Model(&database.ActionExecution{})

	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
		countQuery = countQuery.Where("status = ?", status)
	}
	if actionUUID := r.URL.Query().Get("action"); actionUUID != "" {
		var action database.AutomatedAction
		if err := h.db.Where("uuid = ?", actionUUID).First(&action).Error; err != nil {
			api.RespondError(w, http.StatusNotFound, "action not found")
			return
		}
		query = query.Where("action_id = ?", action.ID)
		countQuery = countQuery.Where("action_id = ?", action.ID)
	}

	params := api.ParsePagination(r)
	var total int64
	countQuery.Count(&total)

	var executions []database.ActionExecution
	if err := query.Offset(params.Offset()).Limit(params.PerPage).Find(&executions).Error; err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to get executions")
		return
	}

	api.RespondJSON(w, http.StatusOK, api.PaginatedResponse{
		Data: executions,
		Pagination: api.PaginationMeta{
			Page:       params.Page,
			PerPage:    params.PerPage,
			Total:      total,
			TotalPages: params.TotalPages(total),
		},
	})
}

// handleGetExecution handles GET /api/executions/{uuid}
func (h *APIHandler) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	execution, err := h.engine.GetExecution(r.PathValue("uuid"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, execution)
}

// handleApproveExecution handles POST /api/executions/{uuid}/approve
func (h *APIHandler) handleApproveExecution(w http.ResponseWriter, r *http.Request) {
	var req api.ApproveExecutionRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	execution, err := h.engine.ApproveExecution(r.PathValue("uuid"), req.ApprovedBy)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	h.auditService.Record(h.executionOrg(execution), req.ApprovedBy, "execution_approved", "execution", execution.UUID,
		database.JSONB{"status": string(execution.Status)})
	api.RespondJSON(w, http.StatusOK, execution)
}

// executionOrg resolves the organization an execution belongs to through its
// action; used for audit entries on endpoints that carry no org parameter.
func (h *APIHandler) executionOrg(execution *database.ActionExecution) string {
	var action database.AutomatedAction
	if err := h.db.First(&action, execution.ActionID).Error; err != nil {
		return ""
	}
	return action.OrganizationID
}

// handleCancelExecution handles POST /api/executions/{uuid}/cancel
func (h *APIHandler) handleCancelExecution(w http.ResponseWriter, r *http.Request) {
	var req api.CancelExecutionRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	executionUUID := r.PathValue("uuid")
	if err := h.engine.CancelExecution(executionUUID, req.CancelledBy); err != nil {
		respondServiceError(w, err)
		return
	}

	execution, err := h.engine.GetExecution(executionUUID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	h.auditService.Record(h.executionOrg(execution), req.CancelledBy, "execution_cancelled", "execution", execution.UUID, nil)
	api.RespondJSON(w, http.StatusOK, execution)
}
