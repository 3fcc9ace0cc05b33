package handlers

import (
	"net/http"

	"gorm.io/gorm"

	"github.com/automend/automend/internal/executor"
	"github.com/automend/automend/internal/patterns"
	"github.com/automend/automend/internal/services"
)

// APIHandler handles the engine's API endpoints for the UI
type APIHandler struct {
	db                  *gorm.DB
	actionService       *services.ActionService
	rollbackService     *services.RollbackService
	auditService        *services.AuditService
	notificationService *services.NotificationService
	scanner             *patterns.Scanner
	matcher             *executor.Matcher
	engine              *executor.Engine
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(db *gorm.DB, actionService *services.ActionService, rollbackService *services.RollbackService, auditService *services.AuditService, notificationService *services.NotificationService, scanner *patterns.Scanner, matcher *executor.Matcher, engine *executor.Engine) *APIHandler {
	return &APIHandler{
		db:                  db,
		actionService:       actionService,
		rollbackService:     rollbackService,
		auditService:        auditService,
		notificationService: notificationService,
		scanner:             scanner,
		matcher:             matcher,
		engine:              engine,
	}
}

// SetupRoutes sets up all API routes
func (h *APIHandler) SetupRoutes(mux *http.ServeMux) {
	// Automated actions
	mux.HandleFunc("GET /api/actions", h.handleListActions)
	mux.HandleFunc("POST /api/actions", h.handleCreateAction)
	mux.HandleFunc("GET /api/actions/{uuid}", h.handleGetAction)
	mux.HandleFunc("PUT /api/actions/{uuid}", h.handleUpdateAction)
	mux.HandleFunc("DELETE /api/actions/{uuid}", h.handleDeleteAction)
	mux.HandleFunc("POST /api/actions/{uuid}/execute", h.handleExecuteAction)

	// Executions
	mux.HandleFunc("GET /api/executions", h.handleListExecutions)
	mux.HandleFunc("GET /api/executions/{uuid}", h.handleGetExecution)
	mux.HandleFunc("POST /api/executions/{uuid}/approve", h.handleApproveExecution)
	mux.HandleFunc("POST /api/executions/{uuid}/cancel", h.handleCancelExecution)

	// Rollbacks
	mux.HandleFunc("GET /api/executions/{uuid}/rollback-eligibility", h.handleRollbackEligibility)
	mux.HandleFunc("POST /api/executions/{uuid}/rollback", h.handleRequestRollback)
	mux.HandleFunc("GET /api/rollback-requests", h.handleListRollbackRequests)
	mux.HandleFunc("POST /api/rollback-requests/{uuid}/approve", h.handleApproveRollback)
	mux.HandleFunc("POST /api/rollback-requests/{uuid}/reject", h.handleRejectRollback)

	// Detection
	mux.HandleFunc("GET /api/patterns/scan", h.handleScanPreview)
	mux.HandleFunc("GET /api/escalations", h.handleListEscalations)

	// Audit trail and notifications
	mux.HandleFunc("GET /api/audit", h.handleListAudit)
	mux.HandleFunc("GET /api/notifications", h.handleListNotifications)

	// Engine settings
	mux.HandleFunc("GET /api/settings/engine", h.handleGetEngineSettings)
	mux.HandleFunc("PUT /api/settings/engine", h.handleUpdateEngineSettings)
}
