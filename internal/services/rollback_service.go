package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/automend/automend/internal/database"
	"github.com/automend/automend/internal/executor"
)

// Eligibility is the outcome of a rollback eligibility check
type Eligibility struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}

// IneligibleError reports a rollback request for an execution that fails one
// of the eligibility checks.
type IneligibleError struct {
	Reason string
}

func (e *IneligibleError) Error() string {
	return fmt.Sprintf("execution is not eligible for rollback: %s", e.Reason)
}

// RollbackService owns the rollback policy: eligibility checks, the
// approve/reject workflow, and the hand-off to the execution engine's
// compensation path.
type RollbackService struct {
	db     *gorm.DB
	engine *executor.Engine
	audit  *AuditService
}

// NewRollbackService creates a new RollbackService
func NewRollbackService(db *gorm.DB, engine *executor.Engine, audit *AuditService) *RollbackService {
	return &RollbackService{db: db, engine: engine, audit: audit}
}

// CheckRollbackEligibility evaluates the policy checks in order; the first
// failing check wins and names its reason. A missing execution is a
// NotFoundError, not an ineligibility reason.
func (s *RollbackService) CheckRollbackEligibility(executionUUID string) (*Eligibility, error) {
	execution, err := s.engine.GetExecution(executionUUID)
	if err != nil {
		return nil, err
	}

	if execution.WasRolledBack {
		return &Eligibility{Reason: "execution was already rolled back"}, nil
	}
	if execution.Status != database.ExecutionStatusCompleted {
		return &Eligibility{Reason: fmt.Sprintf("execution status is %q; only completed executions can be rolled back", execution.Status)}, nil
	}

	var action database.AutomatedAction
	if err := s.db.First(&action, execution.ActionID).Error; err != nil {
		return nil, fmt.Errorf("failed to load action %d: %w", execution.ActionID, err)
	}

	settings, err := database.GetOrCreateEngineSettings(s.db)
	if err != nil {
		return nil, err
	}

	if !s.engine.Registry().CanRollback(action.ActionType) {
		return &Eligibility{Reason: fmt.Sprintf("action type %q does not support rollback", action.ActionType)}, nil
	}
	if database.ParseDenylist(settings.RollbackDenylist)[action.ActionType] {
		return &Eligibility{Reason: fmt.Sprintf("action type %q is denylisted for rollback", action.ActionType)}, nil
	}
	if len(execution.RollbackData) == 0 {
		return &Eligibility{Reason: "execution recorded no rollback data"}, nil
	}

	if execution.CompletedAt == nil {
		return &Eligibility{Reason: "execution has no completion timestamp"}, nil
	}
	elapsed := time.Since(*execution.CompletedAt).Hours()
	window := float64(settings.MaxRollbackWindowHours)
	// Exactly at the window edge is still eligible
	if elapsed > window {
		return &Eligibility{Reason: fmt.Sprintf("completed %.1f hours ago, outside the %d hour rollback window", elapsed, settings.MaxRollbackWindowHours)}, nil
	}

	return &Eligibility{Eligible: true}, nil
}

// RequestRollback re-checks eligibility and either queues an approval-gated
// request or rolls the execution back immediately.
func (s *RollbackService) RequestRollback(orgID, executionUUID, requestedBy, reason string) (*database.RollbackRequest, error) {
	eligibility, err := s.CheckRollbackEligibility(executionUUID)
	if err != nil {
		return nil, err
	}
	if !eligibility.Eligible {
		return nil, &IneligibleError{Reason: eligibility.Reason}
	}

	execution, err := s.engine.GetExecution(executionUUID)
	if err != nil {
		return nil, err
	}
	var action database.AutomatedAction
	if err := s.db.First(&action, execution.ActionID).Error; err != nil {
		return nil, err
	}
	settings, err := database.GetOrCreateEngineSettings(s.db)
	if err != nil {
		return nil, err
	}

	if action.RequiresApproval || settings.RollbackRequiresApproval {
		request := &database.RollbackRequest{
			ExecutionID: execution.ID,
			RequestedBy: requestedBy,
			Reason:      reason,
			Status:      database.RollbackRequestStatusPending,
		}
		if err := s.db.Create(request).Error; err != nil {
			return nil, fmt.Errorf("failed to create rollback request: %w", err)
		}
		s.audit.Record(orgID, requestedBy, "rollback_requested", "execution", executionUUID,
			database.JSONB{"request_uuid": request.UUID, "reason": reason})
		log.Printf("Rollback of execution %s queued for approval (request %s)", executionUUID, request.UUID)
		return request, nil
	}

	rollbackErr := s.engine.RollbackExecution(executionUUID, requestedBy)
	outcome := "completed"
	if rollbackErr != nil {
		outcome = "failed"
	}
	s.audit.Record(orgID, requestedBy, "rollback_executed", "execution", executionUUID,
		database.JSONB{"outcome": outcome, "reason": reason})
	if rollbackErr != nil {
		return nil, rollbackErr
	}
	return nil, nil
}

// ApproveRollback executes a pending rollback request
func (s *RollbackService) ApproveRollback(orgID, requestUUID, approver string) (*database.RollbackRequest, error) {
	request, err := s.getRequest(requestUUID)
	if err != nil {
		return nil, err
	}
	if request.Status != database.RollbackRequestStatusPending {
		return nil, &executor.StateConflictError{Op: "approve rollback", Status: database.ExecutionStatus(request.Status)}
	}

	result := s.db.Model(&database.RollbackRequest{}).
		Where("id = ? AND status = ?", request.ID, database.RollbackRequestStatusPending).
		Updates(map[string]interface{}{
			"status":      database.RollbackRequestStatusApproved,
			"approved_by": approver,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, &executor.StateConflictError{Op: "approve rollback", Status: database.ExecutionStatus(request.Status)}
	}

	var execution database.ActionExecution
	if err := s.db.First(&execution, request.ExecutionID).Error; err != nil {
		return nil, err
	}

	finalStatus := database.RollbackRequestStatusCompleted
	rollbackErr := s.engine.RollbackExecution(execution.UUID, approver)
	if rollbackErr != nil {
		finalStatus = database.RollbackRequestStatusFailed
	}
	if err := s.db.Model(&database.RollbackRequest{}).
		Where("id = ?", request.ID).
		Update("status", finalStatus).Error; err != nil {
		return nil, err
	}

	request.Status = finalStatus
	request.ApprovedBy = approver
	s.audit.Record(orgID, approver, "rollback_approved", "execution", execution.UUID,
		database.JSONB{"request_uuid": request.UUID, "outcome": string(finalStatus)})
	if rollbackErr != nil {
		return request, rollbackErr
	}
	return request, nil
}

// RejectRollback declines a pending rollback request
func (s *RollbackService) RejectRollback(orgID, requestUUID, rejector string) (*database.RollbackRequest, error) {
	request, err := s.getRequest(requestUUID)
	if err != nil {
		return nil, err
	}

	result := s.db.Model(&database.RollbackRequest{}).
		Where("id = ? AND status = ?", request.ID, database.RollbackRequestStatusPending).
		Updates(map[string]interface{}{
			"status":      database.RollbackRequestStatusRejected,
			"rejected_by": rejector,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, &executor.StateConflictError{Op: "reject rollback", Status: database.ExecutionStatus(request.Status)}
	}

	request.Status = database.RollbackRequestStatusRejected
	request.RejectedBy = rejector

	var execution database.ActionExecution
	if err := s.db.First(&execution, request.ExecutionID).Error; err == nil {
		s.audit.Record(orgID, rejector, "rollback_rejected", "execution", execution.UUID,
			database.JSONB{"request_uuid": request.UUID})
	}
	return request, nil
}

// ListRequests returns rollback requests, newest first, optionally filtered by
// status.
func (s *RollbackService) ListRequests(status database.RollbackRequestStatus) ([]database.RollbackRequest, error) {
	query := s.db.Preload("Execution").Order("created_at desc")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var requests []database.RollbackRequest
	err := query.Find(&requests).Error
	return requests, err
}

func (s *RollbackService) getRequest(requestUUID string) (*database.RollbackRequest, error) {
	var request database.RollbackRequest
	err := s.db.Where("uuid = ?", requestUUID).First(&request).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &executor.NotFoundError{Entity: "rollback request", Key: requestUUID}
	}
	if err != nil {
		return nil, err
	}
	return &request, nil
}
