package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/automend/automend/internal/database"
	"github.com/automend/automend/internal/executor"
)

// ActionService manages operator-authored automated actions
type ActionService struct {
	db       *gorm.DB
	registry *executor.Registry
}

// NewActionService creates a new ActionService
func NewActionService(db *gorm.DB, registry *executor.Registry) *ActionService {
	return &ActionService{db: db, registry: registry}
}

// ActionInput carries the operator-editable fields of an action
type ActionInput struct {
	Name               string
	Description        string
	ActionType         string
	ActionConfig       database.JSONB
	TriggerType        database.TriggerType
	TriggerPatternType string
	RequiresApproval   bool
	IsActive           bool
}

// CreateAction validates the config against the registered plugin and stores
// the action.
func (s *ActionService) CreateAction(orgID string, input ActionInput) (*database.AutomatedAction, error) {
	if err := s.validate(input); err != nil {
		return nil, err
	}

	action := &database.AutomatedAction{
		OrganizationID:     orgID,
		Name:               input.Name,
		Description:        input.Description,
		ActionType:         input.ActionType,
		ActionConfig:       input.ActionConfig,
		TriggerType:        input.TriggerType,
		TriggerPatternType: input.TriggerPatternType,
		RequiresApproval:   input.RequiresApproval,
		IsActive:           input.IsActive,
	}
	if err := s.db.Create(action).Error; err != nil {
		return nil, fmt.Errorf("failed to create action: %w", err)
	}
	return action, nil
}

// UpdateAction revalidates and updates an existing action
func (s *ActionService) UpdateAction(orgID, actionUUID string, input ActionInput) (*database.AutomatedAction, error) {
	action, err := s.GetAction(orgID, actionUUID)
	if err != nil {
		return nil, err
	}
	if err := s.validate(input); err != nil {
		return nil, err
	}

	action.Name = input.Name
	action.Description = input.Description
	action.ActionType = input.ActionType
	action.ActionConfig = input.ActionConfig
	action.TriggerType = input.TriggerType
	action.TriggerPatternType = input.TriggerPatternType
	action.RequiresApproval = input.RequiresApproval
	action.IsActive = input.IsActive

	if err := s.db.Save(action).Error; err != nil {
		return nil, fmt.Errorf("failed to update action: %w", err)
	}
	return action, nil
}

// GetAction loads an action by UUID within the organization
func (s *ActionService) GetAction(orgID, actionUUID string) (*database.AutomatedAction, error) {
	var action database.AutomatedAction
	err := s.db.Where("organization_id = ? AND uuid = ?", orgID, actionUUID).First(&action).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &executor.NotFoundError{Entity: "action", Key: actionUUID}
	}
	if err != nil {
		return nil, err
	}
	return &action, nil
}

// ListActions returns the organization's actions, newest first
func (s *ActionService) ListActions(orgID string) ([]database.AutomatedAction, error) {
	var actions []database.AutomatedAction
	err := s.db.Where("organization_id = ?", orgID).
		Order("created_at desc").
		Find(&actions).Error
	return actions, err
}

// DeleteAction removes an action. Its execution history stays.
func (s *ActionService) DeleteAction(orgID, actionUUID string) error {
	action, err := s.GetAction(orgID, actionUUID)
	if err != nil {
		return err
	}
	return s.db.Delete(action).Error
}

func (s *ActionService) validate(input ActionInput) error {
	if input.Name == "" {
		return &executor.ValidationError{Errors: []string{"name must be set"}}
	}
	if input.TriggerType == database.TriggerTypePattern && input.TriggerPatternType == "" {
		return &executor.ValidationError{Errors: []string{"trigger_pattern_type required for pattern triggers"}}
	}
	return s.registry.ValidateConfig(input.ActionType, input.ActionConfig)
}
