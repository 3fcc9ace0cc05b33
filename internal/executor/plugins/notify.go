// Package plugins holds the built-in action executors registered at startup.
package plugins

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/automend/automend/internal/database"
	"github.com/automend/automend/internal/executor"
)

// Notifier delivers a persisted notice to a person. Implemented by the
// notification service.
type Notifier interface {
	Notify(orgID, recipientUUID, kind, title, message string) error
}

// NotifyExecutor sends a notice to a configured person or everyone holding a
// configured role. Notifications cannot be un-sent, so it does not support
// rollback.
type NotifyExecutor struct {
	db       *gorm.DB
	notifier Notifier
}

// NewNotifyExecutor creates the notify plugin
func NewNotifyExecutor(db *gorm.DB, notifier Notifier) *NotifyExecutor {
	return &NotifyExecutor{db: db, notifier: notifier}
}

// ActionType returns the action type this plugin handles
func (p *NotifyExecutor) ActionType() string {
	return "notify"
}

// CanRollback reports that notifications cannot be compensated
func (p *NotifyExecutor) CanRollback() bool {
	return false
}

// ValidateConfig checks the notify action config
func (p *NotifyExecutor) ValidateConfig(config database.JSONB) []string {
	var errs []string
	target, _ := config["target_uuid"].(string)
	role, _ := config["role"].(string)
	if target == "" && role == "" {
		errs = append(errs, "either target_uuid or role must be set")
	}
	if message, _ := config["message"].(string); message == "" {
		errs = append(errs, "message must be set")
	}
	return errs
}

// Execute delivers the configured notice
func (p *NotifyExecutor) Execute(ctx context.Context, action *database.AutomatedAction, execCtx *executor.ExecutionContext) (*executor.Result, error) {
	message, _ := action.ActionConfig["message"].(string)
	title, _ := action.ActionConfig["title"].(string)
	if title == "" {
		title = action.Name
	}
	if execCtx.Pattern != nil {
		message = fmt.Sprintf("%s\n\nDetected condition: %s (severity %s, %d occurrences)",
			message, execCtx.Pattern.Description, execCtx.Pattern.Severity, execCtx.Pattern.Occurrences)
	}

	recipients, err := p.resolveRecipients(execCtx.OrganizationID, action.ActionConfig)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("no available recipients for notify action %q", action.Name)
	}

	var notified []string
	for _, person := range recipients {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := p.notifier.Notify(execCtx.OrganizationID, person.UUID, "action_notice", title, message); err != nil {
			return nil, fmt.Errorf("failed to notify %s: %w", person.Name, err)
		}
		notified = append(notified, person.UUID)
	}

	return &executor.Result{
		Message: fmt.Sprintf("notified %d people", len(notified)),
		Output:  database.JSONB{"recipients": notified},
	}, nil
}

func (p *NotifyExecutor) resolveRecipients(orgID string, config database.JSONB) ([]database.Person, error) {
	if target, _ := config["target_uuid"].(string); target != "" {
		var person database.Person
		err := p.db.Where("organization_id = ? AND uuid = ?", orgID, target).First(&person).Error
		if err != nil {
			return nil, fmt.Errorf("notify target %s not found", target)
		}
		return []database.Person{person}, nil
	}

	role, _ := config["role"].(string)
	var people []database.Person
	err := p.db.Where("organization_id = ? AND role = ? AND is_active = ? AND is_on_leave = ?",
		orgID, role, true, false).Find(&people).Error
	if err != nil {
		return nil, err
	}
	return people, nil
}
