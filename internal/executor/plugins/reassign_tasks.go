package plugins

import (
	"context"
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/automend/automend/internal/database"
	"github.com/automend/automend/internal/executor"
)

// defaultMaxMoves caps how many tasks a single execution may move
const defaultMaxMoves = 5

// ReassignTasksExecutor moves open tasks away from overloaded people to the
// least-loaded available person with the same role. It records every move so
// the execution can be compensated by restoring the original assignees.
type ReassignTasksExecutor struct {
	db *gorm.DB
}

// NewReassignTasksExecutor creates the reassign_tasks plugin
func NewReassignTasksExecutor(db *gorm.DB) *ReassignTasksExecutor {
	return &ReassignTasksExecutor{db: db}
}

// ActionType returns the action type this plugin handles
func (p *ReassignTasksExecutor) ActionType() string {
	return "reassign_tasks"
}

// CanRollback reports that reassignment supports compensation
func (p *ReassignTasksExecutor) CanRollback() bool {
	return true
}

// ValidateConfig checks the reassign_tasks action config
func (p *ReassignTasksExecutor) ValidateConfig(config database.JSONB) []string {
	var errs []string
	if raw, ok := config["max_moves"]; ok {
		if n, ok := raw.(float64); !ok || n < 1 {
			errs = append(errs, "max_moves must be a positive number")
		}
	}
	return errs
}

// Execute moves tasks off overloaded assignees. The overloaded people come
// from the triggering pattern's affected entities, or from the config's
// from_uuid for manual runs.
func (p *ReassignTasksExecutor) Execute(ctx context.Context, action *database.AutomatedAction, execCtx *executor.ExecutionContext) (*executor.Result, error) {
	overloaded := p.overloadedPeople(action, execCtx)
	if len(overloaded) == 0 {
		return nil, fmt.Errorf("reassign_tasks has nobody to unload: no pattern entities and no from_uuid configured")
	}

	maxMoves := defaultMaxMoves
	if n, ok := action.ActionConfig["max_moves"].(float64); ok && n >= 1 {
		maxMoves = int(n)
	}

	var moves []interface{}
	for _, fromUUID := range overloaded {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(moves) >= maxMoves {
			break
		}

		var from database.Person
		if err := p.db.Where("organization_id = ? AND uuid = ?", execCtx.OrganizationID, fromUUID).First(&from).Error; err != nil {
			// Pattern entities can include non-person IDs; skip them
			continue
		}

		var tasks []database.WorkflowTask
		err := p.db.Where("organization_id = ? AND assignee_uuid = ? AND status IN ?",
			execCtx.OrganizationID, from.UUID, database.OpenTaskStatuses()).
			Order("updated_at asc").
			Limit(maxMoves - len(moves)).
			Find(&tasks).Error
		if err != nil {
			return nil, fmt.Errorf("failed to load tasks for %s: %w", from.Name, err)
		}

		for _, task := range tasks {
			target, err := p.leastLoadedPeer(execCtx.OrganizationID, from)
			if err != nil {
				log.Printf("reassign_tasks: no target for task %s: %v", task.UUID, err)
				break
			}

			err = p.db.Model(&database.WorkflowTask{}).
				Where("id = ?", task.ID).
				Update("assignee_uuid", target.UUID).Error
			if err != nil {
				return nil, fmt.Errorf("failed to reassign task %s: %w", task.UUID, err)
			}

			moves = append(moves, map[string]interface{}{
				"task_uuid": task.UUID,
				"from":      from.UUID,
				"to":        target.UUID,
			})
		}
	}

	if len(moves) == 0 {
		return &executor.Result{
			Message: "no tasks needed reassignment",
			Output:  database.JSONB{"moved": 0},
		}, nil
	}

	return &executor.Result{
		Message:      fmt.Sprintf("reassigned %d tasks", len(moves)),
		Output:       database.JSONB{"moved": len(moves)},
		RollbackData: database.JSONB{"assignments": moves},
	}, nil
}

// Rollback restores the original assignee of every moved task
func (p *ReassignTasksExecutor) Rollback(ctx context.Context, action *database.AutomatedAction, execution *database.ActionExecution, data database.JSONB) error {
	raw, ok := data["assignments"].([]interface{})
	if !ok {
		return fmt.Errorf("rollback data has no assignments")
	}

	for _, entry := range raw {
		move, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		taskUUID, _ := move["task_uuid"].(string)
		original, _ := move["from"].(string)
		if taskUUID == "" || original == "" {
			continue
		}

		err := p.db.Model(&database.WorkflowTask{}).
			Where("uuid = ?", taskUUID).
			Update("assignee_uuid", original).Error
		if err != nil {
			return fmt.Errorf("failed to restore task %s: %w", taskUUID, err)
		}
	}
	return nil
}

func (p *ReassignTasksExecutor) overloadedPeople(action *database.AutomatedAction, execCtx *executor.ExecutionContext) []string {
	if execCtx.Pattern != nil && len(execCtx.Pattern.AffectedEntities) > 0 {
		return execCtx.Pattern.AffectedEntities
	}
	if from, _ := action.ActionConfig["from_uuid"].(string); from != "" {
		return []string{from}
	}
	return nil
}

// leastLoadedPeer picks the available person sharing from's role with the
// fewest open tasks.
func (p *ReassignTasksExecutor) leastLoadedPeer(orgID string, from database.Person) (*database.Person, error) {
	var peers []database.Person
	err := p.db.Where("organization_id = ? AND role = ? AND uuid <> ? AND is_active = ? AND is_on_leave = ?",
		orgID, from.Role, from.UUID, true, false).Find(&peers).Error
	if err != nil {
		return nil, err
	}
	if len(peers) == 0 {
		return nil, fmt.Errorf("no available peer with role %q", from.Role)
	}

	var best *database.Person
	var bestCount int64 = -1
	for i := range peers {
		var n int64
		err := p.db.Model(&database.WorkflowTask{}).
			Where("organization_id = ? AND assignee_uuid = ? AND status IN ?",
				orgID, peers[i].UUID, database.OpenTaskStatuses()).
			Count(&n).Error
		if err != nil {
			return nil, err
		}
		if bestCount < 0 || n < bestCount {
			best = &peers[i]
			bestCount = n
		}
	}
	return best, nil
}
