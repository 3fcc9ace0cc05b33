package plugins

import (
	"context"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/automend/automend/internal/database"
	"github.com/automend/automend/internal/executor"
	"github.com/automend/automend/internal/patterns"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	err = db.AutoMigrate(
		&database.Person{},
		&database.WorkflowTask{},
		&database.AutomatedAction{},
		&database.ActionExecution{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

func createPerson(t *testing.T, db *gorm.DB, name, role string, available bool) *database.Person {
	t.Helper()
	person := &database.Person{
		OrganizationID: "org-1",
		Name:           name,
		Role:           role,
		IsActive:       available,
	}
	if err := db.Create(person).Error; err != nil {
		t.Fatalf("failed to create person: %v", err)
	}
	return person
}

type recordingNotifier struct {
	notices []string
	err     error
}

func (n *recordingNotifier) Notify(orgID, recipientUUID, kind, title, message string) error {
	if n.err != nil {
		return n.err
	}
	n.notices = append(n.notices, recipientUUID+"|"+title+"|"+message)
	return nil
}

func TestNotifyExecutor_ValidateConfig(t *testing.T) {
	p := NewNotifyExecutor(nil, nil)

	if errs := p.ValidateConfig(database.JSONB{}); len(errs) != 2 {
		t.Errorf("expected 2 errors for empty config, got %v", errs)
	}
	if errs := p.ValidateConfig(database.JSONB{"role": "engineer", "message": "hi"}); len(errs) != 0 {
		t.Errorf("expected valid config, got %v", errs)
	}
	if errs := p.ValidateConfig(database.JSONB{"target_uuid": "x", "message": "hi"}); len(errs) != 0 {
		t.Errorf("expected valid config, got %v", errs)
	}
}

func TestNotifyExecutor_SingleTarget(t *testing.T) {
	db := setupTestDB(t)
	target := createPerson(t, db, "Ada", "engineer", true)
	sink := &recordingNotifier{}
	p := NewNotifyExecutor(db, sink)

	action := &database.AutomatedAction{
		Name: "ping owner",
		ActionConfig: database.JSONB{
			"target_uuid": target.UUID,
			"message":     "queue is backing up",
		},
	}

	result, err := p.Execute(context.Background(), action, &executor.ExecutionContext{OrganizationID: "org-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sink.notices) != 1 {
		t.Fatalf("expected 1 notice, got %d", len(sink.notices))
	}
	if !strings.HasPrefix(sink.notices[0], target.UUID+"|ping owner|") {
		t.Errorf("unexpected notice %q", sink.notices[0])
	}

	recipients, _ := result.Output["recipients"].([]string)
	if len(recipients) != 1 || recipients[0] != target.UUID {
		t.Errorf("expected recipient output, got %v", result.Output["recipients"])
	}
}

func TestNotifyExecutor_RoleFanOutSkipsUnavailable(t *testing.T) {
	db := setupTestDB(t)
	a := createPerson(t, db, "Ada", "engineer", true)
	b := createPerson(t, db, "Ben", "engineer", true)
	onLeave := createPerson(t, db, "Cam", "engineer", true)
	db.Model(onLeave).Update("is_on_leave", true)
	createPerson(t, db, "Dee", "manager", true)

	sink := &recordingNotifier{}
	p := NewNotifyExecutor(db, sink)

	action := &database.AutomatedAction{
		Name:         "alert engineers",
		ActionConfig: database.JSONB{"role": "engineer", "message": "heads up"},
	}

	_, err := p.Execute(context.Background(), action, &executor.ExecutionContext{OrganizationID: "org-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sink.notices) != 2 {
		t.Fatalf("expected 2 notices, got %d", len(sink.notices))
	}
	for _, notice := range sink.notices {
		uuid := strings.SplitN(notice, "|", 2)[0]
		if uuid != a.UUID && uuid != b.UUID {
			t.Errorf("unexpected recipient %s", uuid)
		}
	}
}

func TestNotifyExecutor_PatternContextAppended(t *testing.T) {
	db := setupTestDB(t)
	target := createPerson(t, db, "Ada", "engineer", true)
	sink := &recordingNotifier{}
	p := NewNotifyExecutor(db, sink)

	action := &database.AutomatedAction{
		Name:         "notify",
		ActionConfig: database.JSONB{"target_uuid": target.UUID, "message": "base"},
	}
	now := time.Now()
	execCtx := &executor.ExecutionContext{
		OrganizationID: "org-1",
		Pattern: &patterns.Pattern{
			ID:              "stuck_workflow:abc",
			Type:            patterns.TypeStuckWorkflow,
			Description:     "3 tasks stuck",
			Severity:        database.PatternSeverityHigh,
			Occurrences:     3,
			FirstDetectedAt: now,
			LastDetectedAt:  now,
		},
	}

	if _, err := p.Execute(context.Background(), action, execCtx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(sink.notices[0], "3 tasks stuck") {
		t.Errorf("expected pattern context in notice, got %q", sink.notices[0])
	}
}

func TestNotifyExecutor_NoRecipientsFails(t *testing.T) {
	db := setupTestDB(t)
	p := NewNotifyExecutor(db, &recordingNotifier{})

	action := &database.AutomatedAction{
		Name:         "notify",
		ActionConfig: database.JSONB{"role": "engineer", "message": "hi"},
	}
	if _, err := p.Execute(context.Background(), action, &executor.ExecutionContext{OrganizationID: "org-1"}); err == nil {
		t.Error("expected error when nobody can receive the notice")
	}
}
