package services

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/automend/automend/internal/database"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	if err := db.AutoMigrate(database.Models()...); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

func createPerson(t *testing.T, db *gorm.DB, name, role, managerUUID string, available bool) *database.Person {
	t.Helper()
	person := &database.Person{
		OrganizationID: "org-1",
		Name:           name,
		Role:           role,
		ManagerUUID:    managerUUID,
		IsActive:       available,
	}
	if err := db.Create(person).Error; err != nil {
		t.Fatalf("failed to create person: %v", err)
	}
	return person
}

func createTask(t *testing.T, db *gorm.DB, assigneeUUID string, status database.TaskStatus) {
	t.Helper()
	task := &database.WorkflowTask{
		OrganizationID: "org-1",
		Name:           "task",
		AssigneeUUID:   assigneeUUID,
		Status:         status,
	}
	if err := db.Create(task).Error; err != nil {
		t.Fatalf("failed to create task: %v", err)
	}
}
