package services

import (
	"testing"

	"github.com/automend/automend/internal/database"
)

func TestDirectory_PersonByUUID(t *testing.T) {
	db := setupTestDB(t)
	s := NewDirectoryService(db)
	person := createPerson(t, db, "Ada", "engineer", "", true)

	found, err := s.PersonByUUID("org-1", person.UUID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found.Name != "Ada" {
		t.Errorf("expected Ada, got %s", found.Name)
	}

	if _, err := s.PersonByUUID("org-1", "missing"); err == nil {
		t.Error("expected error for missing person")
	}
	if _, err := s.PersonByUUID("org-2", person.UUID); err == nil {
		t.Error("expected error across organizations")
	}
}

func TestDirectory_BestAvailableByRolePrefersLeastLoaded(t *testing.T) {
	db := setupTestDB(t)
	s := NewDirectoryService(db)

	busy := createPerson(t, db, "Ada", "engineer", "", true)
	idle := createPerson(t, db, "Ben", "engineer", "", true)
	away := createPerson(t, db, "Cam", "engineer", "", true)
	db.Model(away).Update("is_on_leave", true)

	createTask(t, db, busy.UUID, database.TaskStatusOpen)
	createTask(t, db, busy.UUID, database.TaskStatusInProgress)
	createTask(t, db, idle.UUID, database.TaskStatusDone)

	best, err := s.BestAvailableByRole("org-1", "engineer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if best.UUID != idle.UUID {
		t.Errorf("expected least-loaded Ben, got %s", best.Name)
	}

	if _, err := s.BestAvailableByRole("org-1", "director"); err == nil {
		t.Error("expected error for role with nobody available")
	}
}

func TestDirectory_ManagerOf(t *testing.T) {
	db := setupTestDB(t)
	s := NewDirectoryService(db)

	manager := createPerson(t, db, "Mia", "manager", "", true)
	report := createPerson(t, db, "Ada", "engineer", manager.UUID, true)

	found, err := s.ManagerOf("org-1", report.UUID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found.UUID != manager.UUID {
		t.Errorf("expected configured manager, got %s", found.Name)
	}
}

func TestDirectory_ManagerOfFallsBackToManagerRole(t *testing.T) {
	db := setupTestDB(t)
	s := NewDirectoryService(db)

	fallback := createPerson(t, db, "Mia", "manager", "", true)
	orphan := createPerson(t, db, "Ada", "engineer", "", true)

	found, err := s.ManagerOf("org-1", orphan.UUID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found.UUID != fallback.UUID {
		t.Errorf("expected fallback manager, got %s", found.Name)
	}

	// Unavailable configured manager also falls back
	onLeaveManager := createPerson(t, db, "Max", "director", "", true)
	db.Model(onLeaveManager).Update("is_on_leave", true)
	report := createPerson(t, db, "Ben", "engineer", onLeaveManager.UUID, true)

	found, err = s.ManagerOf("org-1", report.UUID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found.UUID != fallback.UUID {
		t.Errorf("expected fallback when manager is on leave, got %s", found.Name)
	}
}
