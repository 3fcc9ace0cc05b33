// Package services holds the persistence-backed domain services the engine
// and the HTTP layer share.
package services

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/automend/automend/internal/database"
)

// DirectoryService resolves people for notifications and escalation targets
type DirectoryService struct {
	db *gorm.DB
}

// NewDirectoryService creates a new DirectoryService
func NewDirectoryService(db *gorm.DB) *DirectoryService {
	return &DirectoryService{db: db}
}

// PersonByUUID looks a person up inside the organization
func (s *DirectoryService) PersonByUUID(orgID, personUUID string) (*database.Person, error) {
	var person database.Person
	err := s.db.Where("organization_id = ? AND uuid = ?", orgID, personUUID).First(&person).Error
	if err != nil {
		return nil, fmt.Errorf("person %s not found", personUUID)
	}
	return &person, nil
}

// BestAvailableByRole returns the available person holding the role with the
// fewest open tasks.
func (s *DirectoryService) BestAvailableByRole(orgID, role string) (*database.Person, error) {
	var people []database.Person
	err := s.db.Where("organization_id = ? AND role = ? AND is_active = ? AND is_on_leave = ?",
		orgID, role, true, false).Find(&people).Error
	if err != nil {
		return nil, err
	}
	if len(people) == 0 {
		return nil, fmt.Errorf("no available person with role %q", role)
	}

	var best *database.Person
	var bestCount int64 = -1
	for i := range people {
		var n int64
		err := s.db.Model(&database.WorkflowTask{}).
			Where("organization_id = ? AND assignee_uuid = ? AND status IN ?",
				orgID, people[i].UUID, database.OpenTaskStatuses()).
			Count(&n).Error
		if err != nil {
			return nil, err
		}
		if bestCount < 0 || n < bestCount {
			best = &people[i]
			bestCount = n
		}
	}
	return best, nil
}

// ManagerOf resolves the configured manager of a person, falling back to any
// available person with the manager role.
func (s *DirectoryService) ManagerOf(orgID, personUUID string) (*database.Person, error) {
	if personUUID != "" {
		var subject database.Person
		err := s.db.Where("organization_id = ? AND uuid = ?", orgID, personUUID).First(&subject).Error
		if err == nil && subject.ManagerUUID != "" {
			var manager database.Person
			err := s.db.Where("organization_id = ? AND uuid = ?", orgID, subject.ManagerUUID).First(&manager).Error
			if err == nil && manager.IsAvailable() {
				return &manager, nil
			}
		}
	}
	return s.BestAvailableByRole(orgID, "manager")
}
