package services

import (
	"log"

	"gorm.io/gorm"

	"github.com/automend/automend/internal/database"
)

// AuditService writes best-effort audit entries. A failed write is logged and
// swallowed so it can never mask the outcome of the operation being audited.
type AuditService struct {
	db *gorm.DB
}

// NewAuditService creates a new AuditService
func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{db: db}
}

// Record writes one audit entry
func (s *AuditService) Record(orgID, actor, operation, entityType, entityID string, details database.JSONB) {
	entry := &database.AuditLog{
		OrganizationID: orgID,
		Actor:          actor,
		Operation:      operation,
		EntityType:     entityType,
		EntityID:       entityID,
		Details:        details,
	}
	if err := s.db.Create(entry).Error; err != nil {
		log.Printf("Audit: failed to record %s on %s/%s: %v", operation, entityType, entityID, err)
	}
}

// List returns recent audit entries for an organization
func (s *AuditService) List(orgID string, limit int) ([]database.AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}
	var entries []database.AuditLog
	err := s.db.Where("organization_id = ?", orgID).
		Order("created_at desc").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}
