package services

import (
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/automend/automend/internal/database"
)

// ChannelPoster mirrors a notice into an external channel (Slack). Delivery
// there is fire-and-forget.
type ChannelPoster interface {
	Post(title, message string)
}

// NotificationService persists notices and mirrors them to Slack when
// configured. It satisfies the notifier contracts of the notify and escalate
// plugins.
type NotificationService struct {
	db     *gorm.DB
	poster ChannelPoster
}

// NewNotificationService creates a new NotificationService. poster may be nil.
func NewNotificationService(db *gorm.DB, poster ChannelPoster) *NotificationService {
	return &NotificationService{db: db, poster: poster}
}

// Notify persists a notice for the recipient and mirrors it externally
func (s *NotificationService) Notify(orgID, recipientUUID, kind, title, message string) error {
	notification := &database.Notification{
		OrganizationID: orgID,
		RecipientUUID:  recipientUUID,
		Kind:           kind,
		Title:          title,
		Message:        message,
	}
	if err := s.db.Create(notification).Error; err != nil {
		return fmt.Errorf("failed to persist notification: %w", err)
	}

	if s.poster != nil {
		go s.poster.Post(title, message)
	}

	log.Printf("Notified %s (%s): %s", recipientUUID, kind, title)
	return nil
}

// ListForRecipient returns the newest notices for a person
func (s *NotificationService) ListForRecipient(orgID, recipientUUID string, limit int) ([]database.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	var notifications []database.Notification
	err := s.db.Where("organization_id = ? AND recipient_uuid = ?", orgID, recipientUUID).
		Order("created_at desc").
		Limit(limit).
		Find(&notifications).Error
	return notifications, err
}
