package notification

import (
	"context"
	"errors"
	"log"
)

// Common errors
var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrNotRecipient         = errors.New("not the recipient of this notification")
)

// Service handles notification business logic
type Service struct {
	repo *Repository
}

// NewService creates a new notification service
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// Notify writes n and never fails the caller. Notifications are a side
// effect of other workflows; a failed insert is logged and dropped.
func (s *Service) Notify(ctx context.Context, n *Notification) {
	if n == nil || n.RecipientID == "" {
		return
	}
	if _, err := s.repo.Create(ctx, n); err != nil {
		log.Printf("notification: %s to %s dropped: %v", n.Type, n.RecipientID, err)
	}
}

// GetByID retrieves a notification by its ID
func (s *Service) GetByID(ctx context.Context, id string) (*Notification, error) {
	notification, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if notification == nil {
		return nil, ErrNotificationNotFound
	}
	return notification, nil
}

// ListByRecipientID retrieves a page of notifications for a user
func (s *Service) ListByRecipientID(ctx context.Context, recipientID string, page, perPage int, unreadOnly bool) ([]*Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	offset := (page - 1) * perPage
	return s.repo.ListByRecipientID(ctx, recipientID, perPage, offset, unreadOnly)
}

// ListInvites returns the invite notifications a user received
func (s *Service) ListInvites(ctx context.Context, recipientID string) ([]*Notification, error) {
	return s.repo.ListByType(ctx, recipientID, TypeInvite)
}

// MarkAsRead marks a notification as read
func (s *Service) MarkAsRead(ctx context.Context, id, userID string) error {
	notification, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if notification == nil {
		return ErrNotificationNotFound
	}
	if notification.RecipientID != userID {
		return ErrNotRecipient
	}

	return s.repo.MarkAsRead(ctx, id)
}

// MarkAllAsRead marks all notifications as read for a user
func (s *Service) MarkAllAsRead(ctx context.Context, userID string) error {
	return s.repo.MarkAllAsRead(ctx, userID)
}

// MarkInviteSeen is best-effort, like Notify.
func (s *Service) MarkInviteSeen(ctx context.Context, userID, inviteID string) {
	if err := s.repo.MarkInviteSeen(ctx, userID, inviteID); err != nil {
		log.Printf("notification: mark invite %s seen for %s: %v", inviteID, userID, err)
	}
}

// GetUnreadCount returns the count of unread notifications
func (s *Service) GetUnreadCount(ctx context.Context, userID string) (int, error) {
	return s.repo.GetUnreadCount(ctx, userID)
}
