package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/fkhayef/radar/internal/backend"
)

// Repository handles notification persistence
type Repository struct {
	client backend.Client
	table  string
	now    func() time.Time
}

// NewRepository creates a new notification repository
func NewRepository(client backend.Client, table string) *Repository {
	return &Repository{client: client, table: table, now: time.Now}
}

func fromRow(r backend.Row) *Notification {
	n := &Notification{
		ID:          r.String("id"),
		RecipientID: r.String("recipient_id"),
		ActorID:     r.StringPtr("actor_id"),
		Type:        Type(r.String("type")),
		Title:       r.String("title"),
		Message:     r.String("message"),
		RadarID:     r.StringPtr("radar_id"),
		InviteID:    r.StringPtr("invite_id"),
		Status:      Status(r.String("status")),
	}
	n.IsRead, _ = r.Bool("is_read")
	if n.Status == "" {
		n.Status = StatusPending
		if n.IsRead {
			n.Status = StatusSeen
		}
	}
	n.CreatedAt, _ = r.Time("created_at")
	return n
}

// Create inserts a notification. Columns the deployment lacks are dropped.
func (r *Repository) Create(ctx context.Context, n *Notification) (*Notification, error) {
	values := backend.Row{
		"recipient_id": n.RecipientID,
		"type":         string(n.Type),
		"title":        n.Title,
		"message":      n.Message,
		"status":       string(StatusPending),
		"is_read":      false,
	}
	if n.ActorID != nil {
		values["actor_id"] = *n.ActorID
	}
	if n.RadarID != nil {
		values["radar_id"] = *n.RadarID
	}
	if n.InviteID != nil {
		values["invite_id"] = *n.InviteID
	}

	res, err := backend.MutateWithFallback(ctx, r.client, backend.Mutation{
		Op:     backend.OpInsert,
		Table:  r.table,
		Values: values,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	if res.Duplicate || res.Row() == nil {
		return nil, nil
	}
	return fromRow(res.Row()), nil
}

// GetByID retrieves a notification by its ID
func (r *Repository) GetByID(ctx context.Context, id string) (*Notification, error) {
	rows, err := r.client.Select(ctx, backend.From(r.table).Eq("id", id).Take(1))
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return fromRow(rows[0]), nil
}

// ListByRecipientID retrieves a page of notifications for a user, newest first
func (r *Repository) ListByRecipientID(ctx context.Context, recipientID string, limit, offset int, unreadOnly bool) ([]*Notification, int, error) {
	count := backend.From(r.table).Select("id").Eq("recipient_id", recipientID)
	if unreadOnly {
		count.Eq("is_read", false)
	}
	ids, err := r.client.Select(ctx, count)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	q := backend.From(r.table).Eq("recipient_id", recipientID)
	if unreadOnly {
		q.Eq("is_read", false)
	}
	q.OrderBy("created_at", true).Range(offset, offset+limit-1)

	rows, err := r.client.Select(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}

	notifications := make([]*Notification, 0, len(rows))
	for _, row := range rows {
		notifications = append(notifications, fromRow(row))
	}
	return notifications, len(ids), nil
}

// ListByType retrieves every notification of the given types for a user
func (r *Repository) ListByType(ctx context.Context, recipientID string, types ...Type) ([]*Notification, error) {
	q := backend.From(r.table).
		Eq("recipient_id", recipientID).
		In("type", typeStrings(types)).
		OrderBy("created_at", true)

	rows, err := r.client.Select(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	out := make([]*Notification, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(row))
	}
	return out, nil
}

func typeStrings(types []Type) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

func (r *Repository) markRead(ctx context.Context, filters []backend.Filter) error {
	_, err := backend.MutateWithFallback(ctx, r.client, backend.Mutation{
		Op:    backend.OpUpdate,
		Table: r.table,
		Values: backend.Row{
			"is_read": true,
			"status":  string(StatusSeen),
			"read_at": r.now().UTC(),
		},
		Filters: filters,
	})
	return err
}

// MarkAsRead marks a notification as read
func (r *Repository) MarkAsRead(ctx context.Context, id string) error {
	if err := r.markRead(ctx, []backend.Filter{backend.Eq("id", id)}); err != nil {
		return fmt.Errorf("failed to mark notification as read: %w", err)
	}
	return nil
}

// MarkAllAsRead marks all notifications as read for a user
func (r *Repository) MarkAllAsRead(ctx context.Context, recipientID string) error {
	err := r.markRead(ctx, []backend.Filter{
		backend.Eq("recipient_id", recipientID),
		backend.Eq("is_read", false),
	})
	if err != nil {
		return fmt.Errorf("failed to mark all notifications as read: %w", err)
	}
	return nil
}

// MarkInviteSeen marks the notifications a user got for an invite as read
func (r *Repository) MarkInviteSeen(ctx context.Context, recipientID, inviteID string) error {
	err := r.markRead(ctx, []backend.Filter{
		backend.Eq("recipient_id", recipientID),
		backend.Eq("invite_id", inviteID),
	})
	if err != nil {
		return fmt.Errorf("failed to mark invite notification as read: %w", err)
	}
	return nil
}

// GetUnreadCount returns the count of unread notifications for a user
func (r *Repository) GetUnreadCount(ctx context.Context, recipientID string) (int, error) {
	rows, err := r.client.Select(ctx, backend.From(r.table).Select("id").Eq("recipient_id", recipientID).Eq("is_read", false))
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return len(rows), nil
}
