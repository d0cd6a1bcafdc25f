package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fkhayef/radar/internal/backend"
)

func ptr(s string) *string { return &s }

func newService(mem *backend.Memory) *Service {
	return NewService(NewRepository(mem, "notifications"))
}

func TestNotifyDropsMissingColumns(t *testing.T) {
	mem := backend.NewMemory().DefineTable("notifications",
		"id", "recipient_id", "type", "message", "is_read", "created_at")
	svc := newService(mem)

	svc.Notify(context.Background(), &Notification{
		RecipientID: "u1",
		ActorID:     ptr("host"),
		Type:        TypeJoinApproved,
		Title:       "Approved",
		Message:     "You're in",
		RadarID:     ptr("r1"),
	})

	rows := mem.Rows("notifications")
	require.Len(t, rows, 1)
	assert.Equal(t, "u1", rows[0].String("recipient_id"))
	assert.Equal(t, string(TypeJoinApproved), rows[0].String("type"))
	assert.False(t, rows[0].Has("radar_id"))
}

func TestNotifySwallowsFailures(t *testing.T) {
	mem := backend.NewMemory().DefineTable("notifications").
		Fail("insert", "notifications", errors.New("permission denied for table notifications"))
	svc := newService(mem)

	assert.NotPanics(t, func() {
		svc.Notify(context.Background(), &Notification{RecipientID: "u1", Type: TypeInvite})
	})
	assert.Empty(t, mem.Rows("notifications"))

	// No recipient, no write.
	svc.Notify(context.Background(), &Notification{Type: TypeInvite})
	assert.Equal(t, 1, mem.CallCount("insert", "notifications"))
}

func TestListAndReadState(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mem := backend.NewMemory().DefineTable("notifications").Seed("notifications",
		backend.Row{"id": "n1", "recipient_id": "u1", "type": "RADAR_INVITE", "is_read": false, "created_at": base},
		backend.Row{"id": "n2", "recipient_id": "u1", "type": "RADAR_JOIN_APPROVED", "is_read": false, "created_at": base.Add(time.Minute)},
		backend.Row{"id": "n3", "recipient_id": "u1", "type": "RADAR_INVITE", "is_read": true, "created_at": base.Add(2 * time.Minute)},
		backend.Row{"id": "n4", "recipient_id": "u2", "type": "RADAR_INVITE", "is_read": false, "created_at": base},
	)
	svc := newService(mem)

	list, total, err := svc.ListByRecipientID(ctx, "u1", 1, 2, false)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, list, 2)
	assert.Equal(t, "n3", list[0].ID)
	assert.Equal(t, StatusSeen, list[0].Status)

	unread, err := svc.GetUnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	invites, err := svc.ListInvites(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, invites, 2)

	assert.ErrorIs(t, svc.MarkAsRead(ctx, "n4", "u1"), ErrNotRecipient)
	assert.ErrorIs(t, svc.MarkAsRead(ctx, "missing", "u1"), ErrNotificationNotFound)
	require.NoError(t, svc.MarkAsRead(ctx, "n1", "u1"))

	n, err := svc.GetByID(ctx, "n1")
	require.NoError(t, err)
	assert.True(t, n.IsRead)
	assert.Equal(t, StatusSeen, n.Status)

	require.NoError(t, svc.MarkAllAsRead(ctx, "u1"))
	unread, err = svc.GetUnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, unread)

	unread, err = svc.GetUnreadCount(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, 1, unread)
}

func TestMarkInviteSeen(t *testing.T) {
	ctx := context.Background()
	mem := backend.NewMemory().DefineTable("notifications").Seed("notifications",
		backend.Row{"id": "n1", "recipient_id": "u1", "invite_id": "i1", "is_read": false},
		backend.Row{"id": "n2", "recipient_id": "u1", "invite_id": "i2", "is_read": false},
	)
	svc := newService(mem)

	svc.MarkInviteSeen(ctx, "u1", "i1")

	n1, err := svc.GetByID(ctx, "n1")
	require.NoError(t, err)
	assert.True(t, n1.IsRead)
	n2, err := svc.GetByID(ctx, "n2")
	require.NoError(t, err)
	assert.False(t, n2.IsRead)
}
