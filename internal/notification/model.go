package notification

import "time"

// Notification represents a notification row
type Notification struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipient_id"`
	ActorID     *string   `json:"actor_id,omitempty"`
	Type        Type      `json:"type"`
	Title       string    `json:"title,omitempty"`
	Message     string    `json:"message"`
	RadarID     *string   `json:"radar_id,omitempty"`
	InviteID    *string   `json:"invite_id,omitempty"` // set for invites that exist only as notifications
	Status      Status    `json:"status"`
	IsRead      bool      `json:"is_read"`
	CreatedAt   time.Time `json:"created_at"`
}

// Type represents the type of notification
type Type string

const (
	TypeJoinRequest    Type = "RADAR_JOIN_REQUEST"
	TypeJoinApproved   Type = "RADAR_JOIN_APPROVED"
	TypeJoinRejected   Type = "RADAR_JOIN_REJECTED"
	TypeInvite         Type = "RADAR_INVITE"
	TypeInviteAccepted Type = "RADAR_INVITE_ACCEPTED"
	TypeInviteDeclined Type = "RADAR_INVITE_DECLINED"
)

// Status is the UI read state carried next to is_read.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSeen    Status = "SEEN"
)
