package invite

import "time"

// Source tells personal invites from group invites.
type Source string

const (
	SourcePersonal   Source = "PERSONAL"
	SourceRadarGroup Source = "RADAR_GROUP"
)

// Status is the lifecycle state of an invite
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusAccepted  Status = "ACCEPTED"
	StatusDeclined  Status = "DECLINED"
	StatusRejected  Status = "REJECTED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

// IsActive reports whether the invite still blocks a new one.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusAccepted
}

var activeStatuses = []string{string(StatusPending), string(StatusAccepted)}

// Invite is a request from one user to another to join a radar
type Invite struct {
	ID          string     `json:"id"`
	InviterID   string     `json:"inviter_id"`
	InviteeID   string     `json:"invitee_id"`
	RadarID     *string    `json:"radar_id,omitempty"`
	Source      Source     `json:"source"`
	Status      Status     `json:"status"`
	Note        string     `json:"note,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
}

// InboxItem is one entry of a user's invite inbox. It comes from an invite
// row, a notification, or both.
type InboxItem struct {
	Key            string    `json:"key"`
	InviteID       *string   `json:"invite_id,omitempty"`
	NotificationID *string   `json:"notification_id,omitempty"`
	InviterID      string    `json:"inviter_id,omitempty"`
	RadarID        *string   `json:"radar_id,omitempty"`
	Source         Source    `json:"source,omitempty"`
	Status         Status    `json:"status"`
	Note           string    `json:"note,omitempty"`
	Message        string    `json:"message,omitempty"`
	Seen           bool      `json:"seen"`
	CreatedAt      time.Time `json:"created_at"`
}

// Hierarchy is the church/diocese/country chain a personal invite is filed
// under.
type Hierarchy struct {
	ChurchID  string `json:"church_id,omitempty"`
	DioceseID string `json:"diocese_id,omitempty"`
	CountryID string `json:"country_id,omitempty"`
}
