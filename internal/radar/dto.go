package radar

import "time"

// CreateRadarRequest represents the request to create a new radar
type CreateRadarRequest struct {
	Title               string     `json:"title" validate:"required,min=1,max=120"`
	Description         string     `json:"description,omitempty" validate:"max=2000"`
	StartsAt            *time.Time `json:"starts_at,omitempty"`
	MaxParticipants     int        `json:"max_participants,omitempty" validate:"min=0"`
	ChurchID            *string    `json:"church_id,omitempty"`
	ChurchName          *string    `json:"church_name,omitempty"`
	AllowMemberInvite   bool       `json:"allow_member_invite"`
	RequireHostApproval bool       `json:"require_host_approval"`
	Visibility          string     `json:"visibility,omitempty" validate:"omitempty,oneof=PUBLIC PRIVATE"`
}

// JoinResult is the outcome of a join request
type JoinResult struct {
	RadarID    string     `json:"radar_id"`
	Membership Membership `json:"membership"`
	// AlreadyMember is set when the user was joined or pending beforehand,
	// including when a concurrent request won the insert.
	AlreadyMember bool `json:"already_member,omitempty"`
}

// Decision is the outcome of a host approve/reject
type Decision struct {
	RadarID string `json:"radar_id"`
	UserID  string `json:"user_id"`
	Status  string `json:"status"`
	// ChatBridged reports whether the user was added to the radar's chat.
	ChatBridged bool `json:"chat_bridged,omitempty"`
}

// MembershipResponse is the membership of the caller in one radar
type MembershipResponse struct {
	RadarID    string     `json:"radar_id"`
	Membership Membership `json:"membership"`
}

// EventResponse is a radar with its effective participant list
type EventResponse struct {
	*Event
	Participants []*Participant `json:"participants"`
}
