package invite

import "time"

// CreatePersonalInviteRequest represents the request to invite one user to a
// new private radar
type CreatePersonalInviteRequest struct {
	InviteeID string     `json:"invitee_id" validate:"required"`
	Title     string     `json:"title,omitempty" validate:"max=120"`
	Note      string     `json:"note,omitempty" validate:"max=500"`
	StartsAt  *time.Time `json:"starts_at,omitempty"`
	ChurchID  *string    `json:"church_id,omitempty"`
}

// CreateGroupInviteRequest represents the request to invite a user to an
// existing radar
type CreateGroupInviteRequest struct {
	RadarID   string `json:"radar_id" validate:"required"`
	InviteeID string `json:"invitee_id" validate:"required"`
	Note      string `json:"note,omitempty" validate:"max=500"`
}

// RespondResult is the outcome of accepting or declining an invite
type RespondResult struct {
	Invite *Invite `json:"invite"`
	// Joined is set when accepting also made the user a member.
	Joined bool `json:"joined"`
	// Warning explains a partial success, e.g. accepted but not joined.
	Warning string `json:"-"`
}
