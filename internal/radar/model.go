package radar

import (
	"strings"
	"time"

	"github.com/fkhayef/radar/internal/schema"
)

// Membership is a user's derived state in a radar.
type Membership string

const (
	MembershipNone    Membership = "NONE"
	MembershipPending Membership = "PENDING"
	MembershipJoined  Membership = "JOINED"
)

// Participant statuses as stored by either table family.
const (
	StatusJoined    = "JOINED"
	StatusHost      = "HOST"
	StatusMember    = "MEMBER"
	StatusApproved  = "APPROVED"
	StatusPending   = "PENDING"
	StatusRequested = "REQUESTED"
	StatusInvited   = "INVITED"
	StatusRejected  = "REJECTED"
	StatusLeft      = "LEFT"
	StatusKicked    = "KICKED"
)

// Participant roles
const (
	RoleHost   = "HOST"
	RoleAdmin  = "ADMIN"
	RoleMember = "MEMBER"
)

// Event visibility and status values written by this service.
const (
	VisibilityPublic  = "PUBLIC"
	VisibilityPrivate = "PRIVATE"
	EventStatusActive = "ACTIVE"
)

// Event is a radar, read from either table family.
type Event struct {
	ID                  string        `json:"id"`
	Title               string        `json:"title"`
	Description         string        `json:"description,omitempty"`
	StartsAt            *time.Time    `json:"starts_at,omitempty"`
	MaxParticipants     int           `json:"max_participants,omitempty"`
	ChurchID            *string       `json:"church_id,omitempty"`
	ChurchName          *string       `json:"church_name,omitempty"`
	CreatorID           string        `json:"creator_id"`
	AllowMemberInvite   bool          `json:"allow_member_invite"`
	RequireHostApproval bool          `json:"require_host_approval"`
	Status              string        `json:"status,omitempty"`
	Visibility          string        `json:"visibility,omitempty"`
	CoverURL            *string       `json:"cover_url,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	Source              schema.Source `json:"source"`
}

// IsHost reports whether userID created the radar.
func (e *Event) IsHost(userID string) bool {
	return e != nil && userID != "" && e.CreatorID == userID
}

// Participant links a user to a radar.
type Participant struct {
	ID          string        `json:"id"`
	RadarID     string        `json:"radar_id"`
	UserID      string        `json:"user_id"`
	Status      string        `json:"status"`
	Role        string        `json:"role,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	JoinedAt    *time.Time    `json:"joined_at,omitempty"`
	DisplayName string        `json:"display_name,omitempty"`
	AvatarURL   *string       `json:"avatar_url,omitempty"`
	Source      schema.Source `json:"source"`
}

// IsJoinedStatus reports a joined-class status. An empty status is joined:
// legacy rows written before the column existed are members.
func IsJoinedStatus(status string) bool {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "", StatusJoined, StatusHost, StatusMember, StatusApproved:
		return true
	}
	return false
}

// IsPendingStatus reports a pending-class status.
func IsPendingStatus(status string) bool {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case StatusPending, StatusRequested, StatusInvited:
		return true
	}
	return false
}

// Membership is the tri-state reading of a single row.
func (p *Participant) Membership() Membership {
	switch {
	case strings.EqualFold(p.Role, RoleHost) && strings.TrimSpace(p.Status) == "":
		return MembershipJoined
	case IsJoinedStatus(p.Status):
		return MembershipJoined
	case IsPendingStatus(p.Status):
		return MembershipPending
	}
	return MembershipNone
}

func (p *Participant) isHost() bool {
	return strings.EqualFold(p.Role, RoleHost) || strings.EqualFold(p.Status, StatusHost)
}

// statusRank orders joined before pending before everything else.
func statusRank(p *Participant) int {
	switch p.Membership() {
	case MembershipJoined:
		return 0
	case MembershipPending:
		return 1
	}
	return 2
}

func roleRank(p *Participant) int {
	switch strings.ToUpper(p.Role) {
	case RoleHost:
		return 0
	case RoleAdmin:
		return 1
	}
	return 2
}

func sourceRank(src schema.Source) int {
	if src == schema.SourceV2 {
		return 0
	}
	return 1
}

// outranks reports whether a should replace b as a user's effective row.
func outranks(a, b *Participant) bool {
	if ra, rb := statusRank(a), statusRank(b); ra != rb {
		return ra < rb
	}
	if sa, sb := sourceRank(a.Source), sourceRank(b.Source); sa != sb {
		return sa < sb
	}
	return a.CreatedAt.After(b.CreatedAt)
}

// resolve folds rows for one user into a membership.
func resolve(rows []*Participant) Membership {
	pending := false
	for _, p := range rows {
		switch p.Membership() {
		case MembershipJoined:
			return MembershipJoined
		case MembershipPending:
			pending = true
		}
	}
	if pending {
		return MembershipPending
	}
	return MembershipNone
}
