package invite

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/fkhayef/radar/internal/backend"
	"github.com/fkhayef/radar/internal/dberr"
	"github.com/fkhayef/radar/internal/notification"
	"github.com/fkhayef/radar/internal/radar"
	"github.com/fkhayef/radar/internal/realtime"
	"github.com/fkhayef/radar/internal/schema"
)

// Common errors
var (
	ErrSelfInvite         = errors.New("you cannot invite yourself")
	ErrActiveInvite       = errors.New("this user already has an active invite")
	ErrInviteNotAllowed   = errors.New("only the host can invite to this radar")
	ErrAlreadyParticipant = errors.New("this user is already part of the radar")
	ErrInviteNotFound     = errors.New("invite not found")
	ErrNotInvitee         = errors.New("this invite was not sent to you")
	ErrNotInviter         = errors.New("only the sender can cancel this invite")
	ErrInviteNotPending   = errors.New("this invite has already been answered")
	ErrInviteFailed       = errors.New("could not send the invite")
	ErrRespondFailed      = errors.New("could not answer the invite")
)

const defaultPersonalTitle = "Personal invite"

// Radars is the part of the radar service invites depend on.
type Radars interface {
	GetEvent(ctx context.Context, radarID string) (*radar.Event, error)
	ResolveMembership(ctx context.Context, userID, radarID string) (radar.Membership, error)
	Join(ctx context.Context, userID, radarID string) (*radar.JoinResult, error)
	CreateEvent(ctx context.Context, creatorID string, values backend.Row) (*radar.Event, error)
}

// Notifications is the part of the notification service invites depend on.
type Notifications interface {
	Notify(ctx context.Context, n *notification.Notification)
	MarkInviteSeen(ctx context.Context, userID, inviteID string)
	ListInvites(ctx context.Context, recipientID string) ([]*notification.Notification, error)
	GetByID(ctx context.Context, id string) (*notification.Notification, error)
	MarkAsRead(ctx context.Context, id, userID string) error
}

// Service handles the invite lifecycle
type Service struct {
	repo      *Repository
	client    backend.Client
	schema    *schema.Schema
	radars    Radars
	notes     Notifications
	events    realtime.Publisher
	hierarchy *hierarchyResolver
	now       func() time.Time
}

// NewService creates a new invite service
func NewService(repo *Repository, client backend.Client, s *schema.Schema, radars Radars, notes Notifications, events realtime.Publisher) *Service {
	if events == nil {
		events = realtime.Nop{}
	}
	return &Service{
		repo:      repo,
		client:    client,
		schema:    s,
		radars:    radars,
		notes:     notes,
		events:    events,
		hierarchy: &hierarchyResolver{client: client, schema: s},
		now:       time.Now,
	}
}

// inviteFromRPC reads the invite an RPC returned, or builds one from what
// was sent when the procedure returns nothing useful.
func inviteFromRPC(rows []backend.Row, fallback *Invite) *Invite {
	if len(rows) > 0 && rows[0].String("id") != "" {
		inv := fromRow(rows[0])
		if inv.InviterID == "" {
			inv.InviterID = fallback.InviterID
		}
		if inv.InviteeID == "" {
			inv.InviteeID = fallback.InviteeID
		}
		if inv.Source == "" {
			inv.Source = fallback.Source
		}
		return inv
	}
	return fallback
}

// CreatePersonal invites inviteeID to a new private two-person radar.
func (s *Service) CreatePersonal(ctx context.Context, inviterID string, req *CreatePersonalInviteRequest) (*Invite, error) {
	if inviterID == req.InviteeID {
		return nil, ErrSelfInvite
	}

	active, err := s.repo.FindActive(ctx, req.InviteeID, "", inviterID)
	if err != nil {
		return nil, err
	}
	for _, inv := range active {
		if inv.Source == "" || inv.Source == SourcePersonal {
			return nil, ErrActiveInvite
		}
	}

	churchID := ""
	if req.ChurchID != nil {
		churchID = *req.ChurchID
	}
	h, err := s.hierarchy.Resolve(ctx, churchID)
	if err != nil {
		log.Printf("invite: hierarchy for church %s: %v", churchID, err)
	}

	title := req.Title
	if title == "" {
		title = defaultPersonalTitle
	}
	params := map[string]any{
		"p_inviter_id": inviterID,
		"p_invitee_id": req.InviteeID,
		"p_title":      title,
		"p_note":       req.Note,
		"p_church_id":  nullable(h.ChurchID),
		"p_diocese_id": nullable(h.DioceseID),
		"p_country_id": nullable(h.CountryID),
		"p_starts_at":  nil,
	}
	if req.StartsAt != nil {
		params["p_starts_at"] = req.StartsAt.UTC()
	}

	rows, err := s.client.RPC(ctx, s.schema.SendInviteRPC, params)
	switch {
	case err == nil:
		inv := inviteFromRPC(rows, &Invite{
			InviterID: inviterID,
			InviteeID: req.InviteeID,
			Source:    SourcePersonal,
			Status:    StatusPending,
			Note:      req.Note,
			CreatedAt: s.now().UTC(),
		})
		s.publishInvite(ctx, inv)
		return inv, nil
	case dberr.IsDuplicate(err):
		return nil, ErrActiveInvite
	case !dberr.RPCUnavailable(err):
		return nil, fmt.Errorf("%w: %v", ErrInviteFailed, err)
	}
	log.Printf("invite: %s unavailable, creating personal radar manually: %v", s.schema.SendInviteRPC, err)

	values := backend.Row{
		"title":                 title,
		"description":           req.Note,
		"max_participants":      2,
		"allow_member_invite":   false,
		"require_host_approval": false,
		"status":                radar.EventStatusActive,
		"visibility":            radar.VisibilityPrivate,
	}
	if req.StartsAt != nil {
		values["starts_at"] = req.StartsAt.UTC()
	}
	if h.ChurchID != "" {
		values["church_id"] = h.ChurchID
	}
	event, err := s.radars.CreateEvent(ctx, inviterID, values)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInviteFailed, err)
	}

	return s.insertInvite(ctx, inviterID, req.InviteeID, event, SourcePersonal, req.Note)
}

// CreateGroup invites inviteeID to an existing radar.
func (s *Service) CreateGroup(ctx context.Context, actorID string, req *CreateGroupInviteRequest) (*Invite, error) {
	if actorID == req.InviteeID {
		return nil, ErrSelfInvite
	}

	event, err := s.radars.GetEvent(ctx, req.RadarID)
	if err != nil {
		return nil, err
	}
	if !event.IsHost(actorID) {
		if !event.AllowMemberInvite {
			return nil, ErrInviteNotAllowed
		}
		m, err := s.radars.ResolveMembership(ctx, actorID, event.ID)
		if err != nil {
			return nil, err
		}
		if m != radar.MembershipJoined {
			return nil, ErrInviteNotAllowed
		}
	}

	m, err := s.radars.ResolveMembership(ctx, req.InviteeID, event.ID)
	if err != nil {
		return nil, err
	}
	if m != radar.MembershipNone {
		return nil, ErrAlreadyParticipant
	}

	active, err := s.repo.FindActive(ctx, req.InviteeID, event.ID, "")
	if err != nil {
		return nil, err
	}
	if len(active) > 0 {
		return nil, ErrActiveInvite
	}

	rows, err := s.client.RPC(ctx, s.schema.GroupInviteRPC, map[string]any{
		"p_radar_id":   event.ID,
		"p_inviter_id": actorID,
		"p_invitee_id": req.InviteeID,
		"p_note":       req.Note,
	})
	switch {
	case err == nil:
		radarID := event.ID
		inv := inviteFromRPC(rows, &Invite{
			InviterID: actorID,
			InviteeID: req.InviteeID,
			RadarID:   &radarID,
			Source:    SourceRadarGroup,
			Status:    StatusPending,
			Note:      req.Note,
			CreatedAt: s.now().UTC(),
		})
		s.publishInvite(ctx, inv)
		return inv, nil
	case dberr.IsDuplicate(err):
		return nil, ErrActiveInvite
	case !dberr.RPCUnavailable(err):
		return nil, fmt.Errorf("%w: %v", ErrInviteFailed, err)
	}
	log.Printf("invite: %s unavailable, inserting invite manually: %v", s.schema.GroupInviteRPC, err)

	return s.insertInvite(ctx, actorID, req.InviteeID, event, SourceRadarGroup, req.Note)
}

func (s *Service) insertInvite(ctx context.Context, inviterID, inviteeID string, event *radar.Event, src Source, note string) (*Invite, error) {
	inv, duplicate, err := s.repo.Create(ctx, backend.Row{
		"id":         uuid.NewString(),
		"inviter_id": inviterID,
		"invitee_id": inviteeID,
		"radar_id":   event.ID,
		"source":     string(src),
		"status":     string(StatusPending),
		"note":       note,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInviteFailed, err)
	}
	if duplicate {
		return nil, ErrActiveInvite
	}

	s.notes.Notify(ctx, &notification.Notification{
		RecipientID: inviteeID,
		ActorID:     &inviterID,
		Type:        notification.TypeInvite,
		Title:       "You're invited",
		Message:     fmt.Sprintf("You have been invited to %q", event.Title),
		RadarID:     &event.ID,
		InviteID:    &inv.ID,
	})
	s.publishInvite(ctx, inv)
	return inv, nil
}

func (s *Service) publishInvite(ctx context.Context, inv *Invite) {
	if inv.RadarID == nil {
		return
	}
	realtime.Notify(ctx, s.events, realtime.Event{
		Type:    realtime.EventInvited,
		RadarID: *inv.RadarID,
		UserID:  inv.InviteeID,
		Status:  string(inv.Status),
	})
}

// Respond accepts or declines an invite addressed to userID. id may also be
// a notification that stands in for an invite.
//
// Accepting also joins the radar. A failed join does not undo the
// acceptance; it is reported through RespondResult.Warning.
func (s *Service) Respond(ctx context.Context, userID, id string, accept bool) (*RespondResult, error) {
	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return s.respondToNotification(ctx, userID, id, accept)
	}
	if inv.InviteeID != userID {
		return nil, ErrNotInvitee
	}
	if inv.Status != StatusPending {
		return nil, ErrInviteNotPending
	}

	status := StatusDeclined
	if accept {
		status = StatusAccepted
	}

	fam := s.schema.Family(schema.SourceLegacy)
	if inv.RadarID != nil {
		if event, err := s.radars.GetEvent(ctx, *inv.RadarID); err == nil {
			fam = s.schema.Family(event.Source)
		}
	}

	_, err = s.client.RPC(ctx, fam.RespondInviteRPC, map[string]any{
		"p_invite_id": inv.ID,
		"p_user_id":   userID,
		"p_accept":    accept,
	})
	if err != nil {
		if !dberr.RPCUnavailable(err) {
			return nil, fmt.Errorf("%w: %v", ErrRespondFailed, err)
		}
		log.Printf("invite: %s unavailable, updating invite %s manually: %v", fam.RespondInviteRPC, inv.ID, err)
		updated, err := s.repo.SetStatus(ctx, inv.ID, status, "invitee_id", userID, s.now().UTC())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRespondFailed, err)
		}
		if updated == nil {
			return nil, ErrInviteNotFound
		}
	}
	now := s.now().UTC()
	inv.Status = status
	inv.RespondedAt = &now

	s.notes.MarkInviteSeen(ctx, userID, inv.ID)

	result := &RespondResult{Invite: inv}
	if accept && inv.RadarID != nil {
		result.Joined, result.Warning = s.joinAfterAccept(ctx, userID, *inv.RadarID)
	}

	s.announceResponse(ctx, userID, inv, &inv.ID)
	return result, nil
}

// announceResponse tells the inviter how userID answered and publishes the
// change. inviteID is nil for notification-only invites.
func (s *Service) announceResponse(ctx context.Context, userID string, inv *Invite, inviteID *string) {
	if inv.InviterID != "" {
		n := &notification.Notification{
			RecipientID: inv.InviterID,
			ActorID:     &userID,
			RadarID:     inv.RadarID,
			InviteID:    inviteID,
			Type:        notification.TypeInviteDeclined,
			Title:       "Invite declined",
			Message:     "Your invite was declined",
		}
		if inv.Status == StatusAccepted {
			n.Type = notification.TypeInviteAccepted
			n.Title = "Invite accepted"
			n.Message = "Your invite was accepted"
		}
		s.notes.Notify(ctx, n)
	}

	if inv.RadarID != nil {
		realtime.Notify(ctx, s.events, realtime.Event{
			Type:    realtime.EventResponded,
			RadarID: *inv.RadarID,
			UserID:  userID,
			Status:  string(inv.Status),
		})
	}
}

// respondToNotification handles invites that only exist as a notification.
func (s *Service) respondToNotification(ctx context.Context, userID, id string, accept bool) (*RespondResult, error) {
	n, err := s.notes.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, notification.ErrNotificationNotFound) {
			return nil, ErrInviteNotFound
		}
		return nil, err
	}
	if n.Type != notification.TypeInvite {
		return nil, ErrInviteNotFound
	}
	if n.RecipientID != userID {
		return nil, ErrNotInvitee
	}

	status := StatusDeclined
	if accept {
		status = StatusAccepted
	}
	inv := &Invite{
		ID:        n.ID,
		InviteeID: userID,
		RadarID:   n.RadarID,
		Status:    status,
		CreatedAt: n.CreatedAt,
	}
	if n.ActorID != nil {
		inv.InviterID = *n.ActorID
	}

	if err := s.notes.MarkAsRead(ctx, n.ID, userID); err != nil {
		log.Printf("invite: mark notification %s read: %v", n.ID, err)
	}

	result := &RespondResult{Invite: inv}
	if accept && inv.RadarID != nil {
		result.Joined, result.Warning = s.joinAfterAccept(ctx, userID, *inv.RadarID)
	}
	s.announceResponse(ctx, userID, inv, nil)
	return result, nil
}

func (s *Service) joinAfterAccept(ctx context.Context, userID, radarID string) (bool, string) {
	res, err := s.radars.Join(ctx, userID, radarID)
	if err != nil {
		log.Printf("invite: accepted but join of %s into %s failed: %v", userID, radarID, err)
		return false, fmt.Sprintf("invite accepted, but joining the radar failed: %v", err)
	}
	if res.Membership == radar.MembershipPending {
		return false, "invite accepted, waiting for the host to approve"
	}
	return res.Membership == radar.MembershipJoined, ""
}

// Cancel withdraws a pending invite. Only its sender may do so.
func (s *Service) Cancel(ctx context.Context, userID, inviteID string) (*Invite, error) {
	inv, err := s.repo.GetByID(ctx, inviteID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrInviteNotFound
	}
	if inv.InviterID != userID {
		return nil, ErrNotInviter
	}
	if inv.Status != StatusPending {
		return nil, ErrInviteNotPending
	}

	updated, err := s.repo.SetStatus(ctx, inv.ID, StatusCancelled, "inviter_id", userID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrInviteNotFound
	}
	return updated, nil
}

// ListSent returns the invites userID sent
func (s *Service) ListSent(ctx context.Context, userID string) ([]*Invite, error) {
	return s.repo.ListByInviter(ctx, userID)
}

// Inbox merges invite rows and invite notifications for userID. A
// notification carrying an invite_id is folded into that invite; one without
// stands for an invite of its own.
func (s *Service) Inbox(ctx context.Context, userID string) ([]*InboxItem, error) {
	invites, err := s.repo.ListByInvitee(ctx, userID)
	if err != nil {
		return nil, err
	}
	notes, err := s.notes.ListInvites(ctx, userID)
	if err != nil {
		return nil, err
	}
	return mergeInbox(invites, notes), nil
}

func mergeInbox(invites []*Invite, notes []*notification.Notification) []*InboxItem {
	items := make(map[string]*InboxItem, len(invites)+len(notes))
	for _, inv := range invites {
		id := inv.ID
		items[id] = &InboxItem{
			Key:       id,
			InviteID:  &id,
			InviterID: inv.InviterID,
			RadarID:   inv.RadarID,
			Source:    inv.Source,
			Status:    inv.Status,
			Note:      inv.Note,
			CreatedAt: inv.CreatedAt,
		}
	}

	for _, n := range notes {
		nid := n.ID
		key := nid
		if n.InviteID != nil && *n.InviteID != "" {
			key = *n.InviteID
		}
		seen := n.IsRead || n.Status == notification.StatusSeen

		if item, ok := items[key]; ok {
			item.NotificationID = &nid
			item.Seen = item.Seen || seen
			if item.Message == "" {
				item.Message = n.Message
			}
			continue
		}

		item := &InboxItem{
			Key:            key,
			NotificationID: &nid,
			RadarID:        n.RadarID,
			Status:         StatusPending,
			Message:        n.Message,
			Seen:           seen,
			CreatedAt:      n.CreatedAt,
		}
		if n.InviteID != nil && *n.InviteID != "" {
			item.InviteID = n.InviteID
		}
		if n.ActorID != nil {
			item.InviterID = *n.ActorID
		}
		items[key] = item
	}

	out := make([]*InboxItem, 0, len(items))
	for _, item := range items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
