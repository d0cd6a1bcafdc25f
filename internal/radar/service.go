package radar

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
	"github.com/fkhayef/radar/internal/realtime"
	"github.com/fkhayef/radar/internal/schema"
)

// Common errors
var (
	ErrEventNotFound   = errors.New("radar not found")
	ErrNotHost         = errors.New("only the host of this radar can do this")
	ErrHostCannotLeave = errors.New("the host cannot leave their own radar")
	ErrNotMember       = errors.New("you are not a member of this radar")
	ErrNoPendingJoin   = errors.New("this user has no pending request for the radar")
	ErrJoinFailed      = errors.New("could not join the radar")
	ErrLeaveFailed     = errors.New("could not leave the radar")
	ErrDecisionFailed  = errors.New("could not update the participant")
	ErrCreateFailed    = errors.New("could not create the radar")
)

// ChatBridge mirrors membership into a radar's chat.
type ChatBridge interface {
	AddMember(ctx context.Context, src schema.Source, radarID, userID string) (bool, error)
	RemoveMember(ctx context.Context, src schema.Source, radarID, userID string) (bool, error)
}

// Notifier writes best-effort notifications.
type Notifier interface {
	Notify(ctx context.Context, n *notification.Notification)
}

// Service handles radar membership workflows
type Service struct {
	repo     *Repository
	client   backend.Client
	schema   *schema.Schema
	chat     ChatBridge
	notifier Notifier
	events   realtime.Publisher
	now      func() time.Time
}

// NewService creates a new radar service
func NewService(repo *Repository, client backend.Client, s *schema.Schema, chat ChatBridge, notifier Notifier, events realtime.Publisher) *Service {
	if events == nil {
		events = realtime.Nop{}
	}
	return &Service{
		repo:     repo,
		client:   client,
		schema:   s,
		chat:     chat,
		notifier: notifier,
		events:   events,
		now:      time.Now,
	}
}

// GetEvent retrieves a radar from whichever family has it
func (s *Service) GetEvent(ctx context.Context, radarID string) (*Event, error) {
	event, err := s.repo.GetEvent(ctx, radarID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, ErrEventNotFound
	}
	return event, nil
}

// GetEventWithParticipants retrieves a radar and its effective participants
func (s *Service) GetEventWithParticipants(ctx context.Context, radarID string) (*Event, []*Participant, error) {
	event, err := s.GetEvent(ctx, radarID)
	if err != nil {
		return nil, nil, err
	}
	participants, err := s.repo.ListParticipants(ctx, radarID)
	if err != nil {
		return nil, nil, err
	}
	return event, participants, nil
}

// ListParticipants returns one row per user, sorted for display
func (s *Service) ListParticipants(ctx context.Context, radarID string) ([]*Participant, error) {
	return s.repo.ListParticipants(ctx, radarID)
}

// ResolveMembership reads the user's rows in both families and derives their
// membership. Nothing is cached.
func (s *Service) ResolveMembership(ctx context.Context, userID, radarID string) (Membership, error) {
	rows, err := s.repo.ParticipantRows(ctx, radarID, userID)
	if err != nil {
		return MembershipNone, err
	}
	return resolve(rows), nil
}

// MembershipMap maps each radar the user is joined to or pending in to that
// state. radarIDs limits the lookup; empty means every radar.
func (s *Service) MembershipMap(ctx context.Context, userID string, radarIDs []string) (map[string]Membership, error) {
	rows, err := s.repo.UserParticipations(ctx, userID, radarIDs)
	if err != nil {
		return nil, err
	}

	byRadar := make(map[string][]*Participant)
	for _, p := range rows {
		byRadar[p.RadarID] = append(byRadar[p.RadarID], p)
	}

	out := make(map[string]Membership, len(byRadar))
	for radarID, ps := range byRadar {
		if m := resolve(ps); m != MembershipNone {
			out[radarID] = m
		}
	}
	return out, nil
}

func rpcParams(radarID, userID string) map[string]any {
	return map[string]any{"p_radar_id": radarID, "p_user_id": userID}
}

// Join adds userID to the radar, or files a join request when the host
// approves members. The family's join procedure is tried first; when it is
// unavailable the participant row is written directly.
func (s *Service) Join(ctx context.Context, userID, radarID string) (*JoinResult, error) {
	event, err := s.GetEvent(ctx, radarID)
	if err != nil {
		return nil, err
	}

	current, err := s.ResolveMembership(ctx, userID, radarID)
	if err != nil {
		return nil, err
	}
	if current != MembershipNone {
		return &JoinResult{RadarID: radarID, Membership: current, AlreadyMember: true}, nil
	}

	fam := s.schema.Family(event.Source)
	_, err = s.client.RPC(ctx, fam.JoinRPC, rpcParams(radarID, userID))
	switch {
	case err == nil:
		return s.afterJoin(ctx, event, userID, false, false)
	case dberr.IsDuplicate(err):
		return s.afterJoin(ctx, event, userID, false, true)
	case !dberr.RPCUnavailable(err):
		return nil, fmt.Errorf("%w: %v", ErrJoinFailed, err)
	}
	log.Printf("radar: %s unavailable, joining %s manually: %v", fam.JoinRPC, radarID, err)

	status := StatusJoined
	if event.RequireHostApproval {
		status = StatusPending
	}
	duplicate, err := s.insertParticipant(ctx, event, userID, status, RoleMember)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJoinFailed, err)
	}
	if duplicate {
		reactivated, err := s.reactivate(ctx, event, userID, status)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrJoinFailed, err)
		}
		duplicate = !reactivated
	}
	return s.afterJoin(ctx, event, userID, true, duplicate)
}

// reactivate reuses a LEFT, REJECTED or KICKED row that blocked the insert
// through the (radar_id, user_id) key. It reports false when the user still
// holds an active row, so the duplicate was real.
func (s *Service) reactivate(ctx context.Context, event *Event, userID, status string) (bool, error) {
	rows, err := s.repo.ParticipantRows(ctx, event.ID, userID)
	if err != nil {
		return false, err
	}
	if resolve(rows) != MembershipNone || len(rows) == 0 {
		return false, nil
	}

	values := backend.Row{
		"status":    status,
		"role":      RoleMember,
		"left_at":   nil,
		"kicked_at": nil,
	}
	if status == StatusJoined {
		values["joined_at"] = s.now().UTC()
	}

	var lastErr error
	for _, p := range bySourceOrder(rows, event.Source) {
		res, err := s.repo.UpdateParticipant(ctx, p, values)
		if err != nil {
			if absent(err) {
				lastErr = err
				continue
			}
			return false, err
		}
		if res.Affected() {
			return true, nil
		}
	}
	if lastErr != nil {
		return false, lastErr
	}
	return false, nil
}

// insertParticipant writes a participant row into the radar's own family
// first, then the other one. Tables that are missing, forbidden or whose
// foreign key points at the other family are skipped.
func (s *Service) insertParticipant(ctx context.Context, event *Event, userID, status, role string) (bool, error) {
	values := backend.Row{
		"id":       uuid.NewString(),
		"radar_id": event.ID,
		"user_id":  userID,
		"status":   status,
		"role":     role,
	}
	if status == StatusJoined {
		values["joined_at"] = s.now().UTC()
	}

	var lastErr error
	for _, ref := range s.schema.ParticipantTables(event.Source) {
		res, err := s.repo.Insert(ctx, ref.Table, values)
		if err == nil {
			return res.Duplicate, nil
		}
		if dberr.IsMissingRelation(err) || dberr.IsPermission(err) || dberr.IsForeignKey(err) {
			log.Printf("radar: participant insert into %s skipped: %v", ref.Table, err)
			lastErr = err
			continue
		}
		return false, err
	}
	if lastErr == nil {
		lastErr = errors.New("no participant table accepted the row")
	}
	return false, lastErr
}

func (s *Service) afterJoin(ctx context.Context, event *Event, userID string, manual, duplicate bool) (*JoinResult, error) {
	membership, err := s.ResolveMembership(ctx, userID, event.ID)
	if err != nil {
		return nil, err
	}
	result := &JoinResult{RadarID: event.ID, Membership: membership, AlreadyMember: duplicate}
	if duplicate {
		return result, nil
	}

	switch membership {
	case MembershipJoined:
		if manual {
			s.bridge(ctx, event, userID)
		}
		realtime.Notify(ctx, s.events, realtime.Event{Type: realtime.EventJoined, RadarID: event.ID, UserID: userID, Status: StatusJoined})
	case MembershipPending:
		s.notify(ctx, &notification.Notification{
			RecipientID: event.CreatorID,
			ActorID:     &userID,
			Type:        notification.TypeJoinRequest,
			Title:       "New join request",
			Message:     fmt.Sprintf("Someone asked to join %q", event.Title),
			RadarID:     &event.ID,
		})
		realtime.Notify(ctx, s.events, realtime.Event{Type: realtime.EventRequested, RadarID: event.ID, UserID: userID, Status: StatusPending})
	}
	return result, nil
}

// Leave removes userID from the radar. The host cannot leave.
func (s *Service) Leave(ctx context.Context, userID, radarID string) error {
	event, err := s.GetEvent(ctx, radarID)
	if err != nil {
		return err
	}
	if event.IsHost(userID) {
		return ErrHostCannotLeave
	}

	rows, err := s.repo.ParticipantRows(ctx, radarID, userID)
	if err != nil {
		return err
	}
	for _, p := range rows {
		if p.isHost() {
			return ErrHostCannotLeave
		}
	}
	if resolve(rows) == MembershipNone {
		return ErrNotMember
	}

	fam := s.schema.Family(event.Source)
	if _, err := s.client.RPC(ctx, fam.LeaveRPC, rpcParams(radarID, userID)); err != nil {
		if !dberr.RPCUnavailable(err) {
			return fmt.Errorf("%w: %v", ErrLeaveFailed, err)
		}
		log.Printf("radar: %s unavailable, leaving %s manually: %v", fam.LeaveRPC, radarID, err)
		if err := s.markLeft(ctx, event, rows); err != nil {
			return err
		}
	}

	s.unbridge(ctx, event, userID)
	realtime.Notify(ctx, s.events, realtime.Event{Type: realtime.EventLeft, RadarID: radarID, UserID: userID, Status: StatusLeft})
	return nil
}

// bySourceOrder puts rows of the radar's own family first.
func bySourceOrder(rows []*Participant, own schema.Source) []*Participant {
	out := append([]*Participant(nil), rows...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Source == own && out[j].Source != own
	})
	return out
}

func (s *Service) markLeft(ctx context.Context, event *Event, rows []*Participant) error {
	values := backend.Row{"status": StatusLeft, "left_at": s.now().UTC()}
	updated := 0
	var lastErr error
	for _, p := range bySourceOrder(rows, event.Source) {
		if p.Membership() == MembershipNone {
			continue
		}
		res, err := s.repo.UpdateParticipant(ctx, p, values)
		if err != nil {
			if absent(err) {
				lastErr = err
				continue
			}
			return fmt.Errorf("%w: %v", ErrLeaveFailed, err)
		}
		if res.Affected() {
			updated++
		}
	}
	if updated == 0 {
		if lastErr == nil {
			lastErr = errors.New("no participant row updated")
		}
		return fmt.Errorf("%w: %v", ErrLeaveFailed, lastErr)
	}
	return nil
}

// Approve lets a pending user in. Only the host may call it.
func (s *Service) Approve(ctx context.Context, hostID, radarID, userID string) (*Decision, error) {
	return s.decide(ctx, hostID, radarID, userID, true)
}

// Reject turns a pending request down. Only the host may call it.
func (s *Service) Reject(ctx context.Context, hostID, radarID, userID string) (*Decision, error) {
	return s.decide(ctx, hostID, radarID, userID, false)
}

func (s *Service) decide(ctx context.Context, hostID, radarID, userID string, approve bool) (*Decision, error) {
	event, err := s.GetEvent(ctx, radarID)
	if err != nil {
		return nil, err
	}
	if !event.IsHost(hostID) {
		return nil, ErrNotHost
	}

	rows, err := s.repo.ParticipantRows(ctx, radarID, userID)
	if err != nil {
		return nil, err
	}
	var pending []*Participant
	for _, p := range bySourceOrder(rows, event.Source) {
		if p.Membership() == MembershipPending {
			pending = append(pending, p)
		}
	}
	if len(pending) == 0 {
		return nil, ErrNoPendingJoin
	}

	now := s.now().UTC()
	values := backend.Row{"status": StatusRejected}
	if approve {
		values = backend.Row{
			"status":    StatusJoined,
			"role":      RoleMember,
			"joined_at": now,
			"left_at":   nil,
			"kicked_at": nil,
		}
	}

	updated := 0
	var lastErr error
	for _, p := range pending {
		res, err := s.repo.UpdateParticipant(ctx, p, values)
		if err != nil {
			if absent(err) {
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrDecisionFailed, err)
		}
		if res.Affected() {
			updated++
		}
	}
	if updated == 0 {
		if lastErr == nil {
			lastErr = errors.New("no participant row updated")
		}
		return nil, fmt.Errorf("%w: %v", ErrDecisionFailed, lastErr)
	}

	decision := &Decision{RadarID: radarID, UserID: userID, Status: values.String("status")}
	n := &notification.Notification{
		RecipientID: userID,
		ActorID:     &hostID,
		RadarID:     &event.ID,
	}
	if approve {
		decision.ChatBridged = s.bridge(ctx, event, userID)
		n.Type = notification.TypeJoinApproved
		n.Title = "Request approved"
		n.Message = fmt.Sprintf("You have joined %q", event.Title)
		realtime.Notify(ctx, s.events, realtime.Event{Type: realtime.EventApproved, RadarID: radarID, UserID: userID, Status: StatusJoined})
	} else {
		n.Type = notification.TypeJoinRejected
		n.Title = "Request declined"
		n.Message = fmt.Sprintf("Your request to join %q was declined", event.Title)
		realtime.Notify(ctx, s.events, realtime.Event{Type: realtime.EventRejected, RadarID: radarID, UserID: userID, Status: StatusRejected})
	}
	s.notify(ctx, n)
	return decision, nil
}

// Create writes a new radar, v2 family first, and makes the creator its host.
func (s *Service) Create(ctx context.Context, creatorID string, req *CreateRadarRequest) (*Event, error) {
	visibility := req.Visibility
	if visibility == "" {
		visibility = VisibilityPublic
	}
	values := backend.Row{
		"id":                    uuid.NewString(),
		"title":                 req.Title,
		"description":           req.Description,
		"max_participants":      req.MaxParticipants,
		"creator_id":            creatorID,
		"allow_member_invite":   req.AllowMemberInvite,
		"require_host_approval": req.RequireHostApproval,
		"status":                EventStatusActive,
		"visibility":            visibility,
	}
	if req.StartsAt != nil {
		values["starts_at"] = req.StartsAt.UTC()
	}
	if req.ChurchID != nil {
		values["church_id"] = *req.ChurchID
	}
	if req.ChurchName != nil {
		values["church_name"] = *req.ChurchName
	}
	return s.CreateEvent(ctx, creatorID, values)
}

// CreateEvent inserts values as a radar, trying the v2 family before the
// legacy one, then inserts creatorID as the HOST participant.
func (s *Service) CreateEvent(ctx context.Context, creatorID string, values backend.Row) (*Event, error) {
	if !values.Has("id") {
		values = values.Clone()
		values["id"] = uuid.NewString()
	}

	var event *Event
	var lastErr error
	for _, src := range []schema.Source{schema.SourceV2, schema.SourceLegacy} {
		res, err := s.repo.Insert(ctx, s.schema.Family(src).Events, values)
		if err != nil {
			if absent(err) {
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrCreateFailed, err)
		}
		row := res.Row()
		if row == nil {
			row = values
		}
		event = eventFromRow(row, src)
		break
	}
	if event == nil {
		return nil, fmt.Errorf("%w: %v", ErrCreateFailed, lastErr)
	}

	if _, err := s.insertParticipant(ctx, event, creatorID, StatusJoined, RoleHost); err != nil {
		return nil, fmt.Errorf("%w: host participant: %v", ErrCreateFailed, err)
	}
	return event, nil
}

// SetCoverURL records url as the radar's cover image. Only the host may
// change it.
func (s *Service) SetCoverURL(ctx context.Context, userID, radarID, url string) (*Event, error) {
	event, err := s.GetEvent(ctx, radarID)
	if err != nil {
		return nil, err
	}
	if !event.IsHost(userID) {
		return nil, ErrNotHost
	}

	res, err := backend.MutateWithFallback(ctx, s.client, backend.Mutation{
		Op:      backend.OpUpdate,
		Table:   s.schema.Family(event.Source).Events,
		Values:  backend.Row{"cover_url": url},
		Filters: []backend.Filter{backend.Eq("id", event.ID)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set cover: %w", err)
	}
	if !res.Affected() {
		return nil, ErrEventNotFound
	}
	event.CoverURL = &url
	return event, nil
}

// bridge adds userID to the radar's chat and reports whether it did.
// Failures are logged and never returned.
func (s *Service) bridge(ctx context.Context, event *Event, userID string) bool {
	if s.chat == nil {
		return false
	}
	bridged, err := s.chat.AddMember(ctx, event.Source, event.ID, userID)
	if err != nil {
		log.Printf("radar: chat bridge for %s in %s failed: %v", userID, event.ID, err)
		return false
	}
	return bridged
}

func (s *Service) unbridge(ctx context.Context, event *Event, userID string) {
	if s.chat == nil {
		return
	}
	if _, err := s.chat.RemoveMember(ctx, event.Source, event.ID, userID); err != nil {
		log.Printf("radar: chat removal for %s in %s failed: %v", userID, event.ID, err)
	}
}

func (s *Service) notify(ctx context.Context, n *notification.Notification) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, n)
	}
}
