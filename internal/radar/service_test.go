package radar

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fkhayef/radar/internal/backend"
	"github.com/fkhayef/radar/internal/chat"
	"github.com/fkhayef/radar/internal/notification"
	"github.com/fkhayef/radar/internal/profile"
	"github.com/fkhayef/radar/internal/realtime"
	"github.com/fkhayef/radar/internal/schema"
)

type recorder struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (r *recorder) Publish(_ context.Context, e realtime.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	mem *backend.Memory
	svc *Service
	pub *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := backend.NewMemory().
		DefineTable("radar_events").
		DefineTable("radar_v2_events").
		DefineTable("radar_participants").
		Unique("radar_participants", "radar_id", "user_id").
		DefineTable("radar_v2_participants").
		Unique("radar_v2_participants", "radar_id", "user_id").
		DefineTable("chat_rooms").
		DefineTable("chat_room_members").
		DefineTable("chat_groups").
		DefineTable("chat_group_members").
		DefineTable("notifications").
		DefineTable("profiles")

	s := schema.Default()
	pub := &recorder{}
	profiles := profile.NewService(profile.NewRepository(mem, s.Profiles))
	notes := notification.NewService(notification.NewRepository(mem, s.Notifications))
	svc := NewService(NewRepository(mem, s, profiles), mem, s, chat.NewBridge(mem, s), notes, pub)
	return &fixture{mem: mem, svc: svc, pub: pub}
}

func (f *fixture) notificationsFor(userID string) []backend.Row {
	var out []backend.Row
	for _, r := range f.mem.Rows("notifications") {
		if r.String("recipient_id") == userID {
			out = append(out, r)
		}
	}
	return out
}

func TestJoinDirect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mem.Seed("radar_v2_events", backend.Row{"id": "r1", "title": "Evening walk", "creator_id": "host", "require_host_approval": false})
	f.mem.Seed("chat_groups", backend.Row{"id": "g1", "radar_id": "r1"})

	before, err := f.svc.ResolveMembership(ctx, "u1", "r1")
	require.NoError(t, err)
	assert.Equal(t, MembershipNone, before)

	res, err := f.svc.Join(ctx, "u1", "r1")
	require.NoError(t, err)
	assert.Equal(t, MembershipJoined, res.Membership)
	assert.False(t, res.AlreadyMember)

	rows := f.mem.Rows("radar_v2_participants")
	require.Len(t, rows, 1)
	assert.Equal(t, StatusJoined, rows[0].String("status"))
	assert.Equal(t, RoleMember, rows[0].String("role"))
	assert.Empty(t, f.mem.Rows("radar_participants"))

	members := f.mem.Rows("chat_group_members")
	require.Len(t, members, 1)
	assert.Equal(t, "u1", members[0].String("user_id"))
	assert.Contains(t, f.pub.types(), realtime.EventJoined)

	again, err := f.svc.Join(ctx, "u1", "r1")
	require.NoError(t, err)
	assert.True(t, again.AlreadyMember)
	assert.Equal(t, MembershipJoined, again.Membership)
	assert.Len(t, f.mem.Rows("radar_v2_participants"), 1)
}

func TestJoinWithApprovalThenApprove(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mem.Seed("radar_v2_events", backend.Row{"id": "r1", "title": "Choir", "creator_id": "host", "require_host_approval": true})
	f.mem.Seed("chat_groups", backend.Row{"id": "g1", "radar_id": "r1"})

	res, err := f.svc.Join(ctx, "u1", "r1")
	require.NoError(t, err)
	assert.Equal(t, MembershipPending, res.Membership)
	assert.Empty(t, f.mem.Rows("chat_group_members"))

	hostNotes := f.notificationsFor("host")
	require.Len(t, hostNotes, 1)
	assert.Equal(t, string(notification.TypeJoinRequest), hostNotes[0].String("type"))

	d, err := f.svc.Approve(ctx, "host", "r1", "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusJoined, d.Status)
	assert.True(t, d.ChatBridged)

	rows := f.mem.Rows("radar_v2_participants")
	require.Len(t, rows, 1)
	assert.Equal(t, StatusJoined, rows[0].String("status"))
	assert.Equal(t, RoleMember, rows[0].String("role"))
	_, joined := rows[0].Time("joined_at")
	assert.True(t, joined)
	assert.Nil(t, rows[0]["left_at"])
	assert.Nil(t, rows[0]["kicked_at"])

	m, err := f.svc.ResolveMembership(ctx, "u1", "r1")
	require.NoError(t, err)
	assert.Equal(t, MembershipJoined, m)

	userNotes := f.notificationsFor("u1")
	require.Len(t, userNotes, 1)
	assert.Equal(t, string(notification.TypeJoinApproved), userNotes[0].String("type"))
	assert.Len(t, f.mem.Rows("chat_group_members"), 1)
}

func TestRejectPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mem.Seed("radar_v2_events", backend.Row{"id": "r1", "title": "Choir", "creator_id": "host", "require_host_approval": true})
	f.mem.Seed("radar_v2_participants", backend.Row{"id": "p1", "radar_id": "r1", "user_id": "u1", "status": "REQUESTED"})
	f.mem.Seed("chat_groups", backend.Row{"id": "g1", "radar_id": "r1"})

	d, err := f.svc.Reject(ctx, "host", "r1", "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, d.Status)
	assert.False(t, d.ChatBridged)

	rows := f.mem.Rows("radar_v2_participants")
	require.Len(t, rows, 1)
	assert.Equal(t, StatusRejected, rows[0].String("status"))

	assert.Zero(t, f.mem.CallCount("select", "chat_groups"))
	assert.Empty(t, f.mem.Rows("chat_group_members"))

	notes := f.notificationsFor("u1")
	require.Len(t, notes, 1)
	assert.Equal(t, string(notification.TypeJoinRejected), notes[0].String("type"))

	m, err := f.svc.ResolveMembership(ctx, "u1", "r1")
	require.NoError(t, err)
	assert.Equal(t, MembershipNone, m)
}

func TestRejoinAfterLeave(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mem.Seed("radar_v2_events", backend.Row{"id": "r1", "title": "Evening walk", "creator_id": "host"})
	f.mem.Seed("chat_groups", backend.Row{"id": "g1", "radar_id": "r1"})

	_, err := f.svc.Join(ctx, "u1", "r1")
	require.NoError(t, err)
	require.NoError(t, f.svc.Leave(ctx, "u1", "r1"))

	res, err := f.svc.Join(ctx, "u1", "r1")
	require.NoError(t, err)
	assert.Equal(t, MembershipJoined, res.Membership)
	assert.False(t, res.AlreadyMember)

	rows := f.mem.Rows("radar_v2_participants")
	require.Len(t, rows, 1)
	assert.Equal(t, StatusJoined, rows[0].String("status"))
	assert.Equal(t, RoleMember, rows[0].String("role"))
	assert.Nil(t, rows[0]["left_at"])

	members := f.mem.Rows("chat_group_members")
	require.Len(t, members, 1)
	assert.Equal(t, chat.StatusActive, members[0].String("status"))
}

func TestRequestAgainAfterReject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mem.Seed("radar_v2_events", backend.Row{"id": "r1", "title": "Choir", "creator_id": "host", "require_host_approval": true})

	_, err := f.svc.Join(ctx, "u1", "r1")
	require.NoError(t, err)
	_, err = f.svc.Reject(ctx, "host", "r1", "u1")
	require.NoError(t, err)

	res, err := f.svc.Join(ctx, "u1", "r1")
	require.NoError(t, err)
	assert.Equal(t, MembershipPending, res.Membership)
	assert.False(t, res.AlreadyMember)

	rows := f.mem.Rows("radar_v2_participants")
	require.Len(t, rows, 1)
	assert.Equal(t, StatusPending, rows[0].String("status"))
	assert.Len(t, f.notificationsFor("host"), 2)

	d, err := f.svc.Approve(ctx, "host", "r1", "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusJoined, d.Status)
}

func TestDecisionRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mem.Seed("radar_v2_events", backend.Row{"id": "r1", "title": "Choir", "creator_id": "host"})
	f.mem.Seed("radar_v2_participants", backend.Row{"id": "p1", "radar_id": "r1", "user_id": "u1", "status": "PENDING"})

	_, err := f.svc.Approve(ctx, "u2", "r1", "u1")
	assert.ErrorIs(t, err, ErrNotHost)

	_, err = f.svc.Approve(ctx, "host", "r1", "nobody")
	assert.ErrorIs(t, err, ErrNoPendingJoin)

	_, err = f.svc.Approve(ctx, "host", "missing", "u1")
	assert.ErrorIs(t, err, ErrEventNotFound)

	assert.Zero(t, f.mem.CallCount("update", "radar_v2_participants"))
}

func TestNotificationFailureDoesNotFailDecision(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mem.Seed("radar_v2_events", backend.Row{"id": "r1", "title": "Choir", "creator_id": "host"})
	f.mem.Seed("radar_v2_participants", backend.Row{"id": "p1", "radar_id": "r1", "user_id": "u1", "status": "PENDING"})
	f.mem.DropTable("notifications")

	d, err := f.svc.Approve(ctx, "host", "r1", "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusJoined, d.Status)
}

func TestLeaveLegacyRadar(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mem.Seed("radar_events", backend.Row{"id": "r2", "title": "Bible study", "creator_id": "host"})
	f.mem.Seed("radar_participants",
		backend.Row{"id": "p0", "radar_id": "r2", "user_id": "host", "role": "HOST"},
		backend.Row{"id": "p1", "radar_id": "r2", "user_id": "u1", "status": "JOINED", "role": "MEMBER"},
	)
	f.mem.Seed("chat_rooms", backend.Row{"id": "c1", "radar_id": "r2"})
	f.mem.Seed("chat_room_members",
		backend.Row{"room_id": "c1", "user_id": "host"},
		backend.Row{"room_id": "c1", "user_id": "u1"},
	)

	require.NoError(t, f.svc.Leave(ctx, "u1", "r2"))

	var row backend.Row
	for _, r := range f.mem.Rows("radar_participants") {
		if r.String("user_id") == "u1" {
			row = r
		}
	}
	require.NotNil(t, row)
	assert.Equal(t, StatusLeft, row.String("status"))
	_, hasLeftAt := row.Time("left_at")
	assert.True(t, hasLeftAt)

	members := f.mem.Rows("chat_room_members")
	require.Len(t, members, 1)
	assert.Equal(t, "host", members[0].String("user_id"))

	m, err := f.svc.ResolveMembership(ctx, "u1", "r2")
	require.NoError(t, err)
	assert.Equal(t, MembershipNone, m)
	assert.Contains(t, f.pub.types(), realtime.EventLeft)

	assert.ErrorIs(t, f.svc.Leave(ctx, "host", "r2"), ErrHostCannotLeave)
	assert.ErrorIs(t, f.svc.Leave(ctx, "u1", "r2"), ErrNotMember)
	assert.ErrorIs(t, f.svc.Leave(ctx, "stranger", "r2"), ErrNotMember)
}

func TestLeaveUsesRPCWhenPresent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mem.Seed("radar_v2_events", backend.Row{"id": "r1", "creator_id": "host"})
	f.mem.Seed("radar_v2_participants", backend.Row{"id": "p1", "radar_id": "r1", "user_id": "u1", "status": "JOINED"})

	var got map[string]any
	f.mem.RegisterRPC("radar_v2_leave_event", func(_ context.Context, params map[string]any) ([]backend.Row, error) {
		got = params
		return nil, nil
	})

	require.NoError(t, f.svc.Leave(ctx, "u1", "r1"))
	assert.Equal(t, "r1", got["p_radar_id"])
	assert.Equal(t, "u1", got["p_user_id"])
	assert.Zero(t, f.mem.CallCount("update", "radar_v2_participants"))
}

func TestLeaveDropsMissingLeftAtColumn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mem.DefineTable("radar_participants", "id", "radar_id", "user_id", "status", "created_at")
	f.mem.Seed("radar_events", backend.Row{"id": "r2", "creator_id": "host"})
	f.mem.Seed("radar_participants", backend.Row{"id": "p1", "radar_id": "r2", "user_id": "u1", "status": "JOINED"})

	require.NoError(t, f.svc.Leave(ctx, "u1", "r2"))
	rows := f.mem.Rows("radar_participants")
	require.Len(t, rows, 1)
	assert.Equal(t, StatusLeft, rows[0].String("status"))
	assert.False(t, rows[0].Has("left_at"))
}

func TestJoinFallsBackToOtherFamily(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mem.Seed("radar_v2_events", backend.Row{"id": "r1", "creator_id": "host"})
	f.mem.DropTable("radar_v2_participants")

	res, err := f.svc.Join(ctx, "u1", "r1")
	require.NoError(t, err)
	assert.Equal(t, MembershipJoined, res.Membership)

	rows := f.mem.Rows("radar_participants")
	require.Len(t, rows, 1)
	assert.Equal(t, "r1", rows[0].String("radar_id"))
}

func TestJoinFailsWhenEveryTableRefuses(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mem.Seed("radar_events", backend.Row{"id": "r4", "creator_id": "host"})
	f.mem.Fail("insert", "radar_participants", errors.New("new row violates row-level security policy"))
	f.mem.ForeignKey("radar_v2_participants", "radar_id", "radar_v2_events", "id")

	_, err := f.svc.Join(ctx, "u1", "r4")
	require.ErrorIs(t, err, ErrJoinFailed)
	assert.Contains(t, err.Error(), "foreign key")
	assert.Empty(t, f.mem.Rows("radar_v2_participants"))
}

func TestJoinPrefersRPC(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mem.Seed("radar_v2_events", backend.Row{"id": "r1", "creator_id": "host"})
	f.mem.Seed("chat_groups", backend.Row{"id": "g1", "radar_id": "r1"})
	f.mem.RegisterRPC("radar_v2_join_event", func(ctx context.Context, params map[string]any) ([]backend.Row, error) {
		row, err := f.mem.Insert(ctx, "radar_v2_participants", backend.Row{
			"radar_id": params["p_radar_id"],
			"user_id":  params["p_user_id"],
			"status":   "JOINED",
		})
		return []backend.Row{row}, err
	})

	res, err := f.svc.Join(ctx, "u1", "r1")
	require.NoError(t, err)
	assert.Equal(t, MembershipJoined, res.Membership)
	assert.Equal(t, 1, f.mem.CallCount("insert", "radar_v2_participants"))
	assert.Empty(t, f.mem.Rows("chat_group_members"))
}

func TestJoinRPCFailureIsFinal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mem.Seed("radar_v2_events", backend.Row{"id": "r1", "creator_id": "host"})
	f.mem.Fail("rpc", "radar_v2_join_event", errors.New("radar is full"))

	_, err := f.svc.Join(ctx, "u1", "r1")
	assert.ErrorIs(t, err, ErrJoinFailed)
	assert.Zero(t, f.mem.CallCount("insert", "radar_v2_participants"))
	assert.Zero(t, f.mem.CallCount("insert", "radar_participants"))
}

func TestJoinRPCDuplicateIsSoft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mem.Seed("radar_v2_events", backend.Row{"id": "r1", "creator_id": "host"})
	f.mem.Fail("rpc", "radar_v2_join_event", &backend.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	res, err := f.svc.Join(ctx, "u1", "r1")
	require.NoError(t, err)
	assert.True(t, res.AlreadyMember)
}

func TestGetEventPrefersV2(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mem.Seed("radar_events", backend.Row{"id": "r5", "title": "old"})
	f.mem.Seed("radar_v2_events", backend.Row{"id": "r5", "title": "new"})

	e, err := f.svc.GetEvent(ctx, "r5")
	require.NoError(t, err)
	assert.Equal(t, "new", e.Title)
	assert.Equal(t, schema.SourceV2, e.Source)
}

func TestGetEventLegacyWithReducedColumns(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mem.DefineTable("radar_events", "id", "title", "starts_at", "max_participants", "creator_id", "status", "created_at")
	f.mem.DropTable("radar_v2_events")
	f.mem.Seed("radar_events", backend.Row{"id": "r6", "title": "Retreat", "creator_id": "host", "max_participants": 12})

	e, err := f.svc.GetEvent(ctx, "r6")
	require.NoError(t, err)
	assert.Equal(t, schema.SourceLegacy, e.Source)
	assert.Equal(t, "Retreat", e.Title)
	assert.Equal(t, 12, e.MaxParticipants)
	assert.False(t, e.RequireHostApproval)
	assert.Equal(t, 2, f.mem.CallCount("select", "radar_events"))

	_, err = f.svc.GetEvent(ctx, "nope")
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestMembershipMap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mem.Seed("radar_v2_participants",
		backend.Row{"radar_id": "r1", "user_id": "u1", "status": "JOINED"},
		backend.Row{"radar_id": "r3", "user_id": "u1", "status": "REJECTED"},
	)
	f.mem.Seed("radar_participants",
		backend.Row{"radar_id": "r2", "user_id": "u1", "status": "PENDING"},
		backend.Row{"radar_id": "r1", "user_id": "u1", "status": "LEFT"},
		backend.Row{"radar_id": "r4", "user_id": "u2", "status": "JOINED"},
	)

	m, err := f.svc.MembershipMap(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]Membership{"r1": MembershipJoined, "r2": MembershipPending}, m)

	m, err = f.svc.MembershipMap(ctx, "u1", []string{"r2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]Membership{"r2": MembershipPending}, m)
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	e, err := f.svc.Create(ctx, "host", &CreateRadarRequest{Title: "Picnic", RequireHostApproval: true})
	require.NoError(t, err)
	assert.Equal(t, schema.SourceV2, e.Source)
	assert.Equal(t, VisibilityPublic, e.Visibility)
	assert.True(t, e.RequireHostApproval)

	rows := f.mem.Rows("radar_v2_participants")
	require.Len(t, rows, 1)
	assert.Equal(t, RoleHost, rows[0].String("role"))

	m, err := f.svc.ResolveMembership(ctx, "host", e.ID)
	require.NoError(t, err)
	assert.Equal(t, MembershipJoined, m)
}

func TestCreateFallsBackToLegacy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mem.DropTable("radar_v2_events")

	e, err := f.svc.Create(ctx, "host", &CreateRadarRequest{Title: "Picnic"})
	require.NoError(t, err)
	assert.Equal(t, schema.SourceLegacy, e.Source)
	assert.Len(t, f.mem.Rows("radar_events"), 1)
	assert.Len(t, f.mem.Rows("radar_participants"), 1)
}

func TestSetCoverURL(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.mem.Seed("radar_events", backend.Row{"id": "r1", "title": "Vigil", "creator_id": "host"})

	_, err := f.svc.SetCoverURL(ctx, "guest", "r1", "http://img/1.png")
	assert.ErrorIs(t, err, ErrNotHost)

	event, err := f.svc.SetCoverURL(ctx, "host", "r1", "http://img/1.png")
	require.NoError(t, err)
	require.NotNil(t, event.CoverURL)
	assert.Equal(t, "http://img/1.png", *event.CoverURL)
	assert.Equal(t, "http://img/1.png", f.mem.Rows("radar_events")[0].String("cover_url"))
	assert.Zero(t, f.mem.CallCount("update", "radar_v2_events"))
}
