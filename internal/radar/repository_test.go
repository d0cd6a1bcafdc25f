package radar

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fkhayef/radar/internal/backend"
	"github.com/fkhayef/radar/internal/profile"
	"github.com/fkhayef/radar/internal/schema"
)

var t0 = time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)

func TestMembershipOfRow(t *testing.T) {
	tests := []struct {
		status, role string
		want         Membership
	}{
		{"JOINED", "", MembershipJoined},
		{"approved", "", MembershipJoined},
		{"", "", MembershipJoined},
		{"", "HOST", MembershipJoined},
		{"HOST", "", MembershipJoined},
		{"PENDING", "", MembershipPending},
		{"INVITED", "", MembershipPending},
		{"REQUESTED", "MEMBER", MembershipPending},
		{"REJECTED", "", MembershipNone},
		{"LEFT", "HOST", MembershipNone},
		{"KICKED", "", MembershipNone},
		{"ARCHIVED", "", MembershipNone},
	}
	for _, tt := range tests {
		p := &Participant{Status: tt.status, Role: tt.role}
		assert.Equal(t, tt.want, p.Membership(), "status=%q role=%q", tt.status, tt.role)
	}
}

func TestResolveJoinedBeatsPendingAcrossSources(t *testing.T) {
	rows := []*Participant{
		{UserID: "u1", Status: "PENDING", Source: schema.SourceV2},
		{UserID: "u1", Status: "JOINED", Source: schema.SourceLegacy},
	}
	assert.Equal(t, MembershipJoined, resolve(rows))
	assert.Equal(t, MembershipPending, resolve(rows[:1]))
	assert.Equal(t, MembershipNone, resolve(nil))
}

func TestMergePrecedence(t *testing.T) {
	t.Run("joined beats pending regardless of source", func(t *testing.T) {
		got := mergeParticipants([]*Participant{
			{ID: "v2", UserID: "u1", Status: "PENDING", Source: schema.SourceV2},
			{ID: "legacy", UserID: "u1", Status: "JOINED", Source: schema.SourceLegacy},
		})
		require.Len(t, got, 1)
		assert.Equal(t, "legacy", got[0].ID)
	})

	t.Run("v2 wins a tie", func(t *testing.T) {
		got := mergeParticipants([]*Participant{
			{ID: "legacy", UserID: "u1", Status: "JOINED", Source: schema.SourceLegacy, CreatedAt: t0.Add(time.Hour)},
			{ID: "v2", UserID: "u1", Status: "MEMBER", Source: schema.SourceV2, CreatedAt: t0},
		})
		require.Len(t, got, 1)
		assert.Equal(t, "v2", got[0].ID)
	})

	t.Run("newer row wins the remaining tie", func(t *testing.T) {
		got := mergeParticipants([]*Participant{
			{ID: "old", UserID: "u1", Status: "LEFT", Source: schema.SourceLegacy, CreatedAt: t0},
			{ID: "new", UserID: "u1", Status: "REJECTED", Source: schema.SourceLegacy, CreatedAt: t0.Add(time.Minute)},
		})
		require.Len(t, got, 1)
		assert.Equal(t, "new", got[0].ID)
	})

	t.Run("rows without a user are dropped", func(t *testing.T) {
		got := mergeParticipants([]*Participant{{ID: "x"}, {ID: "y", UserID: "u2"}})
		require.Len(t, got, 1)
		assert.Equal(t, "y", got[0].ID)
	})
}

func TestSortForDisplay(t *testing.T) {
	ps := []*Participant{
		{UserID: "pending-early", Status: "PENDING", CreatedAt: t0},
		{UserID: "member-late", Status: "JOINED", CreatedAt: t0.Add(2 * time.Hour)},
		{UserID: "admin", Status: "JOINED", Role: "ADMIN", CreatedAt: t0.Add(3 * time.Hour)},
		{UserID: "member-early", Status: "JOINED", CreatedAt: t0.Add(time.Hour)},
		{UserID: "host", Status: "", Role: "HOST", CreatedAt: t0.Add(4 * time.Hour)},
		{UserID: "left", Status: "LEFT", CreatedAt: t0.Add(-time.Hour)},
	}
	sortForDisplay(ps)

	var order []string
	for _, p := range ps {
		order = append(order, p.UserID)
	}
	assert.Equal(t, []string{"host", "admin", "member-early", "member-late", "pending-early", "left"}, order)
}

type fakeProfiles struct {
	asked [][]string
	data  map[string]*profile.Profile
}

func (f *fakeProfiles) Lookup(_ context.Context, ids []string) (map[string]*profile.Profile, error) {
	f.asked = append(f.asked, ids)
	out := make(map[string]*profile.Profile)
	for _, id := range ids {
		if p, ok := f.data[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func TestListParticipantsMergesAndEnriches(t *testing.T) {
	ctx := context.Background()
	avatar := "https://cdn.example/u2.png"
	profiles := &fakeProfiles{data: map[string]*profile.Profile{
		"u2": {ID: "u2", DisplayName: "Bea", AvatarURL: &avatar},
		"u3": {ID: "u3", DisplayName: "Cal"},
	}}

	mem := backend.NewMemory().
		DefineTable("radar_participants").
		DefineTable("radar_v2_participants").
		Seed("radar_v2_participants",
			backend.Row{"id": "a", "radar_id": "r1", "user_id": "u1", "status": "JOINED", "role": "HOST", "display_name": "Ann", "created_at": t0},
			backend.Row{"id": "b", "radar_id": "r1", "user_id": "u2", "status": "PENDING", "created_at": t0.Add(time.Minute)},
		).
		Seed("radar_participants",
			backend.Row{"id": "c", "radar_id": "r1", "user_id": "u2", "status": "JOINED", "created_at": t0.Add(2 * time.Minute)},
			backend.Row{"id": "d", "radar_id": "r1", "user_id": "u3", "created_at": t0.Add(3 * time.Minute)},
			backend.Row{"id": "e", "radar_id": "other", "user_id": "u4", "status": "JOINED"},
		)
	repo := NewRepository(mem, schema.Default(), profiles)

	got, err := repo.ListParticipants(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "Ann", got[0].DisplayName)

	assert.Equal(t, "c", got[1].ID)
	assert.Equal(t, schema.SourceLegacy, got[1].Source)
	assert.Equal(t, "Bea", got[1].DisplayName)
	assert.Equal(t, &avatar, got[1].AvatarURL)

	assert.Equal(t, "d", got[2].ID)
	assert.Equal(t, "Cal", got[2].DisplayName)

	require.Len(t, profiles.asked, 1)
	assert.ElementsMatch(t, []string{"u2", "u3"}, profiles.asked[0])
}

func TestListParticipantsReducedProjection(t *testing.T) {
	ctx := context.Background()
	mem := backend.NewMemory().
		DefineTable("radar_participants", "id", "radar_id", "user_id", "status", "created_at").
		Seed("radar_participants", backend.Row{"id": "a", "radar_id": "r1", "user_id": "u1", "status": "JOINED"})
	repo := NewRepository(mem, schema.Default(), nil)

	got, err := repo.ListParticipants(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "u1", got[0].UserID)
	assert.Equal(t, 2, mem.CallCount("select", "radar_participants"))
}
