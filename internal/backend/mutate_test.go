package backend

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rejectingClient rejects the first column of every insert as missing.
type rejectingClient struct {
	*Memory
	inserts int
}

func (c *rejectingClient) Insert(_ context.Context, table string, values Row) (Row, error) {
	c.inserts++
	keys := values.Keys()
	return nil, &Error{Code: "42703", Message: fmt.Sprintf("column %q of relation %q does not exist", keys[0], table)}
}

func TestMutateWithFallback_DropsMissingColumns(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory().DefineTable("notifications", "id", "recipient_id", "message", "created_at")

	res, err := MutateWithFallback(ctx, mem, Mutation{
		Op:    OpInsert,
		Table: "notifications",
		Values: Row{
			"recipient_id": "u1",
			"message":      "hello",
			"invite_id":    "i1",
			"status":       "PENDING",
		},
	})
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.ElementsMatch(t, []string{"invite_id", "status"}, res.Dropped)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, "hello", res.Row().String("message"))

	rows := mem.Rows("notifications")
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Has("invite_id"))
}

func TestMutateWithFallback_BoundedAttempts(t *testing.T) {
	c := &rejectingClient{Memory: NewMemory()}
	values := Row{}
	for i := 0; i < 12; i++ {
		values[fmt.Sprintf("col_%02d", i)] = i
	}

	res, err := MutateWithFallback(context.Background(), c, Mutation{Op: OpInsert, Table: "t", Values: values})
	require.Error(t, err)
	assert.Equal(t, MaxMutationAttempts, c.inserts)
	assert.Equal(t, MaxMutationAttempts, res.Attempts)
	assert.Len(t, res.Dropped, MaxMutationAttempts)

	var storeErr *Error
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "42703", storeErr.SQLState())
}

func TestMutateWithFallback_ExhaustsPayload(t *testing.T) {
	c := &rejectingClient{Memory: NewMemory()}

	res, err := MutateWithFallback(context.Background(), c, Mutation{
		Op: OpInsert, Table: "t", Values: Row{"a": 1, "b": 2},
	})
	require.Error(t, err)
	assert.Equal(t, 2, c.inserts)
	assert.Equal(t, []string{"a", "b"}, res.Dropped)
}

func TestMutateWithFallback_Duplicate(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory().DefineTable("radar_invites").Unique("radar_invites", "radar_id", "invitee_id")

	_, err := MutateWithFallback(ctx, mem, Mutation{Op: OpInsert, Table: "radar_invites", Values: Row{"radar_id": "r1", "invitee_id": "u2"}})
	require.NoError(t, err)

	res, err := MutateWithFallback(ctx, mem, Mutation{Op: OpInsert, Table: "radar_invites", Values: Row{"radar_id": "r1", "invitee_id": "u2"}})
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Len(t, mem.Rows("radar_invites"), 1)
}

func TestMutateWithFallback_PropagatesOtherErrors(t *testing.T) {
	ctx := context.Background()
	boom := &Error{Code: "42501", Message: "permission denied for table radar_participants"}
	mem := NewMemory().DefineTable("radar_participants").Fail("insert", "radar_participants", boom)

	res, err := MutateWithFallback(ctx, mem, Mutation{Op: OpInsert, Table: "radar_participants", Values: Row{"user_id": "u1"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, 1, res.Attempts)
}

func TestMutateWithFallback_MissingColumnNotInPayload(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory().DefineTable("radar_participants", "id", "user_id", "status")

	// the filter column is unknown, stripping payload columns cannot help
	_, err := MutateWithFallback(ctx, mem, Mutation{
		Op:      OpUpdate,
		Table:   "radar_participants",
		Values:  Row{"status": "LEFT"},
		Filters: []Filter{Eq("radar_id", "r1")},
	})
	require.Error(t, err)
	assert.Equal(t, 1, mem.CallCount("update", "radar_participants"))
}

func TestMutateWithFallback_UpdateAndUpsert(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory().DefineTable("chat_group_members", "id", "group_id", "user_id", "role", "created_at")

	res, err := MutateWithFallback(ctx, mem, Mutation{
		Op:         OpUpsert,
		Table:      "chat_group_members",
		Values:     Row{"group_id": "g1", "user_id": "u1", "role": "MEMBER", "left_at": nil},
		OnConflict: []string{"group_id", "user_id"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"left_at"}, res.Dropped)

	res, err = MutateWithFallback(ctx, mem, Mutation{
		Op:      OpUpdate,
		Table:   "chat_group_members",
		Values:  Row{"role": "ADMIN"},
		Filters: []Filter{Eq("group_id", "g1"), Eq("user_id", "u1")},
	})
	require.NoError(t, err)
	assert.True(t, res.Affected())
	assert.Equal(t, "ADMIN", mem.Rows("chat_group_members")[0].String("role"))
}

func TestSelectWithFallback(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory().
		DefineTable("radar_events", "id", "title", "creator_id").
		Seed("radar_events", Row{"id": "r1", "title": "Vespers", "creator_id": "u1"})

	q := From("radar_events").Select("id", "title", "creator_id", "allow_member_invite").Eq("id", "r1")
	rows, err := SelectWithFallback(ctx, mem, q, []string{"id", "title", "creator_id"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Vespers", rows[0].String("title"))
	assert.Equal(t, 2, mem.CallCount("select", "radar_events"))

	_, err = SelectWithFallback(ctx, mem, From("radar_v2_events").Eq("id", "r1"), []string{"id"})
	require.Error(t, err)
	assert.Equal(t, 1, mem.CallCount("select", "radar_v2_events"))
}
