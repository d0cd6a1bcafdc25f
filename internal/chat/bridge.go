// Package chat keeps a radar's chat room or group in step with its
// participants. Legacy radars bridge to chat_rooms / chat_room_members, v2
// radars to chat_groups / chat_group_members, and the two differ in how a
// departure is recorded.
package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/fkhayef/radar/internal/backend"
	"github.com/fkhayef/radar/internal/dberr"
	"github.com/fkhayef/radar/internal/schema"
)

// Member states written to the membership tables.
const (
	StatusActive = "ACTIVE"
	StatusLeft   = "LEFT"
	RoleMember   = "MEMBER"
)

// Bridge adds and removes radar participants from the radar's chat.
type Bridge struct {
	client backend.Client
	schema *schema.Schema
	now    func() time.Time
}

// NewBridge creates a new chat bridge
func NewBridge(client backend.Client, s *schema.Schema) *Bridge {
	return &Bridge{client: client, schema: s, now: time.Now}
}

// RoomID returns the chat bridged to radarID, "" when there is none. A
// deployment without the rooms table has no bridge.
func (b *Bridge) RoomID(ctx context.Context, src schema.Source, radarID string) (string, error) {
	fam := b.schema.Family(src)
	rows, err := b.client.Select(ctx, backend.From(fam.ChatRooms).Select("id").Eq("radar_id", radarID).Take(1))
	if err != nil {
		if dberr.IsMissingRelation(err) || dberr.IsMissingColumn(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to find chat for radar: %w", err)
	}
	if len(rows) == 0 {
		return "", nil
	}
	return rows[0].String("id"), nil
}

// AddMember puts userID into the radar's chat. Already being a member is not
// an error. It returns false when the radar has no chat.
func (b *Bridge) AddMember(ctx context.Context, src schema.Source, radarID, userID string) (bool, error) {
	roomID, err := b.RoomID(ctx, src, radarID)
	if err != nil || roomID == "" {
		return false, err
	}

	fam := b.schema.Family(src)
	now := b.now().UTC()
	m := backend.Mutation{Table: fam.ChatMembers}
	switch src {
	case schema.SourceV2:
		m.Op = backend.OpUpsert
		m.OnConflict = []string{fam.ChatRoomKey, "user_id"}
		m.Values = backend.Row{
			fam.ChatRoomKey: roomID,
			"user_id":       userID,
			"role":          RoleMember,
			"status":        StatusActive,
			"joined_at":     now,
			"left_at":       nil,
		}
	default:
		m.Op = backend.OpInsert
		m.Values = backend.Row{
			fam.ChatRoomKey: roomID,
			"user_id":       userID,
			"status":        StatusActive,
			"joined_at":     now,
		}
	}

	if _, err := backend.MutateWithFallback(ctx, b.client, m); err != nil {
		return true, fmt.Errorf("failed to add chat member: %w", err)
	}
	return true, nil
}

// RemoveMember takes userID out of the radar's chat. Legacy rooms drop the
// membership row, v2 groups keep it marked as left.
func (b *Bridge) RemoveMember(ctx context.Context, src schema.Source, radarID, userID string) (bool, error) {
	roomID, err := b.RoomID(ctx, src, radarID)
	if err != nil || roomID == "" {
		return false, err
	}

	fam := b.schema.Family(src)
	filters := []backend.Filter{
		backend.Eq(fam.ChatRoomKey, roomID),
		backend.Eq("user_id", userID),
	}

	if src == schema.SourceV2 {
		_, err = backend.MutateWithFallback(ctx, b.client, backend.Mutation{
			Op:      backend.OpUpdate,
			Table:   fam.ChatMembers,
			Values:  backend.Row{"status": StatusLeft, "left_at": b.now().UTC()},
			Filters: filters,
		})
	} else {
		_, err = b.client.Delete(ctx, fam.ChatMembers, filters)
	}
	if err != nil {
		return true, fmt.Errorf("failed to remove chat member: %w", err)
	}
	return true, nil
}
