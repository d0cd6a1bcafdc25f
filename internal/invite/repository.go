package invite

import (
	"context"
	"fmt"
	"time"

	"github.com/fkhayef/radar/internal/backend"
	"github.com/fkhayef/radar/internal/dberr"
)

// Repository handles invite persistence
type Repository struct {
	client backend.Client
	table  string
}

// NewRepository creates a new invite repository
func NewRepository(client backend.Client, table string) *Repository {
	return &Repository{client: client, table: table}
}

func fromRow(r backend.Row) *Invite {
	inv := &Invite{
		ID:        r.String("id"),
		InviterID: r.String("inviter_id"),
		InviteeID: r.String("invitee_id"),
		RadarID:   r.StringPtr("radar_id"),
		Source:    Source(r.String("source")),
		Status:    Status(r.String("status")),
		Note:      r.String("note"),
	}
	if inv.Status == "" {
		inv.Status = StatusPending
	}
	inv.CreatedAt, _ = r.Time("created_at")
	if t, ok := r.Time("responded_at"); ok {
		inv.RespondedAt = &t
	}
	return inv
}

func (r *Repository) list(ctx context.Context, q *backend.Query) ([]*Invite, error) {
	rows, err := r.client.Select(ctx, q)
	if err != nil {
		if dberr.IsMissingRelation(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list invites: %w", err)
	}
	out := make([]*Invite, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(row))
	}
	return out, nil
}

// GetByID retrieves an invite by its ID
func (r *Repository) GetByID(ctx context.Context, id string) (*Invite, error) {
	invites, err := r.list(ctx, backend.From(r.table).Eq("id", id).Take(1))
	if err != nil {
		return nil, err
	}
	if len(invites) == 0 {
		return nil, nil
	}
	return invites[0], nil
}

// FindActive returns PENDING or ACCEPTED invites to inviteeID. radarID and
// inviterID narrow the match when non-empty.
func (r *Repository) FindActive(ctx context.Context, inviteeID, radarID, inviterID string) ([]*Invite, error) {
	q := backend.From(r.table).Eq("invitee_id", inviteeID).In("status", activeStatuses)
	if radarID != "" {
		q.Eq("radar_id", radarID)
	}
	if inviterID != "" {
		q.Eq("inviter_id", inviterID)
	}
	return r.list(ctx, q)
}

// ListByInvitee retrieves invites sent to a user, newest first
func (r *Repository) ListByInvitee(ctx context.Context, inviteeID string) ([]*Invite, error) {
	return r.list(ctx, backend.From(r.table).Eq("invitee_id", inviteeID).OrderBy("created_at", true))
}

// ListByInviter retrieves invites a user sent, newest first
func (r *Repository) ListByInviter(ctx context.Context, inviterID string) ([]*Invite, error) {
	return r.list(ctx, backend.From(r.table).Eq("inviter_id", inviterID).OrderBy("created_at", true))
}

// Create inserts an invite row. A duplicate key is reported as (nil, true).
func (r *Repository) Create(ctx context.Context, values backend.Row) (*Invite, bool, error) {
	res, err := backend.MutateWithFallback(ctx, r.client, backend.Mutation{
		Op:     backend.OpInsert,
		Table:  r.table,
		Values: values,
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to create invite: %w", err)
	}
	if res.Duplicate {
		return nil, true, nil
	}
	row := res.Row()
	if row == nil {
		row = values
	}
	return fromRow(row), false, nil
}

// SetStatus moves an invite to status. guardColumn must match guardValue for
// the row to change, so only the invitee (or inviter) can touch it. Returns
// nil when no row matched.
func (r *Repository) SetStatus(ctx context.Context, id string, status Status, guardColumn, guardValue string, at time.Time) (*Invite, error) {
	res, err := backend.MutateWithFallback(ctx, r.client, backend.Mutation{
		Op:    backend.OpUpdate,
		Table: r.table,
		Values: backend.Row{
			"status":       string(status),
			"responded_at": at,
		},
		Filters: []backend.Filter{backend.Eq("id", id), backend.Eq(guardColumn, guardValue)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update invite: %w", err)
	}
	if !res.Affected() {
		return nil, nil
	}
	return fromRow(res.Row()), nil
}
