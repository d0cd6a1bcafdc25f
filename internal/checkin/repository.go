package checkin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fkhayef/radar/internal/backend"
	"github.com/fkhayef/radar/internal/dberr"
)

// Repository reads and writes check-ins across the primary and church tables.
type Repository struct {
	client backend.Client
	tables []string
	now    func() time.Time
}

// NewRepository creates a new check-in repository. tables are tried in order
// on write.
func NewRepository(client backend.Client, tables ...string) *Repository {
	return &Repository{client: client, tables: tables, now: time.Now}
}

func fromRow(r backend.Row, table string) *CheckIn {
	c := &CheckIn{
		ID:       r.String("id"),
		UserID:   r.String("user_id"),
		ChurchID: r.String("church_id"),
		Status:   strings.ToUpper(r.String("status")),
		Table:    table,
	}
	c.CreatedAt, _ = r.Time("created_at")
	return c
}

func (r *Repository) activeIn(ctx context.Context, table, userID string) (*CheckIn, error) {
	q := backend.From(table).
		Eq("user_id", userID).
		Eq("status", StatusActive).
		OrderBy("created_at", true).
		Take(1)
	rows, err := r.client.Select(ctx, q)
	if err != nil {
		if dberr.IsMissingRelation(err) || dberr.IsPermission(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", table, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return fromRow(rows[0], table), nil
}

// Active returns the newest ACTIVE check-in of userID over every table, or
// nil when there is none.
func (r *Repository) Active(ctx context.Context, userID string) (*CheckIn, error) {
	found := make([]*CheckIn, len(r.tables))
	g, gctx := errgroup.WithContext(ctx)
	for i, table := range r.tables {
		i, table := i, table
		g.Go(func() error {
			c, err := r.activeIn(gctx, table, userID)
			found[i] = c
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var newest *CheckIn
	for _, c := range found {
		if c != nil && (newest == nil || c.CreatedAt.After(newest.CreatedAt)) {
			newest = c
		}
	}
	return newest, nil
}

// Archive marks every ACTIVE check-in of userID in table as ARCHIVED.
func (r *Repository) Archive(ctx context.Context, table, userID string) (int, error) {
	res, err := backend.MutateWithFallback(ctx, r.client, backend.Mutation{
		Op:    backend.OpUpdate,
		Table: table,
		Values: backend.Row{
			"status":      StatusArchived,
			"archived_at": r.now().UTC(),
		},
		Filters: []backend.Filter{backend.Eq("user_id", userID), backend.Eq("status", StatusActive)},
	})
	if err != nil {
		if dberr.IsMissingRelation(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to archive %s: %w", table, err)
	}
	return len(res.Rows), nil
}

// Insert writes values into the first table that exists.
func (r *Repository) Insert(ctx context.Context, values backend.Row) (*CheckIn, error) {
	var lastErr error
	for _, table := range r.tables {
		res, err := backend.MutateWithFallback(ctx, r.client, backend.Mutation{
			Op:     backend.OpInsert,
			Table:  table,
			Values: values,
		})
		if err != nil {
			if dberr.IsMissingRelation(err) {
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("failed to create check-in: %w", err)
		}
		row := res.Row()
		if row == nil {
			row = values
		}
		return fromRow(row, table), nil
	}
	return nil, fmt.Errorf("failed to create check-in: %w", lastErr)
}

// Tables lists the tables in write order.
func (r *Repository) Tables() []string {
	return r.tables
}
