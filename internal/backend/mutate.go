package backend

import (
	"context"
	"fmt"

	"github.com/fkhayef/radar/internal/dberr"
)

// MaxMutationAttempts bounds the column-stripping retries of MutateWithFallback.
const MaxMutationAttempts = 8

// MutationOp selects the write performed by MutateWithFallback.
type MutationOp string

const (
	OpInsert MutationOp = "insert"
	OpUpdate MutationOp = "update"
	OpUpsert MutationOp = "upsert"
)

// Mutation describes a single write.
type Mutation struct {
	Op         MutationOp
	Table      string
	Values     Row
	Filters    []Filter // update only
	OnConflict []string // upsert only
}

// Result is the outcome of MutateWithFallback.
type Result struct {
	Rows      []Row
	Duplicate bool
	Dropped   []string
	Attempts  int
}

// Row returns the first returned row, or nil.
func (r *Result) Row() Row {
	if r == nil || len(r.Rows) == 0 {
		return nil
	}
	return r.Rows[0]
}

// Affected reports whether the write touched at least one row.
func (r *Result) Affected() bool {
	return r != nil && len(r.Rows) > 0
}

// MutateWithFallback performs m, dropping columns the store reports as
// missing and retrying, at most MaxMutationAttempts times. A duplicate key is
// reported through Result.Duplicate instead of an error. Any other failure is
// returned as is.
func MutateWithFallback(ctx context.Context, c Client, m Mutation) (*Result, error) {
	payload := m.Values.Clone()
	res := &Result{}
	var lastErr error

	for attempt := 1; attempt <= MaxMutationAttempts; attempt++ {
		res.Attempts = attempt

		rows, err := apply(ctx, c, m, payload)
		if err == nil {
			res.Rows = rows
			return res, nil
		}
		if dberr.IsDuplicate(err) {
			res.Duplicate = true
			return res, nil
		}
		if !dberr.IsMissingColumn(err) {
			return res, err
		}
		lastErr = err
		col, ok := dberr.MissingColumnName(err)
		if !ok || !payload.Has(col) {
			return res, err
		}
		delete(payload, col)
		res.Dropped = append(res.Dropped, col)
		if len(payload) == 0 {
			return res, fmt.Errorf("no writable columns left for %s: %w", m.Table, err)
		}
	}

	return res, fmt.Errorf("gave up writing %s after %d attempts: %w", m.Table, MaxMutationAttempts, lastErr)
}

func apply(ctx context.Context, c Client, m Mutation, payload Row) ([]Row, error) {
	switch m.Op {
	case OpInsert:
		row, err := c.Insert(ctx, m.Table, payload)
		return wrapRow(row), err
	case OpUpsert:
		row, err := c.Upsert(ctx, m.Table, payload, m.OnConflict)
		return wrapRow(row), err
	case OpUpdate:
		return c.Update(ctx, m.Table, payload, m.Filters)
	default:
		return nil, fmt.Errorf("unknown mutation op %q", m.Op)
	}
}

func wrapRow(row Row) []Row {
	if row == nil {
		return nil
	}
	return []Row{row}
}

// SelectWithFallback runs q and, when the store rejects the projection as
// naming a missing column, runs it once more with reduced. Exactly two
// attempts at most.
func SelectWithFallback(ctx context.Context, c Client, q *Query, reduced []string) ([]Row, error) {
	rows, err := c.Select(ctx, q)
	if err == nil {
		return rows, nil
	}
	if !dberr.IsMissingColumn(err) || dberr.IsMissingRelation(err) || len(reduced) == 0 {
		return nil, err
	}
	return c.Select(ctx, q.WithColumns(reduced))
}
