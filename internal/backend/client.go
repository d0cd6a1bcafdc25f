// Package backend is the row/RPC client every feature package talks to.
//
// It mirrors the surface of a hosted backend: select with projection and
// filters, insert, update, upsert with a conflict target, delete and named
// remote procedures. Nothing above this package knows SQL.
package backend

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Row is a single record keyed by column name.
type Row map[string]any

// String returns the column as a string, "" when absent or nil.
func (r Row) String(col string) string {
	v, ok := r[col]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

// StringPtr returns the column as a *string, nil when absent or empty.
func (r Row) StringPtr(col string) *string {
	s := r.String(col)
	if s == "" {
		return nil
	}
	return &s
}

// Bool returns the column as a bool. ok is false when the column is absent.
func (r Row) Bool(col string) (value bool, ok bool) {
	v, present := r[col]
	if !present || v == nil {
		return false, false
	}
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		return t == "true" || t == "t", true
	default:
		return false, false
	}
}

// Int returns the column as an int, 0 when absent.
func (r Row) Int(col string) int {
	switch t := r[col].(type) {
	case int:
		return t
	case int32:
		return int(t)
	case int64:
		return int(t)
	case float64:
		return int(t)
	default:
		return 0
	}
}

// Time returns the column as a time. Strings are parsed as RFC 3339.
func (r Row) Time(col string) (time.Time, bool) {
	switch t := r[col].(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}

// Has reports whether the column is present.
func (r Row) Has(col string) bool {
	_, ok := r[col]
	return ok
}

// Clone returns a shallow copy.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Keys returns the column names in sorted order.
func (r Row) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Client is the data store. Implementations return errors that carry a
// SQLSTATE-like code when the store provides one.
type Client interface {
	Select(ctx context.Context, q *Query) ([]Row, error)
	Insert(ctx context.Context, table string, values Row) (Row, error)
	Update(ctx context.Context, table string, values Row, filters []Filter) ([]Row, error)
	Upsert(ctx context.Context, table string, values Row, onConflict []string) (Row, error)
	Delete(ctx context.Context, table string, filters []Filter) (int, error)
	RPC(ctx context.Context, fn string, params map[string]any) ([]Row, error)
}

// Error is a store failure with an optional vendor code.
type Error struct {
	Code    string
	Message string
	Details string
	Hint    string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// SQLState exposes the code to dberr.
func (e *Error) SQLState() string {
	return e.Code
}
