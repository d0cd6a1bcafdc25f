package backend

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RPCFunc implements a stored procedure for Memory.
type RPCFunc func(ctx context.Context, params map[string]any) ([]Row, error)

// Call records one operation made against Memory.
type Call struct {
	Op    string
	Table string
}

type memTable struct {
	columns map[string]bool // nil means any column is accepted
	rows    []Row
	uniques [][]string
	fks     []foreignKey
}

type foreignKey struct {
	column, refTable, refColumn string
}

// Memory is an in-process Client. Tables must be defined before use and may
// declare a fixed column set, unique keys and foreign keys, so it can stand in
// for a deployment whose schema lags behind the code. It answers with the
// same codes and messages Postgres would.
type Memory struct {
	mu       sync.Mutex
	tables   map[string]*memTable
	rpcs     map[string]RPCFunc
	failures map[string]error
	calls    []Call
	now      func() time.Time
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		tables:   make(map[string]*memTable),
		rpcs:     make(map[string]RPCFunc),
		failures: make(map[string]error),
		now:      time.Now,
	}
}

// DefineTable creates table. With no columns the table accepts any column.
func (m *Memory) DefineTable(name string, columns ...string) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &memTable{}
	if len(columns) > 0 {
		t.columns = make(map[string]bool, len(columns))
		for _, c := range columns {
			t.columns[c] = true
		}
	}
	m.tables[name] = t
	return m
}

// DropTable removes table, as if the deployment never had it.
func (m *Memory) DropTable(name string) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tables, name)
	return m
}

// Unique declares a unique key on table.
func (m *Memory) Unique(table string, columns ...string) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tables[table]; ok {
		t.uniques = append(t.uniques, columns)
	}
	return m
}

// ForeignKey declares that table.column must reference refTable.refColumn.
func (m *Memory) ForeignKey(table, column, refTable, refColumn string) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tables[table]; ok {
		t.fks = append(t.fks, foreignKey{column: column, refTable: refTable, refColumn: refColumn})
	}
	return m
}

// RegisterRPC installs a stored procedure.
func (m *Memory) RegisterRPC(name string, fn RPCFunc) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rpcs[name] = fn
	return m
}

// Fail makes every op ("select", "insert", "update", "upsert", "delete",
// "rpc") on target fail with err. A nil err clears the failure.
func (m *Memory) Fail(op, target string, err error) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := op + ":" + target
	if err == nil {
		delete(m.failures, key)
	} else {
		m.failures[key] = err
	}
	return m
}

// Seed appends rows to table without any checks.
func (m *Memory) Seed(table string, rows ...Row) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[table]
	if !ok {
		t = &memTable{}
		m.tables[table] = t
	}
	for _, r := range rows {
		t.rows = append(t.rows, r.Clone())
	}
	return m
}

// Rows returns a copy of every row in table.
func (m *Memory) Rows(table string) []Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[table]
	if !ok {
		return nil
	}
	out := make([]Row, len(t.rows))
	for i, r := range t.rows {
		out[i] = r.Clone()
	}
	return out
}

// Calls returns the operations made so far.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallCount counts operations of op against target.
func (m *Memory) CallCount(op, target string) int {
	n := 0
	for _, c := range m.Calls() {
		if c.Op == op && c.Table == target {
			n++
		}
	}
	return n
}

func (m *Memory) begin(op, target string) (*memTable, error) {
	m.calls = append(m.calls, Call{Op: op, Table: target})
	if err, ok := m.failures[op+":"+target]; ok {
		return nil, err
	}
	if op == "rpc" {
		return nil, nil
	}
	t, ok := m.tables[target]
	if !ok {
		return nil, &Error{Code: "42P01", Message: fmt.Sprintf("relation %q does not exist", "public."+target)}
	}
	return t, nil
}

func (t *memTable) checkColumns(table string, cols []string) error {
	if t.columns == nil {
		return nil
	}
	for _, c := range cols {
		if !t.columns[c] {
			return &Error{Code: "42703", Message: fmt.Sprintf("column %q of relation %q does not exist", c, table)}
		}
	}
	return nil
}

func (t *memTable) checkFilterColumns(table string, filters []Filter) error {
	if t.columns == nil {
		return nil
	}
	for _, f := range filters {
		if !t.columns[f.Column] {
			return &Error{Code: "42703", Message: fmt.Sprintf("column %s.%s does not exist", table, f.Column)}
		}
	}
	return nil
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Equal(tb)
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA && okB {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}

func matches(r Row, filters []Filter) bool {
	for _, f := range filters {
		v := r[f.Column]
		switch f.Op {
		case OpIsNull:
			if v != nil {
				return false
			}
		case OpNeq:
			if valuesEqual(v, f.Value) {
				return false
			}
		case OpIn:
			values, _ := f.Value.([]any)
			found := false
			for _, want := range values {
				if valuesEqual(v, want) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			if !valuesEqual(v, f.Value) {
				return false
			}
		}
	}
	return true
}

func project(r Row, cols []string) Row {
	if len(cols) == 0 {
		return r.Clone()
	}
	out := make(Row, len(cols))
	for _, c := range cols {
		out[c] = r[c]
	}
	return out
}

// Select implements Client
func (m *Memory) Select(_ context.Context, q *Query) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.begin("select", q.Table)
	if err != nil {
		return nil, err
	}
	if t.columns != nil {
		for _, c := range q.Columns {
			if !t.columns[c] {
				return nil, &Error{Code: "42703", Message: fmt.Sprintf("column %s.%s does not exist", q.Table, c)}
			}
		}
	}
	if err := t.checkFilterColumns(q.Table, q.Filters); err != nil {
		return nil, err
	}

	var found []Row
	for _, r := range t.rows {
		if matches(r, q.Filters) {
			found = append(found, r)
		}
	}
	if len(q.Orders) > 0 {
		sort.SliceStable(found, func(i, j int) bool {
			for _, o := range q.Orders {
				c := compareValues(found[i][o.Column], found[j][o.Column])
				if c == 0 {
					continue
				}
				if o.Descending {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if q.Offset > 0 {
		if q.Offset >= len(found) {
			found = nil
		} else {
			found = found[q.Offset:]
		}
	}
	if q.Limit > 0 && len(found) > q.Limit {
		found = found[:q.Limit]
	}

	out := make([]Row, len(found))
	for i, r := range found {
		out[i] = project(r, q.Columns)
	}
	return out, nil
}

func (m *Memory) fillDefaults(t *memTable, r Row) {
	accepts := func(c string) bool { return t.columns == nil || t.columns[c] }
	if _, ok := r["id"]; !ok && accepts("id") {
		r["id"] = uuid.NewString()
	}
	if _, ok := r["created_at"]; !ok && accepts("created_at") {
		r["created_at"] = m.now()
	}
}

func (m *Memory) checkConstraints(table string, t *memTable, r Row, skip int) error {
	for _, key := range t.uniques {
		for i, existing := range t.rows {
			if i == skip {
				continue
			}
			same := true
			for _, c := range key {
				if !valuesEqual(existing[c], r[c]) {
					same = false
					break
				}
			}
			if same {
				return &Error{
					Code:    "23505",
					Message: fmt.Sprintf("duplicate key value violates unique constraint %q", table+"_"+strings.Join(key, "_")+"_key"),
				}
			}
		}
	}
	for _, fk := range t.fks {
		v := r[fk.column]
		if v == nil {
			continue
		}
		ref, ok := m.tables[fk.refTable]
		found := false
		if ok {
			for _, rr := range ref.rows {
				if valuesEqual(rr[fk.refColumn], v) {
					found = true
					break
				}
			}
		}
		if !found {
			return &Error{
				Code:    "23503",
				Message: fmt.Sprintf("insert or update on table %q violates foreign key constraint %q", table, table+"_"+fk.column+"_fkey"),
			}
		}
	}
	return nil
}

func (m *Memory) insertLocked(table string, t *memTable, values Row) (Row, error) {
	if err := t.checkColumns(table, values.Keys()); err != nil {
		return nil, err
	}
	r := values.Clone()
	m.fillDefaults(t, r)
	if err := m.checkConstraints(table, t, r, -1); err != nil {
		return nil, err
	}
	t.rows = append(t.rows, r)
	return r.Clone(), nil
}

// Insert implements Client
func (m *Memory) Insert(_ context.Context, table string, values Row) (Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.begin("insert", table)
	if err != nil {
		return nil, err
	}
	return m.insertLocked(table, t, values)
}

// Update implements Client
func (m *Memory) Update(_ context.Context, table string, values Row, filters []Filter) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.begin("update", table)
	if err != nil {
		return nil, err
	}
	if err := t.checkColumns(table, values.Keys()); err != nil {
		return nil, err
	}
	if err := t.checkFilterColumns(table, filters); err != nil {
		return nil, err
	}

	var out []Row
	for i, r := range t.rows {
		if !matches(r, filters) {
			continue
		}
		updated := r.Clone()
		for k, v := range values {
			updated[k] = v
		}
		if err := m.checkConstraints(table, t, updated, i); err != nil {
			return nil, err
		}
		t.rows[i] = updated
		out = append(out, updated.Clone())
	}
	return out, nil
}

// Upsert implements Client
func (m *Memory) Upsert(_ context.Context, table string, values Row, onConflict []string) (Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.begin("upsert", table)
	if err != nil {
		return nil, err
	}
	if err := t.checkColumns(table, values.Keys()); err != nil {
		return nil, err
	}
	if len(onConflict) > 0 {
		filters := make([]Filter, len(onConflict))
		for i, c := range onConflict {
			filters[i] = Eq(c, values[c])
		}
		for i, r := range t.rows {
			if !matches(r, filters) {
				continue
			}
			updated := r.Clone()
			for k, v := range values {
				updated[k] = v
			}
			t.rows[i] = updated
			return updated.Clone(), nil
		}
	}
	return m.insertLocked(table, t, values)
}

// Delete implements Client
func (m *Memory) Delete(_ context.Context, table string, filters []Filter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.begin("delete", table)
	if err != nil {
		return 0, err
	}
	if err := t.checkFilterColumns(table, filters); err != nil {
		return 0, err
	}
	kept := t.rows[:0]
	removed := 0
	for _, r := range t.rows {
		if matches(r, filters) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	t.rows = kept
	return removed, nil
}

// RPC implements Client. The procedure runs without the store lock held so
// it may call back into m.
func (m *Memory) RPC(ctx context.Context, fn string, params map[string]any) ([]Row, error) {
	m.mu.Lock()
	if _, err := m.begin("rpc", fn); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	f, ok := m.rpcs[fn]
	m.mu.Unlock()

	if !ok {
		return nil, &Error{
			Code:    "PGRST202",
			Message: fmt.Sprintf("Could not find the function public.%s in the schema cache", fn),
		}
	}
	return f(ctx, params)
}
