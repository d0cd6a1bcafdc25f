package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Postgres implements Client on top of database/sql. It builds parameterized
// statements from the query description, so a column or table the database
// does not know surfaces as the database's own 42703 / 42P01 error.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a new Postgres client
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func quoteName(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteName(n)
	}
	return strings.Join(quoted, ", ")
}

// buildWhere renders filters starting at placeholder $start.
func buildWhere(filters []Filter, start int) (string, []any) {
	if len(filters) == 0 {
		return "", nil
	}
	var (
		conds []string
		args  []any
		n     = start
	)
	for _, f := range filters {
		col := quoteName(f.Column)
		switch f.Op {
		case OpIsNull:
			conds = append(conds, col+" IS NULL")
		case OpNeq:
			conds = append(conds, fmt.Sprintf("%s IS DISTINCT FROM $%d", col, n))
			args = append(args, f.Value)
			n++
		case OpIn:
			values, _ := f.Value.([]any)
			if len(values) == 0 {
				conds = append(conds, "FALSE")
				continue
			}
			placeholders := make([]string, len(values))
			for i, v := range values {
				placeholders[i] = fmt.Sprintf("$%d", n)
				args = append(args, v)
				n++
			}
			conds = append(conds, fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", ")))
		default:
			if f.Value == nil {
				conds = append(conds, col+" IS NULL")
				continue
			}
			conds = append(conds, fmt.Sprintf("%s = $%d", col, n))
			args = append(args, f.Value)
			n++
		}
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return out, nil
}

// Select runs a projection query
func (p *Postgres) Select(ctx context.Context, q *Query) ([]Row, error) {
	projection := "*"
	if len(q.Columns) > 0 {
		projection = quoteList(q.Columns)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", projection, quoteName(q.Table))
	where, args := buildWhere(q.Filters, 1)
	b.WriteString(where)

	if len(q.Orders) > 0 {
		orders := make([]string, len(q.Orders))
		for i, o := range q.Orders {
			dir := "ASC"
			if o.Descending {
				dir = "DESC"
			}
			orders[i] = quoteName(o.Column) + " " + dir
		}
		b.WriteString(" ORDER BY " + strings.Join(orders, ", "))
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	if q.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", q.Offset)
	}

	rows, err := p.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select from %s: %w", q.Table, err)
	}
	return scanRows(rows)
}

// Insert adds a row and returns it as stored
func (p *Postgres) Insert(ctx context.Context, table string, values Row) (Row, error) {
	if len(values) == 0 {
		return nil, errors.New("insert without values")
	}
	keys := values.Keys()
	args := make([]any, len(keys))
	placeholders := make([]string, len(keys))
	for i, k := range keys {
		args[i] = values[k]
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		quoteName(table), quoteList(keys), strings.Join(placeholders, ", "))

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	out, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

// Update modifies every row matching filters
func (p *Postgres) Update(ctx context.Context, table string, values Row, filters []Filter) ([]Row, error) {
	if len(values) == 0 {
		return nil, errors.New("update without values")
	}
	keys := values.Keys()
	sets := make([]string, len(keys))
	args := make([]any, 0, len(keys))
	for i, k := range keys {
		sets[i] = fmt.Sprintf("%s = $%d", quoteName(k), i+1)
		args = append(args, values[k])
	}
	where, whereArgs := buildWhere(filters, len(keys)+1)
	args = append(args, whereArgs...)

	query := fmt.Sprintf("UPDATE %s SET %s%s RETURNING *", quoteName(table), strings.Join(sets, ", "), where)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", table, err)
	}
	return scanRows(rows)
}

// Upsert inserts or updates on the conflict target
func (p *Postgres) Upsert(ctx context.Context, table string, values Row, onConflict []string) (Row, error) {
	if len(onConflict) == 0 {
		return p.Insert(ctx, table, values)
	}
	keys := values.Keys()
	args := make([]any, len(keys))
	placeholders := make([]string, len(keys))
	conflict := make(map[string]bool, len(onConflict))
	for _, c := range onConflict {
		conflict[c] = true
	}
	var sets []string
	for i, k := range keys {
		args[i] = values[k]
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if !conflict[k] {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", quoteName(k), quoteName(k)))
		}
	}
	action := "DO NOTHING"
	if len(sets) > 0 {
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s RETURNING *",
		quoteName(table), quoteList(keys), strings.Join(placeholders, ", "), quoteList(onConflict), action)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert into %s: %w", table, err)
	}
	out, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

// Delete removes every row matching filters
func (p *Postgres) Delete(ctx context.Context, table string, filters []Filter) (int, error) {
	where, args := buildWhere(filters, 1)
	query := fmt.Sprintf("DELETE FROM %s%s", quoteName(table), where)

	result, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(affected), nil
}

// RPC calls a stored function with named arguments
func (p *Postgres) RPC(ctx context.Context, fn string, params map[string]any) ([]Row, error) {
	keys := Row(params).Keys()
	named := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		named[i] = fmt.Sprintf("%s => $%d", quoteName(k), i+1)
		args[i] = params[k]
	}

	query := fmt.Sprintf("SELECT * FROM %s(%s)", quoteName(fn), strings.Join(named, ", "))

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", fn, err)
	}
	return scanRows(rows)
}
