package backend

// Op is a filter operator.
type Op string

const (
	OpEq     Op = "eq"
	OpNeq    Op = "neq"
	OpIn     Op = "in"
	OpIsNull Op = "is_null"
)

// Filter restricts a select, update or delete.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

// Eq is a shorthand for an equality filter.
func Eq(column string, value any) Filter {
	return Filter{Column: column, Op: OpEq, Value: value}
}

// In is a shorthand for a membership filter. Values must be a slice.
func In[T any](column string, values []T) Filter {
	vs := make([]any, len(values))
	for i, v := range values {
		vs[i] = v
	}
	return Filter{Column: column, Op: OpIn, Value: vs}
}

// Order is a sort key.
type Order struct {
	Column     string
	Descending bool
}

// Query describes a select. Build one with From.
type Query struct {
	Table   string
	Columns []string
	Filters []Filter
	Orders  []Order
	Limit   int
	Offset  int
}

// From starts a query on table.
func From(table string) *Query {
	return &Query{Table: table}
}

// Select sets the projection. No columns means every column.
func (q *Query) Select(columns ...string) *Query {
	q.Columns = columns
	return q
}

func (q *Query) Eq(column string, value any) *Query {
	q.Filters = append(q.Filters, Eq(column, value))
	return q
}

func (q *Query) Neq(column string, value any) *Query {
	q.Filters = append(q.Filters, Filter{Column: column, Op: OpNeq, Value: value})
	return q
}

func (q *Query) In(column string, values []string) *Query {
	q.Filters = append(q.Filters, In(column, values))
	return q
}

func (q *Query) IsNull(column string) *Query {
	q.Filters = append(q.Filters, Filter{Column: column, Op: OpIsNull})
	return q
}

func (q *Query) OrderBy(column string, descending bool) *Query {
	q.Orders = append(q.Orders, Order{Column: column, Descending: descending})
	return q
}

// Range limits the result to rows [from, to] inclusive.
func (q *Query) Range(from, to int) *Query {
	q.Offset = from
	q.Limit = to - from + 1
	return q
}

func (q *Query) Take(n int) *Query {
	q.Limit = n
	return q
}

// WithColumns returns a copy of q with a different projection.
func (q *Query) WithColumns(columns []string) *Query {
	c := *q
	c.Columns = columns
	return &c
}
