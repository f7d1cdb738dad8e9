package orm

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/deppfellow/abaita/internal/database"
	"github.com/deppfellow/abaita/internal/errs"
	"github.com/deppfellow/abaita/internal/schema"
)

// Row is one result of a query: one instance per selected type, in
// selection order.
type Row []*Instance

type clause struct {
	sql  string
	args []any
}

// Query is a lazy, composable SELECT over one or more mapped types. Nothing
// runs until All, Rows, First, Count or Each; every execution runs the
// query again.
//
// Conditions use '?' bind markers and are AND-ed together. Column names may
// be qualified as "table.column"; bare names refer to the first type.
type Query struct {
	session *Session
	types   []*Type
	where   []clause
	order   []string
	limit   int
	offset  int
	err     error
}

func newQuery(s *Session, err error, types ...*Type) *Query {
	return &Query{session: s, types: types, limit: -1, err: err}
}

func (q *Query) clone() *Query {
	c := *q
	c.types = append([]*Type(nil), q.types...)
	c.where = append([]clause(nil), q.where...)
	c.order = append([]string(nil), q.order...)
	return &c
}

func (q *Query) fail(err error) *Query {
	if q.err == nil {
		q.err = err
	}
	return q
}

// Types returns the selected types.
func (q *Query) Types() []*Type { return q.types }

// Width is the number of instances in every row.
func (q *Query) Width() int { return len(q.types) }

// Session returns the session the query reads through.
func (q *Query) Session() *Session { return q.session }

// Err returns the first error recorded while building the query.
func (q *Query) Err() error { return q.err }

func (q *Query) dialect() database.Dialect {
	return q.session.conn.Dialect()
}

// column resolves a column reference to its type and quoted SQL name.
func (q *Query) column(ref string) (*Type, string, error) {
	if len(q.types) == 0 {
		return nil, "", fmt.Errorf("%w: %s", errs.ErrUnknownAttribute, ref)
	}
	t, name := q.types[0], ref
	if table, col, ok := strings.Cut(ref, "."); ok {
		t = nil
		for _, candidate := range q.types {
			if candidate.Name() == table {
				t = candidate
				break
			}
		}
		if t == nil {
			return nil, "", fmt.Errorf("%w: %s", errs.ErrUnknownAttribute, ref)
		}
		name = col
	}
	if !t.table.HasColumn(name) {
		return nil, "", fmt.Errorf("%w: %s.%s", errs.ErrUnknownAttribute, t.Name(), name)
	}
	d := q.dialect()
	return t, d.Quote(t.Name()) + "." + d.Quote(name), nil
}

func (q *Query) eq(t *Type, column string, v any) {
	col, _ := t.table.Column(column)
	d := q.dialect()
	q.where = append(q.where, clause{
		sql:  d.Quote(t.Name()) + "." + d.Quote(column) + " = ?",
		args: []any{normalize(col, v)},
	})
}

// Where adds a raw SQL condition.
func (q *Query) Where(cond string, args ...any) *Query {
	q.where = append(q.where, clause{sql: cond, args: args})
	return q
}

// FilterBy adds exact-match conditions, combined with AND. A nil value
// matches NULL.
func (q *Query) FilterBy(filters Attrs) *Query {
	if q.err != nil {
		return q
	}
	for _, name := range sortedKeys(filters) {
		t, col, err := q.column(name)
		if err != nil {
			return q.fail(err)
		}
		v := filters[name]
		if v == nil {
			q.where = append(q.where, clause{sql: col + " IS NULL"})
			continue
		}
		c, _ := t.table.Column(bareName(name))
		q.where = append(q.where, clause{sql: col + " = ?", args: []any{normalize(c, v)}})
	}
	return q
}

// In adds a membership condition. No values matches nothing.
func (q *Query) In(column string, values ...any) *Query {
	if q.err != nil {
		return q
	}
	t, col, err := q.column(column)
	if err != nil {
		return q.fail(err)
	}
	c, _ := t.table.Column(bareName(column))
	q.where = append(q.where, membership(col, c, values))
	return q
}

// Match adds one membership test per column: a scalar value is a
// one-element set, a slice is the set itself. The tests are combined with
// OR when anyOf is set, with AND otherwise.
func (q *Query) Match(filters Attrs, anyOf bool) *Query {
	if q.err != nil {
		return q
	}
	if len(filters) == 0 {
		return q
	}

	var (
		parts []string
		args  []any
	)
	for _, name := range sortedKeys(filters) {
		t, col, err := q.column(name)
		if err != nil {
			return q.fail(err)
		}
		values, ok := sequence(filters[name])
		if !ok {
			values = []any{filters[name]}
		}
		c, _ := t.table.Column(bareName(name))
		m := membership(col, c, values)
		parts = append(parts, m.sql)
		args = append(args, m.args...)
	}

	sep := " AND "
	if anyOf {
		sep = " OR "
	}
	q.where = append(q.where, clause{sql: "(" + strings.Join(parts, sep) + ")", args: args})
	return q
}

// Join restricts the selection to rows linked through the named
// relationship of one of the selected types. The relationship target is
// added to the selection when missing. Self-referencing relationships
// cannot be joined; use Ref or Collection to navigate them.
func (q *Query) Join(relationship string) *Query {
	if q.err != nil {
		return q
	}
	for _, src := range q.types {
		rel, ok := src.table.Relationship(relationship)
		if !ok {
			continue
		}
		target, err := src.related(rel)
		if err != nil {
			return q.fail(err)
		}
		// Tables are not aliased, so a table cannot be joined to itself.
		if target == src {
			return q.fail(fmt.Errorf("%w: %s joins %s to itself", errs.ErrUnknownRelationship, relationship, src.Name()))
		}

		found := false
		for _, t := range q.types {
			if t == target {
				found = true
				break
			}
		}
		if !found {
			q.types = append(q.types, target)
		}

		d := q.dialect()
		parts := make([]string, len(rel.LocalColumns))
		for n := range rel.LocalColumns {
			parts[n] = d.Quote(src.Name()) + "." + d.Quote(rel.LocalColumns[n]) + " = " +
				d.Quote(target.Name()) + "." + d.Quote(rel.RemoteColumns[n])
		}
		q.where = append(q.where, clause{sql: strings.Join(parts, " AND ")})
		return q
	}
	return q.fail(fmt.Errorf("%w: %s", errs.ErrUnknownRelationship, relationship))
}

// OrderBy sorts by the given columns; a leading '-' sorts descending.
func (q *Query) OrderBy(columns ...string) *Query {
	if q.err != nil {
		return q
	}
	for _, ref := range columns {
		dir := ""
		if strings.HasPrefix(ref, "-") {
			ref, dir = ref[1:], " DESC"
		}
		_, col, err := q.column(ref)
		if err != nil {
			return q.fail(err)
		}
		q.order = append(q.order, col+dir)
	}
	return q
}

// Limit caps the number of rows. A negative n removes the cap.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// Offset skips the first n rows.
func (q *Query) Offset(n int) *Query {
	q.offset = n
	return q
}

// SQL renders the SELECT statement with '?' markers and its arguments.
func (q *Query) SQL() (string, []any) {
	if q.session == nil {
		return "", nil
	}
	d := q.dialect()

	var cols []string
	for _, t := range q.types {
		for _, c := range t.table.Columns {
			cols = append(cols, d.Quote(t.Name())+"."+d.Quote(c.Name))
		}
	}
	return q.render("SELECT " + strings.Join(cols, ", "))
}

func (q *Query) render(selectList string) (string, []any) {
	d := q.dialect()

	var b strings.Builder
	b.WriteString(selectList)
	b.WriteString(" FROM ")
	for n, t := range q.types {
		if n > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.Quote(t.Name()))
	}

	var args []any
	for n, w := range q.where {
		if n == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		b.WriteString("(" + w.sql + ")")
		args = append(args, w.args...)
	}

	if len(q.order) > 0 {
		b.WriteString(" ORDER BY " + strings.Join(q.order, ", "))
	}
	if q.limit >= 0 {
		b.WriteString(" LIMIT " + strconv.Itoa(q.limit))
	} else if q.offset > 0 && d.Name() == database.DialectSQLite {
		b.WriteString(" LIMIT -1")
	}
	if q.offset > 0 {
		b.WriteString(" OFFSET " + strconv.Itoa(q.offset))
	}
	return b.String(), args
}

// Each runs the query and calls fn for every row. Returning an error from
// fn stops the iteration and returns that error.
func (q *Query) Each(ctx context.Context, fn func(Row) error) error {
	if q.err != nil {
		return q.err
	}

	query, args := q.SQL()
	rows, err := q.session.conn.Query(ctx, q.session.querier(), query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	width := 0
	for _, t := range q.types {
		width += len(t.table.Columns)
	}
	raw := make([]any, width)
	dest := make([]any, width)
	for n := range raw {
		dest[n] = &raw[n]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return err
		}

		row := make(Row, 0, len(q.types))
		offset := 0
		for _, t := range q.types {
			values := make(map[string]any, len(t.table.Columns))
			for n, c := range t.table.Columns {
				values[c.Name] = normalize(c, raw[offset+n])
			}
			offset += len(t.table.Columns)
			row = append(row, q.session.materialize(t, values))
		}

		if err := fn(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Rows runs the query and returns every row.
func (q *Query) Rows(ctx context.Context) ([]Row, error) {
	var out []Row
	err := q.Each(ctx, func(r Row) error {
		out = append(out, r)
		return nil
	})
	return out, err
}

// All runs the query and returns the instances of the first selected type.
func (q *Query) All(ctx context.Context) ([]*Instance, error) {
	var out []*Instance
	err := q.Each(ctx, func(r Row) error {
		out = append(out, r[0])
		return nil
	})
	return out, err
}

// First returns the first instance of the first selected type, or nil when
// the query matches no row.
func (q *Query) First(ctx context.Context) (*Instance, error) {
	insts, err := q.clone().Limit(1).All(ctx)
	if err != nil || len(insts) == 0 {
		return nil, err
	}
	return insts[0], nil
}

// Count returns the number of rows the query matches.
func (q *Query) Count(ctx context.Context) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}
	inner, args := q.render("SELECT 1")

	var n int64
	row := q.session.conn.QueryRow(ctx, q.session.querier(), "SELECT COUNT(*) FROM ("+inner+") AS counted", args...)
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func membership(col string, c schema.Column, values []any) clause {
	if len(values) == 0 {
		return clause{sql: "1 = 0"}
	}
	args := make([]any, len(values))
	for n, v := range values {
		args[n] = normalize(c, v)
	}
	return clause{sql: col + " IN (" + placeholders(len(values)) + ")", args: args}
}

func bareName(ref string) string {
	if _, col, ok := strings.Cut(ref, "."); ok {
		return col
	}
	return ref
}

func sortedKeys(m Attrs) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
