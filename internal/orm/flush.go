package orm

import (
	"context"
	"fmt"
	"strings"

	"github.com/deppfellow/abaita/internal/database"
)

func (s *Session) execInsert(ctx context.Context, inst *Instance) error {
	t := inst.typ
	d := s.conn.Dialect()

	// A single missing key column is generated by the store. It stays out
	// of the column list even when set to nil.
	var generated string
	if pk := t.table.PrimaryKey; len(pk) == 1 && inst.values[pk[0]] == nil {
		generated = pk[0]
	}

	var (
		cols []string
		args []any
	)
	for _, c := range t.table.Columns {
		if c.Name == generated {
			continue
		}
		if v, ok := inst.values[c.Name]; ok {
			cols = append(cols, d.Quote(c.Name))
			args = append(args, v)
		}
	}

	var query string
	if len(cols) == 0 {
		query = "INSERT INTO " + d.Quote(t.Name()) + " DEFAULT VALUES"
	} else {
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			d.Quote(t.Name()), strings.Join(cols, ", "), placeholders(len(cols)))
	}

	if generated != "" && d.Name() == database.DialectPostgres {
		var id any
		query += " RETURNING " + d.Quote(generated)
		if err := s.conn.QueryRow(ctx, s.querier(), query, args...).Scan(&id); err != nil {
			return err
		}
		col, _ := t.table.Column(generated)
		inst.values[generated] = normalize(col, id)
	} else {
		res, err := s.conn.Exec(ctx, s.querier(), query, args...)
		if err != nil {
			return err
		}
		if generated != "" {
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("reading generated key of %s: %w", t.Name(), err)
			}
			inst.values[generated] = id
		}
	}

	inst.state = Persistent
	inst.queued = false
	inst.generated = generated
	inst.snapshot()
	s.register(inst)
	s.inserted = append(s.inserted, inst)
	return nil
}

func (s *Session) execUpdate(ctx context.Context, inst *Instance) error {
	inst.queued = false
	if inst.state != Persistent {
		return nil
	}
	cols := inst.changed()
	if len(cols) == 0 {
		return nil
	}

	t := inst.typ
	d := s.conn.Dialect()
	oldKey := inst.storedKey()

	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+len(oldKey))
	for n, c := range cols {
		sets[n] = d.Quote(c) + " = ?"
		args = append(args, inst.values[c])
	}
	where, keyArgs := keyCondition(d, t, oldKey)
	args = append(args, keyArgs...)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", d.Quote(t.Name()), strings.Join(sets, ", "), where)
	res, err := s.conn.Exec(ctx, s.querier(), query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update of %s matched no row for key %v", t.Name(), oldKey)
	}

	s.unregister(inst, oldKey)
	inst.snapshot()
	s.register(inst)
	return nil
}

func (s *Session) execDelete(ctx context.Context, inst *Instance) error {
	t := inst.typ
	d := s.conn.Dialect()
	key := inst.storedKey()

	where, args := keyCondition(d, t, key)
	res, err := s.conn.Exec(ctx, s.querier(), "DELETE FROM "+d.Quote(t.Name())+" WHERE "+where, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.log.Debug().Str("table", t.Name()).Interface("key", key).Msg("row already gone")
	}

	s.unregister(inst, key)
	inst.queued = false
	s.deleted = append(s.deleted, inst)
	return nil
}

func keyCondition(d database.Dialect, t *Type, key []any) (string, []any) {
	parts := make([]string, len(t.table.PrimaryKey))
	for n, name := range t.table.PrimaryKey {
		parts[n] = d.Quote(name) + " = ?"
	}
	return strings.Join(parts, " AND "), key
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
