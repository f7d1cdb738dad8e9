package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/deppfellow/abaita/internal/database"
)

// introspector reads raw catalog information from one kind of backend.
type introspector interface {
	tableNames(ctx context.Context) ([]string, error)
	columns(ctx context.Context, table string) ([]Column, []string, error)
	foreignKeys(ctx context.Context, table string) ([]ForeignKey, error)
}

func newIntrospector(conn *database.Connection) (introspector, error) {
	switch conn.Dialect().Name() {
	case database.DialectSQLite:
		return &sqliteIntrospector{conn: conn}, nil
	case database.DialectPostgres:
		return &postgresIntrospector{conn: conn}, nil
	default:
		return nil, fmt.Errorf("schema reflection is not supported for dialect %q", conn.Dialect().Name())
	}
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// appendForeignKeyColumn adds one (column, referenced column) pair to the
// foreign key with the given id, keeping ids in first-seen order.
func appendForeignKeyColumn(fks []ForeignKey, index map[string]int, id string, fk ForeignKey, from, to string) []ForeignKey {
	i, ok := index[id]
	if !ok {
		i = len(fks)
		index[id] = i
		fks = append(fks, fk)
	}
	fks[i].Columns = append(fks[i].Columns, from)
	fks[i].RefColumns = append(fks[i].RefColumns, to)
	return fks
}

type sqliteIntrospector struct {
	conn *database.Connection
}

func (s *sqliteIntrospector) tableNames(ctx context.Context) ([]string, error) {
	rows, err := s.conn.Query(ctx, s.conn.DB(),
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	return scanStrings(rows)
}

func (s *sqliteIntrospector) columns(ctx context.Context, table string) ([]Column, []string, error) {
	rows, err := s.conn.Query(ctx, s.conn.DB(),
		`SELECT name, type, "notnull", pk FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, nil, fmt.Errorf("reading columns of %s: %w", table, err)
	}
	defer rows.Close()

	var (
		cols  []Column
		pkPos = map[int]string{}
	)
	for rows.Next() {
		var (
			c       Column
			notNull int
			pk      int
		)
		if err := rows.Scan(&c.Name, &c.Type, &notNull, &pk); err != nil {
			return nil, nil, err
		}
		c.Type = strings.ToLower(c.Type)
		c.PrimaryKey = pk > 0
		c.Nullable = notNull == 0 && !c.PrimaryKey
		if pk > 0 {
			pkPos[pk] = c.Name
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	pk := make([]string, 0, len(pkPos))
	for i := 1; i <= len(pkPos); i++ {
		pk = append(pk, pkPos[i])
	}
	return cols, pk, nil
}

func (s *sqliteIntrospector) foreignKeys(ctx context.Context, table string) ([]ForeignKey, error) {
	rows, err := s.conn.Query(ctx, s.conn.DB(),
		`SELECT id, "table", "from", "to", on_delete FROM pragma_foreign_key_list(?) ORDER BY id, seq`, table)
	if err != nil {
		return nil, fmt.Errorf("reading foreign keys of %s: %w", table, err)
	}
	defer rows.Close()

	var (
		fks   []ForeignKey
		index = map[string]int{}
	)
	for rows.Next() {
		var (
			id       int
			refTable string
			from     string
			to       sql.NullString
			onDelete string
		)
		if err := rows.Scan(&id, &refTable, &from, &to, &onDelete); err != nil {
			return nil, err
		}
		key := fmt.Sprint(id)
		fks = appendForeignKeyColumn(fks, index, key, ForeignKey{
			Name:     fmt.Sprintf("%s_fk%d", table, id),
			Table:    table,
			RefTable: refTable,
			OnDelete: strings.ToUpper(onDelete),
		}, from, to.String)
	}
	return fks, rows.Err()
}

type postgresIntrospector struct {
	conn *database.Connection
}

func (p *postgresIntrospector) tableNames(ctx context.Context) ([]string, error) {
	rows, err := p.conn.Query(ctx, p.conn.DB(), `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
		ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	return scanStrings(rows)
}

func (p *postgresIntrospector) columns(ctx context.Context, table string) ([]Column, []string, error) {
	rows, err := p.conn.Query(ctx, p.conn.DB(), `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
			AND tc.table_name = kcu.table_name
		WHERE tc.constraint_type = 'PRIMARY KEY'
			AND tc.table_schema = current_schema()
			AND tc.table_name = ?
		ORDER BY kcu.ordinal_position`, table)
	if err != nil {
		return nil, nil, fmt.Errorf("reading primary key of %s: %w", table, err)
	}
	pk, err := scanStrings(rows)
	if err != nil {
		return nil, nil, err
	}
	inPK := make(map[string]bool, len(pk))
	for _, name := range pk {
		inPK[name] = true
	}

	rows, err = p.conn.Query(ctx, p.conn.DB(), `
		SELECT column_name, data_type, is_nullable = 'YES'
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = ?
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, nil, fmt.Errorf("reading columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.Type, &c.Nullable); err != nil {
			return nil, nil, err
		}
		c.PrimaryKey = inPK[c.Name]
		cols = append(cols, c)
	}
	return cols, pk, rows.Err()
}

var pgDeleteActions = map[string]string{
	"a": "NO ACTION",
	"r": "RESTRICT",
	"c": "CASCADE",
	"n": "SET NULL",
	"d": "SET DEFAULT",
}

func (p *postgresIntrospector) foreignKeys(ctx context.Context, table string) ([]ForeignKey, error) {
	rows, err := p.conn.Query(ctx, p.conn.DB(), `
		SELECT c.conname, t.relname, a.attname, af.attname, c.confdeltype::text
		FROM pg_constraint c
		JOIN pg_class cl ON cl.oid = c.conrelid
		JOIN pg_namespace n ON n.oid = cl.relnamespace
		JOIN pg_class t ON t.oid = c.confrelid
		CROSS JOIN LATERAL unnest(c.conkey, c.confkey) WITH ORDINALITY AS k(attnum, refnum, ord)
		JOIN pg_attribute a ON a.attrelid = c.conrelid AND a.attnum = k.attnum
		JOIN pg_attribute af ON af.attrelid = c.confrelid AND af.attnum = k.refnum
		WHERE c.contype = 'f' AND n.nspname = current_schema() AND cl.relname = ?
		ORDER BY c.conname, k.ord`, table)
	if err != nil {
		return nil, fmt.Errorf("reading foreign keys of %s: %w", table, err)
	}
	defer rows.Close()

	var (
		fks   []ForeignKey
		index = map[string]int{}
	)
	for rows.Next() {
		var name, refTable, from, to, action string
		if err := rows.Scan(&name, &refTable, &from, &to, &action); err != nil {
			return nil, err
		}
		fks = appendForeignKeyColumn(fks, index, name, ForeignKey{
			Name:     name,
			Table:    table,
			RefTable: refTable,
			OnDelete: pgDeleteActions[action],
		}, from, to)
	}
	return fks, rows.Err()
}
