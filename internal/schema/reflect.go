package schema

import (
	"context"
	"fmt"
	"sort"

	"github.com/deppfellow/abaita/internal/database"
	"github.com/deppfellow/abaita/internal/errs"
	"github.com/rs/zerolog"
)

// Catalog is the outcome of one reflection pass.
type Catalog struct {
	// requested holds the tables asked for, in name order.
	requested []*Table

	// all holds every mapped table reflected, including the ones pulled in
	// only to resolve foreign keys.
	all map[string]*Table
}

// Tables returns the requested mapped tables sorted by name.
func (c *Catalog) Tables() []*Table {
	return c.requested
}

// Lookup returns any mapped table of the pass, requested or not.
func (c *Catalog) Lookup(name string) (*Table, bool) {
	t, ok := c.all[name]
	return t, ok
}

// All returns every mapped table of the pass sorted by name.
func (c *Catalog) All() []*Table {
	out := make([]*Table, 0, len(c.all))
	for _, t := range c.all {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Reflect introspects the backend behind conn and builds one descriptor
// per table. With only, just those tables are returned; the tables they
// reference are reflected too so relationships resolve. An unknown name in
// only fails with errs.ErrUnknownTable.
//
// Tables without a primary key cannot be mapped and are skipped.
func Reflect(ctx context.Context, conn *database.Connection, only ...string) (*Catalog, error) {
	log := conn.Logger().With().Str("component", "schema").Logger()

	insp, err := newIntrospector(conn)
	if err != nil {
		return nil, err
	}

	names, err := insp.tableNames(ctx)
	if err != nil {
		return nil, err
	}
	available := make(map[string]bool, len(names))
	for _, n := range names {
		available[n] = true
	}

	requested := names
	if len(only) > 0 {
		requested = dedupe(only)
		for _, n := range requested {
			if !available[n] {
				return nil, fmt.Errorf("%w: %s", errs.ErrUnknownTable, n)
			}
		}
	}

	// Walk foreign keys from the requested tables until closed.
	raw := map[string]*Table{}
	queue := append([]string(nil), requested...)
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if _, done := raw[name]; done {
			continue
		}

		cols, pk, err := insp.columns(ctx, name)
		if err != nil {
			return nil, err
		}
		fks, err := insp.foreignKeys(ctx, name)
		if err != nil {
			return nil, err
		}
		raw[name] = &Table{Name: name, Columns: cols, PrimaryKey: pk, ForeignKeys: fks}

		for _, fk := range fks {
			if available[fk.RefTable] {
				queue = append(queue, fk.RefTable)
			}
		}
	}

	mapped := map[string]*Table{}
	for name, t := range raw {
		if len(t.PrimaryKey) == 0 {
			log.Warn().Str("table", name).Msg("table has no primary key, not mapped")
			continue
		}
		mapped[name] = t
	}

	resolveImplicitReferences(mapped)
	buildRelationships(mapped, log)

	cat := &Catalog{all: mapped}
	sorted := append([]string(nil), requested...)
	sort.Strings(sorted)
	for _, n := range sorted {
		if t, ok := mapped[n]; ok {
			cat.requested = append(cat.requested, t)
		}
	}

	log.Debug().
		Int("tables", len(cat.requested)).
		Int("reflected", len(mapped)).
		Msg("schema reflected")
	return cat, nil
}

// resolveImplicitReferences fills referenced columns that the backend left
// blank (SQLite "REFERENCES parent" without a column list) with the
// referenced table's primary key.
func resolveImplicitReferences(tables map[string]*Table) {
	for _, t := range tables {
		for i := range t.ForeignKeys {
			fk := &t.ForeignKeys[i]
			ref, ok := tables[fk.RefTable]
			if !ok {
				continue
			}
			for j, col := range fk.RefColumns {
				if col == "" && j < len(ref.PrimaryKey) {
					fk.RefColumns[j] = ref.PrimaryKey[j]
				}
			}
		}
	}
}

func buildRelationships(tables map[string]*Table, log zerolog.Logger) {
	names := make([]string, 0, len(tables))
	for n := range tables {
		names = append(names, n)
	}
	sort.Strings(names)

	add := func(owner *Table, rel Relationship) {
		if owner.HasColumn(rel.Name) {
			log.Warn().Str("table", owner.Name).Str("relationship", rel.Name).
				Msg("relationship name collides with a column, skipped")
			return
		}
		if _, taken := owner.Relationship(rel.Name); taken {
			log.Warn().Str("table", owner.Name).Str("relationship", rel.Name).
				Msg("relationship name already in use, skipped")
			return
		}
		owner.Relationships = append(owner.Relationships, rel)
	}

	for _, name := range names {
		t := tables[name]
		fks := append([]ForeignKey(nil), t.ForeignKeys...)
		sort.SliceStable(fks, func(i, j int) bool { return fks[i].Name < fks[j].Name })

		for _, fk := range fks {
			target, ok := tables[fk.RefTable]
			if !ok {
				continue
			}
			add(t, Relationship{
				Name:          ScalarName(target.TypeName()),
				Kind:          Scalar,
				Target:        target.Name,
				Cascade:       CascadeNone,
				LocalColumns:  append([]string(nil), fk.Columns...),
				RemoteColumns: append([]string(nil), fk.RefColumns...),
				OnDelete:      fk.OnDelete,
			})
			add(target, Relationship{
				Name:           CollectionName(t.TypeName()),
				Kind:           Collection,
				Target:         t.Name,
				Cascade:        CascadeDeleteOrphan,
				PassiveDeletes: true,
				LocalColumns:   append([]string(nil), fk.RefColumns...),
				RemoteColumns:  append([]string(nil), fk.Columns...),
				OnDelete:       fk.OnDelete,
			})
		}
	}

	for _, t := range tables {
		sort.SliceStable(t.Relationships, func(i, j int) bool {
			return t.Relationships[i].Name < t.Relationships[j].Name
		})
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
