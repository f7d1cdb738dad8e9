package schema_test

import (
	"testing"

	"github.com/deppfellow/abaita/internal/errs"
	"github.com/deppfellow/abaita/internal/schema"
	"github.com/deppfellow/abaita/internal/testing/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReflect_AllTables(t *testing.T) {
	tdb := testdb.New(t, testdb.Fixture)

	cat, err := schema.Reflect(tdb.Ctx(), tdb.Conn)
	require.NoError(t, err)

	var names []string
	for _, tbl := range cat.Tables() {
		names = append(names, tbl.Name)
	}
	// audit_log has no primary key and is not mapped.
	assert.Equal(t, []string{"abaita", "item", "owner", "pet", "ticket"}, names)

	_, ok := cat.Lookup("audit_log")
	assert.False(t, ok)
}

func TestReflect_Columns(t *testing.T) {
	tdb := testdb.New(t, testdb.Fixture)

	cat, err := schema.Reflect(tdb.Ctx(), tdb.Conn, "abaita")
	require.NoError(t, err)
	require.Len(t, cat.Tables(), 1)

	abaita := cat.Tables()[0]
	assert.Equal(t, "abaita", abaita.TypeName())
	assert.Equal(t, []string{"date", "time", "badge"}, abaita.PrimaryKey)
	assert.Equal(t, []string{"date", "time", "badge", "uscita", "raw"}, abaita.ColumnNames())

	raw, ok := abaita.Column("raw")
	require.True(t, ok)
	assert.True(t, raw.Nullable)
	assert.False(t, raw.PrimaryKey)
	assert.Equal(t, "text", raw.Type)

	badge, ok := abaita.Column("badge")
	require.True(t, ok)
	assert.True(t, badge.PrimaryKey)
	assert.False(t, badge.Nullable)
}

func TestReflect_Relationships(t *testing.T) {
	tdb := testdb.New(t, testdb.Fixture)

	cat, err := schema.Reflect(tdb.Ctx(), tdb.Conn)
	require.NoError(t, err)

	pet, ok := cat.Lookup("pet")
	require.True(t, ok)
	ref, ok := pet.Relationship("owner_ref")
	require.True(t, ok)
	assert.Equal(t, schema.Scalar, ref.Kind)
	assert.Equal(t, "owner", ref.Target)
	assert.Equal(t, schema.CascadeNone, ref.Cascade)
	assert.Equal(t, []string{"owner_id"}, ref.LocalColumns)
	assert.Equal(t, []string{"id"}, ref.RemoteColumns)
	assert.Equal(t, "CASCADE", ref.OnDelete)

	owner, ok := cat.Lookup("owner")
	require.True(t, ok)
	col, ok := owner.Relationship("pet_col")
	require.True(t, ok)
	assert.Equal(t, schema.Collection, col.Kind)
	assert.Equal(t, "pet", col.Target)
	assert.Equal(t, schema.CascadeDeleteOrphan, col.Cascade)
	assert.True(t, col.PassiveDeletes)
	assert.Equal(t, []string{"id"}, col.LocalColumns)
	assert.Equal(t, []string{"owner_id"}, col.RemoteColumns)
}

func TestReflect_OnlyPullsReferencedTables(t *testing.T) {
	tdb := testdb.New(t, testdb.Fixture)

	cat, err := schema.Reflect(tdb.Ctx(), tdb.Conn, "pet")
	require.NoError(t, err)

	require.Len(t, cat.Tables(), 1)
	assert.Equal(t, "pet", cat.Tables()[0].Name)

	owner, ok := cat.Lookup("owner")
	require.True(t, ok, "referenced table is reflected")
	_, ok = owner.Relationship("pet_col")
	assert.True(t, ok)

	_, ok = cat.Lookup("ticket")
	assert.False(t, ok)
}

func TestReflect_Idempotent(t *testing.T) {
	tdb := testdb.New(t, testdb.Fixture)

	first, err := schema.Reflect(tdb.Ctx(), tdb.Conn, "pet", "owner")
	require.NoError(t, err)
	second, err := schema.Reflect(tdb.Ctx(), tdb.Conn, "owner", "pet")
	require.NoError(t, err)

	assert.Equal(t, first.Tables(), second.Tables())
	assert.Equal(t, first.All(), second.All())
}

func TestReflect_UnknownTable(t *testing.T) {
	tdb := testdb.New(t, testdb.Fixture)

	_, err := schema.Reflect(tdb.Ctx(), tdb.Conn, "owner", "missing")
	assert.ErrorIs(t, err, errs.ErrUnknownTable)
	assert.ErrorContains(t, err, "missing")
}

func TestReflect_NameCollisionSkipped(t *testing.T) {
	tdb := testdb.New(t, `
		CREATE TABLE team (id INTEGER PRIMARY KEY);
		CREATE TABLE player (
			id        INTEGER PRIMARY KEY,
			team_id   INTEGER REFERENCES team(id),
			team_ref  TEXT,
			backup_id INTEGER REFERENCES team
		);
	`)

	cat, err := schema.Reflect(tdb.Ctx(), tdb.Conn)
	require.NoError(t, err)

	player, ok := cat.Lookup("player")
	require.True(t, ok)
	// "team_ref" is already a column.
	assert.Empty(t, player.Relationships)

	team, ok := cat.Lookup("team")
	require.True(t, ok)
	// Two foreign keys from player: the second collection name is taken.
	require.Len(t, team.Relationships, 1)
	assert.Equal(t, "player_col", team.Relationships[0].Name)
	assert.Len(t, team.Relationships[0].RemoteColumns, 1)
}

func TestReflect_ImplicitReferencedKey(t *testing.T) {
	tdb := testdb.New(t, `
		CREATE TABLE parent (code TEXT PRIMARY KEY);
		CREATE TABLE child (id INTEGER PRIMARY KEY, parent_code TEXT REFERENCES parent);
	`)

	cat, err := schema.Reflect(tdb.Ctx(), tdb.Conn)
	require.NoError(t, err)

	child, _ := cat.Lookup("child")
	ref, ok := child.Relationship("parent_ref")
	require.True(t, ok)
	assert.Equal(t, []string{"code"}, ref.RemoteColumns)
}

func TestReflect_MixedCaseTypeName(t *testing.T) {
	tdb := testdb.New(t, `
		CREATE TABLE "Owner" (id INTEGER PRIMARY KEY);
		CREATE TABLE "Pet" (id INTEGER PRIMARY KEY, owner_id INTEGER REFERENCES "Owner"(id));
	`)

	cat, err := schema.Reflect(tdb.Ctx(), tdb.Conn)
	require.NoError(t, err)

	pet, ok := cat.Lookup("Pet")
	require.True(t, ok)
	assert.Equal(t, "Pet", pet.TypeName())
	_, ok = pet.Relationship("owner_ref")
	assert.True(t, ok)

	owner, _ := cat.Lookup("Owner")
	_, ok = owner.Relationship("pet_col")
	assert.True(t, ok)
}

func TestTableTree(t *testing.T) {
	tdb := testdb.New(t, testdb.Fixture)

	cat, err := schema.Reflect(tdb.Ctx(), tdb.Conn, "owner")
	require.NoError(t, err)

	owner, _ := cat.Lookup("owner")
	// Reflecting only "owner" does not pull "pet" in.
	want := "TABLE: owner\n" +
		"├─ id: integer pk\n" +
		"└─ name: text\n" +
		"RELATIONSHIPS: owner\n"
	assert.Equal(t, want, owner.Tree())

	cat, err = schema.Reflect(tdb.Ctx(), tdb.Conn)
	require.NoError(t, err)
	owner, _ = cat.Lookup("owner")
	assert.Contains(t, owner.Tree(), "└─ pet_col -> pet (collection, delete-orphan, passive)\n")
}

func TestColumnBinary(t *testing.T) {
	assert.True(t, schema.Column{Type: "blob"}.Binary())
	assert.True(t, schema.Column{Type: "bytea"}.Binary())
	assert.False(t, schema.Column{Type: "text"}.Binary())
}
