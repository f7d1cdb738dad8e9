package result_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/deppfellow/abaita/internal/orm"
	"github.com/deppfellow/abaita/internal/result"
	"github.com/deppfellow/abaita/internal/testing/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) map[string]*orm.Type {
	t.Helper()
	tdb := testdb.New(t, testdb.Fixture)
	tdb.MustExec(`INSERT INTO owner (id, name) VALUES (1, 'ada'), (2, 'bob')`)
	tdb.MustExec(`INSERT INTO pet (id, owner_id, name, status) VALUES (10, 1, 'rex', 'home'), (11, 2, 'kit', NULL)`)

	types, err := tdb.Registry("main").Reflect(tdb.Ctx(), "")
	require.NoError(t, err)
	return types
}

func TestFromQuery_SingleType(t *testing.T) {
	types := setup(t)
	ctx := context.Background()

	records, err := result.FromQuery(ctx, types["owner"].Query(ctx).OrderBy("id"))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, []string{"id", "name"}, records[0].Keys())
	name, ok := records[1].Get("name")
	assert.True(t, ok)
	assert.Equal(t, "bob", name)

	_, ok = records[0].Get("owner.name")
	assert.False(t, ok)
}

func TestFromQuery_JoinedRowsArePrefixed(t *testing.T) {
	types := setup(t)
	ctx := context.Background()

	q := types["pet"].Query(ctx).Join("owner_ref").OrderBy("pet.id")
	records, err := result.FromQuery(ctx, q)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, []string{
		"pet.id", "pet.owner_id", "pet.name", "pet.status",
		"owner.id", "owner.name",
	}, records[0].Keys())
	assert.Equal(t, map[string]any{
		"pet.id":       int64(11),
		"pet.owner_id": int64(2),
		"pet.name":     "kit",
		"pet.status":   nil,
		"owner.id":     int64(2),
		"owner.name":   "bob",
	}, records[1].Map())
}

func TestFromQuery_NoRows(t *testing.T) {
	types := setup(t)
	ctx := context.Background()

	records, err := result.FromQuery(ctx, types["owner"].Load(ctx, orm.Attrs{"name": "nobody"}))
	assert.NoError(t, err)
	assert.Nil(t, records)
}

func TestFromQuery_Error(t *testing.T) {
	types := setup(t)
	ctx := context.Background()

	_, err := result.FromQuery(ctx, types["owner"].Load(ctx, orm.Attrs{"nope": 1}))
	assert.Error(t, err)
}

func TestFromInstances(t *testing.T) {
	types := setup(t)
	ctx := context.Background()

	insts, err := types["pet"].Query(ctx).OrderBy("-id").All(ctx)
	require.NoError(t, err)

	records := result.FromInstances(insts)
	require.Len(t, records, 2)
	id, _ := records[0].Get("id")
	assert.Equal(t, int64(11), id)
	assert.Equal(t, 4, records[0].Len())

	assert.Nil(t, result.FromInstances(nil))
}

func TestRecord_MarshalJSONKeepsOrder(t *testing.T) {
	types := setup(t)
	ctx := context.Background()

	records, err := result.FromQuery(ctx, types["pet"].Load(ctx, orm.Attrs{"id": 10}))
	require.NoError(t, err)
	require.Len(t, records, 1)

	raw, err := json.Marshal(records)
	require.NoError(t, err)
	assert.Equal(t, `[{"id":10,"owner_id":1,"name":"rex","status":"home"}]`, string(raw))
}

func TestAdapt(t *testing.T) {
	types := setup(t)
	ctx := context.Background()

	byName := result.Adapt(func(ctx context.Context, name string) *orm.Query {
		return types["owner"].Load(ctx, orm.Attrs{"name": name})
	})

	records, err := byName(ctx, "ada")
	require.NoError(t, err)
	require.Len(t, records, 1)
	id, _ := records[0].Get("id")
	assert.Equal(t, int64(1), id)

	records, err = byName(ctx, "zed")
	require.NoError(t, err)
	assert.Nil(t, records)
}
