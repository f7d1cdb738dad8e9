package testdb

import (
	"github.com/deppfellow/abaita/internal/database"
	"github.com/deppfellow/abaita/internal/registry"
	"github.com/rs/zerolog"
)

// Registry returns a fresh registry with the database registered under
// name as the default connection. It is closed when the test ends.
func (tdb *TestDB) Registry(name string) *registry.Registry {
	tdb.t.Helper()

	logger := zerolog.Nop()
	reg := registry.New(&logger, database.Options{})
	if err := reg.Register(tdb.Ctx(), name, tdb.URL, true); err != nil {
		tdb.t.Fatalf("testdb: failed to register %s: %v", name, err)
	}
	tdb.t.Cleanup(func() { reg.Close() })
	return reg
}
