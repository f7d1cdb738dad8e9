// Package orm implements the active-record capability set over reflected
// tables: typed handles (Type) bound to a table descriptor, entity
// instances, composable queries and the session (unit of work) that stages
// and writes changes.
//
// Sessions are obtained through a SessionSource, normally the connection
// registry, keyed by connection name and by the scope carried in the
// context:
//
//	ctx = orm.WithScope(ctx, requestID)
//	pets := types["pet"]
//	inst, err := pets.SaveBy(ctx, orm.Attrs{"id": 1, "name": "rex"})
//	err = pets.Commit(ctx)
package orm

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/deppfellow/abaita/internal/errs"
	"github.com/deppfellow/abaita/internal/schema"
)

// Attrs maps column names to values.
type Attrs map[string]any

// DefaultScope is the scope key used when the context carries none.
const DefaultScope = "default"

type scopeCtxKey struct{}

// WithScope returns a context carrying the session scope key. Operations
// sharing a scope key and a connection share one session.
//
// The key must be comparable (strings, numbers, pointers, structs of
// those); see ValidScope.
func WithScope(ctx context.Context, key any) context.Context {
	return context.WithValue(ctx, scopeCtxKey{}, key)
}

// ScopeFrom returns the scope key carried by ctx, or DefaultScope.
func ScopeFrom(ctx context.Context) any {
	if key := ctx.Value(scopeCtxKey{}); key != nil {
		return key
	}
	return DefaultScope
}

// ValidScope reports errs.ErrInvalidScope for a scope key that cannot be
// used as a map key.
func ValidScope(key any) error {
	if key == nil || reflect.ValueOf(key).Comparable() {
		return nil
	}
	return fmt.Errorf("%w: %T", errs.ErrInvalidScope, key)
}

// SessionSource hands out the current session of a connection for the
// scope carried by ctx. An empty connection name selects the default one.
type SessionSource interface {
	Session(ctx context.Context, connection string) (*Session, error)
}

// Mapping is the set of types bound for one connection. It resolves
// relationship targets by table name.
type Mapping struct {
	connection string
	types      map[string]*Type
}

// NewMapping binds every table of the catalog to source under connection.
func NewMapping(source SessionSource, connection string, cat *schema.Catalog) *Mapping {
	m := &Mapping{
		connection: connection,
		types:      make(map[string]*Type),
	}
	for _, table := range cat.All() {
		m.types[table.Name] = Bind(source, connection, table, m)
	}
	return m
}

// Connection returns the connection name the types are bound to.
func (m *Mapping) Connection() string {
	return m.connection
}

// Lookup returns the type mapped for table.
func (m *Mapping) Lookup(table string) (*Type, bool) {
	t, ok := m.types[table]
	return t, ok
}

// Names returns the mapped table names in order.
func (m *Mapping) Names() []string {
	names := make([]string, 0, len(m.types))
	for n := range m.types {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// TypeResolver finds the type mapped for a table name.
type TypeResolver interface {
	Lookup(table string) (*Type, bool)
}
