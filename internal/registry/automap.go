package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/deppfellow/abaita/internal/errs"
	"github.com/deppfellow/abaita/internal/orm"
	"github.com/deppfellow/abaita/internal/schema"
)

// Reflect returns the mapped types of the connection, keyed by table name.
// With only, just those types are returned; an unknown or unmappable name
// fails with errs.ErrUnknownTable.
//
// The whole schema is reflected once per connection and cached, so
// repeated calls hand out the same *orm.Type values. Introspection runs
// without holding the registry lock; when two calls race, the first
// mapping installed wins.
func (r *Registry) Reflect(ctx context.Context, name string, only ...string) (map[string]*orm.Type, error) {
	r.mu.Lock()
	e, resolved, err := r.entry(name)
	var mapping *orm.Mapping
	if err == nil {
		mapping = e.mapping
	}
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if mapping == nil {
		if mapping, err = r.install(ctx, e, resolved); err != nil {
			return nil, err
		}
	}

	names := only
	if len(names) == 0 {
		names = mapping.Names()
	}
	types := make(map[string]*orm.Type, len(names))
	for _, n := range names {
		t, ok := mapping.Lookup(n)
		if !ok {
			return nil, fmt.Errorf("%w: %s", errs.ErrUnknownTable, n)
		}
		types[n] = t
	}
	return types, nil
}

// install reflects the connection of e and caches the mapping, unless a
// concurrent call cached one first.
func (r *Registry) install(ctx context.Context, e *entry, resolved string) (*orm.Mapping, error) {
	cat, err := schema.Reflect(ctx, e.conn)
	if err != nil {
		return nil, fmt.Errorf("reflecting %s: %w", resolved, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries[resolved] != e {
		return nil, fmt.Errorf("%w: %s", errs.ErrUnknownConnection, resolved)
	}
	if e.mapping != nil {
		return e.mapping, nil
	}
	e.catalog = cat
	e.mapping = orm.NewMapping(r, resolved, cat)
	r.logger.Info().
		Str("connection", resolved).
		Strs("tables", e.mapping.Names()).
		Msg("schema mapped")
	return e.mapping, nil
}

// Catalog returns the cached reflection of the connection, reflecting it
// first if needed.
func (r *Registry) Catalog(ctx context.Context, name string) (*schema.Catalog, error) {
	if _, err := r.Reflect(ctx, name); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	e, _, err := r.entry(name)
	if err != nil {
		return nil, err
	}
	return e.catalog, nil
}

// Automap registers url under name unless a connection of that name
// exists, then reflects it.
func (r *Registry) Automap(ctx context.Context, name, url string, only ...string) (map[string]*orm.Type, error) {
	r.mu.Lock()
	_, exists := r.entries[name]
	r.mu.Unlock()

	if !exists {
		err := r.Register(ctx, name, url, false)
		if err != nil && !errors.Is(err, errs.ErrDuplicateConnection) {
			return nil, err
		}
	}
	return r.Reflect(ctx, name, only...)
}
