// Package registry owns the named connections ("engines") of the process
// and, per connection, the scoped sessions and the reflected mappings.
//
// It is the SessionSource of every orm.Type it binds: an operation on a
// type asks the registry for the session of (connection, scope), where the
// scope key travels in the context (see orm.WithScope).
//
// The registry is safe for concurrent use. The sessions it hands out are
// not: a scope is expected to be used by one goroutine at a time.
package registry

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"github.com/deppfellow/abaita/internal/database"
	"github.com/deppfellow/abaita/internal/errs"
	"github.com/deppfellow/abaita/internal/orm"
	"github.com/deppfellow/abaita/internal/schema"
	"github.com/rs/zerolog"
)

type entry struct {
	conn     *database.Connection
	sessions map[any]*orm.Session

	// catalog and mapping are filled by the first Reflect.
	catalog *schema.Catalog
	mapping *orm.Mapping
}

// Registry maps connection names to engines, sessions and mappings.
type Registry struct {
	mu      sync.Mutex
	logger  *zerolog.Logger
	opts    database.Options
	entries map[string]*entry
	def     string
}

// New creates an empty registry. opts apply to every connection opened by
// Register.
func New(logger *zerolog.Logger, opts database.Options) *Registry {
	return &Registry{
		logger:  logger,
		opts:    opts,
		entries: make(map[string]*entry),
	}
}

// Register opens a connection from a database URL and stores it under
// name. The first registered connection, or any registered with
// setDefault, becomes the default.
func (r *Registry) Register(ctx context.Context, name, url string, setDefault bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[name]; ok {
		return fmt.Errorf("%w: %s", errs.ErrDuplicateConnection, name)
	}
	conn, err := database.Open(ctx, name, url, r.opts, *r.logger)
	if err != nil {
		return err
	}
	r.add(name, conn, setDefault)
	return nil
}

// RegisterHandle stores an already opened *sql.DB under name. The registry
// does not close handles it did not open.
func (r *Registry) RegisterHandle(name string, db *sql.DB, dialect string, setDefault bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[name]; ok {
		return fmt.Errorf("%w: %s", errs.ErrDuplicateConnection, name)
	}
	conn, err := database.FromHandle(name, db, dialect, r.opts, *r.logger)
	if err != nil {
		return err
	}
	r.add(name, conn, setDefault)
	return nil
}

func (r *Registry) add(name string, conn *database.Connection, setDefault bool) {
	r.entries[name] = &entry{conn: conn, sessions: make(map[any]*orm.Session)}
	if r.def == "" || setDefault {
		r.def = name
	}
	r.logger.Info().
		Str("connection", name).
		Str("url", conn.URL()).
		Str("dialect", conn.Dialect().Name()).
		Bool("default", r.def == name).
		Msg("connection registered")
}

// entry resolves name, "" meaning the default connection. r.mu must be held.
func (r *Registry) entry(name string) (*entry, string, error) {
	if name == "" {
		if r.def == "" {
			return nil, "", errs.ErrNoDefaultConnection
		}
		name = r.def
	}
	e, ok := r.entries[name]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", errs.ErrUnknownConnection, name)
	}
	return e, name, nil
}

// Connection returns the named connection, or the default one for "".
func (r *Registry) Connection(name string) (*database.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, _, err := r.entry(name)
	if err != nil {
		return nil, err
	}
	return e.conn, nil
}

// SetDefault designates an already registered connection as the default.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[name]; !ok {
		return fmt.Errorf("%w: %s", errs.ErrUnknownConnection, name)
	}
	r.def = name
	return nil
}

// Default returns the name of the default connection, "" when none is
// registered.
func (r *Registry) Default() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.def
}

// Names returns the registered connection names in order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// GetSession returns the session of the connection for scope, creating it
// on first use. The same (connection, scope) pair yields the same session
// until Release. scope must be comparable.
func (r *Registry) GetSession(name string, scope any) (*orm.Session, error) {
	if err := orm.ValidScope(scope); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, resolved, err := r.entry(name)
	if err != nil {
		return nil, err
	}
	if s, ok := e.sessions[scope]; ok {
		return s, nil
	}
	s := orm.NewSession(e.conn, scope)
	e.sessions[scope] = s
	r.logger.Debug().
		Str("connection", resolved).
		Interface("scope", scope).
		Str("session", s.ID().String()).
		Msg("session created")
	return s, nil
}

// Session returns the session of the connection for the scope carried by
// ctx. It makes the registry an orm.SessionSource.
func (r *Registry) Session(ctx context.Context, name string) (*orm.Session, error) {
	return r.GetSession(name, orm.ScopeFrom(ctx))
}

// Release rolls back the session of the scope carried by ctx and forgets
// it. The next operation in that scope starts a fresh session.
func (r *Registry) Release(ctx context.Context, name string) error {
	scope := orm.ScopeFrom(ctx)
	if err := orm.ValidScope(scope); err != nil {
		return err
	}

	r.mu.Lock()
	e, _, err := r.entry(name)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	s, ok := e.sessions[scope]
	delete(e.sessions, scope)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return s.Close(ctx)
}

// Commit commits the current session of the connection. On failure the
// session is rolled back once and the original error is returned.
func (r *Registry) Commit(ctx context.Context, name string) error {
	s, err := r.Session(ctx, name)
	if err != nil {
		return err
	}
	return s.Commit(ctx)
}

// Flush writes the staged changes of the current session of the
// connection.
func (r *Registry) Flush(ctx context.Context, name string) error {
	s, err := r.Session(ctx, name)
	if err != nil {
		return err
	}
	return s.Flush(ctx)
}

// Rollback rolls back the current session of the connection.
func (r *Registry) Rollback(ctx context.Context, name string) error {
	s, err := r.Session(ctx, name)
	if err != nil {
		return err
	}
	return s.Rollback(ctx)
}

// Close releases every session and closes every connection the registry
// opened. The registry is empty afterwards.
func (r *Registry) Close() error {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.def = ""
	r.mu.Unlock()

	ctx := context.Background()
	var firstErr error
	for name, e := range entries {
		for _, s := range e.sessions {
			if err := s.Close(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if err := e.conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing connection %s: %w", name, err)
		}
	}
	return firstErr
}
