package orm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/deppfellow/abaita/internal/database"
	"github.com/deppfellow/abaita/internal/errs"
	"github.com/deppfellow/abaita/internal/schema"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type opKind int

const (
	opInsert opKind = iota
	opUpdate
	opDelete
)

func (k opKind) String() string {
	switch k {
	case opInsert:
		return "insert"
	case opUpdate:
		return "update"
	default:
		return "delete"
	}
}

type op struct {
	kind opKind
	inst *Instance
}

type identityKey struct {
	table string
	key   string
}

// Session is a unit of work bound to one connection and one scope key.
//
// It stages inserts, updates and deletes in issue order and writes them on
// Flush or Commit inside a transaction it opens lazily. Instances read
// through the session are kept in an identity map keyed by primary key, so
// the same row is always the same *Instance.
//
// A Session is not safe for concurrent use.
type Session struct {
	id    uuid.UUID
	scope any
	conn  *database.Connection
	log   zerolog.Logger

	tx         *sql.Tx
	identity   map[identityKey]*Instance
	ops        []op
	deleted    []*Instance
	savepoints int

	// inserted holds the instances inserted by the open transaction.
	inserted []*Instance
}

// NewSession creates an empty session on conn for scope.
func NewSession(conn *database.Connection, scope any) *Session {
	id := uuid.New()
	return &Session{
		id:    id,
		scope: scope,
		conn:  conn,
		log: conn.Logger().With().
			Str("session", id.String()).
			Interface("scope", scope).
			Logger(),
		identity: make(map[identityKey]*Instance),
	}
}

// ID identifies the session in logs.
func (s *Session) ID() uuid.UUID { return s.id }

// Scope returns the scope key the session was created for.
func (s *Session) Scope() any { return s.scope }

// Connection returns the connection the session writes to.
func (s *Session) Connection() *database.Connection { return s.conn }

// Pending returns the number of staged operations.
func (s *Session) Pending() int { return len(s.ops) }

// InTransaction reports whether a flush has opened a transaction that is
// not yet committed or rolled back.
func (s *Session) InTransaction() bool { return s.tx != nil }

// Contains reports whether inst belongs to the session.
func (s *Session) Contains(inst *Instance) bool {
	return inst != nil && inst.session == s
}

func (s *Session) querier() database.Querier {
	if s.tx != nil {
		return s.tx
	}
	return s.conn.DB()
}

func (s *Session) begin(ctx context.Context) error {
	if s.tx != nil {
		return nil
	}
	// The transaction outlives the call that opens it.
	tx, err := s.conn.Begin(context.WithoutCancel(ctx))
	if err != nil {
		return err
	}
	s.tx = tx
	s.log.Debug().Msg("transaction started")
	return nil
}

func idKey(t *Type, key []any) identityKey {
	return identityKey{table: t.Name(), key: encodeKey(key)}
}

func (s *Session) lookup(t *Type, key []any) *Instance {
	return s.identity[idKey(t, key)]
}

func (s *Session) register(inst *Instance) {
	s.identity[idKey(inst.typ, inst.Key())] = inst
}

func (s *Session) unregister(inst *Instance, key []any) {
	k := idKey(inst.typ, key)
	if s.identity[k] == inst {
		delete(s.identity, k)
	}
}

// materialize returns the session's instance for a row read from the
// store, refreshing it unless it carries staged changes.
func (s *Session) materialize(t *Type, values map[string]any) *Instance {
	probe := &Instance{typ: t, values: values}
	if inst := s.lookup(t, probe.Key()); inst != nil {
		if inst.state == Persistent && !inst.queued {
			inst.values = values
			inst.snapshot()
		}
		return inst
	}

	inst := &Instance{typ: t, values: values, state: Persistent, session: s}
	inst.snapshot()
	s.register(inst)
	return inst
}

// touch stages an update of a persistent instance once per flush.
func (s *Session) touch(inst *Instance) {
	if inst.queued {
		return
	}
	inst.queued = true
	s.ops = append(s.ops, op{kind: opUpdate, inst: inst})
}

func (s *Session) dropOps(inst *Instance) {
	kept := s.ops[:0]
	for _, o := range s.ops {
		if o.inst != inst {
			kept = append(kept, o)
		}
	}
	s.ops = kept
}

// Add stages inst. A transient instance becomes pending; a detached one is
// re-attached as persistent. Adding an instance the session already holds
// does nothing.
func (s *Session) Add(inst *Instance) error {
	if inst.session == s {
		return nil
	}
	if inst.session != nil {
		return errs.ErrDetached
	}

	if inst.state == Transient || !completeKey(inst.storedKey()) {
		inst.state = Pending
		inst.session = s
		s.ops = append(s.ops, op{kind: opInsert, inst: inst})
		return nil
	}

	if existing := s.lookup(inst.typ, inst.storedKey()); existing != nil && existing != inst {
		return fmt.Errorf("%w: another %s instance with key %v is already in the session",
			errs.ErrDetached, inst.Table(), inst.storedKey())
	}
	inst.state = Persistent
	inst.session = s
	s.identity[idKey(inst.typ, inst.storedKey())] = inst
	s.touch(inst)
	return nil
}

// Get returns the instance of t with the given primary key, from the
// identity map when present, otherwise from the store. A missing row is
// nil, nil.
func (s *Session) Get(ctx context.Context, t *Type, key []any) (*Instance, error) {
	if len(key) != len(t.table.PrimaryKey) || !completeKey(key) {
		return nil, fmt.Errorf("%w: %s expects %d key values, got %v",
			errs.ErrIncompleteKey, t.Name(), len(t.table.PrimaryKey), key)
	}

	if inst := s.lookup(t, key); inst != nil {
		if inst.state == Deleted {
			return nil, nil
		}
		return inst, nil
	}

	q := newQuery(s, nil, t)
	for n, name := range t.table.PrimaryKey {
		q.eq(t, name, key[n])
	}
	return q.First(ctx)
}

// Merge copies the state of src into the session and returns the
// session's instance for it.
//
// An instance with the same key already in the identity map receives the
// values. Otherwise, when load is true the store is consulted; when load is
// false a copy is attached as persistent without any SQL. Without a match a
// copy is staged for insertion.
func (s *Session) Merge(ctx context.Context, src *Instance, load bool) (*Instance, error) {
	if src.session == s {
		return src, nil
	}

	t := src.typ
	key := src.Key()
	if !completeKey(key) {
		inst := src.clone()
		return inst, s.Add(inst)
	}

	existing := s.lookup(t, key)
	if existing == nil && load {
		var err error
		if existing, err = s.Get(ctx, t, key); err != nil {
			return nil, err
		}
	}
	if existing != nil {
		for name, v := range src.values {
			if err := existing.Set(name, v); err != nil {
				return nil, err
			}
		}
		return existing, nil
	}

	inst := src.clone()
	if load {
		return inst, s.Add(inst)
	}
	inst.state = Persistent
	inst.session = s
	inst.snapshot()
	s.register(inst)
	return inst, nil
}

// Delete stages inst for deletion. Loaded children reached through
// delete-orphan relationships are staged first; children not loaded are
// left to the store's ON DELETE action. Deleting a pending instance just
// un-stages it.
func (s *Session) Delete(inst *Instance) error {
	if inst.session != nil && inst.session != s {
		return errs.ErrDetached
	}

	if inst.session == s {
		switch inst.state {
		case Pending:
			s.dropOps(inst)
			inst.session = nil
			inst.state = Transient
			return nil
		case Deleted:
			return nil
		}
	} else {
		key := inst.storedKey()
		if !completeKey(key) {
			return fmt.Errorf("%w: cannot delete %s without a primary key", errs.ErrIncompleteKey, inst.Table())
		}
		if existing := s.lookup(inst.typ, key); existing != nil {
			return s.Delete(existing)
		}
		inst.state = Persistent
		inst.session = s
		if inst.original == nil {
			inst.snapshot()
		}
		s.register(inst)
	}

	if err := s.cascadeDelete(inst); err != nil {
		return err
	}

	s.dropOps(inst)
	inst.state = Deleted
	inst.queued = true
	s.ops = append(s.ops, op{kind: opDelete, inst: inst})
	return nil
}

func (s *Session) cascadeDelete(parent *Instance) error {
	for _, rel := range parent.typ.table.Relationships {
		if rel.Kind != schema.Collection || rel.Cascade != schema.CascadeDeleteOrphan {
			continue
		}

		parentValues := parent.original
		if parentValues == nil {
			parentValues = parent.values
		}

		var children []*Instance
		for k, inst := range s.identity {
			if k.table != rel.Target || inst.state != Persistent {
				continue
			}
			if referencesParent(inst, rel.RemoteColumns, parentValues, rel.LocalColumns) {
				children = append(children, inst)
			}
		}
		sort.Slice(children, func(i, j int) bool {
			return encodeKey(children[i].Key()) < encodeKey(children[j].Key())
		})

		for _, child := range children {
			if err := s.Delete(child); err != nil {
				return err
			}
		}
	}
	return nil
}

func referencesParent(child *Instance, remote []string, parent map[string]any, local []string) bool {
	for n := range remote {
		v := child.values[remote[n]]
		if v == nil || !sameValue(v, parent[local[n]]) {
			return false
		}
	}
	return len(remote) > 0
}

// Flush writes the staged operations in issue order inside the session's
// transaction, opening it if needed. The transaction stays open.
func (s *Session) Flush(ctx context.Context) error {
	return s.flush(ctx, "flush")
}

func (s *Session) flush(ctx context.Context, step string) error {
	if len(s.ops) == 0 {
		return nil
	}
	if err := s.begin(ctx); err != nil {
		return errs.NewPersistenceError(step, "", err)
	}

	s.log.Debug().Int("operations", len(s.ops)).Str("step", step).Msg("flushing session")
	for len(s.ops) > 0 {
		o := s.ops[0]
		var err error
		switch o.kind {
		case opInsert:
			err = s.execInsert(ctx, o.inst)
		case opUpdate:
			err = s.execUpdate(ctx, o.inst)
		case opDelete:
			err = s.execDelete(ctx, o.inst)
		}
		if err != nil {
			s.log.Error().Err(err).Str("table", o.inst.Table()).Str("operation", o.kind.String()).
				Msg("flush failed")
			return errs.NewPersistenceError(step, o.inst.Table(), err)
		}
		s.ops = s.ops[1:]
	}
	return nil
}

// Commit flushes and commits the session's transaction. On failure the
// session is rolled back once, any rollback error is discarded and the
// original failure is returned.
func (s *Session) Commit(ctx context.Context) error {
	if err := s.flush(ctx, "commit"); err != nil {
		_ = s.Rollback(ctx)
		return err
	}

	if s.tx != nil {
		err := s.tx.Commit()
		s.tx = nil
		if err != nil {
			_ = s.Rollback(ctx)
			return errs.NewPersistenceError("commit", "", err)
		}
		s.log.Debug().Msg("transaction committed")
	}

	for _, inst := range s.deleted {
		inst.detach()
	}
	s.deleted = nil
	s.inserted = nil
	return nil
}

// Rollback discards the open transaction and every staged operation. All
// instances of the session are detached and the identity map is emptied.
// Instances inserted by the discarded transaction become transient again.
func (s *Session) Rollback(ctx context.Context) error {
	var err error
	if s.tx != nil {
		err = s.tx.Rollback()
		s.tx = nil
		s.log.Debug().Msg("transaction rolled back")
	}
	s.reset()

	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return errs.NewPersistenceError("rollback", "", err)
	}
	return nil
}

// Close rolls back and lets go of every instance. The session stays
// usable.
func (s *Session) Close(ctx context.Context) error {
	return s.Rollback(ctx)
}

func (s *Session) reset() {
	for _, o := range s.ops {
		if o.inst.state == Pending {
			o.inst.session = nil
			o.inst.state = Transient
			o.inst.queued = false
		}
	}
	for _, inst := range s.identity {
		inst.detach()
	}
	for _, inst := range s.deleted {
		inst.detach()
	}
	// Their rows are gone with the transaction.
	for _, inst := range s.inserted {
		inst.unflush()
	}
	s.ops = nil
	s.deleted = nil
	s.inserted = nil
	s.savepoints = 0
	s.identity = make(map[identityKey]*Instance)
}
