package orm

import (
	"context"
	"fmt"

	"github.com/deppfellow/abaita/internal/errs"
	"github.com/deppfellow/abaita/internal/schema"
)

// Type is a mapped table with the active-record operations bound to it.
// Every operation acquires the current session of the type's connection
// for the scope carried by ctx.
type Type struct {
	table      *schema.Table
	connection string
	source     SessionSource
	resolver   TypeResolver
}

// Bind attaches the active-record operations to a reflected table.
// resolver finds relationship targets; it may be nil for a type without
// relationships.
func Bind(source SessionSource, connection string, table *schema.Table, resolver TypeResolver) *Type {
	return &Type{
		table:      table,
		connection: connection,
		source:     source,
		resolver:   resolver,
	}
}

// Name returns the type name, which is the table name.
func (t *Type) Name() string { return t.table.TypeName() }

// Connection returns the name of the connection the type is bound to.
func (t *Type) Connection() string { return t.connection }

// Inspect returns the column and relationship descriptors of the type.
func (t *Type) Inspect() *schema.Table { return t.table }

func (t *Type) session(ctx context.Context) (*Session, error) {
	return t.source.Session(ctx, t.connection)
}

func (t *Type) related(rel schema.Relationship) (*Type, error) {
	if t.resolver != nil {
		if target, ok := t.resolver.Lookup(rel.Target); ok {
			return target, nil
		}
	}
	return nil, fmt.Errorf("%w: %s.%s targets unmapped table %s",
		errs.ErrUnknownRelationship, t.Name(), rel.Name, rel.Target)
}

// New builds a transient instance. Unknown attributes are rejected.
func (t *Type) New(attrs Attrs) (*Instance, error) {
	return newInstance(t, attrs)
}

// Query starts a query over t and, for joins, the extra types.
func (t *Type) Query(ctx context.Context, extra ...*Type) *Query {
	s, err := t.session(ctx)
	types := append([]*Type{t}, extra...)
	return newQuery(s, err, types...)
}

// Load queries the rows matching every filter exactly.
func (t *Type) Load(ctx context.Context, filters Attrs) *Query {
	return t.Query(ctx).FilterBy(filters)
}

// LoadAnd queries the rows whose columns are all within the given value
// sets. A scalar value is a set of one.
func (t *Type) LoadAnd(ctx context.Context, filters Attrs) *Query {
	return t.Query(ctx).Match(filters, false)
}

// LoadOr queries the rows where at least one column is within its value
// set.
func (t *Type) LoadOr(ctx context.Context, filters Attrs) *Query {
	return t.Query(ctx).Match(filters, true)
}

// LoadByKey returns the instance with the given primary key. key is the
// value itself for a single-column key, a slice in key order or an Attrs
// by column for composite keys. nil and empty keys return nil, nil, as
// does a key matching no row.
func (t *Type) LoadByKey(ctx context.Context, key any) (*Instance, error) {
	if emptyKey(key) {
		return nil, nil
	}
	values, err := t.keyValues(key)
	if err != nil {
		return nil, err
	}
	s, err := t.session(ctx)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, t, values)
}

func (t *Type) keyValues(key any) ([]any, error) {
	pk := t.table.PrimaryKey

	var values []any
	switch k := key.(type) {
	case Attrs:
		values = attrsKey(pk, k)
	case map[string]any:
		values = attrsKey(pk, k)
	default:
		if items, ok := sequence(key); ok {
			values = append([]any(nil), items...)
		} else {
			values = []any{key}
		}
	}

	if len(values) != len(pk) {
		return nil, fmt.Errorf("%w: %s expects %d key values, got %d",
			errs.ErrIncompleteKey, t.Name(), len(pk), len(values))
	}
	for n, name := range pk {
		col, _ := t.table.Column(name)
		values[n] = normalize(col, values[n])
	}
	return values, nil
}

func attrsKey(pk []string, attrs map[string]any) []any {
	values := make([]any, 0, len(pk))
	for _, name := range pk {
		if v, ok := attrs[name]; ok {
			values = append(values, v)
		}
	}
	return values
}

// First returns the first row matching the filters, or nil.
func (t *Type) First(ctx context.Context, filters Attrs) (*Instance, error) {
	return t.Load(ctx, filters).First(ctx)
}

// Count returns the number of rows matching the filters.
func (t *Type) Count(ctx context.Context, filters Attrs) (int64, error) {
	return t.Load(ctx, filters).Count(ctx)
}

func (t *Type) own(inst *Instance) error {
	if inst == nil || inst.typ != t {
		return fmt.Errorf("%w: %T is not a %s instance", errs.ErrUnsupportedItemType, inst, t.Name())
	}
	return nil
}

// Save stages inst in the current session. Saving an instance the session
// already holds does nothing.
func (t *Type) Save(ctx context.Context, inst *Instance) error {
	if err := t.own(inst); err != nil {
		return err
	}
	s, err := t.session(ctx)
	if err != nil {
		return err
	}
	return s.Add(inst)
}

// SaveBy builds an instance from attrs and stages it.
func (t *Type) SaveBy(ctx context.Context, attrs Attrs) (*Instance, error) {
	inst, err := t.New(attrs)
	if err != nil {
		return nil, err
	}
	return inst, t.Save(ctx, inst)
}

// items converts SaveAll/MergeAll input into instances. Instances are kept
// as is, attribute maps become new transient instances.
func (t *Type) items(items []any) ([]*Instance, error) {
	out := make([]*Instance, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case Attrs:
			inst, err := t.New(v)
			if err != nil {
				return nil, err
			}
			out = append(out, inst)
		case map[string]any:
			inst, err := t.New(v)
			if err != nil {
				return nil, err
			}
			out = append(out, inst)
		case *Instance:
			if err := t.own(v); err != nil {
				return nil, err
			}
			out = append(out, v)
		default:
			return nil, fmt.Errorf("%w: %T", errs.ErrUnsupportedItemType, item)
		}
	}
	return out, nil
}

// SaveAll stages attribute maps (as new instances) and instances. Nothing
// is staged when an item has an unsupported type.
func (t *Type) SaveAll(ctx context.Context, items []any) error {
	insts, err := t.items(items)
	if err != nil {
		return err
	}
	s, err := t.session(ctx)
	if err != nil {
		return err
	}
	for _, inst := range insts {
		if err := s.Add(inst); err != nil {
			return err
		}
	}
	return nil
}

// Merge reconciles inst with the row of the same primary key and returns
// the session's instance. With checkStore the store is consulted when the
// key is not in the identity map.
func (t *Type) Merge(ctx context.Context, inst *Instance, checkStore bool) (*Instance, error) {
	if err := t.own(inst); err != nil {
		return nil, err
	}
	s, err := t.session(ctx)
	if err != nil {
		return nil, err
	}
	return s.Merge(ctx, inst, checkStore)
}

// MergeBy builds an instance from attrs and merges it.
func (t *Type) MergeBy(ctx context.Context, attrs Attrs, checkStore bool) (*Instance, error) {
	inst, err := t.New(attrs)
	if err != nil {
		return nil, err
	}
	return t.Merge(ctx, inst, checkStore)
}

// MergeAll merges attribute maps and instances, returning the session's
// instances in input order.
func (t *Type) MergeAll(ctx context.Context, items []any, checkStore bool) ([]*Instance, error) {
	insts, err := t.items(items)
	if err != nil {
		return nil, err
	}
	s, err := t.session(ctx)
	if err != nil {
		return nil, err
	}
	merged := make([]*Instance, 0, len(insts))
	for _, inst := range insts {
		m, err := s.Merge(ctx, inst, checkStore)
		if err != nil {
			return merged, err
		}
		merged = append(merged, m)
	}
	return merged, nil
}

// Delete stages inst for deletion.
func (t *Type) Delete(ctx context.Context, inst *Instance) error {
	if err := t.own(inst); err != nil {
		return err
	}
	s, err := t.session(ctx)
	if err != nil {
		return err
	}
	return s.Delete(inst)
}

// DeleteBy loads the rows matching the filters and stages them for
// deletion. It returns how many were staged.
func (t *Type) DeleteBy(ctx context.Context, filters Attrs) (int, error) {
	insts, err := t.Load(ctx, filters).All(ctx)
	if err != nil {
		return 0, err
	}
	return len(insts), t.DeleteAll(ctx, insts)
}

// DeleteAll stages every instance for deletion.
func (t *Type) DeleteAll(ctx context.Context, items []*Instance) error {
	s, err := t.session(ctx)
	if err != nil {
		return err
	}
	for _, inst := range items {
		if err := t.own(inst); err != nil {
			return err
		}
		if err := s.Delete(inst); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes the staged changes of the current session.
func (t *Type) Flush(ctx context.Context) error {
	s, err := t.session(ctx)
	if err != nil {
		return err
	}
	return s.Flush(ctx)
}

// Commit flushes and commits the current session, rolling back on failure.
func (t *Type) Commit(ctx context.Context) error {
	s, err := t.session(ctx)
	if err != nil {
		return err
	}
	return s.Commit(ctx)
}

// Rollback discards the current session's transaction and staged changes.
func (t *Type) Rollback(ctx context.Context) error {
	s, err := t.session(ctx)
	if err != nil {
		return err
	}
	return s.Rollback(ctx)
}

// Insert writes a new row right away inside a savepoint and reports the
// outcome per row.
func (t *Type) Insert(ctx context.Context, attrs Attrs) (InsertResult, error) {
	inst, err := t.New(attrs)
	if err != nil {
		return InsertResult{}, err
	}
	s, err := t.session(ctx)
	if err != nil {
		return InsertResult{}, err
	}
	return s.Insert(ctx, inst)
}

// InsertAll inserts every item, continuing past rows that fail. It stops
// only on errors that are not about a single row.
func (t *Type) InsertAll(ctx context.Context, items []Attrs) ([]InsertResult, error) {
	results := make([]InsertResult, 0, len(items))
	for _, attrs := range items {
		res, err := t.Insert(ctx, attrs)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Ref follows a scalar relationship of inst. It returns nil when the
// foreign key is unset or matches no row.
func (t *Type) Ref(ctx context.Context, inst *Instance, name string) (*Instance, error) {
	rel, target, err := t.relationship(name, schema.Scalar)
	if err != nil {
		return nil, err
	}

	filters := make(Attrs, len(rel.LocalColumns))
	for n, local := range rel.LocalColumns {
		v := inst.Get(local)
		if v == nil {
			return nil, nil
		}
		filters[rel.RemoteColumns[n]] = v
	}

	if sameColumns(rel.RemoteColumns, target.table.PrimaryKey) {
		key := make([]any, len(rel.RemoteColumns))
		for n, c := range rel.RemoteColumns {
			key[n] = filters[c]
		}
		return target.LoadByKey(ctx, key)
	}
	return target.First(ctx, filters)
}

// Collection loads the rows reached through a collection relationship of
// inst.
func (t *Type) Collection(ctx context.Context, inst *Instance, name string) ([]*Instance, error) {
	rel, target, err := t.relationship(name, schema.Collection)
	if err != nil {
		return nil, err
	}

	filters := make(Attrs, len(rel.LocalColumns))
	for n, local := range rel.LocalColumns {
		v := inst.Get(local)
		if v == nil {
			return nil, nil
		}
		filters[rel.RemoteColumns[n]] = v
	}
	return target.Query(ctx).FilterBy(filters).OrderBy(target.table.PrimaryKey...).All(ctx)
}

func (t *Type) relationship(name string, kind schema.RelationKind) (schema.Relationship, *Type, error) {
	rel, ok := t.table.Relationship(name)
	if !ok || rel.Kind != kind {
		return schema.Relationship{}, nil, fmt.Errorf("%w: %s has no %s relationship %q",
			errs.ErrUnknownRelationship, t.Name(), kind, name)
	}
	target, err := t.related(rel)
	if err != nil {
		return schema.Relationship{}, nil, err
	}
	return rel, target, nil
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for n := range a {
		if a[n] != b[n] {
			return false
		}
	}
	return true
}
