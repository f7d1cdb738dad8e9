package orm

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/deppfellow/abaita/internal/errs"
)

// State is the lifecycle position of an instance.
type State int

const (
	// Transient instances are not known to any session.
	Transient State = iota
	// Pending instances are staged for insertion.
	Pending
	// Persistent instances correspond to a row and sit in a session's
	// identity map.
	Persistent
	// Deleted instances are staged for deletion or were deleted by a flush
	// whose transaction has not committed yet.
	Deleted
	// Detached instances were persistent in a session that let go of them.
	Detached
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Persistent:
		return "persistent"
	case Deleted:
		return "deleted"
	case Detached:
		return "detached"
	default:
		return "transient"
	}
}

// Instance is one row of a mapped type.
type Instance struct {
	typ    *Type
	values map[string]any

	// original is the row as last read from or written to the store.
	original map[string]any

	state   State
	session *Session

	// queued is set while an update or delete of the instance is staged.
	queued bool

	// generated names the key column the store filled in on insert.
	generated string
}

func newInstance(t *Type, attrs map[string]any) (*Instance, error) {
	inst := &Instance{typ: t, values: make(map[string]any, len(attrs))}
	for name, v := range attrs {
		col, ok := t.table.Column(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", errs.ErrUnknownAttribute, t.Name(), name)
		}
		inst.values[name] = normalize(col, v)
	}
	return inst, nil
}

// Type returns the mapped type of the instance.
func (i *Instance) Type() *Type { return i.typ }

// Table returns the name of the mapped table.
func (i *Instance) Table() string { return i.typ.Name() }

// State returns the lifecycle state.
func (i *Instance) State() State { return i.state }

// Get returns the value of a column, nil when unset.
func (i *Instance) Get(column string) any {
	return i.values[column]
}

// Has reports whether the column was assigned or loaded.
func (i *Instance) Has(column string) bool {
	_, ok := i.values[column]
	return ok
}

// Set assigns a column value. Changing a persistent instance stages an
// update in its session.
func (i *Instance) Set(column string, v any) error {
	col, ok := i.typ.table.Column(column)
	if !ok {
		return fmt.Errorf("%w: %s.%s", errs.ErrUnknownAttribute, i.typ.Name(), column)
	}
	i.values[column] = normalize(col, v)
	if i.state == Persistent && i.session != nil {
		i.session.touch(i)
	}
	return nil
}

// Values returns a copy of every column value in table order. Unset
// columns are nil.
func (i *Instance) Values() Attrs {
	out := make(Attrs, len(i.typ.table.Columns))
	for _, c := range i.typ.table.Columns {
		out[c.Name] = i.values[c.Name]
	}
	return out
}

// Key returns the primary-key values in key order.
func (i *Instance) Key() []any {
	return i.keyOf(i.values)
}

func (i *Instance) keyOf(values map[string]any) []any {
	pk := i.typ.table.PrimaryKey
	key := make([]any, len(pk))
	for n, name := range pk {
		key[n] = values[name]
	}
	return key
}

// storedKey is the key the row has in the store.
func (i *Instance) storedKey() []any {
	if i.original != nil {
		return i.keyOf(i.original)
	}
	return i.Key()
}

func (i *Instance) snapshot() {
	i.original = make(map[string]any, len(i.values))
	for k, v := range i.values {
		i.original[k] = v
	}
}

// changed returns the columns whose value differs from the stored row.
func (i *Instance) changed() []string {
	var cols []string
	for _, c := range i.typ.table.Columns {
		v, ok := i.values[c.Name]
		if !ok {
			continue
		}
		if i.original == nil || !sameValue(i.original[c.Name], v) {
			cols = append(cols, c.Name)
		}
	}
	return cols
}

func sameValue(a, b any) bool {
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}
	return reflect.DeepEqual(a, b)
}

func (i *Instance) clone() *Instance {
	c := &Instance{typ: i.typ, values: make(map[string]any, len(i.values))}
	for k, v := range i.values {
		c.values[k] = v
	}
	return c
}

// unflush turns an instance whose insert was rolled back into a transient
// one again, so saving it once more inserts it.
func (i *Instance) unflush() {
	i.session = nil
	i.queued = false
	i.state = Transient
	i.original = nil
	if i.generated != "" {
		delete(i.values, i.generated)
		i.generated = ""
	}
}

func (i *Instance) detach() {
	i.session = nil
	i.queued = false
	if i.state != Transient {
		i.state = Detached
	}
}

// MarshalJSON renders the column values as an object in table order.
func (i *Instance) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for n, c := range i.typ.table.Columns {
		if n > 0 {
			b.WriteByte(',')
		}
		key, err := json.Marshal(c.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(i.values[c.Name])
		if err != nil {
			return nil, err
		}
		b.Write(key)
		b.WriteByte(':')
		b.Write(val)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

func (i *Instance) String() string {
	parts := make([]string, 0, len(i.typ.table.Columns))
	for _, c := range i.typ.table.Columns {
		parts = append(parts, fmt.Sprintf("%s=%v", c.Name, i.values[c.Name]))
	}
	return i.typ.Name() + "(" + strings.Join(parts, ", ") + ")"
}

// Describe renders the instance values and the type's relationships as a
// tree for diagnostics.
func (i *Instance) Describe() string {
	var b strings.Builder
	table := i.typ.table

	fmt.Fprintf(&b, "TABLE: %s\n", table.Name)
	for n, c := range table.Columns {
		v := i.values[c.Name]
		fmt.Fprintf(&b, "%s%s: %v %T\n", branch(n, len(table.Columns)), c.Name, v, v)
	}
	fmt.Fprintf(&b, "RELATIONSHIPS: %s\n", table.Name)
	for n, r := range table.Relationships {
		fmt.Fprintf(&b, "%s%s.%s, %s\n", branch(n, len(table.Relationships)), table.Name, r.Name, r.Kind)
	}
	return b.String()
}

func branch(i, n int) string {
	if i < n-1 {
		return "├─ "
	}
	return "└─ "
}
