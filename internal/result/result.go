// Package result turns query results into plain ordered records, the shape
// printed by the CLI and handed to callers that do not want to deal with
// instances.
//
// A row of a single-type query becomes one record keyed by column name. A
// joined row is merged into one record whose keys carry the table name as
// prefix ("pet.name", "owner.name") so equal column names do not collide.
package result

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/deppfellow/abaita/internal/orm"
)

// Field is one key/value pair of a Record.
type Field struct {
	Key   string
	Value any
}

// Record is an ordered set of fields.
type Record struct {
	fields []Field
	index  map[string]int
}

func (r *Record) set(key string, v any) {
	if r.index == nil {
		r.index = make(map[string]int)
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if i, ok := r.index[key]; ok {
		r.fields[i].Value = v
		return
	}
	r.index[key] = len(r.fields)
	r.fields = append(r.fields, Field{Key: key, Value: v})
}

// Get returns the value stored under key.
func (r Record) Get(key string) (any, bool) {
	i, ok := r.index[key]
	if !ok {
		return nil, false
	}
	return r.fields[i].Value, true
}

// Keys returns the keys in order.
func (r Record) Keys() []string {
	keys := make([]string, len(r.fields))
	for i, f := range r.fields {
		keys[i] = f.Key
	}
	return keys
}

// Fields returns a copy of the fields in order.
func (r Record) Fields() []Field {
	return append([]Field(nil), r.fields...)
}

// Len returns the number of fields.
func (r Record) Len() int { return len(r.fields) }

// Map returns the record as an unordered map.
func (r Record) Map() map[string]any {
	m := make(map[string]any, len(r.fields))
	for _, f := range r.fields {
		m[f.Key] = f.Value
	}
	return m
}

// MarshalJSON renders the record as an object keeping the field order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func addInstance(r *Record, inst *orm.Instance, prefixed bool) {
	for _, c := range inst.Type().Inspect().Columns {
		key := c.Name
		if prefixed {
			key = inst.Table() + "." + c.Name
		}
		r.set(key, inst.Get(c.Name))
	}
}

// FromInstances converts instances into unprefixed records. No instances
// give nil.
func FromInstances(insts []*orm.Instance) []Record {
	if len(insts) == 0 {
		return nil
	}
	out := make([]Record, 0, len(insts))
	for _, inst := range insts {
		var r Record
		addInstance(&r, inst, false)
		out = append(out, r)
	}
	return out
}

// FromRows converts query rows into records. Rows with more than one
// instance are merged with table-prefixed keys. No rows give nil.
func FromRows(rows []orm.Row) []Record {
	if len(rows) == 0 {
		return nil
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		var r Record
		for _, inst := range row {
			if inst != nil {
				addInstance(&r, inst, len(row) > 1)
			}
		}
		out = append(out, r)
	}
	return out
}

// FromQuery runs q and converts its rows. A query matching nothing gives
// nil records and a nil error.
func FromQuery(ctx context.Context, q *orm.Query) ([]Record, error) {
	rows, err := q.Rows(ctx)
	if err != nil {
		return nil, err
	}
	return FromRows(rows), nil
}

// Adapt wraps a function building a query into one returning records.
func Adapt[A any](fn func(ctx context.Context, arg A) *orm.Query) func(ctx context.Context, arg A) ([]Record, error) {
	return func(ctx context.Context, arg A) ([]Record, error) {
		return FromQuery(ctx, fn(ctx, arg))
	}
}
