// Package schema reflects a relational schema into table descriptors and
// infers the relationships between them from foreign keys.
package schema

import (
	"strings"
)

// Column describes one table column.
type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primary_key"`
}

// Binary reports whether the column stores raw bytes.
func (c Column) Binary() bool {
	t := strings.ToLower(c.Type)
	return t == "blob" || t == "bytea" || strings.HasPrefix(t, "binary") || strings.HasPrefix(t, "varbinary")
}

// RelationKind tells a single reference from a collection.
type RelationKind int

const (
	// Scalar is a many-to-one reference from the table holding the
	// foreign key to the table it points at.
	Scalar RelationKind = iota

	// Collection is the one-to-many side: the referenced table sees every
	// row pointing at it.
	Collection
)

func (k RelationKind) String() string {
	if k == Collection {
		return "collection"
	}
	return "scalar"
}

func (k RelationKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Cascade is the delete policy applied by a session to related instances.
type Cascade int

const (
	CascadeNone Cascade = iota

	// CascadeDeleteOrphan deletes loaded children together with their
	// parent.
	CascadeDeleteOrphan
)

func (c Cascade) String() string {
	if c == CascadeDeleteOrphan {
		return "delete-orphan"
	}
	return "none"
}

func (c Cascade) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// ForeignKey is a (possibly composite) reference from Table to RefTable.
type ForeignKey struct {
	Name       string   `json:"name"`
	Table      string   `json:"table"`
	Columns    []string `json:"columns"`
	RefTable   string   `json:"ref_table"`
	RefColumns []string `json:"ref_columns"`

	// OnDelete is the backend's ON DELETE action, e.g. "CASCADE".
	OnDelete string `json:"on_delete"`
}

// Relationship is a navigable link between two mapped tables.
//
// For a Scalar relationship LocalColumns are the foreign-key columns of the
// owning table and RemoteColumns the referenced key of Target. For a
// Collection it is the other way round: LocalColumns are the owner's key and
// RemoteColumns the foreign-key columns of Target.
type Relationship struct {
	Name           string       `json:"name"`
	Kind           RelationKind `json:"kind"`
	Target         string       `json:"target"`
	Cascade        Cascade      `json:"cascade"`
	PassiveDeletes bool         `json:"passive_deletes"`
	LocalColumns   []string     `json:"local_columns"`
	RemoteColumns  []string     `json:"remote_columns"`
	OnDelete       string       `json:"on_delete,omitempty"`
}

// Table is the descriptor of a mapped table. It is immutable once
// reflection returns.
type Table struct {
	Name          string         `json:"name"`
	Columns       []Column       `json:"columns"`
	PrimaryKey    []string       `json:"primary_key"`
	ForeignKeys   []ForeignKey   `json:"foreign_keys,omitempty"`
	Relationships []Relationship `json:"relationships,omitempty"`
}

// TypeName is the mapped type name of the table: the table name verbatim.
func (t *Table) TypeName() string {
	return t.Name
}

// Column returns the named column.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// HasColumn reports whether name is a column of the table.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// ColumnNames returns the column names in table order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Relationship returns the named relationship.
func (t *Table) Relationship(name string) (Relationship, bool) {
	for _, r := range t.Relationships {
		if r.Name == name {
			return r, true
		}
	}
	return Relationship{}, false
}

// ScalarName is the relationship name used to reach target from the table
// holding the foreign key.
func ScalarName(target string) string {
	return strings.ToLower(target) + "_ref"
}

// CollectionName is the relationship name used to reach the rows of
// referrer from the table they point at.
func CollectionName(referrer string) string {
	return strings.ToLower(referrer) + "_col"
}
