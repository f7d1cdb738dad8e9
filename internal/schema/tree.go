package schema

import (
	"fmt"
	"strings"
)

// Tree renders the table's columns and relationships as a text tree:
//
//	TABLE: employee
//	├─ id: integer pk
//	└─ name: text null
//	RELATIONSHIPS: employee
//	└─ abaita_col -> abaita (collection, delete-orphan, passive)
func (t *Table) Tree() string {
	var b strings.Builder

	fmt.Fprintf(&b, "TABLE: %s\n", t.Name)
	for i, c := range t.Columns {
		b.WriteString(branch(i, len(t.Columns)))
		b.WriteString(c.Name)
		b.WriteString(": ")
		b.WriteString(c.Type)
		if c.PrimaryKey {
			b.WriteString(" pk")
		}
		if c.Nullable {
			b.WriteString(" null")
		}
		b.WriteByte('\n')
	}

	fmt.Fprintf(&b, "RELATIONSHIPS: %s\n", t.Name)
	for i, r := range t.Relationships {
		b.WriteString(branch(i, len(t.Relationships)))
		fmt.Fprintf(&b, "%s -> %s (%s", r.Name, r.Target, r.Kind)
		if r.Cascade != CascadeNone {
			b.WriteString(", " + r.Cascade.String())
		}
		if r.PassiveDeletes {
			b.WriteString(", passive")
		}
		b.WriteString(")\n")
	}
	return b.String()
}

func branch(i, n int) string {
	if i < n-1 {
		return "├─ "
	}
	return "└─ "
}
