package schema

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Shape describes the column layout of a statement's result set.
//
// A shape is either table-backed (every column of one table, shared by all
// statements selecting that table whole) or statement-specific (an explicit
// projection declared for one query).
type Shape struct {
	Name    string
	Columns []Column
}

// TableShape returns the shared shape covering every column of t.
func TableShape(t Table) Shape {
	return Shape{Name: t.Name, Columns: t.Columns}
}

// NewShape returns a statement-specific shape with the given columns.
func NewShape(name string, cols []Column) Shape {
	return Shape{Name: name, Columns: cols}
}

// Fingerprint returns the identity key of the shape's column layout.
//
// Two shapes with the same fingerprint map rows identically, so the
// compiler registers exactly one row mapper per fingerprint. The key covers
// column names (NFC normalized, so visually identical declarations from
// different documents collide as intended), types, nullability, and
// converter identity. The shape name is deliberately excluded: identity is
// columnar.
func (s Shape) Fingerprint() string {
	var sb strings.Builder
	for i, c := range s.Columns {
		if i > 0 {
			sb.WriteByte('|')
		}
		sb.WriteString(norm.NFC.String(c.Name))
		sb.WriteByte(':')
		sb.WriteString(c.Type.String())
		if c.Nullable {
			sb.WriteString(":null")
		}
		if c.Convert != nil {
			sb.WriteByte(':')
			sb.WriteString(c.Convert.Name())
		}
	}
	return sb.String()
}

// Column returns the named column and whether it exists.
func (s Shape) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}
