package schema

import "fmt"

// Column describes one table or result-set column.
type Column struct {
	Name     string
	Type     Type
	Nullable bool
	Convert  Converter // nil when the stored and entity forms coincide
}

// Table describes a schema table: its name and ordered columns.
type Table struct {
	Name    string
	Columns []Column
}

// ColumnNames returns the column names in declaration order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// ColumnOption configures a column at declaration time.
type ColumnOption func(*Column)

// Nullable marks the column as accepting NULL.
func Nullable() ColumnOption {
	return func(c *Column) { c.Nullable = true }
}

// WithConverter attaches a value converter to the column.
func WithConverter(conv Converter) ColumnOption {
	return func(c *Column) { c.Convert = conv }
}

// TableBuilder accumulates column declarations for one table.
//
// Declaration errors (empty or duplicate names) are deferred to Build so
// that call sites can chain declarations without per-call error handling.
type TableBuilder struct {
	name string
	cols []Column
	errs []error
}

// NewTable starts a table declaration.
func NewTable(name string) *TableBuilder {
	b := &TableBuilder{name: name}
	if name == "" {
		b.errs = append(b.errs, fmt.Errorf("table name must not be empty"))
	}
	return b
}

// Column appends a column declaration.
func (b *TableBuilder) Column(name string, t Type, opts ...ColumnOption) *TableBuilder {
	if name == "" {
		b.errs = append(b.errs, fmt.Errorf("table %s: column name must not be empty", b.name))
		return b
	}
	for _, c := range b.cols {
		if c.Name == name {
			b.errs = append(b.errs, fmt.Errorf("table %s: duplicate column %q", b.name, name))
			return b
		}
	}
	col := Column{Name: name, Type: t}
	for _, opt := range opts {
		opt(&col)
	}
	b.cols = append(b.cols, col)
	return b
}

// Build finalizes the declaration.
func (b *TableBuilder) Build() (Table, error) {
	if len(b.errs) > 0 {
		return Table{}, b.errs[0]
	}
	if len(b.cols) == 0 {
		return Table{}, fmt.Errorf("table %s: at least one column required", b.name)
	}
	return Table{Name: b.name, Columns: b.cols}, nil
}

// MustBuild is Build for statically-known declarations; it panics on error.
func (b *TableBuilder) MustBuild() Table {
	t, err := b.Build()
	if err != nil {
		panic(err)
	}
	return t
}
