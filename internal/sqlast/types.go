package sqlast

import "github.com/quellql/quell/internal/schema"

// Span is a half-open byte range [Start, End) into the SQL source text.
type Span struct {
	Start int
	End   int
}

// Element is one entry of a statement's placeholder catalog.
//
// This is a sealed interface - only types in this package implement it.
// The marker method pattern enables exhaustive type switches at every
// consumption site in the compiler.
//
// Element kinds:
//   - ScalarVar: single-valued bind variable with a static 1-based index
//   - ArrayVar: collection-valued bind variable, expanded at bind time
//   - FragmentSlot: named hole filled with caller-supplied SQL text
//
// Elements are identified by pointer: every source occurrence of the same
// named variable references the same Element value.
type Element interface {
	element() // Marker method - seals interface to this package
}

// ScalarVar is a single-valued bind variable.
//
// Its Index is the static 1-based position assigned by the upstream
// resolver. Scalar occurrences are left verbatim in the SQL text, so the
// index must match the marker the source already carries (`?3` or the
// resolver's numbering of `:name`).
type ScalarVar struct {
	Name    string
	Index   int
	Type    schema.Type
	Convert schema.Converter
}

func (*ScalarVar) element() {}

// ArrayVar is a collection-valued bind variable.
//
// The collection length is unknown until bind time, so an ArrayVar has no
// static index; the allocator assigns it a starting index after the highest
// static index. However many times the variable appears in the source, it
// is expanded exactly once and every occurrence references that expansion.
type ArrayVar struct {
	Name    string
	Elem    schema.Type
	Convert schema.Converter
}

func (*ArrayVar) element() {}

// FragmentSlot is a named hole for a runtime-generated SQL fragment.
//
// The fragment is SQL text, not a value: it carries its own bind markers,
// which continue the statement's index sequence from the slot's allocated
// starting index.
type FragmentSlot struct {
	Name string
}

func (*FragmentSlot) element() {}

// Occurrence ties one catalog element to one source span.
type Occurrence struct {
	Elem Element
	At   Span
}

// Statement is a resolved query ready for compilation.
//
// This is a sealed interface - only ReadQuery and WriteQuery implement it.
type Statement interface {
	statement()
	// Common returns the fields shared by both statement kinds.
	Common() *QueryCommon
}

// QueryCommon holds the fields shared by read and write queries.
type QueryCommon struct {
	// Name is the declared statement name. Empty for unnamed statements;
	// the compiler derives an entry-point name from the result shape.
	Name string
	// SQL is the raw source text the spans index into.
	SQL string
	// Elements is the placeholder catalog in declaration order.
	Elements []Element
	// Occurrences lists every source occurrence of every element, in no
	// particular order. The compiler sorts what it needs sorted.
	Occurrences []Occurrence
	// Managed reports whether the statement came from a managed query
	// document. Managed statements must carry a declared name; unmanaged
	// (inline) statements may be anonymous.
	Managed bool
}

// ReadQuery is a select statement producing rows of Shape, reading from
// the tables in ReadsFrom.
type ReadQuery struct {
	QueryCommon
	Shape     schema.Shape
	ReadsFrom []string
}

func (*ReadQuery) statement() {}
func (q *ReadQuery) Common() *QueryCommon { return &q.QueryCommon }

// WriteQuery is an insert, update, or delete statement mutating the tables
// in Updates.
type WriteQuery struct {
	QueryCommon
	Updates []string
}

func (*WriteQuery) statement() {}
func (q *WriteQuery) Common() *QueryCommon { return &q.QueryCommon }
