package compile

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/quellql/quell/internal/schema"
	"github.com/quellql/quell/internal/sqlast"
)

// Compiled is the descriptor produced for one statement.
//
// This is a sealed interface - only ReadStatement and WriteStatement
// implement it. Reads expose their shape, mapper, and read-set; writes
// expose their write-set.
type Compiled interface {
	compiled()
	// Name is the statement's entry-point name, declared or derived.
	Name() string
	// Bind produces one invocation: expanded SQL plus the flat parameter
	// list, from one argument per catalog element in declaration order.
	Bind(args ...any) (Binding, error)
	// Params describes the declared parameters in declaration order.
	Params() []Param
}

// Param describes one declared statement parameter for introspection.
type Param struct {
	Name  string
	Kind  string // "scalar" | "array" | "fragment"
	Type  string // element type for scalars/arrays, "" for fragments
	Array bool
}

// ReadStatement is the compiled descriptor of a select statement.
//
// The descriptor holds template, allocation, and mapper only - never row
// data. Bind may be called any number of times with different arguments
// without recompiling the template.
type ReadStatement struct {
	name      string
	common    *sqlast.QueryCommon
	shape     schema.Shape
	readsFrom []string
	alloc     allocation
	tmpl      template
	mapper    *Mapper
}

func (*ReadStatement) compiled() {}

// Name returns the entry-point name.
func (s *ReadStatement) Name() string { return s.name }

// Shape returns the result-set shape.
func (s *ReadStatement) Shape() schema.Shape { return s.shape }

// Mapper returns the row mapper shared by every statement of this shape
// compiled under the same Context.
func (s *ReadStatement) Mapper() *Mapper { return s.mapper }

// ReadsFrom returns the sorted set of tables the statement reads. The
// runtime uses it to route write invalidations to subscriptions.
func (s *ReadStatement) ReadsFrom() []string { return s.readsFrom }

// Bind implements Compiled.
func (s *ReadStatement) Bind(args ...any) (Binding, error) {
	return bind(s.name, s.common.Elements, s.alloc, s.tmpl, args)
}

// Params implements Compiled.
func (s *ReadStatement) Params() []Param { return params(s.common.Elements) }

// Template returns a symbolic rendering of the rewritten template for
// display and golden comparison: literal text verbatim, array expansions
// as (?..name), fragment splices as {..name}.
func (s *ReadStatement) Template() string { return s.tmpl.symbolic() }

// WriteStatement is the compiled descriptor of an insert, update, or
// delete statement.
type WriteStatement struct {
	name    string
	common  *sqlast.QueryCommon
	updates []string
	alloc   allocation
	tmpl    template
}

func (*WriteStatement) compiled() {}

// Name returns the entry-point name.
func (s *WriteStatement) Name() string { return s.name }

// Updates returns the sorted set of tables the statement mutates. The
// runtime notifies dependent read subscriptions after execution.
func (s *WriteStatement) Updates() []string { return s.updates }

// Bind implements Compiled.
func (s *WriteStatement) Bind(args ...any) (Binding, error) {
	return bind(s.name, s.common.Elements, s.alloc, s.tmpl, args)
}

// Params implements Compiled.
func (s *WriteStatement) Params() []Param { return params(s.common.Elements) }

// Template returns the symbolic template rendering, as on ReadStatement.
func (s *WriteStatement) Template() string { return s.tmpl.symbolic() }

// Compile turns one resolved statement into its executable descriptor.
//
// ctx owns the mapper registry shared across the compilation batch; the
// statement is consumed exactly once and not retained.
func Compile(ctx *Context, stmt sqlast.Statement) (Compiled, error) {
	switch q := stmt.(type) {
	case *sqlast.ReadQuery:
		return CompileRead(ctx, q)
	case *sqlast.WriteQuery:
		return CompileWrite(q)
	default:
		return nil, &CompileError{
			Code:    ErrCodeUnknownElement,
			Message: fmt.Sprintf("unknown statement kind %T", stmt),
		}
	}
}

// CompileRead compiles a select statement.
func CompileRead(ctx *Context, q *sqlast.ReadQuery) (*ReadStatement, error) {
	name, err := statementName(&q.QueryCommon, "select", q.Shape.Name)
	if err != nil {
		return nil, err
	}
	a, err := allocate(name, q.Elements)
	if err != nil {
		return nil, err
	}
	t, err := rewrite(name, &q.QueryCommon, a)
	if err != nil {
		return nil, err
	}
	return &ReadStatement{
		name:      name,
		common:    &q.QueryCommon,
		shape:     q.Shape,
		readsFrom: tableSet(q.ReadsFrom),
		alloc:     a,
		tmpl:      t,
		mapper:    ctx.mapperFor(q.Shape),
	}, nil
}

// CompileWrite compiles a mutation statement. Writes need no mapper, so no
// Context is involved.
func CompileWrite(q *sqlast.WriteQuery) (*WriteStatement, error) {
	updates := tableSet(q.Updates)
	hint := ""
	if len(updates) > 0 {
		hint = updates[0]
	}
	name, err := statementName(&q.QueryCommon, "write", hint)
	if err != nil {
		return nil, err
	}
	a, err := allocate(name, q.Elements)
	if err != nil {
		return nil, err
	}
	t, err := rewrite(name, &q.QueryCommon, a)
	if err != nil {
		return nil, err
	}
	return &WriteStatement{
		name:    name,
		common:  &q.QueryCommon,
		updates: updates,
		alloc:   a,
		tmpl:    t,
	}, nil
}

// statementName resolves the entry-point name: the declared name, or one
// derived from the result shape (reads) or write-set (writes) when the
// statement is anonymous. Managed statements must be named.
func statementName(c *sqlast.QueryCommon, verb, hint string) (string, error) {
	if c.Name != "" {
		return c.Name, nil
	}
	if c.Managed {
		return "", &CompileError{
			Code:    ErrCodeMissingName,
			Message: "managed statement without a declared name",
		}
	}
	if hint == "" {
		return verb + "Statement", nil
	}
	return verb + exported(hint), nil
}

// exported upper-cases the first rune of s.
func exported(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// tableSet sorts and dedupes a table list; the sets are order-insensitive.
func tableSet(tables []string) []string {
	set := make(map[string]bool, len(tables))
	for _, t := range tables {
		set[t] = true
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// params renders the catalog for introspection.
func params(elems []sqlast.Element) []Param {
	out := make([]Param, 0, len(elems))
	for _, e := range elems {
		switch v := e.(type) {
		case *sqlast.ScalarVar:
			out = append(out, Param{Name: v.Name, Kind: "scalar", Type: v.Type.String()})
		case *sqlast.ArrayVar:
			out = append(out, Param{Name: v.Name, Kind: "array", Type: v.Elem.String(), Array: true})
		case *sqlast.FragmentSlot:
			out = append(out, Param{Name: v.Name, Kind: "fragment"})
		}
	}
	return out
}

// symbolic renders the template with symbolic holes for display.
func (t template) symbolic() string {
	var sb strings.Builder
	for _, s := range t.segs {
		switch seg := s.(type) {
		case litSeg:
			sb.WriteString(string(seg))
		case arraySeg:
			sb.WriteString("(?..")
			sb.WriteString(seg.v.Name)
			sb.WriteByte(')')
		case fragSeg:
			sb.WriteString("{..")
			sb.WriteString(seg.s.Name)
			sb.WriteByte('}')
		}
	}
	return sb.String()
}
