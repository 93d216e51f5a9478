package compile

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/quellql/quell/internal/schema"
	"github.com/quellql/quell/internal/sqlast"
)

// Fragment is a runtime-generated SQL fragment bound into a fragment slot.
//
// SQL carries one bare `?` marker per entry of Args. At bind time the
// markers are renumbered to continue the statement's index sequence, and
// Args join the statement's flat parameter list at the slot's allocated
// position.
type Fragment struct {
	SQL  string
	Args []any
}

// Binding is a fully bound invocation of a compiled statement: the
// expanded SQL text and the flat parameter list in bind-index order.
//
// The number of positional markers in SQL always equals len(Args); the
// two are produced from the same allocation walk.
type Binding struct {
	SQL  string
	Args []any
}

// bind expands the template and builds the parameter list for one set of
// caller arguments, supplied positionally in catalog declaration order.
func bind(name string, elems []sqlast.Element, a allocation, t template, args []any) (Binding, error) {
	if len(args) != len(elems) {
		return Binding{}, &BindError{
			Code:      ErrCodeArity,
			Statement: name,
			Message:   fmt.Sprintf("got %d arguments, statement declares %d parameters", len(args), len(elems)),
		}
	}

	statics := make([]any, a.maxStatic)
	arrays := make(map[*sqlast.ArrayVar][]any)
	frags := make(map[*sqlast.FragmentSlot]Fragment)

	for i, e := range elems {
		arg := args[i]
		switch v := e.(type) {
		case *sqlast.ScalarVar:
			val, err := encodeValue(v.Convert, arg)
			if err != nil {
				return Binding{}, &BindError{
					Code:      ErrCodeBadValue,
					Statement: name,
					Param:     v.Name,
					Message:   err.Error(),
				}
			}
			statics[v.Index-1] = val
		case *sqlast.ArrayVar:
			vals, err := encodeCollection(v, arg)
			if err != nil {
				return Binding{}, &BindError{
					Code:      bindCode(err),
					Statement: name,
					Param:     v.Name,
					Message:   err.Error(),
				}
			}
			arrays[v] = vals
		case *sqlast.FragmentSlot:
			frag, ok := arg.(Fragment)
			if !ok {
				return Binding{}, &BindError{
					Code:      ErrCodeBadFragment,
					Statement: name,
					Param:     v.Name,
					Message:   fmt.Sprintf("want compile.Fragment, got %T", arg),
				}
			}
			frags[v] = frag
		}
	}

	// Assign dynamic starting indices. The counter exists only when the
	// statement has dynamic elements; the static-only path uses declared
	// indices as-is.
	starts := make(map[sqlast.Element]int, len(a.dynamics))
	if a.dynamic() {
		next := a.maxStatic + 1
		for _, e := range a.dynamics {
			starts[e] = next
			switch v := e.(type) {
			case *sqlast.ArrayVar:
				next += len(arrays[v])
			case *sqlast.FragmentSlot:
				next += len(frags[v].Args)
			}
		}
	}

	sql, err := expand(name, t, arrays, frags, starts)
	if err != nil {
		return Binding{}, err
	}

	flat := append([]any(nil), statics...)
	for _, e := range a.dynamics {
		switch v := e.(type) {
		case *sqlast.ArrayVar:
			flat = append(flat, arrays[v]...)
		case *sqlast.FragmentSlot:
			flat = append(flat, frags[v].Args...)
		}
	}

	return Binding{SQL: sql, Args: flat}, nil
}

// expand renders the template with concrete expansion widths.
func expand(name string, t template, arrays map[*sqlast.ArrayVar][]any, frags map[*sqlast.FragmentSlot]Fragment, starts map[sqlast.Element]int) (string, error) {
	var sb strings.Builder
	for _, s := range t.segs {
		switch seg := s.(type) {
		case litSeg:
			sb.WriteString(string(seg))
		case arraySeg:
			sb.WriteString(markerRun(starts[seg.v], len(arrays[seg.v])))
		case fragSeg:
			frag := frags[seg.s]
			spliced, n, err := renumberMarkers(frag.SQL, starts[seg.s])
			if err != nil {
				return "", &BindError{
					Code:      ErrCodeBadFragment,
					Statement: name,
					Param:     seg.s.Name,
					Message:   err.Error(),
				}
			}
			if n != len(frag.Args) {
				return "", &BindError{
					Code:      ErrCodeBadFragment,
					Statement: name,
					Param:     seg.s.Name,
					Message:   fmt.Sprintf("fragment has %d markers but %d arguments", n, len(frag.Args)),
				}
			}
			sb.WriteString(spliced)
		}
	}
	return sb.String(), nil
}

// markerRun renders "(?s,?s+1,…,?s+n-1)". A zero-length collection renders
// "(NULL)" so the enclosing IN stays syntactically valid and matches no row.
func markerRun(start, n int) string {
	if n == 0 {
		return "(NULL)"
	}
	var sb strings.Builder
	sb.WriteByte('(')
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte('?')
		sb.WriteString(strconv.Itoa(start + i))
	}
	sb.WriteByte(')')
	return sb.String()
}

// renumberMarkers rewrites every bare `?` in fragment SQL to a numbered
// marker starting at start, returning the rewritten text and the marker
// count. Markers inside string literals, quoted identifiers, and comments
// are left alone.
func renumberMarkers(sql string, start int) (string, int, error) {
	var sb strings.Builder
	n := 0
	i := 0
	for i < len(sql) {
		ch := sql[i]
		switch {
		case ch == '\'' || ch == '"' || ch == '`':
			end, err := skipQuoted(sql, i)
			if err != nil {
				return "", 0, err
			}
			sb.WriteString(sql[i:end])
			i = end
		case ch == '-' && i+1 < len(sql) && sql[i+1] == '-':
			end := strings.IndexByte(sql[i:], '\n')
			if end < 0 {
				end = len(sql)
			} else {
				end += i
			}
			sb.WriteString(sql[i:end])
			i = end
		case ch == '/' && i+1 < len(sql) && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				return "", 0, fmt.Errorf("unterminated block comment in fragment")
			}
			end += i + 4
			sb.WriteString(sql[i:end])
			i = end
		case ch == '?':
			if i+1 < len(sql) && sql[i+1] >= '0' && sql[i+1] <= '9' {
				return "", 0, fmt.Errorf("fragment markers must be bare `?`, found numbered marker")
			}
			sb.WriteByte('?')
			sb.WriteString(strconv.Itoa(start + n))
			n++
			i++
		default:
			sb.WriteByte(ch)
			i++
		}
	}
	return sb.String(), n, nil
}

// skipQuoted returns the index just past the quoted token opening at i.
// Doubled quote characters escape themselves, per SQL.
func skipQuoted(sql string, i int) (int, error) {
	q := sql[i]
	j := i + 1
	for j < len(sql) {
		if sql[j] == q {
			if j+1 < len(sql) && sql[j+1] == q {
				j += 2
				continue
			}
			return j + 1, nil
		}
		j++
	}
	return 0, fmt.Errorf("unterminated %c-quoted token in fragment", q)
}

// encodeValue applies the converter, if any, to a scalar argument.
func encodeValue(conv schema.Converter, arg any) (any, error) {
	if conv == nil {
		return arg, nil
	}
	return conv.Encode(arg)
}

// encodeCollection normalizes an array argument to a flat []any, encoding
// each element independently and preserving iteration order.
func encodeCollection(v *sqlast.ArrayVar, arg any) ([]any, error) {
	if arg == nil {
		return nil, &notCollection{msg: "nil bound to array variable"}
	}
	rv := reflect.ValueOf(arg)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
	default:
		return nil, &notCollection{msg: fmt.Sprintf("want collection, got %T", arg)}
	}
	if _, isBytes := arg.([]byte); isBytes {
		return nil, &notCollection{msg: "[]byte binds as a single blob, not a collection"}
	}
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		val, err := encodeValue(v.Convert, rv.Index(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = val
	}
	return out, nil
}

type notCollection struct{ msg string }

func (e *notCollection) Error() string { return e.msg }

func bindCode(err error) BindErrorCode {
	var nc *notCollection
	if errors.As(err, &nc) {
		return ErrCodeNotCollection
	}
	return ErrCodeBadValue
}
