package compile

import (
	"fmt"

	"github.com/quellql/quell/internal/sqlast"
)

// allocation is the compile-time result of walking the catalog in
// declaration order: the highest static index among scalar variables, plus
// the dynamic elements (arrays and fragment slots) in the order their
// runtime index ranges will be assigned.
//
// Dynamic starting indices depend on runtime collection lengths, so they
// are not computed here. If the statement has no dynamic elements the bind
// path performs no index arithmetic at all: static indices are used
// directly.
type allocation struct {
	maxStatic int
	dynamics  []sqlast.Element // declaration order
}

// allocate validates the catalog and computes the allocation.
//
// A catalog from a correct resolver cannot fail here; every error is a
// CompileError marking an upstream defect.
func allocate(name string, elems []sqlast.Element) (allocation, error) {
	var a allocation
	seen := make(map[sqlast.Element]bool, len(elems))
	byIndex := make(map[int]*sqlast.ScalarVar)

	for _, e := range elems {
		if e == nil {
			return allocation{}, &CompileError{
				Code:      ErrCodeUnknownElement,
				Statement: name,
				Message:   "nil catalog element",
			}
		}
		if seen[e] {
			return allocation{}, &CompileError{
				Code:      ErrCodeDuplicateElement,
				Statement: name,
				Message:   fmt.Sprintf("element %s listed twice in catalog", elementName(e)),
			}
		}
		seen[e] = true

		switch v := e.(type) {
		case *sqlast.ScalarVar:
			if v.Index < 1 {
				return allocation{}, &CompileError{
					Code:      ErrCodeStaticIndexGap,
					Statement: name,
					Message:   fmt.Sprintf("scalar %s has non-positive index %d", v.Name, v.Index),
				}
			}
			if prev, ok := byIndex[v.Index]; ok {
				return allocation{}, &CompileError{
					Code:      ErrCodeDuplicateElement,
					Statement: name,
					Message:   fmt.Sprintf("scalars %s and %s share static index %d", prev.Name, v.Name, v.Index),
				}
			}
			byIndex[v.Index] = v
			if v.Index > a.maxStatic {
				a.maxStatic = v.Index
			}
		case *sqlast.ArrayVar, *sqlast.FragmentSlot:
			a.dynamics = append(a.dynamics, e)
		default:
			return allocation{}, &CompileError{
				Code:      ErrCodeUnknownElement,
				Statement: name,
				Message:   fmt.Sprintf("unknown catalog element kind %T", e),
			}
		}
	}

	// Static indices must cover 1..maxStatic with no holes; a gap means
	// the resolver numbered markers the bind list cannot satisfy.
	for i := 1; i <= a.maxStatic; i++ {
		if _, ok := byIndex[i]; !ok {
			return allocation{}, &CompileError{
				Code:      ErrCodeStaticIndexGap,
				Statement: name,
				Message:   fmt.Sprintf("no scalar occupies static index %d (max %d)", i, a.maxStatic),
			}
		}
	}

	return a, nil
}

// dynamic reports whether the catalog needs runtime index arithmetic.
func (a allocation) dynamic() bool { return len(a.dynamics) > 0 }

// elementName names an element for diagnostics.
func elementName(e sqlast.Element) string {
	switch v := e.(type) {
	case *sqlast.ScalarVar:
		return v.Name
	case *sqlast.ArrayVar:
		return v.Name
	case *sqlast.FragmentSlot:
		return v.Name
	default:
		return fmt.Sprintf("%T", e)
	}
}
