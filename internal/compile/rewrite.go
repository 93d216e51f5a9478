package compile

import (
	"fmt"
	"sort"

	"github.com/quellql/quell/internal/sqlast"
)

// segment is one piece of a rewritten SQL template.
//
// Sealed: a template is a sequence of literal source text, array-expansion
// references, and fragment references. Scalar occurrences never become
// segments - their marker syntax is already valid bind syntax and stays in
// the literal text untouched.
type segment interface {
	seg()
}

// litSeg is source text copied verbatim.
type litSeg string

func (litSeg) seg() {}

// arraySeg expands to a parenthesized run of positional markers at bind
// time. Every occurrence of one array variable holds a pointer to the same
// element, so repeated occurrences render the identical expansion.
type arraySeg struct {
	v *sqlast.ArrayVar
}

func (arraySeg) seg() {}

// fragSeg splices runtime-supplied fragment SQL, markers renumbered to
// continue the statement's index sequence.
type fragSeg struct {
	s *sqlast.FragmentSlot
}

func (fragSeg) seg() {}

// template is the compiled rewrite of one statement's source text.
type template struct {
	segs []segment
}

// rewrite builds the template from the source text and its occurrences.
//
// Only array and fragment occurrences are rewrite spans. They are sorted
// by source start position and consumed by a single forward cursor; the
// cursor never re-reads source text, and any overlap or out-of-bounds span
// aborts compilation.
func rewrite(name string, c *sqlast.QueryCommon, a allocation) (template, error) {
	known := make(map[sqlast.Element]bool, len(c.Elements))
	for _, e := range c.Elements {
		known[e] = true
	}

	var spans []sqlast.Occurrence
	for _, occ := range c.Occurrences {
		if !known[occ.Elem] {
			return template{}, &CompileError{
				Code:      ErrCodeOrphanOccurrence,
				Statement: name,
				Message:   fmt.Sprintf("occurrence of %s at [%d,%d) has no catalog entry", elementName(occ.Elem), occ.At.Start, occ.At.End),
			}
		}
		switch occ.Elem.(type) {
		case *sqlast.ArrayVar, *sqlast.FragmentSlot:
			spans = append(spans, occ)
		case *sqlast.ScalarVar:
			// Left as-is in the source text.
		}
	}

	// Ties cannot happen with distinct spans; stable sort keeps document
	// order anyway.
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].At.Start < spans[j].At.Start })

	var t template
	cursor := 0
	for _, occ := range spans {
		if occ.At.Start < 0 || occ.At.End > len(c.SQL) || occ.At.Start > occ.At.End {
			return template{}, &CompileError{
				Code:      ErrCodeSpanOverlap,
				Statement: name,
				Message:   fmt.Sprintf("span [%d,%d) of %s outside source text (len %d)", occ.At.Start, occ.At.End, elementName(occ.Elem), len(c.SQL)),
			}
		}
		if occ.At.Start < cursor {
			return template{}, &CompileError{
				Code:      ErrCodeSpanOverlap,
				Statement: name,
				Message:   fmt.Sprintf("span [%d,%d) of %s overlaps already-consumed text (cursor %d)", occ.At.Start, occ.At.End, elementName(occ.Elem), cursor),
			}
		}
		if occ.At.Start > cursor {
			t.segs = append(t.segs, litSeg(c.SQL[cursor:occ.At.Start]))
		}
		switch e := occ.Elem.(type) {
		case *sqlast.ArrayVar:
			t.segs = append(t.segs, arraySeg{v: e})
		case *sqlast.FragmentSlot:
			t.segs = append(t.segs, fragSeg{s: e})
		}
		cursor = occ.At.End
	}
	if cursor < len(c.SQL) {
		t.segs = append(t.segs, litSeg(c.SQL[cursor:]))
	}

	return t, nil
}
