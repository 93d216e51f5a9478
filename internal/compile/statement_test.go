package compile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quellql/quell/internal/schema"
	"github.com/quellql/quell/internal/sqlast"
)

// spanOf locates the nth occurrence (1-based) of marker in sql.
func spanOf(t *testing.T, sql, marker string, nth int) sqlast.Span {
	t.Helper()
	off := 0
	for i := 0; i < nth; i++ {
		idx := strings.Index(sql[off:], marker)
		require.GreaterOrEqual(t, idx, 0, "marker %q occurrence %d not found", marker, nth)
		off += idx
		if i < nth-1 {
			off += len(marker)
		}
	}
	return sqlast.Span{Start: off, End: off + len(marker)}
}

func testShape() schema.Shape {
	return schema.NewShape("tRow", []schema.Column{
		{Name: "id", Type: schema.Integer},
	})
}

func readQuery(t *testing.T, sql string, elems []sqlast.Element, occs []sqlast.Occurrence) *sqlast.ReadQuery {
	t.Helper()
	return &sqlast.ReadQuery{
		QueryCommon: sqlast.QueryCommon{
			Name:        "q",
			SQL:         sql,
			Elements:    elems,
			Occurrences: occs,
		},
		Shape:     testShape(),
		ReadsFrom: []string{"t"},
	}
}

func TestBind_ArrayExpansionFromIndexOne(t *testing.T) {
	// No static indices: the expansion starts at 1.
	xs := &sqlast.ArrayVar{Name: "xs", Elem: schema.Integer}
	sql := "SELECT * FROM t WHERE x IN ?1"

	q := readQuery(t, sql, []sqlast.Element{xs}, []sqlast.Occurrence{
		{Elem: xs, At: spanOf(t, sql, "?1", 1)},
	})

	st, err := CompileRead(NewContext(), q)
	require.NoError(t, err)

	b, err := st.Bind([]int{10, 20, 30})
	require.NoError(t, err)

	assert.Equal(t, "SELECT * FROM t WHERE x IN (?1,?2,?3)", b.SQL)
	assert.Equal(t, []any{10, 20, 30}, b.Args)
}

func TestBind_SharedArrayExpandsOnce(t *testing.T) {
	// The same array variable in two clauses resolves to one expansion;
	// both rewritten occurrences reference the identical marker run.
	a := &sqlast.ScalarVar{Name: "a", Index: 1, Type: schema.Text}
	vars := &sqlast.ArrayVar{Name: "vars", Elem: schema.Integer}
	d := &sqlast.ScalarVar{Name: "d", Index: 2, Type: schema.Text}
	sql := "SELECT * FROM t WHERE a = ?1 AND b IN :vars OR c IN :vars AND d = ?2"

	q := readQuery(t, sql, []sqlast.Element{a, vars, d}, []sqlast.Occurrence{
		{Elem: a, At: spanOf(t, sql, "?1", 1)},
		{Elem: vars, At: spanOf(t, sql, ":vars", 1)},
		{Elem: vars, At: spanOf(t, sql, ":vars", 2)},
		{Elem: d, At: spanOf(t, sql, "?2", 1)},
	})

	st, err := CompileRead(NewContext(), q)
	require.NoError(t, err)

	b, err := st.Bind("A", []int{7, 8}, "D")
	require.NoError(t, err)

	assert.Equal(t, "SELECT * FROM t WHERE a = ?1 AND b IN (?3,?4) OR c IN (?3,?4) AND d = ?2", b.SQL)

	// Flat list in bind-index order: statics 1..2, then the expansion.
	assert.Equal(t, []any{"A", "D", 7, 8}, b.Args)
	assert.Len(t, b.Args, 4)
}

func TestBind_TemplateParameterCountAgreement(t *testing.T) {
	// Distinct marker indices in the expanded SQL must equal the flat
	// parameter list length, whatever the array lengths.
	a := &sqlast.ScalarVar{Name: "a", Index: 1, Type: schema.Integer}
	xs := &sqlast.ArrayVar{Name: "xs", Elem: schema.Integer}
	ys := &sqlast.ArrayVar{Name: "ys", Elem: schema.Text}
	sql := "SELECT * FROM t WHERE a = ?1 AND x IN :xs AND y IN :ys"

	q := readQuery(t, sql, []sqlast.Element{a, xs, ys}, []sqlast.Occurrence{
		{Elem: a, At: spanOf(t, sql, "?1", 1)},
		{Elem: xs, At: spanOf(t, sql, ":xs", 1)},
		{Elem: ys, At: spanOf(t, sql, ":ys", 1)},
	})

	st, err := CompileRead(NewContext(), q)
	require.NoError(t, err)

	cases := []struct {
		name string
		xs   []int
		ys   []string
	}{
		{"both empty", nil, nil},
		{"first empty", nil, []string{"p"}},
		{"short", []int{1}, []string{"p", "q"}},
		{"long", []int{1, 2, 3, 4}, []string{"p"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := st.Bind(5, tc.xs, tc.ys)
			require.NoError(t, err)
			assert.Equal(t, len(b.Args), distinctMarkers(b.SQL))
			assert.Equal(t, 1+len(tc.xs)+len(tc.ys), len(b.Args))
		})
	}
}

// distinctMarkers counts distinct ?N markers in expanded SQL.
func distinctMarkers(sql string) int {
	seen := map[string]bool{}
	for i := 0; i < len(sql); i++ {
		if sql[i] != '?' {
			continue
		}
		j := i + 1
		for j < len(sql) && sql[j] >= '0' && sql[j] <= '9' {
			j++
		}
		seen[sql[i:j]] = true
		i = j - 1
	}
	return len(seen)
}

func TestBind_IndexMonotonicity(t *testing.T) {
	// Successive dynamic elements occupy strictly later index ranges,
	// each array's width equal to its bound length.
	xs := &sqlast.ArrayVar{Name: "xs", Elem: schema.Integer}
	ys := &sqlast.ArrayVar{Name: "ys", Elem: schema.Integer}
	sql := "SELECT * FROM t WHERE x IN :xs AND y IN :ys"

	q := readQuery(t, sql, []sqlast.Element{xs, ys}, []sqlast.Occurrence{
		{Elem: xs, At: spanOf(t, sql, ":xs", 1)},
		{Elem: ys, At: spanOf(t, sql, ":ys", 1)},
	})

	st, err := CompileRead(NewContext(), q)
	require.NoError(t, err)

	b, err := st.Bind([]int{1, 2, 3}, []int{4, 5})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE x IN (?1,?2,?3) AND y IN (?4,?5)", b.SQL)
	assert.Equal(t, []any{1, 2, 3, 4, 5}, b.Args)
}

func TestBind_EmptyArrayRendersNull(t *testing.T) {
	xs := &sqlast.ArrayVar{Name: "xs", Elem: schema.Integer}
	sql := "SELECT * FROM t WHERE x IN :xs"

	q := readQuery(t, sql, []sqlast.Element{xs}, []sqlast.Occurrence{
		{Elem: xs, At: spanOf(t, sql, ":xs", 1)},
	})

	st, err := CompileRead(NewContext(), q)
	require.NoError(t, err)

	b, err := st.Bind([]int{})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE x IN (NULL)", b.SQL)
	assert.Empty(t, b.Args)
}

func TestBind_FragmentContinuesIndexSequence(t *testing.T) {
	x := &sqlast.ScalarVar{Name: "x", Index: 1, Type: schema.Text}
	cond := &sqlast.FragmentSlot{Name: "cond"}
	sql := "SELECT * FROM t WHERE x = ?1 AND :cond"

	q := readQuery(t, sql, []sqlast.Element{x, cond}, []sqlast.Occurrence{
		{Elem: x, At: spanOf(t, sql, "?1", 1)},
		{Elem: cond, At: spanOf(t, sql, ":cond", 1)},
	})

	st, err := CompileRead(NewContext(), q)
	require.NoError(t, err)

	b, err := st.Bind("X", Fragment{SQL: "y > ? AND z < ?", Args: []any{1, 9}})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE x = ?1 AND y > ?2 AND z < ?3", b.SQL)
	assert.Equal(t, []any{"X", 1, 9}, b.Args)
}

func TestBind_FragmentMarkerMismatch(t *testing.T) {
	cond := &sqlast.FragmentSlot{Name: "cond"}
	sql := "SELECT * FROM t WHERE :cond"

	q := readQuery(t, sql, []sqlast.Element{cond}, []sqlast.Occurrence{
		{Elem: cond, At: spanOf(t, sql, ":cond", 1)},
	})

	st, err := CompileRead(NewContext(), q)
	require.NoError(t, err)

	_, err = st.Bind(Fragment{SQL: "y > ?", Args: []any{1, 2}})
	require.Error(t, err)
	var be *BindError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, ErrCodeBadFragment, be.Code)
}

func TestBind_FragmentMarkersInLiteralsIgnored(t *testing.T) {
	cond := &sqlast.FragmentSlot{Name: "cond"}
	sql := "SELECT * FROM t WHERE :cond"

	q := readQuery(t, sql, []sqlast.Element{cond}, []sqlast.Occurrence{
		{Elem: cond, At: spanOf(t, sql, ":cond", 1)},
	})

	st, err := CompileRead(NewContext(), q)
	require.NoError(t, err)

	b, err := st.Bind(Fragment{SQL: "note = 'what?' AND y = ?", Args: []any{3}})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE note = 'what?' AND y = ?1", b.SQL)
	assert.Equal(t, []any{3}, b.Args)
}

func TestBind_ContractViolations(t *testing.T) {
	x := &sqlast.ScalarVar{Name: "x", Index: 1, Type: schema.Integer}
	xs := &sqlast.ArrayVar{Name: "xs", Elem: schema.Integer}
	sql := "SELECT * FROM t WHERE x = ?1 AND y IN :xs"

	q := readQuery(t, sql, []sqlast.Element{x, xs}, []sqlast.Occurrence{
		{Elem: x, At: spanOf(t, sql, "?1", 1)},
		{Elem: xs, At: spanOf(t, sql, ":xs", 1)},
	})

	st, err := CompileRead(NewContext(), q)
	require.NoError(t, err)

	t.Run("arity", func(t *testing.T) {
		_, err := st.Bind(1)
		var be *BindError
		require.ErrorAs(t, err, &be)
		assert.Equal(t, ErrCodeArity, be.Code)
	})

	t.Run("scalar where collection expected", func(t *testing.T) {
		_, err := st.Bind(1, 2)
		var be *BindError
		require.ErrorAs(t, err, &be)
		assert.Equal(t, ErrCodeNotCollection, be.Code)
		assert.Equal(t, "xs", be.Param)
	})

	t.Run("nil collection", func(t *testing.T) {
		_, err := st.Bind(1, nil)
		var be *BindError
		require.ErrorAs(t, err, &be)
		assert.Equal(t, ErrCodeNotCollection, be.Code)
	})

	t.Run("bytes are not a collection", func(t *testing.T) {
		_, err := st.Bind(1, []byte("xy"))
		var be *BindError
		require.ErrorAs(t, err, &be)
		assert.Equal(t, ErrCodeNotCollection, be.Code)
	})
}

func TestBind_ConverterEncodesScalarAndElements(t *testing.T) {
	on := &sqlast.ScalarVar{Name: "on", Index: 1, Type: schema.Bool, Convert: schema.BoolInt{}}
	flags := &sqlast.ArrayVar{Name: "flags", Elem: schema.Bool, Convert: schema.BoolInt{}}
	sql := "SELECT * FROM t WHERE on = ?1 AND f IN :flags"

	q := readQuery(t, sql, []sqlast.Element{on, flags}, []sqlast.Occurrence{
		{Elem: on, At: spanOf(t, sql, "?1", 1)},
		{Elem: flags, At: spanOf(t, sql, ":flags", 1)},
	})

	st, err := CompileRead(NewContext(), q)
	require.NoError(t, err)

	b, err := st.Bind(true, []bool{false, true})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(0), int64(1)}, b.Args)

	_, err = st.Bind("yes", []bool{true})
	var be *BindError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, ErrCodeBadValue, be.Code)
}

func TestCompile_InvariantViolations(t *testing.T) {
	shape := testShape()

	t.Run("orphan occurrence", func(t *testing.T) {
		xs := &sqlast.ArrayVar{Name: "xs", Elem: schema.Integer}
		sql := "SELECT * FROM t WHERE x IN :xs"
		q := &sqlast.ReadQuery{
			QueryCommon: sqlast.QueryCommon{
				Name: "q", SQL: sql,
				Elements:    nil, // occurrence has no catalog entry
				Occurrences: []sqlast.Occurrence{{Elem: xs, At: spanOf(t, sql, ":xs", 1)}},
			},
			Shape: shape, ReadsFrom: []string{"t"},
		}
		_, err := CompileRead(NewContext(), q)
		var ce *CompileError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, ErrCodeOrphanOccurrence, ce.Code)
		assert.True(t, IsInvariantViolation(err))
	})

	t.Run("overlapping spans", func(t *testing.T) {
		xs := &sqlast.ArrayVar{Name: "xs", Elem: schema.Integer}
		ys := &sqlast.ArrayVar{Name: "ys", Elem: schema.Integer}
		sql := "SELECT * FROM t WHERE x IN :xsys"
		q := &sqlast.ReadQuery{
			QueryCommon: sqlast.QueryCommon{
				Name: "q", SQL: sql,
				Elements: []sqlast.Element{xs, ys},
				Occurrences: []sqlast.Occurrence{
					{Elem: xs, At: sqlast.Span{Start: 27, End: 31}},
					{Elem: ys, At: sqlast.Span{Start: 29, End: 32}},
				},
			},
			Shape: shape, ReadsFrom: []string{"t"},
		}
		_, err := CompileRead(NewContext(), q)
		var ce *CompileError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, ErrCodeSpanOverlap, ce.Code)
	})

	t.Run("span outside source", func(t *testing.T) {
		xs := &sqlast.ArrayVar{Name: "xs", Elem: schema.Integer}
		sql := "SELECT 1"
		q := &sqlast.ReadQuery{
			QueryCommon: sqlast.QueryCommon{
				Name: "q", SQL: sql,
				Elements:    []sqlast.Element{xs},
				Occurrences: []sqlast.Occurrence{{Elem: xs, At: sqlast.Span{Start: 4, End: 99}}},
			},
			Shape: shape, ReadsFrom: []string{"t"},
		}
		_, err := CompileRead(NewContext(), q)
		var ce *CompileError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, ErrCodeSpanOverlap, ce.Code)
	})

	t.Run("duplicate static index", func(t *testing.T) {
		a := &sqlast.ScalarVar{Name: "a", Index: 1, Type: schema.Integer}
		b := &sqlast.ScalarVar{Name: "b", Index: 1, Type: schema.Integer}
		q := &sqlast.ReadQuery{
			QueryCommon: sqlast.QueryCommon{Name: "q", SQL: "SELECT ?1", Elements: []sqlast.Element{a, b}},
			Shape:       shape, ReadsFrom: []string{"t"},
		}
		_, err := CompileRead(NewContext(), q)
		var ce *CompileError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, ErrCodeDuplicateElement, ce.Code)
	})

	t.Run("static index gap", func(t *testing.T) {
		a := &sqlast.ScalarVar{Name: "a", Index: 2, Type: schema.Integer}
		q := &sqlast.ReadQuery{
			QueryCommon: sqlast.QueryCommon{Name: "q", SQL: "SELECT ?2", Elements: []sqlast.Element{a}},
			Shape:       shape, ReadsFrom: []string{"t"},
		}
		_, err := CompileRead(NewContext(), q)
		var ce *CompileError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, ErrCodeStaticIndexGap, ce.Code)
	})
}

func TestCompile_Names(t *testing.T) {
	t.Run("declared name wins", func(t *testing.T) {
		q := readQuery(t, "SELECT 1", nil, nil)
		st, err := CompileRead(NewContext(), q)
		require.NoError(t, err)
		assert.Equal(t, "q", st.Name())
	})

	t.Run("anonymous read derives from shape", func(t *testing.T) {
		q := readQuery(t, "SELECT 1", nil, nil)
		q.Name = ""
		st, err := CompileRead(NewContext(), q)
		require.NoError(t, err)
		assert.Equal(t, "selectTRow", st.Name())
	})

	t.Run("managed statements must be named", func(t *testing.T) {
		q := readQuery(t, "SELECT 1", nil, nil)
		q.Name = ""
		q.Managed = true
		_, err := CompileRead(NewContext(), q)
		var ce *CompileError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, ErrCodeMissingName, ce.Code)
	})

	t.Run("anonymous write derives from write-set", func(t *testing.T) {
		q := &sqlast.WriteQuery{
			QueryCommon: sqlast.QueryCommon{SQL: "DELETE FROM users"},
			Updates:     []string{"users"},
		}
		st, err := CompileWrite(q)
		require.NoError(t, err)
		assert.Equal(t, "writeUsers", st.Name())
	})
}

func TestCompile_TableSetsSortedAndDeduped(t *testing.T) {
	q := readQuery(t, "SELECT 1", nil, nil)
	q.ReadsFrom = []string{"orders", "users", "orders"}
	st, err := CompileRead(NewContext(), q)
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "users"}, st.ReadsFrom())

	w := &sqlast.WriteQuery{
		QueryCommon: sqlast.QueryCommon{Name: "w", SQL: "DELETE FROM users"},
		Updates:     []string{"users", "audit", "users"},
	}
	ws, err := CompileWrite(w)
	require.NoError(t, err)
	assert.Equal(t, []string{"audit", "users"}, ws.Updates())
}

func TestCompile_StaticOnlyTemplateUntouched(t *testing.T) {
	// No dynamic elements: the source text passes through byte-for-byte
	// and static indices are used directly.
	a := &sqlast.ScalarVar{Name: "a", Index: 1, Type: schema.Integer}
	b := &sqlast.ScalarVar{Name: "b", Index: 2, Type: schema.Text}
	sql := "UPDATE t SET b = ?2 WHERE a = ?1"

	q := &sqlast.WriteQuery{
		QueryCommon: sqlast.QueryCommon{
			Name: "w", SQL: sql,
			Elements: []sqlast.Element{a, b},
			Occurrences: []sqlast.Occurrence{
				{Elem: a, At: spanOf(t, sql, "?1", 1)},
				{Elem: b, At: spanOf(t, sql, "?2", 1)},
			},
		},
		Updates: []string{"t"},
	}

	st, err := CompileWrite(q)
	require.NoError(t, err)
	assert.Equal(t, sql, st.Template())

	bound, err := st.Bind(7, "name")
	require.NoError(t, err)
	assert.Equal(t, sql, bound.SQL)
	assert.Equal(t, []any{7, "name"}, bound.Args)
}
