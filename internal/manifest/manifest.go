// Package manifest loads query definition documents and resolves them into
// statement catalogs for the compiler.
//
// A manifest is a YAML document declaring named queries: SQL text, typed
// parameters, and either a result shape (reads) or a write-set (writes).
// Resolution scans the SQL for placeholder markers, ties every occurrence
// to its declared parameter, and normalizes named scalar markers to the
// numbered form the compiled template binds positionally.
package manifest

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/quellql/quell/internal/schema"
	"github.com/quellql/quell/internal/sqlast"
)

// Document is the root of a query manifest.
type Document struct {
	Queries []QueryDoc `yaml:"queries"`
}

// QueryDoc declares one query.
type QueryDoc struct {
	Name string `yaml:"name"`
	// Kind is "read" or "write".
	Kind string `yaml:"kind"`
	SQL  string `yaml:"sql"`
	// Params declares the statement parameters in source declaration
	// order; invocation arguments follow this order.
	Params []ParamDoc `yaml:"params,omitempty"`
	// Shape names a table whose full column set is the result shape.
	Shape string `yaml:"shape,omitempty"`
	// Columns declares a statement-specific result shape instead.
	Columns   []ColumnDoc `yaml:"columns,omitempty"`
	ReadsFrom []string    `yaml:"reads_from,omitempty"`
	Updates   []string    `yaml:"updates,omitempty"`
}

// ParamDoc declares one statement parameter.
type ParamDoc struct {
	Name      string `yaml:"name"`
	Type      string `yaml:"type,omitempty"`
	Array     bool   `yaml:"array,omitempty"`
	Fragment  bool   `yaml:"fragment,omitempty"`
	Converter string `yaml:"converter,omitempty"`
}

// ColumnDoc declares one result column of a statement-specific shape.
type ColumnDoc struct {
	Name      string `yaml:"name"`
	Type      string `yaml:"type"`
	Nullable  bool   `yaml:"nullable,omitempty"`
	Converter string `yaml:"converter,omitempty"`
}

// Load reads a manifest file and resolves it against the given tables.
func Load(path string, tables map[string]schema.Table) ([]sqlast.Statement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	return Parse(data, tables)
}

// Parse unmarshals and resolves a manifest document, failing on the first
// invalid query.
func Parse(data []byte, tables map[string]schema.Table) ([]sqlast.Statement, error) {
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}

	stmts := make([]sqlast.Statement, 0, len(doc.Queries))
	for _, q := range doc.Queries {
		stmt, err := ResolveQuery(q, tables)
		if err != nil {
			return nil, fmt.Errorf("query %q: %w", q.Name, err)
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

// ParseDocument unmarshals a manifest without resolving its queries.
// Callers that want per-query error collection resolve each QueryDoc
// themselves with ResolveQuery.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(doc.Queries) == 0 {
		return nil, fmt.Errorf("parse manifest: no queries declared")
	}
	return &doc, nil
}

// ResolveQuery builds the statement catalog for one declared query.
func ResolveQuery(q QueryDoc, tables map[string]schema.Table) (sqlast.Statement, error) {
	if q.Name == "" {
		return nil, fmt.Errorf("manifest queries must be named")
	}
	if strings.TrimSpace(q.SQL) == "" {
		return nil, fmt.Errorf("sql must not be empty")
	}

	elems, byName, err := resolveParams(q.Params)
	if err != nil {
		return nil, err
	}

	sql, occs, err := resolveMarkers(q.SQL, elems, byName)
	if err != nil {
		return nil, err
	}

	common := sqlast.QueryCommon{
		Name:        q.Name,
		SQL:         sql,
		Elements:    elems,
		Occurrences: occs,
		Managed:     true,
	}

	switch q.Kind {
	case "read":
		shape, err := resolveShape(q, tables)
		if err != nil {
			return nil, err
		}
		if len(q.ReadsFrom) == 0 {
			return nil, fmt.Errorf("read queries must declare reads_from")
		}
		for _, t := range q.ReadsFrom {
			if _, ok := tables[t]; !ok {
				return nil, fmt.Errorf("reads_from references unknown table %q", t)
			}
		}
		return &sqlast.ReadQuery{QueryCommon: common, Shape: shape, ReadsFrom: q.ReadsFrom}, nil
	case "write":
		if len(q.Updates) == 0 {
			return nil, fmt.Errorf("write queries must declare updates")
		}
		for _, t := range q.Updates {
			if _, ok := tables[t]; !ok {
				return nil, fmt.Errorf("updates references unknown table %q", t)
			}
		}
		return &sqlast.WriteQuery{QueryCommon: common, Updates: q.Updates}, nil
	default:
		return nil, fmt.Errorf("kind must be \"read\" or \"write\", got %q", q.Kind)
	}
}

// resolveParams builds catalog elements in declaration order. Scalar
// parameters receive contiguous 1-based static indices by declaration
// order, which is what `?N` markers in the SQL refer to.
func resolveParams(params []ParamDoc) ([]sqlast.Element, map[string]sqlast.Element, error) {
	elems := make([]sqlast.Element, 0, len(params))
	byName := make(map[string]sqlast.Element, len(params))

	nextIndex := 0
	for _, p := range params {
		if p.Name == "" {
			return nil, nil, fmt.Errorf("params must be named")
		}
		if _, dup := byName[p.Name]; dup {
			return nil, nil, fmt.Errorf("duplicate param %q", p.Name)
		}

		var elem sqlast.Element
		switch {
		case p.Fragment:
			if p.Type != "" || p.Array {
				return nil, nil, fmt.Errorf("param %q: fragment params carry no type", p.Name)
			}
			elem = &sqlast.FragmentSlot{Name: p.Name}
		case p.Array:
			t, conv, err := paramType(p)
			if err != nil {
				return nil, nil, err
			}
			elem = &sqlast.ArrayVar{Name: p.Name, Elem: t, Convert: conv}
		default:
			t, conv, err := paramType(p)
			if err != nil {
				return nil, nil, err
			}
			nextIndex++
			elem = &sqlast.ScalarVar{Name: p.Name, Index: nextIndex, Type: t, Convert: conv}
		}
		elems = append(elems, elem)
		byName[p.Name] = elem
	}
	return elems, byName, nil
}

func paramType(p ParamDoc) (schema.Type, schema.Converter, error) {
	t, err := schema.TypeFromString(p.Type)
	if err != nil {
		return 0, nil, fmt.Errorf("param %q: %w", p.Name, err)
	}
	conv, err := schema.ConverterFromString(p.Converter)
	if err != nil {
		return 0, nil, fmt.Errorf("param %q: %w", p.Name, err)
	}
	return t, conv, nil
}

// resolveMarkers ties every scanned marker to its catalog element and
// rebuilds the SQL text with named scalar markers normalized to `?N`.
// Array and fragment markers keep their source text; the compiler rewrites
// those spans itself.
func resolveMarkers(sql string, elems []sqlast.Element, byName map[string]sqlast.Element) (string, []sqlast.Occurrence, error) {
	markers, err := scanMarkers(sql)
	if err != nil {
		return "", nil, err
	}

	scalarByIndex := make(map[int]sqlast.Element)
	for _, e := range elems {
		if v, ok := e.(*sqlast.ScalarVar); ok {
			scalarByIndex[v.Index] = v
		}
	}

	var sb strings.Builder
	var occs []sqlast.Occurrence
	referenced := make(map[sqlast.Element]bool)
	cursor := 0
	for _, m := range markers {
		sb.WriteString(sql[cursor:m.start])

		var elem sqlast.Element
		var text string
		switch {
		case m.index > 0:
			e, ok := scalarByIndex[m.index]
			if !ok {
				return "", nil, fmt.Errorf("marker ?%d has no scalar param at that position", m.index)
			}
			elem = e
			text = sql[m.start:m.end]
		default:
			e, ok := byName[m.name]
			if !ok {
				return "", nil, fmt.Errorf("marker :%s references undeclared param", m.name)
			}
			elem = e
			if v, isScalar := e.(*sqlast.ScalarVar); isScalar {
				text = fmt.Sprintf("?%d", v.Index)
			} else {
				text = sql[m.start:m.end]
			}
		}

		start := sb.Len()
		sb.WriteString(text)
		occs = append(occs, sqlast.Occurrence{Elem: elem, At: sqlast.Span{Start: start, End: sb.Len()}})
		referenced[elem] = true
		cursor = m.end
	}
	sb.WriteString(sql[cursor:])

	for _, e := range elems {
		if !referenced[e] {
			return "", nil, fmt.Errorf("param %q is declared but never referenced", paramName(e))
		}
	}
	return sb.String(), occs, nil
}

func paramName(e sqlast.Element) string {
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

// resolveShape picks the query's result shape: table-backed via Shape, or
// statement-specific via Columns.
func resolveShape(q QueryDoc, tables map[string]schema.Table) (schema.Shape, error) {
	switch {
	case q.Shape != "" && len(q.Columns) > 0:
		return schema.Shape{}, fmt.Errorf("declare shape or columns, not both")
	case q.Shape != "":
		t, ok := tables[q.Shape]
		if !ok {
			return schema.Shape{}, fmt.Errorf("shape references unknown table %q", q.Shape)
		}
		return schema.TableShape(t), nil
	case len(q.Columns) > 0:
		cols := make([]schema.Column, 0, len(q.Columns))
		for _, c := range q.Columns {
			t, err := schema.TypeFromString(c.Type)
			if err != nil {
				return schema.Shape{}, fmt.Errorf("column %q: %w", c.Name, err)
			}
			conv, err := schema.ConverterFromString(c.Converter)
			if err != nil {
				return schema.Shape{}, fmt.Errorf("column %q: %w", c.Name, err)
			}
			cols = append(cols, schema.Column{Name: c.Name, Type: t, Nullable: c.Nullable, Convert: conv})
		}
		return schema.NewShape(q.Name+"Row", cols), nil
	default:
		return schema.Shape{}, fmt.Errorf("read queries must declare a shape or columns")
	}
}
