package compile

import (
	"fmt"

	"github.com/quellql/quell/internal/schema"
)

// Record is one mapped result row: entity-form values keyed by column name.
type Record map[string]any

// Mapper maps raw result rows of one shape into Records.
//
// Exactly one Mapper exists per distinct shape fingerprint within a
// compilation Context; read statements sharing a shape share the Mapper
// value. Pointer identity is the sharing guarantee tests rely on.
type Mapper struct {
	shape schema.Shape
}

// Shape returns the shape the mapper was registered for.
func (m *Mapper) Shape() schema.Shape { return m.shape }

// Map converts one raw row into a Record.
//
// cols is the column-name header of the result set; vals holds the stored
// values in the same order. Each shape column is read by name and run
// through its converter. A shape column absent from the result set is a
// contract violation by the executing statement and surfaces as an error.
func (m *Mapper) Map(cols []string, vals []any) (Record, error) {
	pos := make(map[string]int, len(cols))
	for i, c := range cols {
		pos[c] = i
	}
	rec := make(Record, len(m.shape.Columns))
	for _, col := range m.shape.Columns {
		i, ok := pos[col.Name]
		if !ok {
			return nil, fmt.Errorf("map row: result set has no column %q", col.Name)
		}
		v := vals[i]
		if v == nil {
			if !col.Nullable {
				return nil, fmt.Errorf("map row: NULL in non-nullable column %q", col.Name)
			}
			rec[col.Name] = nil
			continue
		}
		// Drivers may return TEXT values as []byte; entity form is string.
		if b, ok := v.([]byte); ok && col.Type == schema.Text {
			v = string(b)
		}
		if col.Convert != nil {
			decoded, err := col.Convert.Decode(v)
			if err != nil {
				return nil, fmt.Errorf("map row: column %q: %w", col.Name, err)
			}
			v = decoded
		}
		rec[col.Name] = v
	}
	return rec, nil
}

// Context is the state shared by one compilation batch: the registry of
// already-emitted row mappers, keyed by shape fingerprint.
//
// A Context is owned by its caller and passed explicitly into every
// compilation. It is not safe for concurrent use; callers batching
// compilations across goroutines must synchronize or use one Context per
// goroutine.
type Context struct {
	mappers map[string]*Mapper
}

// NewContext creates an empty compilation context.
func NewContext() *Context {
	return &Context{mappers: make(map[string]*Mapper)}
}

// mapperFor returns the mapper registered for the shape, registering it on
// first request. Registration is idempotent and never fails.
func (c *Context) mapperFor(shape schema.Shape) *Mapper {
	key := shape.Fingerprint()
	if m, ok := c.mappers[key]; ok {
		return m
	}
	m := &Mapper{shape: shape}
	c.mappers[key] = m
	return m
}

// MapperCount reports how many distinct mappers the context has emitted.
func (c *Context) MapperCount() int { return len(c.mappers) }
