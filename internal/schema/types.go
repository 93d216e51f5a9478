package schema

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type identifies the stored SQL type of a column or bind parameter.
type Type int

const (
	// Integer is a 64-bit signed integer column.
	Integer Type = iota + 1
	// Real is a floating-point column.
	Real
	// Text is a string column.
	Text
	// Blob is a raw byte column.
	Blob
	// Bool is a boolean column stored as an integer 0/1.
	Bool
	// Time is a timestamp column stored as Unix seconds.
	Time
)

// String returns the lowercase name of the type.
func (t Type) String() string {
	switch t {
	case Integer:
		return "integer"
	case Real:
		return "real"
	case Text:
		return "text"
	case Blob:
		return "blob"
	case Bool:
		return "bool"
	case Time:
		return "time"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// TypeFromString resolves a type name as it appears in schema documents.
func TypeFromString(s string) (Type, error) {
	switch s {
	case "integer":
		return Integer, nil
	case "real":
		return Real, nil
	case "text":
		return Text, nil
	case "blob":
		return Blob, nil
	case "bool":
		return Bool, nil
	case "time":
		return Time, nil
	default:
		return 0, fmt.Errorf("unknown column type %q", s)
	}
}

// Converter transforms between the entity representation of a value and the
// representation stored in the database.
//
// Encode runs when a value is bound as a statement parameter; Decode runs
// when a result column is mapped into an entity. Converters must be
// stateless and safe for concurrent use.
type Converter interface {
	// Name identifies the converter in shape fingerprints and CLI output.
	Name() string
	// Encode converts an entity value to its stored representation.
	Encode(v any) (any, error)
	// Decode converts a stored value to its entity representation.
	Decode(v any) (any, error)
}

// TimeUnix converts between time.Time and Unix seconds stored as int64.
type TimeUnix struct{}

func (TimeUnix) Name() string { return "time.unix" }

func (TimeUnix) Encode(v any) (any, error) {
	t, ok := v.(time.Time)
	if !ok {
		return nil, fmt.Errorf("time.unix: want time.Time, got %T", v)
	}
	return t.Unix(), nil
}

func (TimeUnix) Decode(v any) (any, error) {
	n, ok := asInt64(v)
	if !ok {
		return nil, fmt.Errorf("time.unix: want integer, got %T", v)
	}
	return time.Unix(n, 0).UTC(), nil
}

// BoolInt converts between bool and the stored integers 0 and 1.
type BoolInt struct{}

func (BoolInt) Name() string { return "bool.int" }

func (BoolInt) Encode(v any) (any, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("bool.int: want bool, got %T", v)
	}
	if b {
		return int64(1), nil
	}
	return int64(0), nil
}

func (BoolInt) Decode(v any) (any, error) {
	n, ok := asInt64(v)
	if !ok {
		return nil, fmt.Errorf("bool.int: want integer, got %T", v)
	}
	return n != 0, nil
}

// JSONText converts between arbitrary values and their JSON text form.
type JSONText struct{}

func (JSONText) Name() string { return "json.text" }

func (JSONText) Encode(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json.text: %w", err)
	}
	return string(data), nil
}

func (JSONText) Decode(v any) (any, error) {
	var s string
	switch sv := v.(type) {
	case string:
		s = sv
	case []byte:
		s = string(sv)
	default:
		return nil, fmt.Errorf("json.text: want text, got %T", v)
	}
	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("json.text: %w", err)
	}
	return out, nil
}

// ConverterFromString resolves a converter name as it appears in schema
// documents. An empty name resolves to no converter.
func ConverterFromString(s string) (Converter, error) {
	switch s {
	case "":
		return nil, nil
	case "time.unix":
		return TimeUnix{}, nil
	case "bool.int":
		return BoolInt{}, nil
	case "json.text":
		return JSONText{}, nil
	default:
		return nil, fmt.Errorf("unknown converter %q", s)
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	default:
		return 0, false
	}
}
