package manifest

import (
	"fmt"
	"strings"
)

// marker is one placeholder token found in raw manifest SQL: either a
// numbered positional marker `?N` or a named marker `:name`.
type marker struct {
	start, end int    // byte span in the raw SQL
	name       string // set for :name markers
	index      int    // set for ?N markers
}

// scanMarkers finds every placeholder marker in the SQL text.
//
// This is a token scanner, not a SQL parser: it only needs to know enough
// lexical structure to skip string literals, quoted identifiers, and
// comments so markers inside them are not misread. It is the manifest
// loader's half of the upstream-resolver role; the compiler never
// re-scans SQL text.
func scanMarkers(sql string) ([]marker, error) {
	var out []marker
	i := 0
	for i < len(sql) {
		ch := sql[i]
		switch {
		case ch == '\'' || ch == '"' || ch == '`':
			end, err := skipQuoted(sql, i)
			if err != nil {
				return nil, err
			}
			i = end
		case ch == '-' && i+1 < len(sql) && sql[i+1] == '-':
			end := strings.IndexByte(sql[i:], '\n')
			if end < 0 {
				i = len(sql)
			} else {
				i += end + 1
			}
		case ch == '/' && i+1 < len(sql) && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				return nil, fmt.Errorf("unterminated block comment at offset %d", i)
			}
			i += end + 4
		case ch == '?':
			j := i + 1
			for j < len(sql) && sql[j] >= '0' && sql[j] <= '9' {
				j++
			}
			if j == i+1 {
				return nil, fmt.Errorf("bare `?` at offset %d: manifest SQL must use `?N` or `:name` markers", i)
			}
			n := 0
			for _, d := range sql[i+1 : j] {
				n = n*10 + int(d-'0')
			}
			out = append(out, marker{start: i, end: j, index: n})
			i = j
		case ch == ':':
			j := i + 1
			for j < len(sql) && isIdent(sql[j], j > i+1) {
				j++
			}
			if j == i+1 {
				// Lone colon (e.g. a cast or time literal): not a marker.
				i++
				continue
			}
			out = append(out, marker{start: i, end: j, name: sql[i+1 : j]})
			i = j
		default:
			i++
		}
	}
	return out, nil
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
	return 0, fmt.Errorf("unterminated %c-quoted token at offset %d", q, i)
}

func isIdent(ch byte, tail bool) bool {
	switch {
	case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch == '_':
		return true
	case tail && ch >= '0' && ch <= '9':
		return true
	default:
		return false
	}
}
