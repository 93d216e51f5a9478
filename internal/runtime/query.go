package runtime

import (
	"context"
	"fmt"

	"github.com/quellql/quell/internal/compile"
)

// Query is a lazily-evaluated bound read: a compiled read statement plus
// one set of arguments. The same Query may be fetched repeatedly, and the
// same statement may back many Queries with different arguments; the
// template is never recompiled.
type Query struct {
	stmt *compile.ReadStatement
	args []any
}

// NewQuery binds arguments to a compiled read statement. Argument errors
// are reported by the first fetch, not here; binding is per-invocation.
func NewQuery(stmt *compile.ReadStatement, args ...any) *Query {
	return &Query{stmt: stmt, args: args}
}

// All performs the one-shot fetch: it resolves to the complete mapped
// result collection, or an error, never a partial result. A one-shot
// fetch is not cancellable once the underlying query has been issued.
func (q *Query) All(ctx context.Context, db *DB) ([]compile.Record, error) {
	binding, err := q.stmt.Bind(q.args...)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, binding.SQL, binding.Args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.stmt.Name(), err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.stmt.Name(), err)
	}

	mapper := q.stmt.Mapper()
	var out []compile.Record
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("query %s: %w", q.stmt.Name(), err)
		}
		rec, err := mapper.Map(cols, vals)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", q.stmt.Name(), err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", q.stmt.Name(), err)
	}

	return out, nil
}

// Update is one emission of a watched query.
type Update struct {
	// Token identifies the subscription that produced the emission.
	Token string
	// Rows is the full mapped result collection, nil when Err is set.
	Rows []compile.Record
	// Err reports a failed re-fetch. The subscription stays registered;
	// a later write triggers another attempt.
	Err error
}

// Watch subscribes to the query's read-set and returns a channel of
// result emissions.
//
// The current result is emitted immediately. Afterwards, each burst of
// writes touching the read-set triggers at most one re-fetch: signals
// arriving while a fetch or emission is in flight coalesce. Cancelling
// ctx stops re-fetching, deregisters the subscription, and closes the
// channel.
func (q *Query) Watch(ctx context.Context, db *DB, n *Notifier) <-chan Update {
	sub := n.subscribe(q.stmt.ReadsFrom())
	out := make(chan Update)

	go func() {
		defer close(out)
		defer n.unsubscribe(sub)

		emit := func() bool {
			rows, err := q.All(ctx, db)
			upd := Update{Token: sub.token, Rows: rows, Err: err}
			select {
			case out <- upd:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.signal:
				if !emit() {
					return
				}
			}
		}
	}()

	return out
}
