package runtime

import (
	"context"
	"fmt"

	"github.com/quellql/quell/internal/compile"
)

// Exec runs a compiled write statement and resolves to the number of
// affected rows. On success the statement's write-set is published to the
// notifier so dependent read subscriptions re-fetch.
func Exec(ctx context.Context, db *DB, n *Notifier, stmt *compile.WriteStatement, args ...any) (int64, error) {
	binding, err := stmt.Bind(args...)
	if err != nil {
		return 0, err
	}

	res, err := db.ExecContext(ctx, binding.SQL, binding.Args...)
	if err != nil {
		return 0, fmt.Errorf("exec %s: %w", stmt.Name(), err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("exec %s: %w", stmt.Name(), err)
	}

	if n != nil {
		n.Notify(stmt.Updates()...)
	}

	return affected, nil
}
