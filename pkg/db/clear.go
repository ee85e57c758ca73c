package db

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearStore removes stored module state. With an empty prefix the whole
// table is truncated; otherwise only keys starting with prefix are deleted.
// Schema and migration history are preserved.
func ClearStore(ctx context.Context, pool *pgxpool.Pool, prefix string) (int64, error) {
	if prefix == "" {
		slog.Info(fmt.Sprintf("%s - Truncating module_store", clearLogPrefix))
		if _, err := pool.Exec(ctx, `TRUNCATE TABLE module_store`); err != nil {
			return 0, fmt.Errorf("%s - truncate failed: %w", clearLogPrefix, err)
		}
		return -1, nil
	}

	slog.Info(fmt.Sprintf("%s - Clearing module_store keys with prefix %q", clearLogPrefix, prefix))
	tag, err := pool.Exec(ctx, `DELETE FROM module_store WHERE key LIKE $1`, likePrefix(prefix))
	if err != nil {
		return 0, fmt.Errorf("%s - delete failed: %w", clearLogPrefix, err)
	}
	return tag.RowsAffected(), nil
}

// likePrefix escapes LIKE metacharacters in prefix and appends the wildcard.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
