package extstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/matakeeper/internal/dbx"
)

// recordsRepo is the row-level access to the records table. It works on
// either a connection or a transaction.
type recordsRepo struct {
	db      dbx.DBTX
	dialect dbx.Dialect
}

func newRecordsRepo(db dbx.DBTX, dialect dbx.Dialect) *recordsRepo {
	return &recordsRepo{db: db, dialect: dialect}
}

func (r *recordsRepo) getMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(keys)), ", ")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	return r.query(ctx, `SELECT key, value FROM records WHERE key IN (`+placeholders+`)`, args...)
}

func (r *recordsRepo) list(ctx context.Context) (map[string][]byte, error) {
	return r.query(ctx, `SELECT key, value FROM records`)
}

func (r *recordsRepo) query(ctx context.Context, q string, args ...any) (map[string][]byte, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan record row: %w", err)
		}
		result[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate record rows: %w", err)
	}
	return result, nil
}

func (r *recordsRepo) upsert(ctx context.Context, key string, value []byte, updatedAt int64) error {
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(`
		INSERT INTO records (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`), key, string(value), updatedAt)
	if err != nil {
		return fmt.Errorf("failed to set record[%s]: %w", key, err)
	}
	return nil
}

func (r *recordsRepo) delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(`DELETE FROM records WHERE key = ?`), key)
	if err != nil {
		return fmt.Errorf("failed to delete record[%s]: %w", key, err)
	}
	return nil
}

func (r *recordsRepo) bytesInUse(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(LENGTH(key) + LENGTH(value)), 0) FROM records`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to measure records: %w", err)
	}
	return n, nil
}
