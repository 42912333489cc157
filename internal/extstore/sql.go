package extstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/dmitrijs2005/matakeeper/internal/common"
	"github.com/dmitrijs2005/matakeeper/internal/dbx"
	"github.com/dmitrijs2005/matakeeper/internal/logging"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// SQLStore keeps records in SQLite or Postgres.
type SQLStore struct {
	db      *sql.DB
	dialect dbx.Dialect
	quota   int64
	log     logging.Logger
	now     func() time.Time
}

// NewSQLStore wraps an already migrated database. quota <= 0 disables the
// capacity check.
func NewSQLStore(db *sql.DB, dialect dbx.Dialect, quota int64, log logging.Logger) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: dialect,
		quota:   quota,
		log:     log.With("module", "extstore"),
		now:     time.Now,
	}
}

// Open connects with the given driver, migrates and returns the store.
func Open(ctx context.Context, driver, dsn string, quota int64, log logging.Logger) (*SQLStore, error) {
	dialect, err := dbx.ParseDialect(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == dbx.SQLite {
		// one writer; also keeps ":memory:" databases on a single connection
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	if err := Migrate(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, err
	}

	return NewSQLStore(db, dialect, quota, log), nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) repo(db dbx.DBTX) *recordsRepo {
	return newRecordsRepo(db, s.dialect)
}

func (s *SQLStore) Get(ctx context.Context, keys ...string) (map[string]any, error) {
	if len(keys) == 0 {
		return s.All(ctx)
	}
	raw, err := s.repo(s.db).getMany(ctx, keys)
	if err != nil {
		return nil, err
	}
	return s.decodeAll(ctx, raw), nil
}

func (s *SQLStore) All(ctx context.Context) (map[string]any, error) {
	raw, err := s.repo(s.db).list(ctx)
	if err != nil {
		return nil, err
	}
	return s.decodeAll(ctx, raw), nil
}

func (s *SQLStore) Set(ctx context.Context, items map[string]any) error {
	if len(items) == 0 {
		return nil
	}

	keys := make([]string, 0, len(items))
	encoded := make(map[string][]byte, len(items))
	for k, v := range items {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode record[%s]: %w", k, err)
		}
		keys = append(keys, k)
		encoded[k] = b
	}
	sort.Strings(keys)

	ts := common.UnixMillis(s.now())

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		r := s.repo(tx)
		for _, k := range keys {
			if err := r.upsert(ctx, k, encoded[k], ts); err != nil {
				return err
			}
		}
		if s.quota <= 0 {
			return nil
		}
		used, err := r.bytesInUse(ctx)
		if err != nil {
			return err
		}
		if used > s.quota {
			return fmt.Errorf("%w: %d of %d bytes", common.ErrQuotaExceeded, used, s.quota)
		}
		return nil
	})
}

func (s *SQLStore) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		r := s.repo(tx)
		for _, k := range keys {
			if err := r.delete(ctx, k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLStore) BytesInUse(ctx context.Context) (int64, error) {
	return s.repo(s.db).bytesInUse(ctx)
}

func (s *SQLStore) Quota(ctx context.Context) (Usage, error) {
	used, err := s.BytesInUse(ctx)
	if err != nil {
		return Usage{}, err
	}
	return newUsage(used, s.quota), nil
}

// decodeAll skips rows that are not valid JSON; they were not written by
// this store.
func (s *SQLStore) decodeAll(ctx context.Context, raw map[string][]byte) map[string]any {
	out := make(map[string]any, len(raw))
	for k, b := range raw {
		var v any
		if err := json.Unmarshal(b, &v); err != nil {
			s.log.Warn(ctx, "skipping undecodable record", "key", k, "error", err)
			continue
		}
		out[k] = v
	}
	return out
}
