package extstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/matakeeper/internal/dbx"
	"github.com/dmitrijs2005/matakeeper/internal/extstore/migrations"
	"github.com/pressly/goose/v3"
)

// Migrate brings the schema up to date.
func Migrate(ctx context.Context, db *sql.DB, dialect dbx.Dialect) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(dialect.GooseDialect()); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
