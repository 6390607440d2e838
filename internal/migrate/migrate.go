// Package migrate applies the embedded notes/share_links schema on startup.
package migrate

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/and161185/gophnote/migrations"
)

// Up runs all pending migrations and reports the resulting schema version.
func Up(ctx context.Context, dsn string) (int64, error) {
	db, err := open(dsn)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return 0, fmt.Errorf("goose up: %w", err)
	}
	return goose.GetDBVersionContext(ctx, db)
}

// Down rolls back the most recent migration.
func Down(ctx context.Context, dsn string) error {
	db, err := open(dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return goose.DownContext(ctx, db, ".")
}

func open(dsn string) (*sql.DB, error) {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, err
	}
	return sql.Open("pgx", dsn)
}
