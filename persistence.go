package identity

import (
	"context"
	"database/sql"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// OpenSQLiteDB opens a SQLite backed bun.DB, mostly for development and
// tests. Production deployments hand their own *bun.DB to
// NewRepositoryManager.
func OpenSQLiteDB(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to open database")
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())

	return db, nil
}

// CreateSchema creates the tables for the registered models if they do not
// exist yet.
func CreateSchema(ctx context.Context, db *bun.DB, models ...any) error {
	if len(models) == 0 {
		models = []any{(*User)(nil)}
	}

	for _, model := range models {
		if _, err := db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to create table")
		}
	}

	return nil
}
