package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrations embed.FS

var ErrMigrationFailed = errors.New("failed to apply migrations")

// Migrate applies the embedded goose migrations through a database/sql view of
// the pool.
func Migrate(ctx context.Context, pool *pgxpool.Pool, log logrus.FieldLogger) error {
	db := stdlib.OpenDBFromPool(pool)
	defer func() {
		if err := db.Close(); err != nil {
			log.WithError(err).Warn("close migration connection failed")
		}
	}()

	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{log: log})
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	return nil
}

type gooseLogger struct {
	log logrus.FieldLogger
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.log.Error(fmt.Sprintf(format, v...))
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.log.Info(fmt.Sprintf(format, v...))
}
