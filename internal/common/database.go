package common

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/facturalab/invoice-engine/internal/repository"
)

// DBResult bundles an opened store with its cleanup hook.
type DBResult struct {
	Store   *repository.Store
	DB      *sql.DB
	Pool    *pgxpool.Pool // nil for sqlite
	Cleanup func()
}

// InitDatabase opens the store selected by the Database config, applies the
// schema, and returns a cleanup function the caller must defer.
func InitDatabase(ctx context.Context, cfg *Config, logger *slog.Logger) (*DBResult, error) {
	var (
		db     *sql.DB
		pool   *pgxpool.Pool
		driver repository.Driver
		err    error
	)

	switch cfg.Database.Driver {
	case "sqlite":
		driver = repository.DriverSQLite
		db, err = repository.OpenSQLite(cfg.Database.SQLitePath, logger)
	case "postgres":
		driver = repository.DriverPostgres
		if cfg.Database.DSN == "" {
			return nil, NewAppError("CONFIG_INVALID", "DB_URL is required for the postgres driver", nil)
		}
		db, pool, err = repository.Open(ctx, repository.Config{
			DSN:              cfg.Database.DSN,
			MaxConns:         cfg.Database.MaxConns,
			MinConns:         cfg.Database.MinConns,
			MaxConnLifetime:  cfg.Database.MaxConnLifetime,
			MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
			DialTimeout:      cfg.Database.DialTimeout,
			StatementTimeout: cfg.Database.StatementTimeout,
		}, logger)
	default:
		return nil, NewAppError("CONFIG_INVALID", fmt.Sprintf("unknown database driver %q", cfg.Database.Driver), nil)
	}
	if err != nil {
		return nil, err
	}

	store := repository.NewStore(db, driver)
	if err := repository.EnsureSchema(ctx, store); err != nil {
		repository.Close(db, pool, logger)
		return nil, NewAppError("DB_MIGRATE_FAILED", "applying schema", err)
	}

	return &DBResult{
		Store:   store,
		DB:      db,
		Pool:    pool,
		Cleanup: func() { repository.Close(db, pool, logger) },
	}, nil
}
