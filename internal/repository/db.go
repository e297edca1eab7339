package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/invoice-attestor/internal/common"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DB is the attestation journal connection: an Ent SQL driver over either a
// pgx pool or a modernc SQLite handle.
type DB struct {
	Driver  *entsql.Driver
	dialect string
	pool    *pgxpool.Pool
	logger  *slog.Logger
}

// Open connects to the configured journal database.
func Open(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Driver {
	case DriverPostgres:
		return openPostgres(ctx, cfg, logger)
	case DriverSQLite, "":
		return openSQLite(ctx, cfg, logger)
	default:
		return nil, common.NewAppError("CONFIG_ERROR", "unsupported DB_DRIVER "+cfg.Driver, common.ErrInvalidInput)
	}
}

func openPostgres(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	logger.Info("connecting to database", "driver", DriverPostgres)
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse database url", "error", err)
		return nil, common.NewAppError("DB_ERROR", "parse database url", fmt.Errorf("%w: %w", common.ErrDatabase, err))
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "invoice-attestor"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprintf("%d", cfg.StatementTimeout.Milliseconds())
	}

	ctx, cancel := common.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, common.NewAppError("DB_ERROR", "connect to database", fmt.Errorf("%w: %w", common.ErrDatabase, err))
	}

	// Wrap pool as *sql.DB for Ent
	db := stdlib.OpenDBFromPool(pool)
	logger.Info("successfully connected to database")
	return &DB{
		Driver:  entsql.OpenDB(dialect.Postgres, db),
		dialect: dialect.Postgres,
		pool:    pool,
		logger:  logger,
	}, nil
}

func openSQLite(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	logger.Info("opening database", "driver", DriverSQLite, "dsn", cfg.DSN)
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, common.NewAppError("DB_ERROR", "open sqlite", fmt.Errorf("%w: %w", common.ErrDatabase, err))
	}
	// a single writer avoids SQLITE_BUSY and keeps in-memory databases on one connection
	db.SetMaxOpenConns(1)

	ctx, cancel := common.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		logger.Error("failed to open database", "error", err)
		return nil, common.NewAppError("DB_ERROR", "ping sqlite", fmt.Errorf("%w: %w", common.ErrDatabase, err))
	}
	return &DB{
		Driver:  entsql.OpenDB(dialect.SQLite, db),
		dialect: dialect.SQLite,
		logger:  logger,
	}, nil
}

func (d *DB) Dialect() string { return d.dialect }

// Migrate creates the journal schema if it does not exist.
func (d *DB) Migrate(ctx context.Context) error {
	createdAt := "TEXT"
	if d.dialect == dialect.Postgres {
		createdAt = "TIMESTAMPTZ"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS attestations (
			id               TEXT PRIMARY KEY,
			record_id        TEXT NOT NULL,
			file_fingerprint TEXT NOT NULL,
			data_fingerprint TEXT NOT NULL,
			backend          TEXT NOT NULL,
			receipt_id       TEXT NOT NULL,
			explorer_url     TEXT NOT NULL DEFAULT '',
			document_name    TEXT NOT NULL DEFAULT '',
			media_type       TEXT NOT NULL DEFAULT '',
			record_json      TEXT NOT NULL DEFAULT '',
			created_at       ` + createdAt + ` NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS attestations_record_id_key ON attestations (record_id)`,
		`CREATE INDEX IF NOT EXISTS attestations_created_at_idx ON attestations (created_at)`,
	}
	for _, stmt := range stmts {
		if err := d.Driver.Exec(ctx, stmt, []any{}, nil); err != nil {
			d.logger.Error("failed to migrate database", "error", err)
			return common.NewAppError("DB_ERROR", "migrate journal schema", fmt.Errorf("%w: %w", common.ErrDatabase, err))
		}
	}
	d.logger.Debug("database schema ready")
	return nil
}

// Close closes the database connections gracefully
func (d *DB) Close() {
	d.logger.Info("closing database connections")
	if d.Driver != nil {
		if err := d.Driver.Close(); err != nil {
			d.logger.Error("failed to close database driver", "error", err)
		}
	}
	if d.pool != nil {
		d.pool.Close()
	}
	d.logger.Info("database connections closed")
}

// HealthCheck pings the database to catch DSN issues early.
func (d *DB) HealthCheck(ctx context.Context, timeout time.Duration) error {
	d.logger.Debug("pinging database")
	ctx, cancel := common.WithTimeout(ctx, timeout)
	defer cancel()
	if err := d.Driver.DB().PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping: %w", common.ErrDatabase, err)
	}
	d.logger.Debug("database ping successful")
	return nil
}
