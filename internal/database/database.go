// Package database opens the loopcast store and applies its migrations.
// SQLite (pure Go), PostgreSQL and MySQL are supported through GORM.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/jmylchreest/loopcast/internal/config"
	"github.com/jmylchreest/loopcast/internal/database/migrations"
)

// sqlitePragmas are applied to every SQLite connection.
var sqlitePragmas = []string{
	"busy_timeout(10000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(ON)",
}

// DB is the GORM handle plus what is needed to migrate and close it.
type DB struct {
	*gorm.DB
	logger *slog.Logger
}

// New connects using cfg. A nil logger uses slog.Default.
func New(cfg config.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var dialector gorm.Dialector
	maxOpen, maxIdle := cfg.MaxOpenConns, cfg.MaxIdleConns
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(sqliteDSN(cfg.DSN))
		// SQLite serialises writers; an in-memory database exists per
		// connection, so it gets exactly one.
		maxOpen, maxIdle = 4, 2
		if strings.Contains(cfg.DSN, ":memory:") {
			maxOpen, maxIdle = 1, 1
		}
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 newGormLogger(cfg.LogLevel, logger),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", cfg.Driver, err)
	}

	pool, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	pool.SetMaxOpenConns(maxOpen)
	pool.SetMaxIdleConns(maxIdle)
	pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	pool.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	logger.Info("database opened", slog.String("driver", cfg.Driver), slog.Int("max_open_conns", maxOpen))
	return &DB{DB: gdb, logger: logger}, nil
}

func sqliteDSN(dsn string) string {
	q := url.Values{"_pragma": sqlitePragmas}.Encode()
	if strings.Contains(dsn, "?") {
		return dsn + "&" + q
	}
	return dsn + "?" + q
}

// Migrate brings the schema up to date.
func (db *DB) Migrate(ctx context.Context) error {
	m := migrations.NewMigrator(db.DB, db.logger)
	m.RegisterAll(migrations.AllMigrations())
	if err := m.Up(ctx); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}

// Ping checks the connection. The health endpoint reports its result.
func (db *DB) Ping(ctx context.Context) error {
	pool, err := db.DB.DB()
	if err != nil {
		return err
	}
	return pool.PingContext(ctx)
}

// Close releases the connection pool.
func (db *DB) Close() error {
	pool, err := db.DB.DB()
	if err != nil {
		return err
	}
	return pool.Close()
}
