package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// Config selects and configures the SQL backend.
type Config struct {
	// Driver is sqlite3 or pgx
	Driver string
	// DSN is a file path for sqlite3 or a connection URL for pgx
	DSN string
	// MaxOpenConns caps the pool; zero leaves the driver default
	MaxOpenConns int
	Logger       zerolog.Logger
}

// SQLStore implements Database on database/sql. Queries use $n placeholders,
// each number appearing first in ascending order, which both sqlite3 and
// PostgreSQL bind positionally.
type SQLStore struct {
	db      *sql.DB
	dialect goose.Dialect
	logger  zerolog.Logger
	now     func() time.Time
}

var _ Database = (*SQLStore)(nil)

// Open connects to the configured database. Call Migrate before use.
func Open(ctx context.Context, cfg Config) (*SQLStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("invalid config: database dsn is required")
	}

	var (
		dsn     = cfg.DSN
		dialect goose.Dialect
	)
	switch cfg.Driver {
	case DriverSQLite, "sqlite", "":
		cfg.Driver = DriverSQLite
		dialect = goose.DialectSQLite3
		if dir := filepath.Dir(dsn); dir != "." && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?_foreign_keys=on&_busy_timeout=5000"
		}
	case DriverPostgres, "postgres", "postgresql":
		cfg.Driver = DriverPostgres
		dialect = goose.DialectPostgres
	default:
		return nil, fmt.Errorf("invalid config: unsupported database driver %q", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Driver == DriverSQLite {
		// Enable WAL mode for better concurrency
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	cfg.Logger.Info().Str("driver", cfg.Driver).Msg("Database opened")

	return &SQLStore{
		db:      db,
		dialect: dialect,
		logger:  cfg.Logger.With().Str("component", "store").Logger(),
		now:     time.Now,
	}, nil
}

// Migrate applies every pending embedded migration.
func (s *SQLStore) Migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	provider, err := goose.NewProvider(s.dialect, s.db, fsys)
	if err != nil {
		return fmt.Errorf("failed to create goose provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to run goose migrations: %w", err)
	}
	for _, r := range results {
		s.logger.Info().
			Int64("version", r.Source.Version).
			Dur("duration", r.Duration).
			Msg("Migration applied")
	}
	return nil
}

// Ping checks the connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) nowMillis() int64 {
	return s.now().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func newID() string {
	return uuid.NewString()
}

// notFound turns sql.ErrNoRows into ErrNotFound naming what was missing.
func notFound(err error, what, key string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, what, key)
	}
	return fmt.Errorf("failed to get %s %s: %w", what, key, err)
}

type scanner interface {
	Scan(dest ...any) error
}

// collect scans every row with scan.
func collect[T any](rows *sql.Rows, scan func(scanner) (T, error)) ([]T, error) {
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
