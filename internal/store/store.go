package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/roach88/chatshape/internal/failure"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Options configures Open.
type Options struct {
	Driver string
	DSN    string
	// Schema is the postgres search_path. Ignored for sqlite3.
	Schema string
	// Timeout bounds every individual statement.
	Timeout time.Duration
	// ReadRetries is the retry budget for read-only queries.
	ReadRetries int
	// SkipMigrate opens without touching the schema (read-only sampling).
	SkipMigrate bool
	Logger      *zap.Logger
}

// Store wraps the database handle with timeouts, retries and dialect
// specific SQL.
type Store struct {
	db      *sqlx.DB
	driver  string
	timeout time.Duration
	retries int
	log     *zap.Logger
}

// Open connects, applies dialect pragmas and runs pending migrations.
//
// sqlite3 is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	dsn := opts.DSN
	switch opts.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if opts.Schema != "" {
			dsn = withSearchPath(dsn, opts.Schema)
		}
	default:
		return nil, failure.Configuration("unsupported store driver", opts.Driver)
	}

	if !opts.SkipMigrate {
		if opts.Driver == DriverPostgres && opts.Schema != "" {
			if err := ensureSchema(ctx, opts.DSN, opts.Schema, opts.Timeout); err != nil {
				return nil, err
			}
		}
		if err := Migrate(opts.Driver, dsn); err != nil {
			return nil, failure.Execution("failed to migrate schema", err)
		}
	}

	connectCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	db, err := sqlx.ConnectContext(connectCtx, opts.Driver, dsn)
	if err != nil {
		return nil, failure.Execution("failed to connect to database", err)
	}

	if opts.Driver == DriverSQLite {
		// SQLite only supports one writer at a time, so limit connections
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if err := applyPragmas(connectCtx, db); err != nil {
			db.Close()
			return nil, failure.Execution("failed to apply pragmas", err)
		}
	}

	return &Store{
		db:      db,
		driver:  opts.Driver,
		timeout: opts.Timeout,
		retries: opts.ReadRetries,
		log:     opts.Logger.Named("store"),
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Driver returns the dialect name.
func (s *Store) Driver() string {
	return s.driver
}

// DB returns the underlying handle for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// ensureSchema creates the postgres schema named by the run settings.
func ensureSchema(ctx context.Context, dsn, schema string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	db, err := sqlx.ConnectContext(ctx, DriverPostgres, dsn)
	if err != nil {
		return failure.Execution("failed to connect to database", err)
	}
	defer db.Close()
	// The schema name is validated against an identifier pattern on load.
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %q`, schema)); err != nil {
		return failure.Execution("failed to create schema", err)
	}
	return nil
}

// withSearchPath adds a search_path runtime parameter to a lib/pq DSN in
// either URL or key=value form.
func withSearchPath(dsn, schema string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return dsn
		}
		q := u.Query()
		q.Set("search_path", schema)
		u.RawQuery = q.Encode()
		return u.String()
	}
	return strings.TrimSpace(dsn) + " search_path=" + schema
}

// readOnly runs fn under the statement timeout, retrying transient
// failures with exponential backoff. fn must be safe to repeat.
func (s *Store) readOnly(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		err := fn(callCtx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || errors.Is(err, errNotRetryable) {
			return backoff.Permanent(err)
		}
		s.log.Debug("read failed", zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.retries)), ctx))
	if err != nil {
		return failure.Execution(op, err)
	}
	return nil
}

// write runs fn once under the statement timeout. Writes are never retried.
func (s *Store) write(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := fn(callCtx); err != nil {
		return failure.Execution(op, err)
	}
	return nil
}

var errNotRetryable = errors.New("not retryable")
