// Package store provides SQL persistence for the LearnQuest engine.
// SQLite (pure Go, WAL) is the embedded default; PostgreSQL is supported
// through pgx's database/sql driver for multi-process deployments.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"             // Pure-Go SQLite driver (no CGO required)

	"github.com/tutu-network/learnquest/internal/domain"
)

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// dialect captures the few places where SQLite and PostgreSQL differ.
type dialect struct {
	name string
	// lockClause is appended to the user lookup in LockUser.
	lockClause string
	// numbered placeholders ($1, $2, ...) instead of ?
	numbered bool
}

var (
	sqliteDialect   = dialect{name: DriverSQLite}
	postgresDialect = dialect{name: DriverPostgres, lockClause: " FOR UPDATE", numbered: true}
)

// rebind rewrites ? placeholders for dialects that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn runs queries against a database or an open transaction.
type conn struct {
	q queryer
	d dialect
}

func (c *conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, c.d.rebind(query), args...)
}

func (c *conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, c.d.rebind(query), args...)
}

func (c *conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.d.rebind(query), args...)
}

// DB wraps a SQL connection pool with migrations and transactions.
type DB struct {
	*conn
	db *sql.DB
}

var (
	_ domain.Store = (*DB)(nil)
	_ domain.Tx    = (*conn)(nil)
)

// Open creates or opens the SQLite database at dir/learnquest.db.
// Enables WAL mode, foreign keys, a 5-second busy timeout and immediate
// write transactions.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "learnquest.db")
	dsn := "file:" + dbPath +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite is single-writer; one connection also serializes event transactions.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return finishOpen(context.Background(), db, sqliteDialect)
}

// OpenPostgres connects to PostgreSQL using a pgx connection string.
func OpenPostgres(ctx context.Context, dsn string) (*DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)

	return finishOpen(ctx, db, postgresDialect)
}

// OpenDriver opens the store selected by configuration.
func OpenDriver(ctx context.Context, driver, dir, dsn string) (*DB, error) {
	switch driver {
	case "", DriverSQLite:
		return Open(dir)
	case DriverPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("postgres driver requires a dsn")
		}
		return OpenPostgres(ctx, dsn)
	}
	return nil, fmt.Errorf("unknown storage driver %q", driver)
}

func finishOpen(ctx context.Context, db *sql.DB, d dialect) (*DB, error) {
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.name, err)
	}

	s := &DB{conn: &conn{q: db, d: d}, db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close cleanly shuts down the database.
func (s *DB) Close() error {
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *DB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Driver returns the dialect name.
func (s *DB) Driver() string {
	return s.d.name
}

// WithTx runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back on error or panic.
func (s *DB) WithTx(ctx context.Context, fn func(tx domain.Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&conn{q: sqlTx, d: s.d}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// migrate runs idempotent schema migrations. The DDL is shared by both
// dialects: integers are BIGINT, flags are 0/1 integers and timestamps are
// unix seconds.
func (s *DB) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id               TEXT PRIMARY KEY,
			name             TEXT NOT NULL DEFAULT '',
			total_points     BIGINT NOT NULL DEFAULT 0,
			level            INTEGER NOT NULL DEFAULT 1,
			current_streak   INTEGER NOT NULL DEFAULT 0,
			longest_streak   INTEGER NOT NULL DEFAULT 0,
			last_activity_at BIGINT,
			created_at       BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_points ON users(total_points)`,
		`CREATE INDEX IF NOT EXISTS idx_users_level ON users(level)`,

		`CREATE TABLE IF NOT EXISTS courses (
			id                    TEXT PRIMARY KEY,
			title                 TEXT NOT NULL,
			points_per_completion BIGINT NOT NULL DEFAULT 0,
			is_active             INTEGER NOT NULL DEFAULT 1
		)`,

		`CREATE TABLE IF NOT EXISTS activities (
			id               TEXT PRIMARY KEY,
			course_id        TEXT NOT NULL REFERENCES courses(id),
			title            TEXT NOT NULL,
			points_value     BIGINT NOT NULL DEFAULT 0,
			duration_minutes INTEGER NOT NULL DEFAULT 0,
			sort_order       INTEGER NOT NULL,
			is_required      INTEGER NOT NULL DEFAULT 1,
			is_active        INTEGER NOT NULL DEFAULT 1,
			UNIQUE (course_id, sort_order)
		)`,

		`CREATE TABLE IF NOT EXISTS enrollments (
			user_id      TEXT NOT NULL REFERENCES users(id),
			course_id    TEXT NOT NULL REFERENCES courses(id),
			enrolled_at  BIGINT NOT NULL,
			completed_at BIGINT,
			progress_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, course_id)
		)`,

		`CREATE TABLE IF NOT EXISTS activity_completions (
			user_id          TEXT NOT NULL REFERENCES users(id),
			activity_id      TEXT NOT NULL REFERENCES activities(id),
			course_id        TEXT NOT NULL,
			state            TEXT NOT NULL,
			score            INTEGER NOT NULL,
			attempts         INTEGER NOT NULL,
			completed_at     BIGINT,
			first_attempt_at BIGINT NOT NULL,
			last_attempt_at  BIGINT NOT NULL,
			metadata         TEXT NOT NULL DEFAULT '[]',
			PRIMARY KEY (user_id, activity_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_completions_course ON activity_completions(user_id, course_id)`,

		// Append-only: rows are never updated or deleted.
		`CREATE TABLE IF NOT EXISTS point_ledger (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL REFERENCES users(id),
			amount      BIGINT NOT NULL,
			type        TEXT NOT NULL,
			source_type TEXT NOT NULL,
			source_id   TEXT NOT NULL DEFAULT '',
			reason      TEXT NOT NULL DEFAULT '',
			created_at  BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_user ON point_ledger(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_created ON point_ledger(created_at)`,

		`CREATE TABLE IF NOT EXISTS badges (
			id                 TEXT PRIMARY KEY,
			name               TEXT NOT NULL,
			description        TEXT NOT NULL DEFAULT '',
			icon               TEXT NOT NULL DEFAULT '',
			color              TEXT NOT NULL DEFAULT '',
			criteria_kind      TEXT NOT NULL,
			criteria_threshold BIGINT NOT NULL DEFAULT 0,
			criteria_tag       TEXT NOT NULL DEFAULT '',
			is_active          INTEGER NOT NULL DEFAULT 1
		)`,

		// Append-only, one row per (user, badge).
		`CREATE TABLE IF NOT EXISTS badge_awards (
			user_id   TEXT NOT NULL REFERENCES users(id),
			badge_id  TEXT NOT NULL REFERENCES badges(id),
			earned_at BIGINT NOT NULL,
			PRIMARY KEY (user_id, badge_id)
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
