// Package metadata provides the SQL store for case file trees and their
// checklist links. PostgreSQL (lib/pq) is used in production, SQLite
// (modernc.org/sqlite) for single-node installs and tests.
package metadata

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/wouterc/sagsfiler/internal/logging"
	"github.com/wouterc/sagsfiler/internal/metrics"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

//go:embed migrations/*.up.sql
var migrationFS embed.FS

var (
	// ErrNotFound is returned when a case, entry or link does not exist.
	ErrNotFound = errors.New("not found")
	// ErrExists is returned when the target name is already taken.
	ErrExists = errors.New("already exists")
	// ErrNotDir is returned when a directory was expected.
	ErrNotDir = errors.New("not a directory")
	// ErrIntoSelf is returned when a directory would be moved into its own subtree.
	ErrIntoSelf = errors.New("cannot move a directory into itself")
	// ErrRoot is returned for mutations of the case root.
	ErrRoot = errors.New("the case root cannot be changed")
)

// LinkedError is returned when a move or delete touches an entry that is
// bound to a checklist item. Link is the first linked entry found.
type LinkedError struct {
	Path string
	Link Link
}

func (e *LinkedError) Error() string {
	return fmt.Sprintf("%s is linked to checklist item %d (%s)", e.Path, e.Link.ItemID, e.Link.Path)
}

// Store is a SQL metadata store.
type Store struct {
	db     *sql.DB
	driver string
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open connects to the metadata database.
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if driver == DriverSQLite {
		// SQLite has a single writer.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db, driver: driver}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver returns the database driver name.
func (s *Store) Driver() string {
	return s.driver
}

// UpdateConnectionMetrics updates the database connection metrics.
func (s *Store) UpdateConnectionMetrics() {
	metrics.SetDBConnectionsOpen(s.db.Stats().OpenConnections)
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate runs the embedded SQL migrations in file name order.
func (s *Store) Migrate(ctx context.Context) error {
	files, err := fs.Glob(migrationFS, "migrations/*.up.sql")
	if err != nil {
		return fmt.Errorf("glob migrations: %w", err)
	}

	for _, f := range files {
		logging.Info("running migration", zap.String("file", strings.TrimPrefix(f, "migrations/")))
		content, err := migrationFS.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
	}

	return nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *Store) exec(ctx context.Context, q querier, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, q querier, query string, args ...any) (*sql.Rows, error) {
	return q.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, q querier, query string, args ...any) *sql.Row {
	return q.QueryRowContext(ctx, s.rebind(query), args...)
}

// ─── Cases ───────────────────────────────────────────────────────────────────

// Case is a registered case and its human-facing case number.
type Case struct {
	ID        string
	Number    string
	CreatedAt time.Time
}

// UpsertCase registers a case or updates its case number.
func (s *Store) UpsertCase(ctx context.Context, id, number string) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("upsert_case", time.Since(start)) }()

	_, err := s.exec(ctx, s.db,
		`INSERT INTO cases (id, case_number, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET case_number = excluded.case_number`,
		id, number, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("upsert case: %w", err)
	}
	return nil
}

// GetCase returns a registered case.
func (s *Store) GetCase(ctx context.Context, id string) (*Case, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("get_case", time.Since(start)) }()

	var c Case
	var created int64
	err := s.queryRow(ctx, s.db,
		`SELECT id, case_number, created_at FROM cases WHERE id = ?`, id).
		Scan(&c.ID, &c.Number, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get case: %w", err)
	}
	c.CreatedAt = time.Unix(created, 0)
	return &c, nil
}
