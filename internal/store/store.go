package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"

	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// Store owns the SQLite connection and hands out repositories.
type Store struct {
	db  *sql.DB
	drv *entsql.Driver
	seq *sequenceCounter
}

// Open creates a new Store connected to the SQLite database at dsn.
// It applies recommended pragmas and runs auto-migration.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", withPragmas(dsn))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	drv := entsql.OpenDB(dialect.SQLite, db)

	migrate, err := schema.NewMigrate(drv)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init migrate: %w", err)
	}
	if err := migrate.Create(context.Background(), Tables...); err != nil {
		db.Close()
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}

	seq, err := newSequenceCounter(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, drv: drv, seq: seq}, nil
}

// DB returns the underlying *sql.DB for raw queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.drv.Close()
}

// SessionRepo returns a SessionRepo backed by this store.
func (s *Store) SessionRepo() SessionRepo {
	return &sessionRepo{db: s.db}
}

// PredictionRepo returns a PredictionRepo backed by this store.
func (s *Store) PredictionRepo() PredictionRepo {
	return &predictionRepo{db: s.db}
}

// TraceRepo returns a TraceRepo backed by this store.
func (s *Store) TraceRepo() TraceRepo {
	return &traceRepo{db: s.db, seq: s.seq}
}

// EventRepo returns an EventRepo backed by this store.
func (s *Store) EventRepo() EventRepo {
	return &eventRepo{db: s.db, seq: s.seq}
}

// pragmas are applied on every pooled connection through the modernc
// _pragma DSN parameter.
var pragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"foreign_keys(1)",
	"synchronous(NORMAL)",
}

func withPragmas(dsn string) string {
	var b strings.Builder
	b.WriteString(dsn)
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	for _, p := range pragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

// DefaultDBPath resolves the database file path in priority order:
// 1. TUTORLOOP_DB environment variable
// 2. $XDG_DATA_HOME/tutorloop/tutorloop.db
// 3. ~/.local/share/tutorloop/tutorloop.db
func DefaultDBPath() (string, error) {
	if p := os.Getenv("TUTORLOOP_DB"); p != "" {
		return p, EnsureDir(p)
	}

	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		dataHome = filepath.Join(home, ".local", "share")
	}

	p := filepath.Join(dataHome, "tutorloop", "tutorloop.db")
	return p, EnsureDir(p)
}

// EnsureDir creates the parent directory of path if it doesn't exist.
func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0o755)
}
