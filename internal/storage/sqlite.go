package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/hammamikhairi/smartnotifier/internal/domain"
	"github.com/hammamikhairi/smartnotifier/internal/logger"
)

// Compile-time interface check.
var _ domain.Store = (*SQLiteStore)(nil)

// SQLiteStore keeps rules, the notification log and preferences in a single
// SQLite database file.
type SQLiteStore struct {
	db       *sql.DB
	path     string
	log      *logger.Logger
	logLimit int

	// logMu serializes InsertOrCount so a burst of identical notifications
	// produces one row and an exact count.
	logMu sync.Mutex
}

// SQLiteOption configures the store.
type SQLiteOption func(*SQLiteStore)

// WithLogLimit sets how many notification log rows are kept.
func WithLogLimit(n int) SQLiteOption {
	return func(s *SQLiteStore) {
		if n > 0 {
			s.logLimit = n
		}
	}
}

// OpenSQLite creates or opens the database at path and brings its schema up
// to date.
func OpenSQLite(path string, log *logger.Logger, opts ...SQLiteOption) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection: writes are tiny and this rules out SQLITE_BUSY between
	// our own goroutines.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:       db,
		path:     path,
		log:      log,
		logLimit: domain.DefaultLogLimit,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	log.Debug("sqlite store opened at %s (log limit %d)", path, s.logLimit)
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		package_name TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		srh_title TEXT NOT NULL DEFAULT '',
		voice_msg TEXT NOT NULL DEFAULT '',
		enabled INTEGER NOT NULL DEFAULT 0
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_rules_key
		ON rules(package_name, channel_id, srh_title);

	CREATE TABLE IF NOT EXISTS notification_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		package_name TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		app_label TEXT NOT NULL DEFAULT '',
		received_count INTEGER NOT NULL DEFAULT 1
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_notification_log_key
		ON notification_log(package_name, channel_id);

	CREATE TABLE IF NOT EXISTS prefs (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// migration adds a column that older databases lack.
type migration struct {
	Table  string
	Column string
	Def    string
}

var pendingMigrations = []migration{
	{"rules", "app_label", "TEXT NOT NULL DEFAULT ''"},
	{"rules", "channel_name", "TEXT NOT NULL DEFAULT ''"},
	{"notification_log", "importance", "INTEGER NOT NULL DEFAULT 3"},
	{"notification_log", "channel_name", "TEXT NOT NULL DEFAULT ''"},
	{"notification_log", "created", "INTEGER NOT NULL DEFAULT 0"},
	{"notification_log", "last_received", "INTEGER NOT NULL DEFAULT 0"},
}

func (s *SQLiteStore) runMigrations() error {
	applied := 0
	for _, m := range pendingMigrations {
		exists, err := s.columnExists(m.Table, m.Column)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("adding %s.%s: %w", m.Table, m.Column, err)
		}
		applied++
	}
	if applied > 0 {
		s.log.Info("schema migrations applied: %d", applied)
	}
	return nil
}

func (s *SQLiteStore) columnExists(table, column string) (bool, error) {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("table_info(%s): %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid          int
			name, ctype  string
			notnull, pk  int
			defaultValue any
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &defaultValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// isUniqueViolation reports whether err came from a UNIQUE constraint.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	// Without extended result codes only the message tells UNIQUE apart.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
