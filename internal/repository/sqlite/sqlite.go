// Package sqlite implements the repository interfaces on top of SQLite.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary needs
// no C toolchain and ":memory:" databases work in tests without any setup.
//
// The pool is capped at a single connection. SQLite serialises writers
// anyway, and with one connection every statement sees the same database
// (":memory:" included), so the conditional UPDATE in MarkVoted and the
// UNIQUE constraint on usernames are the only concurrency control needed.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	// Registers the "sqlite" driver with database/sql.
	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB wraps the sql.DB pool and hands out the per-table stores.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/voteboard.db" → file-based database (persistent)
//   - ":memory:"          → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	// sql.Open is lazy; Ping surfaces a bad path right away.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	pragmas := []struct{ stmt, what string }{
		{"PRAGMA journal_mode=WAL", "setting WAL mode"},
		{"PRAGMA busy_timeout=5000", "setting busy timeout"},
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p.stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p.what, err)
		}
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping is used by the health check.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

// Users returns the user store backed by this database.
func (db *DB) Users() *UserDB {
	return &UserDB{conn: db.conn}
}

// Help returns the help-queue store backed by this database.
func (db *DB) Help() *HelpDB {
	return &HelpDB{conn: db.conn}
}

// migrate creates the schema. CREATE ... IF NOT EXISTS keeps it idempotent.
func (db *DB) migrate() error {
	// "user" is a keyword in some dialects, hence the quotes.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS "user" (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT    NOT NULL UNIQUE,
			vote     INTEGER NOT NULL DEFAULT 0 CHECK (vote IN (0, 1))
		);
		CREATE INDEX IF NOT EXISTS idx_user_vote ON "user"(vote);
	`)
	if err != nil {
		return fmt.Errorf("creating user table: %w", err)
	}

	// AUTOINCREMENT: ids of deleted entries are never handed out again.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS help (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			username   TEXT     NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating help table: %w", err)
	}

	if err := db.addColumnIfNotExists("help", "created_at",
		"DATETIME NOT NULL DEFAULT '1970-01-01 00:00:00'"); err != nil {
		return fmt.Errorf("adding created_at to help: %w", err)
	}

	return nil
}

// addColumnIfNotExists lets databases created before a column existed pick
// it up on the next start.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// isUniqueViolation reports whether err came from a UNIQUE constraint.
func isUniqueViolation(err error) bool {
	var se *moderncsqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
