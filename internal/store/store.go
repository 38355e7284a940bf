// To handle all database interactions. This is our
// data access layer, keeping SQL queries separate from business logic.

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a looked up row does not exist.
	ErrNotFound = errors.New("not found")
)

// Store provides all functions to interact with the database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new Store instance.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Recycle drops idle pooled connections so a long import does not pin
// per-connection memory. Connections in use are left alone.
func (s *Store) Recycle() {
	s.db.SetMaxIdleConns(0)
	s.db.SetMaxIdleConns(2)
}

// IsConstraint reports whether err is a constraint violation, which the
// import engine treats as a problem with one row rather than the store.
func IsConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

func notFound(err error, what string, id any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %v: %w", what, id, ErrNotFound)
	}
	return err
}
