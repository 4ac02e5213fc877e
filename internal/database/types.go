package database

import (
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a row doesn't exist or belongs to another user
var ErrNotFound = errors.New("database: not found")

// PageSize is the number of study records per listing page
const PageSize = 20

// isUniqueViolation reports whether err is a unique constraint failure in either driver
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// isConstraintViolation reports whether the database rejected a row
// because of a CHECK, NOT NULL, UNIQUE or foreign key constraint
func isConstraintViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "23"
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

// utc normalizes timestamps before they are written so that SQLite text
// comparisons order them correctly
func utc(t time.Time) time.Time {
	return t.UTC()
}

// nullableUTC converts an optional timestamp into a bind value
func nullableUTC(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
