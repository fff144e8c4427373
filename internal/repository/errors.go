// Package repository contains the database/sql data access layer.  Every
// repository speaks portable SQL so the same code runs against MySQL in
// production and SQLite in development and tests.  Sentinel errors let the
// service layer tell missing rows and constraint conflicts apart.
package repository

import (
	"database/sql"
	"errors"
	"strings"
)

// ErrNotFound is returned when the addressed row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write violates a uniqueness rule, such as
// a second user with the same external id.
var ErrConflict = errors.New("conflict")

// ErrOpenEntryExists is returned when a user starts tracking time while an
// entry is still open.  The database enforces this with a unique index.
var ErrOpenEntryExists = errors.New("an open time entry already exists")

// isUniqueViolation recognises duplicate key errors from both drivers:
// MySQL reports error 1062, SQLite a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "1062") ||
		strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "unique constraint")
}

// notFound maps sql.ErrNoRows to ErrNotFound and passes other errors through.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
