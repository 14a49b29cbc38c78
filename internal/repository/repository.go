package repository

import (
	"database/sql"
	"errors"
	"time"
)

// Common store errors.
var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("row not found")
	// ErrNoActiveAttempt is returned when completing a quiz that has no
	// in-progress attempt for the given (assessment, user) key.
	ErrNoActiveAttempt = errors.New("no in-progress attempt for this assessment")
)

// timeLayout is the canonical timestamp encoding inside the SQLite store.
const timeLayout = time.RFC3339Nano

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func decodeTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func decodeNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := decodeTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
