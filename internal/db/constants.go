package db

import (
	"errors"
	"time"
)

// timeLayout stores instants as UTC text that sorts chronologically.
const timeLayout = "2006-01-02 15:04:05.000000"

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrOutOfOrder is returned when a snapshot is not newer than the latest stored one.
	ErrOutOfOrder = errors.New("snapshot is not newer than the latest stored snapshot")
)

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.ParseInLocation(timeLayout, s, time.UTC)
}
