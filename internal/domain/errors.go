package domain

import (
	"errors"
	"fmt"
)

// Store sentinels.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("concurrent modification")
)

// FailureCategory classifies connect failures for the retry policy.
type FailureCategory string

const (
	FailureNotLive FailureCategory = "not_live"
	FailureTimeout FailureCategory = "timeout"
	FailureOther   FailureCategory = "other"
)

// ParseFailureCategory maps a wire value onto a known category.
func ParseFailureCategory(s string) FailureCategory {
	switch FailureCategory(s) {
	case FailureNotLive, FailureTimeout:
		return FailureCategory(s)
	default:
		return FailureOther
	}
}

// ConnectError is returned by a live connection that could not be established.
type ConnectError struct {
	Streamer string
	Category FailureCategory
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s (%s): %v", e.Streamer, e.Category, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// CategoryOf extracts the failure category from err. Errors that are not
// ConnectErrors count as FailureOther.
func CategoryOf(err error) FailureCategory {
	var ce *ConnectError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return FailureOther
}

// EventProcessingError marks a live event payload that could not be used.
type EventProcessingError struct {
	Streamer string
	Event    string
	Err      error
}

func (e *EventProcessingError) Error() string {
	return fmt.Sprintf("process %s event for %s: %v", e.Event, e.Streamer, e.Err)
}

func (e *EventProcessingError) Unwrap() error { return e.Err }

// StorageError is returned when a history write could not be completed.
type StorageError struct {
	Streamer string
	Date     string
	Op       string
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s for %s on %s: %v", e.Op, e.Streamer, e.Date, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
