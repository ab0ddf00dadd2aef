package fetch

import (
	"errors"
	"fmt"
)

// Sentinel errors for fetch operations.
var (
	// ErrNotFound indicates the remote file does not exist.
	ErrNotFound = errors.New("remote file not found")

	// ErrAccessDenied indicates the credential was rejected or lacks permission.
	ErrAccessDenied = errors.New("access denied")

	// ErrThrottled indicates the remote store rate limited the request.
	ErrThrottled = errors.New("request throttled")

	// ErrUnavailable indicates the remote store is unavailable.
	ErrUnavailable = errors.New("remote store unavailable")
)

// Error wraps a failed download with its context.
type Error struct {
	// Op is the operation that failed (e.g., "Get").
	Op string

	// Source names the backend (e.g., "http", "s3").
	Source string

	// Path is the remote path requested.
	Path string

	// Status is the HTTP status code, when one was received.
	Status int

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: %s: status %d: %v", e.Source, e.Op, e.Path, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Source, e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error indicates the remote file does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAccessDenied returns true if the error indicates insufficient permissions.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsThrottled returns true if the error indicates the request was rate limited.
func IsThrottled(err error) bool {
	return errors.Is(err, ErrThrottled)
}
