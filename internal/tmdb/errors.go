package tmdb

import (
	"errors"
	"fmt"
)

// Sentinel errors for metadata lookups.
var (
	ErrNotFound     = errors.New("tmdb: not found")
	ErrUnauthorized = errors.New("tmdb: invalid api key")
	ErrRateLimited  = errors.New("tmdb: rate limited by server")
	ErrServer       = errors.New("tmdb: server error")
)

// Error wraps an underlying error with operation context.
type Error struct {
	Op    string // Operation: "search", "translations", "alternative_titles"
	Query string
	Err   error
}

func (e *Error) Error() string {
	if e.Query != "" {
		return fmt.Sprintf("tmdb %s [%s]: %v", e.Op, e.Query, e.Err)
	}
	return fmt.Sprintf("tmdb %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrapError(op, query string, err error) error {
	return &Error{Op: op, Query: query, Err: err}
}
