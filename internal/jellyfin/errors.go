package jellyfin

import (
	"errors"
	"fmt"
)

// Sentinel errors for media server operations.
var (
	ErrNotFound     = errors.New("jellyfin: not found")
	ErrUnauthorized = errors.New("jellyfin: unauthorized")
	ErrRateLimited  = errors.New("jellyfin: rate limited by server")
	ErrServer       = errors.New("jellyfin: server error")
)

// Error wraps an underlying error with operation context.
type Error struct {
	Op     string // Operation: "items", "summary", "libraries", "upload"
	ItemID string // If applicable
	Err    error
}

func (e *Error) Error() string {
	if e.ItemID != "" {
		return fmt.Sprintf("jellyfin %s [%s]: %v", e.Op, e.ItemID, e.Err)
	}
	return fmt.Sprintf("jellyfin %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Permanent reports whether retrying the operation cannot succeed.
func (e *Error) Permanent() bool {
	return errors.Is(e.Err, ErrUnauthorized) || errors.Is(e.Err, ErrNotFound)
}

func wrapError(op, itemID string, err error) error {
	return &Error{Op: op, ItemID: itemID, Err: err}
}
