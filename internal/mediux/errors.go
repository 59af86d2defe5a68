package mediux

import (
	"errors"
	"fmt"

	domainerrors "github.com/coversync/coversync-server/internal/errors"
)

// Sentinel errors for set downloads.
var (
	ErrNotFound    = errors.New("mediux: not found")
	ErrRateLimited = errors.New("mediux: rate limited by server")
	ErrServer      = errors.New("mediux: server error")
	ErrNoSetData   = errors.New("mediux: no set data in page")
)

// Error wraps an underlying error with operation context.
type Error struct {
	Op     string // Operation: "set", "asset"
	Target string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("mediux %s [%s]: %v", e.Op, e.Target, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrapError(op, target string, err error) error {
	return &Error{Op: op, Target: target, Err: err}
}

// Permanent reports whether retrying a queued set link cannot succeed: the
// link is not a set link, the set is gone, or its page carries no set data.
func Permanent(err error) bool {
	return errors.Is(err, domainerrors.ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrNoSetData)
}
