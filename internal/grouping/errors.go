package grouping

import (
	"errors"
	"fmt"
)

// Error kinds returned by lifecycle operations. Callers test with errors.Is.
var (
	// ErrInvalidArgument reports a malformed request, such as a group with no members.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound reports a card or group that does not exist on the board.
	ErrNotFound = errors.New("not found")
	// ErrPrecondition reports a request that conflicts with the current grouping state.
	ErrPrecondition = errors.New("precondition violation")
	// ErrBackend reports a persistence failure. No partial mutation is visible after it.
	ErrBackend = errors.New("backend failure")
)

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func notFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func preconditionf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrPrecondition, fmt.Sprintf(format, args...))
}

// IsDomainError reports whether err carries one of the caller-facing kinds other than ErrBackend.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrInvalidArgument) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrPrecondition)
}

// classify leaves domain errors untouched and marks everything else as a backend failure.
func classify(err error) error {
	if err == nil || IsDomainError(err) || errors.Is(err, ErrBackend) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrBackend, err)
}
