package crawler

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by storage lookups when no row matches.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned by PaperStore.Insert when the arXiv ID already
// exists. Callers treat it as a successful no-op, not a failure.
var ErrDuplicate = errors.New("duplicate arxiv id")

// TransientError marks a failure worth retrying: network timeouts, connection
// resets, 5xx responses.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// FatalError marks a failure that retrying cannot fix: malformed requests,
// unsupported categories, 4xx responses other than not-found.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// IsFatal reports whether err (or anything it wraps) is a FatalError.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// IsTransient reports whether err is retryable. Context cancellation and
// fatal errors are never retryable; anything else is assumed transient so
// unclassified network failures still get their retries.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !IsFatal(err)
}
