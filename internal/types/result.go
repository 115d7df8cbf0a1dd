package types

import (
	"errors"
	"fmt"
)

// ResultStatus tags the outcome of an upstream adapter call
type ResultStatus int

const (
	StatusOK ResultStatus = iota
	StatusNotFound
	StatusTransientError
)

func (s ResultStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not_found"
	case StatusTransientError:
		return "transient_error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ErrNotFound is carried by NotFound results that have no more specific cause
var ErrNotFound = errors.New("not found")

// Result is the tagged outcome returned at every adapter boundary.
// Adapters never hand a bare error to callers; they pick one of the three
// variants and the caller switches on Status.
type Result[T any] struct {
	Status ResultStatus
	Value  T
	Err    error
}

// Ok wraps a successful value
func Ok[T any](v T) Result[T] {
	return Result[T]{Status: StatusOK, Value: v}
}

// NotFound marks data that is legitimately absent
func NotFound[T any](err error) Result[T] {
	if err == nil {
		err = ErrNotFound
	}
	return Result[T]{Status: StatusNotFound, Err: err}
}

// TransientError marks data that exists upstream but could not be obtained now
func TransientError[T any](err error) Result[T] {
	return Result[T]{Status: StatusTransientError, Err: err}
}

// IsOK reports whether the result carries a value
func (r Result[T]) IsOK() bool {
	return r.Status == StatusOK
}

// ValueOr returns the value for Ok results and def otherwise
func (r Result[T]) ValueOr(def T) T {
	if r.Status == StatusOK {
		return r.Value
	}
	return def
}
