// Package fault classifies engine failures so callers can tell a "not yet"
// result from a broken collaborator and decide whether to retry.
package fault

import (
	"errors"
	"fmt"
)

// Kind is the classification of an engine error.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindInsufficientData Kind = "insufficient_data"
	KindStore            Kind = "store"
	KindComputation      Kind = "computation"
	KindNotFound         Kind = "not_found"
	KindInternal         Kind = "internal"
)

// Sentinels matched with errors.Is.
var (
	ErrValidation       = errors.New("validation failed")
	ErrInsufficientData = errors.New("insufficient data")
	ErrStore            = errors.New("store unavailable")
	ErrComputation      = errors.New("computation error")
	ErrNotFound         = errors.New("not found")
)

var sentinels = map[Kind]error{
	KindValidation:       ErrValidation,
	KindInsufficientData: ErrInsufficientData,
	KindStore:            ErrStore,
	KindComputation:      ErrComputation,
	KindNotFound:         ErrNotFound,
}

// Error wraps an underlying error with its kind and the failing operation.
type Error struct {
	Kind      Kind
	Op        string
	Err       error
	Retryable bool
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

// Unwrap exposes both the kind sentinel and the cause.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if s, ok := sentinels[e.Kind]; ok {
		out = append(out, s)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Validation reports malformed or missing input. Never retryable.
func Validation(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Err: fmt.Errorf(format, args...)}
}

// InsufficientData reports that a computation needs more samples.
func InsufficientData(op string, have, need int) error {
	return &Error{Kind: KindInsufficientData, Op: op, Err: fmt.Errorf("have %d, need %d", have, need)}
}

// NotFound reports a missing entity.
func NotFound(op, entity, id string) error {
	return &Error{Kind: KindNotFound, Op: op, Err: fmt.Errorf("%s %q", entity, id)}
}

// Store wraps a collaborator I/O failure. Returns nil for a nil err.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) && fe.Kind != KindInternal {
		return err
	}
	return &Error{Kind: KindStore, Op: op, Err: err, Retryable: true}
}

// Computation reports an unexpected numeric state.
func Computation(op string, err error) error {
	return &Error{Kind: KindComputation, Op: op, Err: err}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// IsRetryable reports whether the caller may retry the operation.
func IsRetryable(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Retryable
}
