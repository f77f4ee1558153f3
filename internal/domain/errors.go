// Package domain holds the core entities shared by every War Room
// subsystem: news articles and interpretations, agent opinions and
// deliberations, orders and their state machine, and the shadow ledger.
package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error per the taxonomy in the error handling design:
// transient external failures are retried, validation failures are
// recorded without retry, invariant violations abort and alert, data-absent
// failures are handled per-component, and systemic failures halt the
// trading path while observation loops stay alive.
type Kind string

const (
	KindTransient  Kind = "transient"
	KindValidation Kind = "validation"
	KindInvariant  Kind = "invariant"
	KindDataAbsent Kind = "data_absent"
	KindSystemic   Kind = "systemic"
)

// Error is a typed, wrappable error carrying the Kind so callers such as
// the Scheduler Core can branch on retry policy without string matching.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether this error (or its chain) carries the given Kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Sentinel errors used across packages for errors.Is comparisons.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrAlreadyExists       = errors.New("already exists")
	ErrStorageFailure      = errors.New("storage failure")
	ErrInsufficientSamples = errors.New("insufficient samples")
)
