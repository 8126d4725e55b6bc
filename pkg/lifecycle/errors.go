// Package lifecycle coordinates strategy state with the remote workflow engine.
package lifecycle

import (
	"errors"
	"fmt"
)

// Kind classifies a lifecycle failure for callers and the HTTP layer.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindPermissionDenied   Kind = "permission_denied"
	KindFailedPrecondition Kind = "failed_precondition"
	KindUnauthenticated    Kind = "unauthenticated"
	KindEngineUnavailable  Kind = "engine_unavailable"
	KindVerificationFailed Kind = "verification_failed"
	KindInternal           Kind = "internal"
)

// Error is the failure type surfaced by Start, Pause and Stop. The wrapped
// cause is always the first fatal error; rollback and compensation failures
// are logged, never allowed to mask it.
type Error struct {
	Kind       Kind
	Op         string // Operation being performed ("Start", "Pause", "Stop")
	StrategyID string
	Err        error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s failed for strategy %s: %s", e.Op, e.StrategyID, e.Kind)
	}

	return fmt.Sprintf("%s failed for strategy %s: %s: %v", e.Op, e.StrategyID, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a lifecycle error.
func NewError(kind Kind, op, strategyID string, err error) *Error {
	return &Error{
		Kind:       kind,
		Op:         op,
		StrategyID: strategyID,
		Err:        err,
	}
}

// KindOf returns the failure kind, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var lifecycleErr *Error
	if errors.As(err, &lifecycleErr) {
		return lifecycleErr.Kind
	}

	return KindInternal
}

// errVerificationMismatch marks a remote state re-read that still disagrees
// with the intended state after the bounded retry.
var errVerificationMismatch = errors.New("remote workflow state does not match intended state after retry")

func isVerificationMismatch(err error) bool {
	return errors.Is(err, errVerificationMismatch)
}

// IsNotFound checks if an error carries the not-found kind.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsPermissionDenied checks if an error carries the permission-denied kind.
func IsPermissionDenied(err error) bool {
	return KindOf(err) == KindPermissionDenied
}

// IsVerificationFailed checks if an error carries the verification-failed kind.
func IsVerificationFailed(err error) bool {
	return KindOf(err) == KindVerificationFailed
}

// IsEngineUnavailable checks if an error carries the engine-unavailable kind.
func IsEngineUnavailable(err error) bool {
	return KindOf(err) == KindEngineUnavailable
}
