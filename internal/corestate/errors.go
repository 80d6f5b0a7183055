// Package corestate holds the error taxonomy and the typed event stream
// shared by every component of the training-cycle engine. It sits below
// domain in the import graph so that errors.go and events.go never need to
// know about chess-specific types, only about generic progress/failure
// reporting.
package corestate

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is the fixed error taxonomy a component may report, per the error
// handling design. Callers should switch on Code rather than match error
// strings.
type Code int

const (
	// CodeConfigInvalid marks a rejected configuration: out-of-range
	// field, missing required value, incompatible combination.
	CodeConfigInvalid Code = iota
	// CodeCodecMismatch marks a feature-vector or action-space shape
	// mismatch between the Codec and its caller.
	CodeCodecMismatch
	// CodeRulesEngineError wraps a failure surfaced by the external
	// rules engine (chesstypes.Rules).
	CodeRulesEngineError
	// CodeIllegalActionFromApproximator marks an action index chosen by
	// the Approximator that the legal mask does not permit.
	CodeIllegalActionFromApproximator
	// CodeNonFiniteUpdate marks a training step whose result contained
	// NaN or Inf.
	CodeNonFiniteUpdate
	// CodeCheckpointIO marks a filesystem failure while saving, loading,
	// listing or pruning checkpoints.
	CodeCheckpointIO
	// CodeCheckpointFormatMismatch marks a checkpoint whose on-disk
	// format tag does not match what was requested or detected.
	CodeCheckpointFormatMismatch
	// CodeCheckpointValidationFailed marks a checkpoint that failed its
	// post-load sanity checks.
	CodeCheckpointValidationFailed
	// CodeCancelled marks a context cancellation or deadline during a
	// long-running operation.
	CodeCancelled
	// CodeInternal marks a defect that should never occur during normal
	// operation; Orchestrator callers should dump diagnostics on it.
	CodeInternal
)

func (c Code) String() string {
	switch c {
	case CodeConfigInvalid:
		return "config_invalid"
	case CodeCodecMismatch:
		return "codec_mismatch"
	case CodeRulesEngineError:
		return "rules_engine_error"
	case CodeIllegalActionFromApproximator:
		return "illegal_action_from_approximator"
	case CodeNonFiniteUpdate:
		return "non_finite_update"
	case CodeCheckpointIO:
		return "checkpoint_io"
	case CodeCheckpointFormatMismatch:
		return "checkpoint_format_mismatch"
	case CodeCheckpointValidationFailed:
		return "checkpoint_validation_failed"
	case CodeCancelled:
		return "cancelled"
	case CodeInternal:
		return "internal"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// Error is the taxonomy-tagged error type every component returns. Wrap an
// underlying cause with errors.WithStack via New/Wrap so pkg/errors can
// still print a stack trace with %+v at the point the Orchestrator dumps
// diagnostics.
type Error struct {
	Code Code
	Op   string
	err  error
}

func (e *Error) Error() string {
	if e.err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.err)
}

func (e *Error) Unwrap() error { return e.err }

// New creates a taxonomy error carrying a fresh stack trace.
func New(code Code, op, msg string) error {
	return &Error{Code: code, Op: op, err: errors.New(msg)}
}

// Wrap attaches a taxonomy code and a stack trace (always added via
// errors.WithStack) to an underlying error.
func Wrap(code Code, op string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Code: code, Op: op, err: errors.WithStack(cause)}
}

// CodeOf extracts the Code of err, defaulting to CodeInternal if err was
// not produced by this package.
func CodeOf(err error) Code {
	var te *Error
	if errors.As(err, &te) {
		return te.Code
	}
	return CodeInternal
}

// Is reports whether err (or anything it wraps) carries the given Code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
