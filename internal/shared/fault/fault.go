// Package fault defines the single tagged error type used across the registry.
//
// Every failure that crosses a component boundary carries a Kind so callers
// (and the HTTP layer) can react without string matching:
//   - MalformedInput: missing or empty identifiers, URIs, credentials
//   - Auth: invalid, expired or absent token, bad credentials, wrong owner
//   - Communication: profile source or identity backend unreachable / timed out
//   - NoMatchFound: a referenced key or URI does not exist
//   - Configuration: collaborators needed to build a component are missing
//
// Example Usage:
//
//	if name == "" {
//	    return fault.New(fault.MalformedInput, "registry.SaveProvider", "provider name is required")
//	}
//	if fault.Is(err, fault.Auth) { ... }
package fault

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind int

const (
	Internal Kind = iota
	MalformedInput
	Auth
	Communication
	NoMatchFound
	Configuration
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case MalformedInput:
		return "malformed_input"
	case Auth:
		return "auth"
	case Communication:
		return "communication"
	case NoMatchFound:
		return "no_match_found"
	case Configuration:
		return "configuration"
	default:
		return "internal"
	}
}

// Error is the tagged error value.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// New creates an error of the given kind.
func New(kind Kind, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap tags err with kind. Context cancellation and deadline errors are always
// reported as Communication because they mean a collaborator did not answer in time.
func Wrap(kind Kind, op string, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		kind = Communication
	}
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf reports the kind of the outermost fault in err's chain.
// Untagged errors are Internal.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Communication
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the human-readable part of err without the operation prefix.
func Message(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		if fe.Msg != "" {
			return fe.Msg
		}
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
