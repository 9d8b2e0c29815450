// Package fault classifies failures of the secure chat endpoint.
//
// Inner components return errors tagged with a Kind and never decide what to do
// about them. The session driver inspects the Kind to choose between reporting to
// the local user, restarting the session, or giving up.
package fault

import (
	"errors"
	"fmt"
)

// Kind is the error taxonomy of the endpoint.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindInput
	KindProtocol
	KindSize
	KindRandomness
	KindStorage
	KindConnection
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindProtocol:
		return "protocol"
	case KindSize:
		return "size"
	case KindRandomness:
		return "randomness"
	case KindStorage:
		return "storage"
	case KindConnection:
		return "connection"
	case KindIO:
		return "io"
	default:
		return "unknown"
	}
}

// Restartable reports whether a session that failed with this kind may be
// started again by the driver. Input faults are shown to the local user and end
// the run; protocol, size and randomness faults are never retried.
func (k Kind) Restartable() bool {
	switch k {
	case KindStorage, KindConnection, KindIO:
		return true
	default:
		return false
	}
}

// Error is a classified failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with a kind and the operation that failed. A nil err yields nil.
// If err is already classified its kind is kept.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		if op == "" || op == fe.Op {
			return err
		}
		return &Error{Kind: fe.Kind, Op: op, Err: err}
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
