package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotIdle is returned by Start when a session already exists or is in flight.
	ErrNotIdle = errors.New("session is not idle")
	// ErrNotAwaitingContext is returned by SubmitContext outside the awaiting phase.
	ErrNotAwaitingContext = errors.New("session is not awaiting context")
	// ErrContextInFlight is returned while a previous submission has not resolved.
	ErrContextInFlight = errors.New("context submission already in flight")
	// ErrAbandoned is returned by a continuation that was overtaken by Stop.
	ErrAbandoned = errors.New("session attempt abandoned")
	// ErrRateLimited is returned when a client issues actions too quickly.
	ErrRateLimited = errors.New("too many session actions")
)

// ErrorKind classifies session failures for the UI.
type ErrorKind string

const (
	KindTokenFetch ErrorKind = "token_fetch"
	KindJoin       ErrorKind = "join"
	KindMicrophone ErrorKind = "microphone"
	KindSend       ErrorKind = "send"
)

// Fatal reports whether the failure ends the current start attempt.
func (k ErrorKind) Fatal() bool { return k != KindSend }

// SessionError carries a classified failure of a collaborator call.
type SessionError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func NewSessionError(kind ErrorKind, op string, err error) *SessionError {
	return &SessionError{Kind: kind, Op: op, Err: err}
}

func (e *SessionError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// KindOf returns the kind of the first SessionError in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var se *SessionError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}
