package lifecycle

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an operation failure so the HTTP layer can map it to a
// status code without string matching. Anything not covered here is an
// internal fault.
type Kind int

const (
	KindInternal Kind = iota
	KindUnsupportedType
	KindInvalidPassword
	KindQuotaExceeded
	KindNotFound
	KindConflictingSession
	KindAlreadyRunning
	KindAlreadyStopped
)

// Error is the lifecycle error type. Kind drives boundary mapping; Msg is
// the user-facing message.
type Error struct {
	Kind Kind
	Msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.err }

// KindOf extracts the Kind from err, or KindInternal if it carries none.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindInternal
}

func errUnsupportedType(raw string) error {
	return &Error{
		Kind: KindUnsupportedType,
		Msg: fmt.Sprintf("unsupported space type %q, valid types: %s",
			raw, strings.Join(ValidTypes(), ", ")),
	}
}

func errInvalidPassword() error {
	return &Error{Kind: KindInvalidPassword, Msg: "password must be at least 8 characters"}
}

func errQuotaExceeded(limit int) error {
	return &Error{Kind: KindQuotaExceeded, Msg: fmt.Sprintf("space limit of %d reached", limit)}
}

func errSpaceNotFound() error {
	return &Error{Kind: KindNotFound, Msg: "space not found"}
}

func errContainerGone() error {
	return &Error{Kind: KindNotFound, Msg: "space container no longer exists"}
}

func errConflictingSession(runningID string) error {
	return &Error{
		Kind: KindConflictingSession,
		Msg:  fmt.Sprintf("another space (%s) is already running, stop it first", runningID),
	}
}

func errAlreadyRunning() error {
	return &Error{Kind: KindAlreadyRunning, Msg: "space is already running"}
}

func errAlreadyStopped() error {
	return &Error{Kind: KindAlreadyStopped, Msg: "space is already stopped"}
}

func internalErr(msg string, err error) error {
	return &Error{Kind: KindInternal, Msg: msg, err: err}
}
