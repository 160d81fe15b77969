// Package ircerr defines the error taxonomy shared across goat's
// codec, connection and pool layers.
package ircerr

import (
	"errors"
	"fmt"
)

// Kind identifies a class of failure. The zero value, None, means success
// and is never wrapped in an Error.
type Kind int

const (
	None Kind = iota
	Inval
	MsgLen
	NoTag
	NoTagVal
	State
	Resolv
	Connect
	Canceled
)

var kindText = map[Kind]string{
	None:     "success",
	Inval:    "invalid argument",
	MsgLen:   "message length exceeds protocol limit",
	NoTag:    "tag not present",
	NoTagVal: "tag present without a value",
	State:    "connection reached an illegal state",
	Resolv:   "name resolution failed",
	Connect:  "connection attempt failed",
	Canceled: "callback did not match for uninstall",
}

func (k Kind) String() string {
	if s, ok := kindText[k]; ok {
		return s
	}
	return "unknown error"
}

// Error pairs a Kind with optional underlying cause, so that
// errors.Is/errors.As can still see through to an os-level error
// when one caused the failure (e.g. a RESOLV or CONNECT originating
// from a syscall error).
type Error struct {
	Kind  Kind
	Cause error
}

func New(kind Kind) *Error {
	return &Error{Kind: kind}
}

// Wrap records kind as having been caused by cause. If cause is nil,
// Wrap returns nil, mirroring the convention that a nil error means
// success.
func Wrap(kind Kind, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Cause: cause}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// KindOf extracts the Kind carried by err, if err is (or wraps) an
// *Error. Plain errors (e.g. a bare os error that never got classified)
// report None.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return None
}
