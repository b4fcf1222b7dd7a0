package errors

import (
	"errors"
	"fmt"
)

// Exit codes for r1setup
const (
	ExitSuccess     = 0
	ExitFailure     = 1
	ExitInterrupted = 130
)

// Kind classifies an Error.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindMalformed
	KindFilesystem
	KindKeyMissing
	KindAborted
	KindInterrupted
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not found"
	case KindMalformed:
		return "malformed document"
	case KindFilesystem:
		return "filesystem"
	case KindKeyMissing:
		return "key file missing"
	case KindAborted:
		return "aborted"
	case KindInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Error is the base error type for r1setup. Path names the offending file or
// value and Hint carries a corrective suggestion for the user.
type Error struct {
	Kind    Kind
	Message string
	Path    string
	Hint    string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Path)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same Kind when the target carries no message,
// so the sentinels below can be used with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

// Sentinels for errors.Is checks.
var (
	ErrValidation  = &Error{Kind: KindValidation}
	ErrNotFound    = &Error{Kind: KindNotFound}
	ErrMalformed   = &Error{Kind: KindMalformed}
	ErrFilesystem  = &Error{Kind: KindFilesystem}
	ErrKeyMissing  = &Error{Kind: KindKeyMissing}
	ErrAborted     = &Error{Kind: KindAborted}
	ErrInterrupted = &Error{Kind: KindInterrupted}
)

// Validation returns an error for a rejected field value.
func Validation(message, value string) *Error {
	return &Error{Kind: KindValidation, Message: message, Path: value}
}

// NotFound returns an error for a missing inventory file.
func NotFound(path string, cause error) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: "inventory not found",
		Path:    path,
		Hint:    "a new inventory will be created",
		Cause:   cause,
	}
}

// Malformed returns an error for an inventory that cannot be used.
func Malformed(path string, cause error) *Error {
	return &Error{
		Kind:    KindMalformed,
		Message: "inventory is malformed",
		Path:    path,
		Hint:    "fix the file by hand or replace it (the current file is kept in the history directory)",
		Cause:   cause,
	}
}

// Filesystem returns an error for a failed filesystem operation.
func Filesystem(op, path string, cause error) *Error {
	return &Error{
		Kind:    KindFilesystem,
		Message: fmt.Sprintf("%s failed", op),
		Path:    path,
		Hint:    "check that the directory exists and is writable by the current user",
		Cause:   cause,
	}
}

// KeyMissing returns an error for a private key path the user gave up on.
func KeyMissing(path string) *Error {
	return &Error{
		Kind:    KindKeyMissing,
		Message: "ssh private key not found",
		Path:    path,
		Hint:    "create the key (r1setup keygen <path>) or copy it into place and run r1setup again",
	}
}

// Aborted returns an error for an explicit user abort.
func Aborted(message string) *Error {
	return &Error{Kind: KindAborted, Message: message}
}

// Interrupted returns an error for a closed or interrupted input stream.
func Interrupted(cause error) *Error {
	return &Error{Kind: KindInterrupted, Message: "input interrupted", Cause: cause}
}

// KindOf extracts the Kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// HintOf returns the corrective suggestion attached to err, if any.
func HintOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Hint
	}
	return ""
}

// ExitCode maps an error to the process exit code. An explicit abort is a
// normal exit.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	switch KindOf(err) {
	case KindAborted:
		return ExitSuccess
	case KindInterrupted:
		return ExitInterrupted
	default:
		return ExitFailure
	}
}
