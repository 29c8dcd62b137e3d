package schemas

import (
	"errors"
	"fmt"
)

// ErrorKind classifies page operation failures.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindInitFailed
	KindLoadFailed
	KindTimeout
	KindJSError
	KindScreenshotFailed
	KindChannelClosed
	KindNoPage
	KindSelectorNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindInitFailed:
		return "initialization failed"
	case KindLoadFailed:
		return "page load failed"
	case KindTimeout:
		return "timed out"
	case KindJSError:
		return "JavaScript error"
	case KindScreenshotFailed:
		return "screenshot failed"
	case KindChannelClosed:
		return "internal channel closed"
	case KindNoPage:
		return "no page open"
	case KindSelectorNotFound:
		return "selector not found"
	default:
		return "internal error"
	}
}

// Error is the error type returned by every page operation.
// Two Errors match under errors.Is when their kinds are equal, so callers can
// test against the sentinels below regardless of the message.
type Error struct {
	Kind ErrorKind
	// Msg carries the detail: a script error, a selector, or what timed out.
	Msg string
	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Msg == "" && e.Err == nil:
		return e.Kind.String()
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Msg == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrInitFailed       = &Error{Kind: KindInitFailed}
	ErrLoadFailed       = &Error{Kind: KindLoadFailed}
	ErrTimeout          = &Error{Kind: KindTimeout}
	ErrJSError          = &Error{Kind: KindJSError}
	ErrScreenshotFailed = &Error{Kind: KindScreenshotFailed}
	ErrChannelClosed    = &Error{Kind: KindChannelClosed}
	ErrNoPage           = &Error{Kind: KindNoPage}
	ErrSelectorNotFound = &Error{Kind: KindSelectorNotFound}
	ErrInternal         = &Error{Kind: KindInternal}
)

// NewError builds an *Error with a formatted message.
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapError builds an *Error around a cause.
func WrapError(kind ErrorKind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// TimeoutError names the wait that expired.
func TimeoutError(what string) *Error {
	return &Error{Kind: KindTimeout, Msg: what}
}

// SelectorNotFoundError carries the selector that matched nothing.
func SelectorNotFoundError(selector string) *Error {
	return &Error{Kind: KindSelectorNotFound, Msg: selector}
}

// KindOf extracts the kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
