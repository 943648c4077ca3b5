// Package toolerr defines the error taxonomy shared by the catalog, client,
// pagination, registry and dispatcher packages. Every failure that can reach
// an assistant host carries a stable Kind tag.
package toolerr

import (
	"errors"
	"fmt"
)

// Kind is the stable error tag reported to callers.
type Kind string

const (
	// KindSchema marks catalog build failures. Fatal at startup.
	KindSchema Kind = "SchemaError"
	// KindValidation marks bad caller input. The caller may correct and retry.
	KindValidation Kind = "ValidationError"
	// KindTransport marks network failures and timeouts. Never retried internally.
	KindTransport Kind = "TransportError"
	// KindBackend marks structured errors returned by the GraphQL backend.
	KindBackend Kind = "BackendError"
	// KindPagination marks windows beyond the end of data or inconsistent cursor state.
	KindPagination Kind = "PaginationError"
	// KindRegistration marks tool registry build failures. Fatal at startup.
	KindRegistration Kind = "RegistrationError"
	// KindNotFound marks lookups of unregistered tools.
	KindNotFound Kind = "NotFound"
	// KindInternal marks anything unexpected. Details are never exposed.
	KindInternal Kind = "InternalError"
)

// Error is a classified error. Code is only set for backend errors that carry
// one (GraphQL extensions.code or an HTTP status).
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind) + ": " + e.Message
	if e.Code != "" {
		msg = string(e.Kind) + " [" + e.Code + "]: " + e.Message
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so errors.Is(err, &Error{Kind: KindNotFound}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Code == "" || t.Code == e.Code)
}

// New returns a classified error with the given message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf returns a classified error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. The wrapped error is kept for logs and errors.Is but is
// not part of Message.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// Backend returns a BackendError carrying the backend's code.
func Backend(code, msg string) *Error {
	return &Error{Kind: KindBackend, Code: code, Message: msg}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindInternal
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var te *Error
	ok := errors.As(err, &te)
	return te, ok
}
