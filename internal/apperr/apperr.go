// Package apperr defines the error kinds surfaced to HTTP clients and the
// single translator that renders them as the JSON error envelope.
package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/samber/oops"
	slogctx "github.com/veqryn/slog-context"
)

// Kind classifies an error for the client.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindUnauthorized
	KindForbidden
	KindInvalidOperation
	KindInvalidSubdomain
	KindTooManyRequests
)

// Status maps a kind to its HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidOperation:
		return http.StatusNotAcceptable
	case KindInvalidSubdomain:
		return http.StatusBadRequest
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a typed error carrying a client-safe message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return newError(KindConflict, format, args...)
}

func Unauthorized(format string, args ...any) *Error {
	return newError(KindUnauthorized, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return newError(KindForbidden, format, args...)
}

func InvalidOperation(format string, args ...any) *Error {
	return newError(KindInvalidOperation, format, args...)
}

func InvalidSubdomain(format string, args ...any) *Error {
	return newError(KindInvalidSubdomain, format, args...)
}

func TooManyRequests(format string, args ...any) *Error {
	return newError(KindTooManyRequests, format, args...)
}

// FeatureNotEnabled is reported as an invalid operation.
func FeatureNotEnabled(feature string) *Error {
	return InvalidOperation("Feature '%s' is not enabled.", feature)
}

// Wrap attaches a cause to a typed error.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// KindOf returns the kind of err, KindInternal when untyped.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is a typed error of kind k.
func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// Envelope is the JSON body of every error response.
type Envelope struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// Write renders err as the error envelope. Untyped errors become a generic
// 500; the cause is logged with its stack trace and never sent to the client.
func Write(w http.ResponseWriter, r *http.Request, err error) {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		WriteJSON(w, e.Kind.Status(), Envelope{Error: e.Message, Code: e.Kind.Status()})
		return
	}

	attrs := []any{slog.String("error", err.Error())}
	if oe, ok := oops.AsOops(err); ok {
		attrs = append(attrs, slog.String("stacktrace", oe.Stacktrace()))
	}
	if r != nil {
		attrs = append(attrs, slog.String("method", r.Method), slog.String("path", r.URL.Path))
		slogctx.FromCtx(r.Context()).Error("unhandled error", attrs...)
	} else {
		slog.Default().Error("unhandled error", attrs...)
	}

	WriteJSON(w, http.StatusInternalServerError, Envelope{
		Error: "Internal server error",
		Code:  http.StatusInternalServerError,
	})
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
