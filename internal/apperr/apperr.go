// Package apperr defines the error kinds shared by the ingestion and read paths
// and their mapping onto HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies an error for callers that need to react to it.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidArgument
	KindUnauthorized
	KindRateLimited
	KindNotFound
	KindExtraction
	KindSchema
	KindResolution
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindUnauthorized:
		return "unauthorized"
	case KindRateLimited:
		return "rate_limited"
	case KindNotFound:
		return "not_found"
	case KindExtraction:
		return "extraction"
	case KindSchema:
		return "schema"
	case KindResolution:
		return "resolution"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Error carries a kind plus an optional offending field and its allowed values.
type Error struct {
	Kind    Kind
	Field   string
	Allowed []string
	Msg     string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Msg != "" {
		b.WriteString(e.Msg)
	} else {
		b.WriteString(e.Kind.String())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same kind, so errors.Is(err, apperr.NotFound) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Field == "" && t.Msg == ""
}

// Sentinels for errors.Is checks.
var (
	InvalidArgument = &Error{Kind: KindInvalidArgument}
	Unauthorized    = &Error{Kind: KindUnauthorized}
	RateLimited     = &Error{Kind: KindRateLimited}
	NotFound        = &Error{Kind: KindNotFound}
)

// Invalid builds an InvalidArgument error naming field and its allowed set.
func Invalid(field string, allowed []string) *Error {
	return &Error{
		Kind:    KindInvalidArgument,
		Field:   field,
		Allowed: allowed,
		Msg:     fmt.Sprintf("%s must be one of: %s", field, strings.Join(allowed, ", ")),
	}
}

// New builds an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap attaches a kind to err.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// classifier lets packages expose their own error types without importing callers.
type classifier interface {
	Kind() Kind
}

// KindOf walks the chain and reports the first kind found; KindInternal otherwise.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var c classifier
	if errors.As(err, &c) {
		return c.Kind()
	}
	return KindInternal
}

// HTTPStatus maps a kind onto a response status.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
