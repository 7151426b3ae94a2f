// Package errs implements a small, closed error taxonomy rather than a
// language-level exception hierarchy, each kind tagged with the upstream
// service it should be attributed to so the scheduler and the
// control-plane API can surface the right banner.
package errs

import (
	"errors"
	"fmt"
)

// Kind is one of the closed set of error taxonomy entries.
type Kind string

const (
	Cancelled           Kind = "cancelled"
	UpstreamUnavailable Kind = "upstream_unavailable"
	UpstreamAuth        Kind = "upstream_auth"
	UpstreamNotFound    Kind = "upstream_not_found"
	UpstreamThrottled   Kind = "upstream_throttled"
	UpstreamMalformed   Kind = "upstream_malformed"
	UpstreamServer      Kind = "upstream_server"
	Configuration       Kind = "configuration"
	Internal            Kind = "internal"
)

// Meta describes how a Kind should be treated by callers deciding whether
// to retry or how to report a status.
type Meta struct {
	HTTPStatus int
	Retryable  bool
}

var registry = map[Kind]Meta{
	Cancelled:           {HTTPStatus: 499, Retryable: false},
	UpstreamUnavailable: {HTTPStatus: 503, Retryable: false},
	UpstreamAuth:        {HTTPStatus: 401, Retryable: false},
	UpstreamNotFound:    {HTTPStatus: 404, Retryable: false},
	UpstreamThrottled:   {HTTPStatus: 429, Retryable: true},
	UpstreamMalformed:   {HTTPStatus: 502, Retryable: false},
	UpstreamServer:      {HTTPStatus: 502, Retryable: false},
	Configuration:       {HTTPStatus: 400, Retryable: false},
	Internal:            {HTTPStatus: 500, Retryable: false},
}

// MetaFor returns the registered metadata for a kind, or the Internal
// metadata if the kind is unknown.
func MetaFor(k Kind) Meta {
	if m, ok := registry[k]; ok {
		return m
	}
	return registry[Internal]
}

// Error is the only error type everything above the upstream client layer
// sees. It carries the service the failure should be attributed to,
// independent of which reconciler raised it.
type Error struct {
	Kind    Kind
	Service string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Service, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Service, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error.
func New(kind Kind, service, message string) *Error {
	return &Error{Kind: kind, Service: service, Message: message}
}

// Wrap attributes an existing error to a service under the given kind.
func Wrap(kind Kind, service, message string, cause error) *Error {
	return &Error{Kind: kind, Service: service, Message: message, Cause: cause}
}

// IsCancelled reports whether err is (or wraps) a Cancelled-kind Error,
// the one kind whose presence is allowed to take a job out of
// `completed` and into `cancelled` instead.
func IsCancelled(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == Cancelled
	}
	return false
}

// KindOf extracts the Kind of err, defaulting to Internal if err is not
// an *Error — that case should never happen, since every upstream
// client wraps its own errors before returning them.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// ServiceOf extracts the attributed service of err, or "" if unknown.
func ServiceOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Service
	}
	return ""
}

// ClassifyHTTPStatus maps a response status code to a Kind the way a
// validate() call does: 401/403 -> auth, 404 -> not found, 429 ->
// throttled, other 4xx/5xx -> server.
func ClassifyHTTPStatus(status int) Kind {
	switch {
	case status == 401 || status == 403:
		return UpstreamAuth
	case status == 404:
		return UpstreamNotFound
	case status == 429:
		return UpstreamThrottled
	case status >= 400:
		return UpstreamServer
	default:
		return Internal
	}
}
