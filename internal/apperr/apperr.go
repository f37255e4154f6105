// Package apperr centralizes the error taxonomy from spec §7 so that the
// (out-of-scope) HTTP layer has a single place to map errors to status
// codes, and so internal packages raise consistent, errors.Is-comparable
// sentinels instead of ad-hoc strings.
package apperr

import "errors"

// Kind is one of the taxonomy buckets from spec §7.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindAlreadyExists
	KindPermissionDenied
	KindValidation
	KindBackpressure
	KindExternal
	KindProtocol
)

// Error wraps a sentinel with its taxonomy Kind so errors.As callers (and
// the HTTP layer) can recover the bucket without string matching.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// New builds a Kind-tagged error from a sentinel.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error; otherwise returns KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// HTTPStatus maps a Kind to the status code spec §7 prescribes. The HTTP
// surface itself is out of scope, but this keeps that mapping grounded in
// one place for whichever web layer consumes it.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return 404
	case KindPermissionDenied:
		return 403
	case KindValidation:
		return 400
	case KindAlreadyExists:
		return 409
	case KindExternal, KindProtocol:
		return 500
	case KindBackpressure:
		return 503
	default:
		return 500
	}
}
