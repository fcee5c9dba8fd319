package dispatcher

import (
	"fmt"

	"github.com/Laisky/errors/v2"
)

// Kind classifies dispatch failures into the caller-visible taxonomy. The
// transport adapter maps kinds onto its own status codes.
type Kind string

const (
	// KindUnauthorized covers missing or invalid credentials.
	KindUnauthorized Kind = "unauthorized"
	// KindForbidden covers authenticated callers lacking permission.
	KindForbidden Kind = "forbidden"
	// KindNotFound covers unknown tools and jobs.
	KindNotFound Kind = "not_found"
	// KindBadRequest covers malformed input, including schema failures.
	KindBadRequest Kind = "bad_request"
	// KindRateLimited covers admission rejections.
	KindRateLimited Kind = "rate_limited"
	// KindInternal covers execution failures inside tool bodies.
	KindInternal Kind = "internal_error"
)

// Error is a classified dispatch failure. Fields carries per-field detail
// for schema validation failures and is nil otherwise.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error { return e.cause }

func newError(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func newErrorf(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// KindOf extracts the failure kind from an error chain, defaulting to
// internal for unclassified errors.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}
