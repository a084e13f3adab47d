// Package carbonerr defines the typed error kinds surfaced across Carbon's
// front ends (§7 of the design spec). Core operations return sentinel-wrapped
// errors so callers can dispatch on kind with errors.Is, instead of matching
// on message text.
package carbonerr

import "errors"

// Kind classifies a Carbon error so front ends can map it to a transport
// status (HTTP code, TCP Error frame) without string matching.
type Kind int

const (
	// KindInternal marks an invariant violation; logged at high severity.
	KindInternal Kind = iota
	KindNotFound
	KindAlreadyExists
	KindInvalidArgument
	KindInsufficientCapacity
	KindUnauthorized
	KindForbidden
	KindProtocolError
	KindIoError
	KindTimeout
)

var kindNames = map[Kind]string{
	KindInternal:             "internal",
	KindNotFound:             "not_found",
	KindAlreadyExists:        "already_exists",
	KindInvalidArgument:      "invalid_argument",
	KindInsufficientCapacity: "insufficient_capacity",
	KindUnauthorized:         "unauthorized",
	KindForbidden:            "forbidden",
	KindProtocolError:        "protocol_error",
	KindIoError:              "io_error",
	KindTimeout:              "timeout",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Error is a Kind-tagged error. Wrap domain-specific causes in Cause so
// logs retain the original detail while callers still dispatch on Kind.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Msg + ": " + e.Cause.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind with a plain message.
func New(k Kind, msg string) error {
	return &Error{Kind: k, Msg: msg}
}

// Wrap builds an *Error of the given kind wrapping cause.
func Wrap(k Kind, msg string, cause error) error {
	return &Error{Kind: k, Msg: msg, Cause: cause}
}

// Is reports whether err (or something it wraps) carries the given Kind.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to KindInternal for
// errors that did not originate in this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Sentinel errors for common, comparable-without-wrapping cases.
var (
	ErrNotFound             = New(KindNotFound, "not found")
	ErrAlreadyExists        = New(KindAlreadyExists, "already exists")
	ErrInsufficientCapacity = New(KindInsufficientCapacity, "insufficient capacity")
	ErrNoVictim             = New(KindInsufficientCapacity, "no eviction victim available")
	ErrUnauthorized         = New(KindUnauthorized, "unauthorized")
	ErrForbidden            = New(KindForbidden, "forbidden")
	ErrProtocol             = New(KindProtocolError, "protocol error")
)
