// Package apierr defines the categorical error taxonomy shared by the auth,
// coordinator and boundary layers: validation, authentication, state-conflict,
// not-found, idempotent-replay and internal. Each maps to a fixed HTTP status at
// the boundary; none of the categories propagate past the handler that raises them.
package apierr

// Kind is one of the specification's error categories.
type Kind string

const (
	KindValidation        Kind = "VALIDATION"
	KindAuthentication    Kind = "AUTHENTICATION"
	KindStateConflict     Kind = "STATE_CONFLICT"
	KindNotFound          Kind = "NOT_FOUND"
	KindIdempotentReplay  Kind = "IDEMPOTENT_REPLAY"
	KindInternal          Kind = "INTERNAL"
)

// Error is a categorical, user-facing failure. Code is a short machine-readable
// reason (e.g. DAY_NOT_STARTED, ROSTER_LOCKED) used verbatim in responses and tests.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

// New builds an Error of the given kind and code, defaulting Message to code.
func New(kind Kind, code string) *Error {
	return &Error{Kind: kind, Code: code, Message: code}
}

// Newf builds an Error with an explicit human-readable message.
func Newf(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Status returns the conventional HTTP status code for kind, per the
// specification's error-handling design (section 7).
func Status(kind Kind) int {
	switch kind {
	case KindValidation:
		return 400
	case KindAuthentication:
		return 401
	case KindStateConflict:
		return 409
	case KindNotFound:
		return 404
	case KindIdempotentReplay:
		return 200
	default:
		return 500
	}
}
