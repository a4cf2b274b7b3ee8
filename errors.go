package zen

import (
	"errors"
	"time"
)

// Kind classifies an [Error] for callers that map failures onto a transport
// (HTTP status, RPC code).
type Kind uint8

const (
	KindInternal Kind = iota
	KindValidation
	KindRateLimited
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRateLimited:
		return "rate_limited"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Error is the error type returned by every Engine operation.
//
// errors.Is matches an Error against a kind sentinel (ErrValidation,
// ErrRateLimited, ...) by Kind alone, and against a specific sentinel
// (ErrInvalidCredentials, ...) by Kind and Message.
type Error struct {
	Kind    Kind
	Message string
	// RetryAfter is set on KindRateLimited errors.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Kind != e.Kind {
		return false
	}
	return t.Message == "" || t.Message == e.Message
}

// Kind sentinels.
var (
	ErrInternal       = &Error{Kind: KindInternal}
	ErrValidation     = &Error{Kind: KindValidation}
	ErrRateLimited    = &Error{Kind: KindRateLimited}
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrAuthorization  = &Error{Kind: KindAuthorization}
	ErrNotFound       = &Error{Kind: KindNotFound}
)

var (
	ErrInvalidEmail    = &Error{Kind: KindValidation, Message: "invalid email address"}
	ErrWeakPassword    = &Error{Kind: KindValidation, Message: "password does not meet requirements"}
	ErrAccountExists   = &Error{Kind: KindValidation, Message: "email already registered"}
	ErrInvalidCursor   = &Error{Kind: KindValidation, Message: "invalid cursor"}
	ErrInvalidRequest  = &Error{Kind: KindValidation, Message: "invalid request"}
	ErrUnknownProvider = &Error{Kind: KindValidation, Message: "unknown oauth provider"}

	// ErrInvalidCredentials is the single sign-in failure. It never reveals
	// whether the email is registered.
	ErrInvalidCredentials = &Error{Kind: KindAuthentication, Message: "invalid email or password"}
	ErrEmailNotVerified   = &Error{Kind: KindAuthentication, Message: "email not verified"}
	ErrUserBanned         = &Error{Kind: KindAuthentication, Message: "user is banned"}
	ErrInvalidSession     = &Error{Kind: KindAuthentication, Message: "invalid session"}
	ErrInvalidOAuthState  = &Error{Kind: KindAuthentication, Message: "invalid or expired state"}
	ErrOAuthNoEmail       = &Error{Kind: KindAuthentication, Message: "provider returned no email"}

	ErrUnauthorized = &Error{Kind: KindAuthorization, Message: "unauthorized"}
	ErrForbidden    = &Error{Kind: KindAuthorization, Message: "forbidden"}

	ErrUserNotFound = &Error{Kind: KindNotFound, Message: "user not found"}

	ErrUpstream = &Error{Kind: KindUpstream, Message: "oauth provider request failed"}

	ErrStorage = &Error{Kind: KindInternal, Message: "storage unavailable"}
	ErrCrypto  = &Error{Kind: KindInternal, Message: "crypto failure"}
)

// errSignInRateLimited keeps the generic sign-in wording on the rate limited
// path.
var errSignInRateLimited = &Error{Kind: KindRateLimited, Message: ErrInvalidCredentials.Message}

func rateLimited(base *Error, retryAfter time.Duration) error {
	if base == nil {
		base = &Error{Kind: KindRateLimited, Message: "too many attempts"}
	}
	return &Error{Kind: KindRateLimited, Message: base.Message, RetryAfter: retryAfter}
}

// wrap attaches cause to a copy of base so the sentinel itself stays
// immutable.
func wrap(base *Error, cause error) error {
	return &Error{Kind: base.Kind, Message: base.Message, RetryAfter: base.RetryAfter, Err: cause}
}

// RetryAfter reports how long the caller should wait before retrying a rate
// limited operation. It returns 0 for any other error.
func RetryAfter(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindRateLimited {
		return e.RetryAfter
	}
	return 0
}

// KindOf returns the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
