package firebase

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a backend failure. The REST adapters set the kind
// explicitly from the response status; callers must never infer it from
// message text.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindPermissionDenied
	KindNotFound
	KindNetwork
	KindUnauthenticated
)

func (k ErrorKind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission_denied"
	case KindNotFound:
		return "not_found"
	case KindNetwork:
		return "network"
	case KindUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Error is a tagged backend error. Code carries the backend's own error
// identifier (e.g. EMAIL_NOT_FOUND) when one was returned.
type Error struct {
	Kind   ErrorKind
	Code   string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("firebase: %s (%s)", e.Kind, e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("firebase: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("firebase: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// IsPermissionDenied reports whether err is a backend authorization failure.
func IsPermissionDenied(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == KindPermissionDenied
}

// IsNotFound reports whether err is a backend not-found failure.
func IsNotFound(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == KindNotFound
}

// IsNetwork reports whether err is a transport-level failure (no response
// from the backend at all).
func IsNetwork(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == KindNetwork
}

// userMessages maps backend auth error codes to messages suitable for
// showing directly to the user.
var userMessages = map[string]string{
	"EMAIL_NOT_FOUND":             "No account exists with this email address",
	"INVALID_PASSWORD":            "Incorrect password",
	"INVALID_LOGIN_CREDENTIALS":   "Incorrect email or password",
	"USER_DISABLED":               "This account has been disabled",
	"EMAIL_EXISTS":                "An account already exists with this email address",
	"WEAK_PASSWORD":               "Password should be at least 6 characters",
	"INVALID_EMAIL":               "Please enter a valid email address",
	"TOO_MANY_ATTEMPTS_TRY_LATER": "Too many attempts, please try again later",
	"TOKEN_EXPIRED":               "Your session has expired, please log in again",
	"INVALID_REFRESH_TOKEN":       "Your session has expired, please log in again",
}

// UserMessage returns a user-facing message for a backend error. Errors
// without a known code get a generic message.
func UserMessage(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		if msg, ok := userMessages[fe.Code]; ok {
			return msg
		}
		if fe.Kind == KindNetwork {
			return "Could not reach the server, check your connection"
		}
	}
	return "Something went wrong, please try again"
}
