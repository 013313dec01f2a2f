package errors

import (
	"errors"
	"fmt"
)

// PublicUnauthorized is the only message a caller ever sees for a failed session check.
const PublicUnauthorized = "invalid or expired session"

// Error taxonomy shared by the token and federation packages
var (
	// Token codec errors
	ErrMalformedToken   = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrKeyMismatch      = fmt.Errorf("%w: signed with a different key", ErrInvalidSignature)
	ErrExpired          = errors.New("token expired")
	ErrNotYetValid      = errors.New("token not yet valid")

	// Token lifecycle errors
	ErrRevoked      = errors.New("token revoked")
	ErrUnknownToken = errors.New("unknown token")

	// Key material
	ErrKeyMaterialUnavailable = errors.New("key material unavailable")

	// Federation errors
	ErrCSRFStateMismatchOrExpired = errors.New("federation state missing, expired or mismatched")
	ErrUpstreamProvider           = errors.New("upstream identity provider error")
	ErrIncompleteProfile          = errors.New("identity provider profile incomplete")
	ErrUnknownProvider            = errors.New("unknown identity provider")
	ErrInvalidReturnURL           = errors.New("return url not allowed")

	// Users
	ErrUserBlocked = errors.New("user blocked")

	// Store errors
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
)

var unauthorized = []error{
	ErrMalformedToken,
	ErrInvalidSignature,
	ErrExpired,
	ErrNotYetValid,
	ErrRevoked,
	ErrUnknownToken,
}

// IsUnauthorized reports whether err is one of the session failures that
// callers must treat as a single opaque "unauthorized" outcome.
func IsUnauthorized(err error) bool {
	for _, target := range unauthorized {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// PublicMessage maps an error to the text that is safe to return to a caller.
func PublicMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case IsUnauthorized(err):
		return PublicUnauthorized
	case errors.Is(err, ErrCSRFStateMismatchOrExpired):
		return "sign-in request expired, please try again"
	case errors.Is(err, ErrUpstreamProvider):
		return "identity provider unavailable"
	case errors.Is(err, ErrIncompleteProfile):
		return "identity provider did not share an email and name"
	case errors.Is(err, ErrUnknownProvider):
		return "unsupported identity provider"
	case errors.Is(err, ErrInvalidReturnURL):
		return "return url not allowed"
	case errors.Is(err, ErrUserBlocked):
		return "account disabled"
	default:
		return "internal error"
	}
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
