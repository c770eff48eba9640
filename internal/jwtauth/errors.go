package jwtauth

import (
	"errors"
	"fmt"
)

// Kind classifies why a token failed verification. Kinds are for diagnostics
// and tests only; callers facing untrusted clients must not reveal them.
type Kind string

const (
	KindMalformedToken    Kind = "malformed_token"
	KindSignatureInvalid  Kind = "signature_invalid"
	KindExpired           Kind = "expired"
	KindIssuerMismatch    Kind = "issuer_mismatch"
	KindAudienceMismatch  Kind = "audience_mismatch"
	KindKeySetUnavailable Kind = "key_set_unavailable"
	KindKeyNotFound       Kind = "key_not_found"
	// KindInternal covers failures outside the taxonomy above.
	KindInternal Kind = "internal"
)

// ErrUnauthorized is matched by every verification failure.
var ErrUnauthorized = errors.New("jwtauth: unauthorized")

// Error is returned by Verify for every rejected token.
type Error struct {
	Kind Kind
	// KeyID is the token's kid header, when one was read.
	KeyID string
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("jwtauth: %s", e.Kind)
	}
	return fmt.Sprintf("jwtauth: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUnauthorized}
	}
	return []error{ErrUnauthorized, e.Err}
}

func fail(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the failure kind from err. Errors that did not originate
// from Verify report KindInternal; nil reports "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// KeyIDOf returns the kid of the token rejected with err, or "".
func KeyIDOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.KeyID
	}
	return ""
}
