package auth

import (
	"context"
	"errors"

	"github.com/ggoodman/edgeauth/internal/jwtauth"
)

// ErrUnauthorized indicates authentication failed or no valid credentials were supplied.
var ErrUnauthorized = errors.New("unauthorized")

// UserInfo represents an authenticated principal.
// Implementations should be lightweight and safe for concurrent use.
type UserInfo interface {
	// UserID returns the unique identifier for the user. It may be empty when
	// the token carries no subject.
	UserID() string
	// Email returns the string form of the email claim and whether one was present.
	Email() (string, bool)
	// Claims unmarshalls the user's claims into the provided struct reference.
	Claims(ref any) error
}

// Authenticator validates bearer tokens and returns associated user info.
// It should return an error matching ErrUnauthorized for invalid credentials.
type Authenticator interface {
	CheckAuthentication(ctx context.Context, tok string) (UserInfo, error)
}

// AuthenticatorFunc adapts a function to the Authenticator interface.
type AuthenticatorFunc func(ctx context.Context, tok string) (UserInfo, error)

func (f AuthenticatorFunc) CheckAuthentication(ctx context.Context, tok string) (UserInfo, error) {
	return f(ctx, tok)
}

// Kind classifies why a token was rejected. It is meant for logs and tests;
// it must never be echoed to the caller.
type Kind = jwtauth.Kind

const (
	KindMalformedToken    = jwtauth.KindMalformedToken
	KindSignatureInvalid  = jwtauth.KindSignatureInvalid
	KindExpired           = jwtauth.KindExpired
	KindIssuerMismatch    = jwtauth.KindIssuerMismatch
	KindAudienceMismatch  = jwtauth.KindAudienceMismatch
	KindKeySetUnavailable = jwtauth.KindKeySetUnavailable
	KindKeyNotFound       = jwtauth.KindKeyNotFound
	KindInternal          = jwtauth.KindInternal
)

// KindOf reports the rejection kind carried by err. Errors that did not
// come from token verification report KindInternal.
func KindOf(err error) Kind { return jwtauth.KindOf(err) }

// KeyIDOf reports the kid of the rejected token, or "" if it was never read.
func KeyIDOf(err error) string { return jwtauth.KeyIDOf(err) }
