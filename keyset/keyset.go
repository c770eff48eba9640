// Package keyset resolves JSON Web Key IDs to signature verification keys.
//
// The central type is Cache, which lazily fetches an identity provider's key
// set, reuses it until it goes stale and coalesces concurrent fetches. A key
// ID that is missing from the cached set triggers at most one refetch, and
// such refetches are rate limited so that tokens carrying bogus key IDs cannot
// drive a fetch storm against the identity provider.
//
// Failures are reported through two sentinels. ErrUnavailable means no usable
// key set could be obtained (network, HTTP status, timeout or parse failure).
// ErrKeyNotFound means a key set was available but did not contain the
// requested key ID. Callers verifying tokens must treat both as a rejection.
//
// Alternative resolvers are provided for other deployment shapes: Managed
// delegates refresh scheduling to github.com/MicahParks/keyfunc, and Static
// serves a fixed set (tests, pinned keys).
package keyset

import (
	"context"
	"errors"
)

// ErrKeyNotFound indicates the requested key ID is absent from the key set.
var ErrKeyNotFound = errors.New("keyset: key not found")

// ErrUnavailable indicates no usable key set could be obtained.
var ErrUnavailable = errors.New("keyset: key set unavailable")

// Resolver maps a key ID to a public verification key.
//
// Implementations must be safe for concurrent use. The returned key is one of
// the crypto public key types understood by github.com/golang-jwt/jwt/v5
// (*rsa.PublicKey, *ecdsa.PublicKey, ed25519.PublicKey).
type Resolver interface {
	Resolve(ctx context.Context, kid string) (any, error)
}

// Refresher is implemented by resolvers that can be forced to refetch.
type Refresher interface {
	Refresh(ctx context.Context) error
}
