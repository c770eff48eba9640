// Package auth verifies Firebase Authentication ID tokens presented as
// bearer tokens at the edge.
//
// The public surface stays small: an Authenticator validates a bearer token
// string and returns a UserInfo (or an error). Callers are responsible for
// extracting the token from the request and for mapping failures to a
// uniform response.
//
// # Configuration
//
// SecurityConfig names the project, the accepted algorithms and the key
// source. The zero value, once normalized, accepts tokens for
// DefaultProjectID signed by keys from GoogleJWKSURL:
//
//	p, err := auth.SecurityConfig{ProjectID: "semaia"}.NewAuthenticator(ctx)
//	if err != nil { log.Fatal(err) }
//
//	ui, err := p.CheckAuthentication(ctx, bearerToken)
//	if errors.Is(err, auth.ErrUnauthorized) {
//	    log.Printf("rejected: %s", auth.KindOf(err))
//	}
//
// Keys are fetched lazily on first use and reused until stale. Set Discover
// to resolve the key set URL from the issuer's OpenID Connect metadata, or
// KeySetFile to read keys from disk.
//
// # Errors
//
// Every rejection matches ErrUnauthorized. KindOf classifies the rejection
// for logs; the kind must not be surfaced to untrusted callers.
package auth
