package jwtauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ggoodman/edgeauth/keyset"
	"github.com/golang-jwt/jwt/v5"
)

// FirebaseIssuerPrefix is prepended to a project ID to form the issuer of
// Firebase Authentication ID tokens.
const FirebaseIssuerPrefix = "https://securetoken.google.com/"

// Config controls validation behavior for bearer tokens.
type Config struct {
	Issuer   string
	Audience string
	// AllowedAlgs lists the accepted JWS "alg" header values. "none" is never
	// accepted regardless of this list.
	AllowedAlgs []string
	// Leeway widens the [nbf, exp] window to absorb clock skew.
	Leeway time.Duration
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// DefaultConfig returns a Config with RS256 only and no leeway.
func DefaultConfig() *Config {
	return &Config{
		AllowedAlgs: []string{"RS256"},
	}
}

// FirebaseConfig returns the configuration for ID tokens minted by Firebase
// Authentication for projectID.
func FirebaseConfig(projectID string) *Config {
	cfg := DefaultConfig()
	cfg.Issuer = FirebaseIssuerPrefix + projectID
	cfg.Audience = projectID
	return cfg
}

// Claims is the verified payload of a token.
type Claims struct {
	Subject string
	// Email is the string form of the "email" claim; HasEmail reports whether
	// the claim was present and non-empty.
	Email     string
	HasEmail  bool
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	NotBefore time.Time // zero when absent
	IssuedAt  time.Time // zero when absent
	KeyID     string

	raw map[string]any
}

// UserID returns the subject.
func (c *Claims) UserID() string { return c.Subject }

// Claims unmarshals the full claim set into ref.
func (c *Claims) Claims(ref any) error {
	b, err := json.Marshal(c.raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ref)
}

// Verifier validates bearer tokens against keys from a keyset.Resolver.
// It is safe for concurrent use and holds no per-token state.
type Verifier struct {
	cfg  Config
	keys keyset.Resolver
}

// New returns a Verifier enforcing cfg with keys resolved through keys.
func New(cfg *Config, keys keyset.Resolver) (*Verifier, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if cfg.Audience == "" {
		return nil, errors.New("audience is required")
	}
	if keys == nil {
		return nil, errors.New("key resolver is required")
	}
	c := *cfg
	c.AllowedAlgs = slices.DeleteFunc(slices.Clone(c.AllowedAlgs), func(a string) bool { return a == "" || a == "none" })
	if len(c.AllowedAlgs) == 0 {
		c.AllowedAlgs = []string{"RS256"}
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return &Verifier{cfg: c, keys: keys}, nil
}

// Verify decodes tok, checks its signature and claims, and returns the
// verified claims. Every failure is an *Error; no retries are performed.
func (v *Verifier) Verify(ctx context.Context, tok string) (*Claims, error) {
	if tok == "" {
		return nil, fail(KindMalformedToken, "empty token")
	}

	// 1. Header: algorithm and key ID.
	unverified, _, err := jwt.NewParser().ParseUnverified(tok, jwt.MapClaims{})
	if err != nil {
		return nil, fail(KindMalformedToken, "decode: %w", err)
	}
	alg, _ := unverified.Header["alg"].(string)
	if !slices.Contains(v.cfg.AllowedAlgs, alg) {
		return nil, fail(KindMalformedToken, "unsupported alg %q", alg)
	}
	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return nil, fail(KindMalformedToken, "missing kid")
	}

	out, verr := v.verifyKeyed(ctx, tok, kid)
	if verr != nil {
		verr.KeyID = kid
		return nil, verr
	}
	out.KeyID = kid
	return out, nil
}

// verifyKeyed runs the steps that follow key ID extraction.
func (v *Verifier) verifyKeyed(ctx context.Context, tok, kid string) (*Claims, *Error) {
	// 2. Key.
	key, err := v.keys.Resolve(ctx, kid)
	if err != nil {
		if errors.Is(err, keyset.ErrKeyNotFound) {
			return nil, &Error{Kind: KindKeyNotFound, Err: err}
		}
		return nil, &Error{Kind: KindKeySetUnavailable, Err: err}
	}

	// 3. Signature. Claims are validated below, in a fixed order.
	parser := jwt.NewParser(
		jwt.WithValidMethods(v.cfg.AllowedAlgs),
		jwt.WithoutClaimsValidation(),
	)
	parsed, err := parser.Parse(tok, func(*jwt.Token) (any, error) { return key, nil })
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, &Error{Kind: KindSignatureInvalid, Err: err}
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, &Error{Kind: KindMalformedToken, Err: err}
		default:
			return nil, &Error{Kind: KindInternal, Err: err}
		}
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fail(KindInternal, "unexpected claims type %T", parsed.Claims)
	}

	// 4. Claims.
	return v.validate(claims)
}

func (v *Verifier) validate(claims jwt.MapClaims) (*Claims, *Error) {
	now := v.cfg.Clock()
	leeway := v.cfg.Leeway

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, fail(KindMalformedToken, "exp: %w", err)
	}
	if exp == nil {
		return nil, fail(KindExpired, "exp claim is required")
	}
	if !now.Before(exp.Add(leeway)) {
		return nil, fail(KindExpired, "token expired at %s", exp.Time.UTC().Format(time.RFC3339))
	}
	nbf, err := claims.GetNotBefore()
	if err != nil {
		return nil, fail(KindMalformedToken, "nbf: %w", err)
	}
	if nbf != nil && now.Before(nbf.Add(-leeway)) {
		return nil, fail(KindExpired, "token not valid before %s", nbf.Time.UTC().Format(time.RFC3339))
	}

	iss, err := claims.GetIssuer()
	if err != nil {
		return nil, fail(KindMalformedToken, "iss: %w", err)
	}
	if iss != v.cfg.Issuer {
		return nil, fail(KindIssuerMismatch, "issuer %q", iss)
	}

	aud, err := claims.GetAudience()
	if err != nil {
		return nil, fail(KindMalformedToken, "aud: %w", err)
	}
	if !slices.Contains([]string(aud), v.cfg.Audience) {
		return nil, fail(KindAudienceMismatch, "audience %q", []string(aud))
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return nil, fail(KindMalformedToken, "sub: %w", err)
	}

	out := &Claims{
		Subject:   sub,
		Issuer:    iss,
		Audience:  []string(aud),
		ExpiresAt: exp.Time,
		raw:       map[string]any(claims),
	}
	if nbf != nil {
		out.NotBefore = nbf.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	if raw, ok := claims["email"]; ok && raw != nil {
		if s := fmt.Sprint(raw); s != "" {
			out.Email = s
			out.HasEmail = true
		}
	}
	return out, nil
}
