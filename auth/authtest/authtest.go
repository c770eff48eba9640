// Package authtest provides fakes and a token-minting identity provider for
// tests that sit on top of package auth.
package authtest

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ggoodman/edgeauth/auth"
	"github.com/ggoodman/edgeauth/internal/jwtauth"
	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

// User is a fixed UserInfo.
type User struct {
	ID       string
	EmailVal string
	HasEmail bool
	Raw      map[string]any
}

func (u *User) UserID() string        { return u.ID }
func (u *User) Email() (string, bool) { return u.EmailVal, u.HasEmail }

func (u *User) Claims(ref any) error {
	b, err := json.Marshal(u.Raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, ref)
}

// Allow returns an Authenticator that accepts every token as u.
func Allow(u *User) auth.Authenticator {
	return auth.AuthenticatorFunc(func(context.Context, string) (auth.UserInfo, error) {
		return u, nil
	})
}

// Deny returns an Authenticator that rejects every token with kind.
func Deny(kind auth.Kind) auth.Authenticator {
	return auth.AuthenticatorFunc(func(context.Context, string) (auth.UserInfo, error) {
		return nil, &jwtauth.Error{Kind: kind}
	})
}

// Panic returns an Authenticator that panics with v.
func Panic(v any) auth.Authenticator {
	return auth.AuthenticatorFunc(func(context.Context, string) (auth.UserInfo, error) {
		panic(v)
	})
}

// Provider is an in-process identity provider: it signs tokens with an RSA
// key and serves the matching key set over HTTP.
type Provider struct {
	ProjectID string
	KeyID     string

	key  *rsa.PrivateKey
	srv  *httptest.Server
	hits atomic.Int64
}

// NewProvider starts a key set server for projectID. It is closed when the
// test ends.
func NewProvider(t testing.TB, projectID string) *Provider {
	t.Helper()
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	p := &Provider{ProjectID: projectID, KeyID: "K1", key: pk}
	doc, err := json.Marshal(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{p.PublicJWK()}})
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	p.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(doc)
	}))
	t.Cleanup(p.srv.Close)
	return p
}

// JWKSURL is the URL the key set is served from.
func (p *Provider) JWKSURL() string { return p.srv.URL }

// Fetches reports how many times the key set was requested.
func (p *Provider) Fetches() int64 { return p.hits.Load() }

// PublicJWK returns the verification key.
func (p *Provider) PublicJWK() jose.JSONWebKey {
	return jose.JSONWebKey{Key: &p.key.PublicKey, KeyID: p.KeyID, Algorithm: "RS256", Use: "sig"}
}

// SecurityConfig returns a configuration accepting this provider's tokens.
func (p *Provider) SecurityConfig() auth.SecurityConfig {
	return auth.SecurityConfig{ProjectID: p.ProjectID, JWKSURL: p.JWKSURL()}
}

// Claims returns a valid claim set for sub expiring in an hour.
func (p *Provider) Claims(sub string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss": jwtauth.FirebaseIssuerPrefix + p.ProjectID,
		"aud": p.ProjectID,
		"sub": sub,
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
}

// Mint signs claims with the provider key.
func (p *Provider) Mint(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = p.KeyID
	s, err := tok.SignedString(p.key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}
