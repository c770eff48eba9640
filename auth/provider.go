package auth

import (
	"context"
	"errors"

	"github.com/ggoodman/edgeauth/internal/jwtauth"
	"github.com/ggoodman/edgeauth/keyset"
)

// Provider verifies bearer tokens and exposes the key source behind it.
type Provider struct {
	v    *jwtauth.Verifier
	keys keyset.Resolver
	sec  SecurityConfig
}

// CheckAuthentication verifies tok. Failures match ErrUnauthorized and carry
// a Kind retrievable with KindOf.
func (p *Provider) CheckAuthentication(ctx context.Context, tok string) (UserInfo, error) {
	claims, err := p.v.Verify(ctx, tok)
	if err != nil {
		return nil, errors.Join(ErrUnauthorized, err)
	}
	return userInfo{c: claims}, nil
}

func (p *Provider) SecurityConfig() SecurityConfig { return p.sec.Copy() }

// Keys returns the resolver signing keys are looked up through.
func (p *Provider) Keys() keyset.Resolver { return p.keys }

// Refresh forces the key source to refetch when it supports it and is a
// no-op otherwise.
func (p *Provider) Refresh(ctx context.Context) error {
	if r, ok := p.keys.(keyset.Refresher); ok {
		return r.Refresh(ctx)
	}
	return nil
}

type userInfo struct{ c *jwtauth.Claims }

func (u userInfo) UserID() string        { return u.c.UserID() }
func (u userInfo) Email() (string, bool) { return u.c.Email, u.c.HasEmail }
func (u userInfo) Claims(ref any) error  { return u.c.Claims(ref) }
