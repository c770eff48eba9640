package keyset

import (
	"context"
	"errors"
	"fmt"

	"github.com/MicahParks/jwkset"
	keyfunc "github.com/MicahParks/keyfunc/v3"
)

// Managed resolves keys through keyfunc's background-refreshing JWKS client.
// Refresh scheduling and unknown key ID handling are delegated to jwkset; use
// Cache when refetch policy has to be controlled explicitly.
type Managed struct {
	kf keyfunc.Keyfunc
}

// NewManaged starts a background-refreshing client for urls. The refresh
// goroutines stop when ctx is done.
func NewManaged(ctx context.Context, urls ...string) (*Managed, error) {
	if len(urls) == 0 {
		return nil, errors.New("at least one jwks url required")
	}
	kf, err := keyfunc.NewDefaultCtx(ctx, urls)
	if err != nil {
		return nil, fmt.Errorf("%w: jwks init failed: %v", ErrUnavailable, err)
	}
	return &Managed{kf: kf}, nil
}

// Resolve implements Resolver.
func (m *Managed) Resolve(ctx context.Context, kid string) (any, error) {
	jwk, err := m.kf.Storage().KeyRead(ctx, kid)
	if err != nil {
		if errors.Is(err, jwkset.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return jwk.Key(), nil
}

var _ Resolver = (*Managed)(nil)
