package keyset

import (
	"context"
	"fmt"

	jose "github.com/go-jose/go-jose/v4"
)

// Static resolves keys from a fixed set that never changes.
type Static struct {
	set *Set
}

// NewStatic returns a Static resolver over keys.
func NewStatic(keys ...jose.JSONWebKey) *Static {
	return &Static{set: NewSet(keys...)}
}

// NewStaticJSON returns a Static resolver over a JWKS document.
func NewStaticJSON(raw []byte) (*Static, error) {
	set, err := ParseSet(raw)
	if err != nil {
		return nil, err
	}
	if set.Len() == 0 {
		return nil, errEmptySet
	}
	return &Static{set: set}, nil
}

// Resolve implements Resolver.
func (s *Static) Resolve(ctx context.Context, kid string) (any, error) {
	if k, ok := s.set.Key(kid); ok {
		return k, nil
	}
	return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
}

var _ Resolver = (*Static)(nil)
