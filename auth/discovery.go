package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
)

type providerMetadata struct {
	Issuer  string `json:"issuer"`
	JwksURI string `json:"jwks_uri"`
}

// DiscoverJWKSURL reads issuer's OpenID Connect metadata and returns its
// jwks_uri. The metadata must name issuer exactly. A nil client uses
// http.DefaultClient.
func DiscoverJWKSURL(ctx context.Context, issuer string, client *http.Client) (string, error) {
	if client != nil {
		ctx = oidc.ClientContext(ctx, client)
	}
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return "", fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	var meta providerMetadata
	if err := provider.Claims(&meta); err != nil {
		return "", fmt.Errorf("unexpected or invalid provider metadata: %w", err)
	}
	if meta.JwksURI == "" {
		return "", fmt.Errorf("issuer %q does not declare a jwks_uri in its metadata", issuer)
	}
	return meta.JwksURI, nil
}
