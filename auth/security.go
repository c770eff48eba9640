package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ggoodman/edgeauth/internal/jwtauth"
	"github.com/ggoodman/edgeauth/keyset"
	"github.com/ggoodman/edgeauth/storage"
)

const (
	// DefaultProjectID is the Firebase project whose tokens are accepted when
	// nothing else is configured.
	DefaultProjectID = "semaia"

	// GoogleJWKSURL serves the public keys Firebase Authentication signs ID tokens with.
	GoogleJWKSURL = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"
)

// SecurityConfig describes how bearer tokens are validated and where the
// signing keys come from.
//
// A zero value is usable after Normalize: it validates Firebase ID tokens for
// DefaultProjectID against GoogleJWKSURL.
type SecurityConfig struct {
	ProjectID   string
	Issuer      string   // default: FirebaseIssuerPrefix + ProjectID
	Audience    string   // default: ProjectID
	AllowedAlgs []string // default: ["RS256"] if empty
	Leeway      time.Duration

	// Key source. Exactly one of JWKSURL, Discover or KeySetFile is used;
	// KeySetFile wins, then Discover, then JWKSURL.
	JWKSURL    string
	Discover   bool // resolve jwks_uri from the issuer's OIDC metadata
	KeySetFile string
	// Managed switches the URL source from the lazy cache to a
	// background-refreshing client.
	Managed bool

	MaxAge             time.Duration // zero defers to the source
	UnknownKIDInterval time.Duration // zero keeps keyset.DefaultUnknownKIDInterval
	FetchTimeout       time.Duration // zero keeps keyset.DefaultFetchTimeout
}

// Normalize fills defaults in place.
func (c *SecurityConfig) Normalize() {
	if c.ProjectID == "" {
		c.ProjectID = DefaultProjectID
	}
	if c.Issuer == "" {
		c.Issuer = jwtauth.FirebaseIssuerPrefix + c.ProjectID
	}
	if c.Audience == "" {
		c.Audience = c.ProjectID
	}
	if len(c.AllowedAlgs) == 0 {
		c.AllowedAlgs = []string{"RS256"}
	}
	if c.JWKSURL == "" && !c.Discover && c.KeySetFile == "" {
		c.JWKSURL = GoogleJWKSURL
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = keyset.DefaultFetchTimeout
	}
}

// Validate returns an error if required invariants are not met.
func (c SecurityConfig) Validate() error {
	if c.Issuer == "" {
		return errors.New("security: issuer required")
	}
	if c.Audience == "" {
		return errors.New("security: audience required")
	}
	if c.JWKSURL == "" && !c.Discover && c.KeySetFile == "" {
		return errors.New("security: one of JWKSURL, Discover or KeySetFile required")
	}
	if c.Managed && c.KeySetFile != "" {
		return errors.New("security: Managed cannot be combined with KeySetFile")
	}
	if c.Leeway < 0 || c.MaxAge < 0 || c.UnknownKIDInterval < 0 || c.FetchTimeout < 0 {
		return errors.New("security: durations must not be negative")
	}
	return nil
}

// Copy returns a deep copy safe for mutation by the caller.
func (c SecurityConfig) Copy() SecurityConfig {
	dup := c
	dup.AllowedAlgs = append([]string(nil), c.AllowedAlgs...)
	return dup
}

// Option configures optional collaborators of an authenticator.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	client   *http.Client
	store    storage.Storage
	storeTTL time.Duration
}

// WithLogger sets the logger for key set diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithHTTPClient sets the client used for discovery and key set fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

// WithStore shares fetched key set documents with other instances through s.
// ttl applies when no max-age is known.
func WithStore(s storage.Storage, ttl time.Duration) Option {
	return func(o *options) {
		o.store = s
		o.storeTTL = ttl
	}
}

// NewAuthenticator builds the key source described by c and a verifier on
// top of it. With Discover set, the issuer's metadata is fetched here; key
// sets themselves are fetched lazily on first use (Managed fetches eagerly).
func (c SecurityConfig) NewAuthenticator(ctx context.Context, opts ...Option) (*Provider, error) {
	cc := c.Copy()
	cc.Normalize()
	if err := cc.Validate(); err != nil {
		return nil, err
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}

	if cc.Discover && cc.KeySetFile == "" {
		u, err := DiscoverJWKSURL(ctx, cc.Issuer, o.client)
		if err != nil {
			return nil, err
		}
		cc.JWKSURL = u
	}

	keys, err := cc.keySource(ctx, o)
	if err != nil {
		return nil, err
	}
	return NewWithResolver(cc, keys)
}

func (c SecurityConfig) keySource(ctx context.Context, o *options) (keyset.Resolver, error) {
	var f keyset.Fetcher
	switch {
	case c.KeySetFile != "":
		f = &keyset.FileFetcher{Path: c.KeySetFile}
	case c.Managed:
		m, err := keyset.NewManaged(ctx, c.JWKSURL)
		if err != nil {
			return nil, fmt.Errorf("security: managed key set: %w", err)
		}
		return m, nil
	default:
		hf := keyset.NewHTTPFetcher(c.JWKSURL)
		hf.Timeout = c.FetchTimeout
		if o.client != nil {
			hf.Client = o.client
		}
		f = hf
	}

	copts := []keyset.Option{
		keyset.WithLogger(o.logger),
		keyset.WithMaxAge(c.MaxAge),
		keyset.WithUnknownKIDInterval(c.UnknownKIDInterval),
	}
	if o.store != nil && c.KeySetFile == "" {
		copts = append(copts, keyset.WithStore(o.store, c.JWKSURL, o.storeTTL))
	}
	return keyset.NewCache(f, copts...), nil
}

// NewWithResolver builds an authenticator for c that resolves signing keys
// through keys. The key source fields of c are not consulted.
func NewWithResolver(c SecurityConfig, keys keyset.Resolver) (*Provider, error) {
	cc := c.Copy()
	cc.Normalize()
	if err := cc.Validate(); err != nil {
		return nil, err
	}
	v, err := jwtauth.New(&jwtauth.Config{
		Issuer:      cc.Issuer,
		Audience:    cc.Audience,
		AllowedAlgs: cc.AllowedAlgs,
		Leeway:      cc.Leeway,
	}, keys)
	if err != nil {
		return nil, err
	}
	return &Provider{v: v, keys: keys, sec: cc}, nil
}

// SecurityDescriptor exposes the effective security configuration.
type SecurityDescriptor interface{ SecurityConfig() SecurityConfig }

// SecurityProvider combines validation + descriptor.
type SecurityProvider interface {
	Authenticator
	SecurityDescriptor
}

var _ SecurityProvider = (*Provider)(nil)
