package keyset

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/elnormous/contenttype"
)

// DefaultFetchTimeout bounds a single key set fetch when no timeout is configured.
const DefaultFetchTimeout = 5 * time.Second

// maxDocumentSize caps the JWKS body we are willing to read.
const maxDocumentSize = 1 << 20

// Document is a raw key set document plus the freshness hint that came with it.
type Document struct {
	Raw []byte
	// MaxAge is the upstream freshness lifetime (Cache-Control max-age); zero
	// when the source did not express one.
	MaxAge time.Duration
}

// Fetcher retrieves a key set document.
type Fetcher interface {
	Fetch(ctx context.Context) (*Document, error)
}

// HTTPFetcher fetches a JWKS document over HTTP(S).
type HTTPFetcher struct {
	URL     string
	Client  *http.Client  // defaults to http.DefaultClient
	Timeout time.Duration // defaults to DefaultFetchTimeout
}

// NewHTTPFetcher returns an HTTPFetcher for url with default client and timeout.
func NewHTTPFetcher(url string) *HTTPFetcher {
	return &HTTPFetcher{URL: url}
}

// Fetch performs a GET against f.URL.
func (f *HTTPFetcher) Fetch(ctx context.Context) (*Document, error) {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build jwks request: %w", err)
	}
	req.Header.Set("Accept", "application/json, application/jwk-set+json")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", f.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("get %s: unexpected status %d", f.URL, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		mt, err := contenttype.ParseMediaType(ct)
		if err != nil {
			return nil, fmt.Errorf("get %s: invalid content type %q: %w", f.URL, ct, err)
		}
		if !isJWKSMediaType(mt) {
			return nil, fmt.Errorf("get %s: unexpected content type %q", f.URL, ct)
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.URL, err)
	}
	if len(body) > maxDocumentSize {
		return nil, fmt.Errorf("get %s: document exceeds %d bytes", f.URL, maxDocumentSize)
	}

	return &Document{Raw: body, MaxAge: parseMaxAge(resp.Header.Values("Cache-Control"))}, nil
}

func isJWKSMediaType(mt contenttype.MediaType) bool {
	if !strings.EqualFold(mt.Type, "application") {
		return false
	}
	switch strings.ToLower(mt.Subtype) {
	case "json", "jwk-set+json":
		return true
	}
	return false
}

// parseMaxAge extracts max-age from Cache-Control header values. no-store
// and no-cache yield zero, which callers treat as "no upstream hint".
func parseMaxAge(values []string) time.Duration {
	var maxAge time.Duration
	for _, v := range values {
		for _, directive := range strings.Split(v, ",") {
			directive = strings.ToLower(strings.TrimSpace(directive))
			switch {
			case directive == "no-store" || directive == "no-cache":
				return 0
			case strings.HasPrefix(directive, "max-age="):
				secs, err := strconv.ParseInt(strings.Trim(directive[len("max-age="):], `"`), 10, 64)
				if err == nil && secs > 0 {
					maxAge = time.Duration(secs) * time.Second
				}
			}
		}
	}
	return maxAge
}

// FileFetcher reads a JWKS document from the local filesystem.
type FileFetcher struct {
	Path string
}

// Fetch reads f.Path.
func (f *FileFetcher) Fetch(ctx context.Context) (*Document, error) {
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read jwks file: %w", err)
	}
	return &Document{Raw: raw}, nil
}
