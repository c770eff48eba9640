package keyset

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ggoodman/edgeauth/storage"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	// DefaultUnknownKIDInterval is the minimum spacing between refetches
	// triggered by key IDs missing from the cached set.
	DefaultUnknownKIDInterval = time.Minute

	// DefaultStoreTTL is how long a document written to a shared store lives
	// when neither configuration nor the upstream provided a max-age.
	DefaultStoreTTL = time.Hour
)

// Option configures a Cache.
type Option func(*cacheConfig)

type cacheConfig struct {
	maxAge             time.Duration
	unknownKIDInterval time.Duration
	store              storage.Storage
	storeKey           string
	storeTTL           time.Duration
	logger             *slog.Logger
	now                func() time.Time
}

// WithMaxAge bounds how long a fetched set is reused. It overrides any
// Cache-Control hint from the source. Zero (the default) defers to the
// source and otherwise keeps the set for the lifetime of the process.
func WithMaxAge(d time.Duration) Option {
	return func(c *cacheConfig) { c.maxAge = d }
}

// WithUnknownKIDInterval sets the minimum spacing between refetches caused
// by unknown key IDs. Non-positive values keep the default.
func WithUnknownKIDInterval(d time.Duration) Option {
	return func(c *cacheConfig) {
		if d > 0 {
			c.unknownKIDInterval = d
		}
	}
}

// WithStore shares fetched documents through s under key. ttl applies when
// no max-age is known; zero keeps DefaultStoreTTL.
func WithStore(s storage.Storage, key string, ttl time.Duration) Option {
	return func(c *cacheConfig) {
		c.store = s
		c.storeKey = key
		if ttl > 0 {
			c.storeTTL = ttl
		}
	}
}

// WithLogger sets the logger used for fetch diagnostics. Logs are discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(c *cacheConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *cacheConfig) {
		if now != nil {
			c.now = now
		}
	}
}

type entry struct {
	set       *Set
	fetchedAt time.Time
	maxAge    time.Duration
}

func (e *entry) stale(now time.Time) bool {
	return e.maxAge > 0 && now.Sub(e.fetchedAt) >= e.maxAge
}

// Cache is a lazily populated, process-local key set cache.
type Cache struct {
	fetcher Fetcher
	cfg     cacheConfig
	log     *slog.Logger

	mu      sync.RWMutex
	current *entry

	group   singleflight.Group
	unknown *rate.Limiter
	fetches atomic.Int64
}

// NewCache builds a Cache over f. Nothing is fetched until the first Resolve
// or Refresh.
func NewCache(f Fetcher, opts ...Option) *Cache {
	cfg := cacheConfig{
		unknownKIDInterval: DefaultUnknownKIDInterval,
		storeTTL:           DefaultStoreTTL,
		logger:             slog.New(slog.DiscardHandler),
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Cache{
		fetcher: f,
		cfg:     cfg,
		log:     cfg.logger,
		unknown: rate.NewLimiter(rate.Every(cfg.unknownKIDInterval), 1),
	}
}

// Resolve returns the verification key for kid.
//
// A missing or stale set is loaded first, from the shared store when one is
// configured. If kid is absent from a set that was not fetched from the source
// by this call, one refetch is attempted, subject to the unknown key ID rate
// limit.
func (c *Cache) Resolve(ctx context.Context, kid string) (any, error) {
	e, fetched, err := c.ensure(ctx)
	if err != nil {
		return nil, err
	}
	if k, ok := e.set.Key(kid); ok {
		return k, nil
	}
	if fetched {
		return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
	}

	if !c.unknown.AllowN(c.cfg.now(), 1) {
		c.log.WarnContext(ctx, "keyset.refetch.throttled", slog.String("kid", kid))
		return nil, fmt.Errorf("%w: kid %q (refetch throttled)", ErrKeyNotFound, kid)
	}
	c.log.InfoContext(ctx, "keyset.refetch.unknown_kid", slog.String("kid", kid))

	e, _, err = c.load(ctx, true)
	if err != nil {
		return nil, err
	}
	if k, ok := e.set.Key(kid); ok {
		return k, nil
	}
	return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
}

// Refresh unconditionally refetches the key set. On failure the previously
// cached set, if any, stays in place.
func (c *Cache) Refresh(ctx context.Context) error {
	_, _, err := c.load(ctx, true)
	return err
}

// Stats describes the cache state for diagnostics.
type Stats struct {
	Fetches   int64
	FetchedAt time.Time
	MaxAge    time.Duration
	KeyIDs    []string
}

// Stats returns a snapshot of the cache state.
func (c *Cache) Stats() Stats {
	st := Stats{Fetches: c.fetches.Load()}
	c.mu.RLock()
	e := c.current
	c.mu.RUnlock()
	if e != nil {
		st.FetchedAt = e.fetchedAt
		st.MaxAge = e.maxAge
		st.KeyIDs = e.set.KeyIDs()
	}
	return st
}

// ensure returns a usable entry. fetched reports whether this call obtained
// it from the source; entries read from the shared store do not count.
func (c *Cache) ensure(ctx context.Context) (e *entry, fetched bool, err error) {
	if e := c.usable(); e != nil {
		return e, false, nil
	}
	return c.load(ctx, false)
}

func (c *Cache) usable() *entry {
	c.mu.RLock()
	e := c.current
	c.mu.RUnlock()
	if e == nil || e.stale(c.cfg.now()) {
		return nil
	}
	return e
}

type loaded struct {
	e       *entry
	fetched bool
}

// load coalesces concurrent fetches. Forced loads (refresh, unknown kid) and
// lazy loads use separate flights so a lazy caller never adopts a stale result.
func (c *Cache) load(ctx context.Context, force bool) (*entry, bool, error) {
	key := "load"
	if force {
		key = "refresh"
	}
	// The flight is shared by every waiter; one caller's cancellation must not
	// fail the others. The fetcher enforces its own timeout.
	fctx := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(key, func() (any, error) {
		if !force {
			if e := c.usable(); e != nil {
				return loaded{e: e}, nil
			}
			if e := c.fromStore(fctx); e != nil {
				c.install(e)
				return loaded{e: e}, nil
			}
		}
		e, err := c.fetch(fctx)
		if err != nil {
			return nil, err
		}
		return loaded{e: e, fetched: true}, nil
	})
	if err != nil {
		return nil, false, err
	}
	l := v.(loaded)
	return l.e, l.fetched, nil
}

func (c *Cache) fetch(ctx context.Context) (*entry, error) {
	start := c.cfg.now()
	c.fetches.Add(1)

	doc, err := c.fetcher.Fetch(ctx)
	if err != nil {
		c.log.WarnContext(ctx, "keyset.fetch.fail", slog.String("err", err.Error()))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	set, err := ParseSet(doc.Raw)
	if err == nil && set.Len() == 0 {
		err = errEmptySet
	}
	if err != nil {
		c.log.WarnContext(ctx, "keyset.parse.fail", slog.String("err", err.Error()))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	e := &entry{set: set, fetchedAt: c.cfg.now(), maxAge: c.effectiveMaxAge(doc.MaxAge)}
	c.install(e)
	c.toStore(ctx, doc.Raw, e.maxAge)

	c.log.InfoContext(ctx, "keyset.fetch.ok",
		slog.Int("keys", set.Len()),
		slog.Duration("max_age", e.maxAge),
		slog.Duration("dur", c.cfg.now().Sub(start)),
	)
	return e, nil
}

func (c *Cache) effectiveMaxAge(upstream time.Duration) time.Duration {
	if c.cfg.maxAge > 0 {
		return c.cfg.maxAge
	}
	return upstream
}

func (c *Cache) install(e *entry) {
	c.mu.Lock()
	c.current = e
	c.mu.Unlock()
}

// fromStore returns a fresh entry from the shared store, or nil. Store
// failures are logged and treated as a miss.
func (c *Cache) fromStore(ctx context.Context) *entry {
	if c.cfg.store == nil {
		return nil
	}
	item, err := c.cfg.store.Get(ctx, c.cfg.storeKey)
	if err != nil {
		c.log.WarnContext(ctx, "keyset.store.get.fail", slog.String("err", err.Error()))
		return nil
	}
	if item == nil {
		return nil
	}
	set, err := ParseSet(item.Data)
	if err != nil || set.Len() == 0 {
		c.log.WarnContext(ctx, "keyset.store.doc.invalid")
		return nil
	}

	maxAge := c.cfg.maxAge
	if maxAge == 0 && item.ExpiresAt != nil {
		maxAge = item.ExpiresAt.Sub(item.CreatedAt)
	}
	e := &entry{set: set, fetchedAt: item.CreatedAt, maxAge: maxAge}
	if e.stale(c.cfg.now()) {
		return nil
	}
	c.log.DebugContext(ctx, "keyset.store.hit", slog.Int("keys", set.Len()))
	return e
}

func (c *Cache) toStore(ctx context.Context, raw []byte, maxAge time.Duration) {
	if c.cfg.store == nil {
		return
	}
	ttl := maxAge
	if ttl <= 0 {
		ttl = c.cfg.storeTTL
	}
	if err := c.cfg.store.Set(ctx, c.cfg.storeKey, raw, storage.WithTTL(ttl)); err != nil {
		c.log.WarnContext(ctx, "keyset.store.set.fail", slog.String("err", err.Error()))
	}
}

var (
	_ Resolver  = (*Cache)(nil)
	_ Refresher = (*Cache)(nil)
)
