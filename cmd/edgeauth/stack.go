package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ggoodman/edgeauth/auth"
	"github.com/ggoodman/edgeauth/edge"
	"github.com/ggoodman/edgeauth/internal/config"
	"github.com/ggoodman/edgeauth/keyset"
	"github.com/ggoodman/edgeauth/storage"
	"github.com/ggoodman/edgeauth/storage/memory"
	"github.com/ggoodman/edgeauth/storage/redis"
)

// stack is the assembled authentication pipeline.
type stack struct {
	provider *auth.Provider
	mediator *edge.Mediator
	store    storage.Storage
}

func (r *stack) Close() error {
	if r.store != nil {
		return r.store.Close()
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	switch cfg.StoreKind() {
	case config.StoreRedis:
		s, err := redis.Dial(ctx, cfg.RedisAddr, cfg.RedisKeyPrefix)
		if err != nil {
			return nil, fmt.Errorf("open redis store: %w", err)
		}
		return s, nil
	case config.StoreMemory:
		s, err := memory.New(memory.DefaultMaxItems, time.Minute)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, nil
	}
}

func buildStack(ctx context.Context, cfg *config.Config, log *slog.Logger) (*stack, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	opts := []auth.Option{auth.WithLogger(log)}
	if store != nil {
		opts = append(opts, auth.WithStore(store, cfg.StoreTTL))
	}

	p, err := cfg.Security().NewAuthenticator(ctx, opts...)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}
	m, err := edge.New(p, edge.WithLogger(log), edge.WithCORS(cfg.CORS()))
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}

	sec := p.SecurityConfig()
	log.InfoContext(ctx, "edgeauth.ready",
		slog.String("issuer", sec.Issuer),
		slog.String("audience", sec.Audience),
		slog.String("jwks_url", sec.JWKSURL),
		slog.String("jwks_file", sec.KeySetFile),
		slog.String("store", cfg.StoreKind()),
	)
	return &stack{provider: p, mediator: m, store: store}, nil
}

// watchKeySetFile refreshes the key set whenever the configured file changes.
// It returns immediately when keys do not come from a file.
func (r *stack) watchKeySetFile(ctx context.Context, log *slog.Logger) {
	path := r.provider.SecurityConfig().KeySetFile
	if path == "" {
		return
	}
	refresher, ok := r.provider.Keys().(keyset.Refresher)
	if !ok {
		return
	}
	go func() {
		if err := keyset.WatchFile(ctx, path, refresher, log); err != nil {
			log.ErrorContext(ctx, "keyset.watch.fail", slog.String("err", err.Error()))
		}
	}()
}
