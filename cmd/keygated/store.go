package main

import (
	"context"
	"errors"
	"fmt"

	"keygate/internal/config"
	"keygate/internal/domain"
	"keygate/internal/infra/boltstore"
	"keygate/internal/infra/db"
	"keygate/internal/infra/keycache"
	"keygate/internal/infra/keymem"
	"keygate/internal/logging"
)

// openKeyStore builds the configured backend and, when a TTL is set, puts
// the identity cache in front of it. Closing the result closes everything
// it opened.
func openKeyStore(ctx context.Context, cfg config.Config) (domain.KeyStore, error) {
	logger := logging.For("keygated")
	backend := cfg.ResolvedBackend()

	var keys domain.KeyStore
	switch backend {
	case config.BackendPostgres:
		store, err := db.NewStore(cfg)
		if err != nil {
			return nil, err
		}
		repo := db.NewKeyRecordRepository(store.DB)
		if err := store.Migrate(ctx); err != nil {
			return nil, errors.Join(err, repo.Close())
		}
		keys = repo
	case config.BackendBolt:
		store, err := boltstore.Open(cfg.BoltPath)
		if err != nil {
			return nil, err
		}
		keys = store
	case config.BackendMemory:
		keys = keymem.New()
	default:
		return nil, fmt.Errorf("unsupported store backend %q", backend)
	}
	logger.Info("key store ready", "backend", backend)

	ttl := cfg.KeyCacheTTL()
	if ttl == 0 {
		return keys, nil
	}
	if cfg.RedisAddr == "" {
		logger.Info("key cache enabled", "kind", "memory", "ttl", ttl)
		return keycache.New(keys, keycache.NewMemory(), ttl), nil
	}
	redisCache, err := keycache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, errors.Join(err, keys.Close())
	}
	if err := redisCache.Ping(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("ping redis: %w", err), redisCache.Close(), keys.Close())
	}
	logger.Info("key cache enabled", "kind", "redis", "addr", cfg.RedisAddr, "ttl", ttl)
	return &closingStore{KeyStore: keycache.New(keys, redisCache, ttl), extra: redisCache.Close}, nil
}

type closingStore struct {
	domain.KeyStore
	extra func() error
}

func (s *closingStore) Close() error {
	return errors.Join(s.KeyStore.Close(), s.extra())
}
