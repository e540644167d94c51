// Package keycache puts a read-through identity cache in front of a
// domain.KeyStore.
package keycache

import (
	"context"
	"log/slog"
	"time"

	"keygate/internal/domain"
	"keygate/internal/logging"
)

// Cache holds identity lookups. Put records both the identity entry and a
// client id to identity link so that Evict can find entries cached under an
// identity the client no longer uses.
type Cache interface {
	Get(ctx context.Context, identity string) (*domain.KeyRecord, bool, error)
	Put(ctx context.Context, record domain.KeyRecord, ttl time.Duration) error
	// Evict drops the entry for identity (if non-empty) and the entry linked
	// to clientID.
	Evict(ctx context.Context, clientID, identity string) error
}

// Store decorates a KeyStore. Cache failures are logged and the backing
// store is used; they never fail a request.
type Store struct {
	next  domain.KeyStore
	cache Cache
	ttl   time.Duration
	log   *slog.Logger
}

func New(next domain.KeyStore, cache Cache, ttl time.Duration) *Store {
	return &Store{
		next:  next,
		cache: cache,
		ttl:   ttl,
		log:   logging.For("keycache"),
	}
}

func (s *Store) Upsert(ctx context.Context, record domain.KeyRecord) error {
	if err := s.next.Upsert(ctx, record); err != nil {
		return err
	}
	s.evict(ctx, record.ClientID, record.Identity)
	return nil
}

func (s *Store) FindByIdentity(ctx context.Context, identity string) (*domain.KeyRecord, error) {
	cached, ok, err := s.cache.Get(ctx, identity)
	if err != nil {
		s.log.Warn("cache read failed", "error", err)
	} else if ok {
		return cached, nil
	}

	record, err := s.next.FindByIdentity(ctx, identity)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Put(ctx, *record, s.ttl); err != nil {
		s.log.Warn("cache write failed", "error", err)
	}
	return record, nil
}

func (s *Store) DeleteByClientID(ctx context.Context, clientID string) (int64, error) {
	n, err := s.next.DeleteByClientID(ctx, clientID)
	if err != nil {
		return 0, err
	}
	s.evict(ctx, clientID, "")
	return n, nil
}

func (s *Store) ListAll(ctx context.Context) ([]domain.KeyRecord, error) {
	return s.next.ListAll(ctx)
}

func (s *Store) Close() error {
	return s.next.Close()
}

// evict runs after the write has committed. A failure leaves a stale entry
// that expires with the TTL.
func (s *Store) evict(ctx context.Context, clientID, identity string) {
	if err := s.cache.Evict(ctx, clientID, identity); err != nil {
		s.log.Error("cache eviction failed", "client_id", clientID, "error", err)
	}
}

var _ domain.KeyStore = (*Store)(nil)
