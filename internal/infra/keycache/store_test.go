package keycache

import (
	"context"
	"errors"
	"testing"
	"time"

	"keygate/internal/domain"
	"keygate/internal/infra/keymem"
	"keygate/internal/infra/storetest"
)

type countingStore struct {
	domain.KeyStore
	finds int
}

func (c *countingStore) FindByIdentity(ctx context.Context, identity string) (*domain.KeyRecord, error) {
	c.finds++
	return c.KeyStore.FindByIdentity(ctx, identity)
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) (*domain.KeyRecord, bool, error) {
	return nil, false, errors.New("cache down")
}

func (brokenCache) Put(context.Context, domain.KeyRecord, time.Duration) error {
	return errors.New("cache down")
}

func (brokenCache) Evict(context.Context, string, string) error {
	return errors.New("cache down")
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.KeyStore {
		return New(keymem.New(), NewMemory(), time.Minute)
	})
}

func TestStore_CachesLookups(t *testing.T) {
	backing := &countingStore{KeyStore: keymem.New()}
	s := New(backing, NewMemory(), time.Minute)
	ctx := context.Background()

	if err := s.Upsert(ctx, storetest.Record("client-1", "u1", "pem-1")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	for i := 0; i < 3; i++ {
		got, err := s.FindByIdentity(ctx, "u1")
		if err != nil || got.PublicKey != "pem-1" {
			t.Fatalf("find: %+v err %v", got, err)
		}
	}
	if backing.finds != 1 {
		t.Fatalf("expected one backing lookup, got %d", backing.finds)
	}
}

func TestStore_UpsertInvalidates(t *testing.T) {
	s := New(keymem.New(), NewMemory(), time.Minute)
	ctx := context.Background()

	if err := s.Upsert(ctx, storetest.Record("client-1", "u1", "pem-1")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := s.FindByIdentity(ctx, "u1"); err != nil {
		t.Fatalf("find: %v", err)
	}
	if err := s.Upsert(ctx, storetest.Record("client-1", "u1", "pem-2")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := s.FindByIdentity(ctx, "u1")
	if err != nil || got.PublicKey != "pem-2" {
		t.Fatalf("expected fresh key after upsert, got %+v err %v", got, err)
	}
}

func TestStore_IdentityMoveInvalidatesOldIdentity(t *testing.T) {
	s := New(keymem.New(), NewMemory(), time.Minute)
	ctx := context.Background()

	if err := s.Upsert(ctx, storetest.Record("client-1", "old", "pem")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := s.FindByIdentity(ctx, "old"); err != nil {
		t.Fatalf("find: %v", err)
	}
	if err := s.Upsert(ctx, storetest.Record("client-1", "new", "pem")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := s.FindByIdentity(ctx, "old"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected old identity to miss, got %v", err)
	}
}

func TestStore_DeleteInvalidates(t *testing.T) {
	s := New(keymem.New(), NewMemory(), time.Minute)
	ctx := context.Background()

	if err := s.Upsert(ctx, storetest.Record("client-1", "u1", "pem")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := s.FindByIdentity(ctx, "u1"); err != nil {
		t.Fatalf("find: %v", err)
	}
	n, err := s.DeleteByClientID(ctx, "client-1")
	if err != nil || n != 1 {
		t.Fatalf("delete: %d %v", n, err)
	}
	if _, err := s.FindByIdentity(ctx, "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected revoked key to miss, got %v", err)
	}
}

func TestStore_NotFoundIsNotCached(t *testing.T) {
	cache := NewMemory()
	s := New(keymem.New(), cache, time.Minute)
	if _, err := s.FindByIdentity(context.Background(), "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if cache.Len() != 0 {
		t.Fatalf("expected empty cache, got %d entries", cache.Len())
	}
}

func TestStore_BrokenCacheFallsBack(t *testing.T) {
	s := New(keymem.New(), brokenCache{}, time.Minute)
	ctx := context.Background()
	if err := s.Upsert(ctx, storetest.Record("client-1", "u1", "pem")); err != nil {
		t.Fatalf("upsert should ignore cache failures: %v", err)
	}
	got, err := s.FindByIdentity(ctx, "u1")
	if err != nil || got.ClientID != "client-1" {
		t.Fatalf("expected store fallback, got %+v err %v", got, err)
	}
	if n, err := s.DeleteByClientID(ctx, "client-1"); err != nil || n != 1 {
		t.Fatalf("delete should ignore cache failures: %d %v", n, err)
	}
}

func TestMemory_Expires(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewMemoryWithClock(func() time.Time { return now })
	ctx := context.Background()

	if err := cache.Put(ctx, storetest.Record("client-1", "u1", "pem"), time.Second); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, ok, _ := cache.Get(ctx, "u1"); !ok {
		t.Fatal("expected hit before expiry")
	}
	now = now.Add(2 * time.Second)
	if _, ok, _ := cache.Get(ctx, "u1"); ok {
		t.Fatal("expected miss after expiry")
	}
}
