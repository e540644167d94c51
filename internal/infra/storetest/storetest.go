// Package storetest holds the behavioural suite every domain.KeyStore
// backend must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"keygate/internal/domain"
)

// Factory returns an empty store. The suite closes it.
type Factory func(t *testing.T) domain.KeyStore

func SampleFingerprint(seed string) domain.Fingerprint {
	return domain.Fingerprint{
		CanvasHash:          "canvas-" + seed,
		DeviceMemory:        "8",
		HardwareConcurrency: 4,
		Lang:                "en-US",
		Platform:            "Linux x86_64",
		TZ:                  -60,
		UA:                  "Mozilla/5.0 " + seed,
		WebGLHash:           "webgl-" + seed,
	}
}

func Record(clientID, identity, publicKey string) domain.KeyRecord {
	return domain.KeyRecord{
		ClientID:    clientID,
		Identity:    identity,
		Fingerprint: SampleFingerprint(clientID),
		PublicKey:   publicKey,
	}
}

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s domain.KeyStore)
	}{
		{"RoundTrip", testRoundTrip},
		{"NotFound", testNotFound},
		{"UpsertOverwrites", testUpsertOverwrites},
		{"UpsertMovesIdentity", testUpsertMovesIdentity},
		{"DeleteIdempotent", testDeleteIdempotent},
		{"ListOrdered", testListOrdered},
		{"DuplicateIdentitySmallestClientWins", testDuplicateIdentity},
		{"ConcurrentUpserts", testConcurrentUpserts},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tc.fn(t, s)
		})
	}
}

func testRoundTrip(t *testing.T, s domain.KeyStore) {
	ctx := context.Background()
	rec := Record("client-1", "u1", "pem-1")
	if err := s.Upsert(ctx, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := s.FindByIdentity(ctx, "u1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.PublicKey != "pem-1" || got.ClientID != "client-1" || got.Identity != "u1" {
		t.Fatalf("unexpected record %+v", got)
	}
	if got.Fingerprint != rec.Fingerprint {
		t.Fatalf("fingerprint mismatch: %+v vs %+v", got.Fingerprint, rec.Fingerprint)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Fatal("expected timestamps to be set")
	}
}

func testNotFound(t *testing.T, s domain.KeyStore) {
	_, err := s.FindByIdentity(context.Background(), "nobody")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if domain.IsStorageError(err) {
		t.Fatal("not found must not be a storage error")
	}
}

func testUpsertOverwrites(t *testing.T, s domain.KeyStore) {
	ctx := context.Background()
	if err := s.Upsert(ctx, Record("client-1", "u1", "pem-old")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second := Record("client-1", "u1", "pem-new")
	second.Fingerprint.Lang = "it-IT"
	if err := s.Upsert(ctx, second); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	all, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected one record, got %d", len(all))
	}
	if all[0].PublicKey != "pem-new" || all[0].Fingerprint.Lang != "it-IT" {
		t.Fatalf("expected second write to win, got %+v", all[0])
	}
	got, err := s.FindByIdentity(ctx, "u1")
	if err != nil || got.PublicKey != "pem-new" {
		t.Fatalf("expected new key by identity, got %+v err %v", got, err)
	}
}

func testUpsertMovesIdentity(t *testing.T, s domain.KeyStore) {
	ctx := context.Background()
	if err := s.Upsert(ctx, Record("client-1", "old@example.com", "pem")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.Upsert(ctx, Record("client-1", "new@example.com", "pem")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := s.FindByIdentity(ctx, "old@example.com"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected old identity to be gone, got %v", err)
	}
	got, err := s.FindByIdentity(ctx, "new@example.com")
	if err != nil || got.ClientID != "client-1" {
		t.Fatalf("expected new identity to resolve, got %+v err %v", got, err)
	}
}

func testDeleteIdempotent(t *testing.T, s domain.KeyStore) {
	ctx := context.Background()
	if err := s.Upsert(ctx, Record("client-1", "u1", "pem")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	n, err := s.DeleteByClientID(ctx, "client-1")
	if err != nil || n != 1 {
		t.Fatalf("expected one removal, got %d err %v", n, err)
	}
	n, err = s.DeleteByClientID(ctx, "client-1")
	if err != nil || n != 0 {
		t.Fatalf("expected zero removals, got %d err %v", n, err)
	}
	n, err = s.DeleteByClientID(ctx, "never-existed")
	if err != nil || n != 0 {
		t.Fatalf("expected zero removals for unknown id, got %d err %v", n, err)
	}
	if _, err := s.FindByIdentity(ctx, "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected identity index cleared, got %v", err)
	}
}

func testListOrdered(t *testing.T, s domain.KeyStore) {
	ctx := context.Background()
	for _, id := range []string{"c", "a", "b"} {
		if err := s.Upsert(ctx, Record(id, "user-"+id, "pem-"+id)); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}
	all, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
	for i, want := range []string{"a", "b", "c"} {
		if all[i].ClientID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, all[i].ClientID)
		}
		if all[i].Identity != "user-"+want {
			t.Fatalf("position %d: unexpected identity %s", i, all[i].Identity)
		}
	}
}

func testDuplicateIdentity(t *testing.T, s domain.KeyStore) {
	ctx := context.Background()
	if err := s.Upsert(ctx, Record("client-b", "shared", "pem-b")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.Upsert(ctx, Record("client-a", "shared", "pem-a")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := s.FindByIdentity(ctx, "shared")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.ClientID != "client-a" {
		t.Fatalf("expected smallest client id to win, got %s", got.ClientID)
	}
	if _, err := s.DeleteByClientID(ctx, "client-a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err = s.FindByIdentity(ctx, "shared")
	if err != nil || got.ClientID != "client-b" {
		t.Fatalf("expected remaining record, got %+v err %v", got, err)
	}
}

func testConcurrentUpserts(t *testing.T, s domain.KeyStore) {
	ctx := context.Background()
	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.Upsert(ctx, Record("client-1", "u1", fmt.Sprintf("pem-%d", i)))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent upsert: %v", err)
		}
	}
	all, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(all))
	}
	got, err := s.FindByIdentity(ctx, "u1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.PublicKey != all[0].PublicKey {
		t.Fatalf("index and record disagree: %q vs %q", got.PublicKey, all[0].PublicKey)
	}
}
