package usecase

import (
	"context"
	"crypto/rsa"
	"errors"
	"sync"
	"testing"

	"keygate/internal/domain"
	"keygate/internal/infra/auth/digest"
	cryptoinfra "keygate/internal/infra/crypto"
	"keygate/internal/infra/keymem"
	"keygate/internal/logging"
	"keygate/pkg/keysig"
)

var (
	keysOnce sync.Once
	keyU1    *rsa.PrivateKey
	keyU2    *rsa.PrivateKey
)

func testKeys(t *testing.T) (*rsa.PrivateKey, *rsa.PrivateKey) {
	t.Helper()
	keysOnce.Do(func() {
		var err error
		if keyU1, err = keysig.GenerateKey(2048); err != nil {
			panic(err)
		}
		if keyU2, err = keysig.GenerateKey(2048); err != nil {
			panic(err)
		}
	})
	return keyU1, keyU2
}

func publicPEM(t *testing.T, key *rsa.PrivateKey) string {
	t.Helper()
	out, err := keysig.MarshalPublicKeyPEM(key)
	if err != nil {
		t.Fatalf("public pem: %v", err)
	}
	return out
}

func signedHeader(t *testing.T, key *rsa.PrivateKey, op domain.Operation, identity string) string {
	t.Helper()
	header, err := keysig.AuthorizationHeader(key, op, "1700000000000", identity)
	if err != nil {
		t.Fatalf("sign header: %v", err)
	}
	return header
}

func parseDigest(header string) (domain.Credentials, bool) {
	return digest.Parse(header).Credentials()
}

func newTestGate(store domain.KeyStore) *Gate {
	return NewGate(store, cryptoinfra.NewService(), parseDigest)
}

func register(t *testing.T, store domain.KeyStore, clientID, identity, pem string) {
	t.Helper()
	err := store.Upsert(context.Background(), domain.KeyRecord{
		ClientID:  clientID,
		Identity:  identity,
		PublicKey: pem,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
}

type failingStore struct {
	domain.KeyStore
}

func (failingStore) FindByIdentity(context.Context, string) (*domain.KeyRecord, error) {
	return nil, domain.NewStorageError("find by identity", errors.New("disk on fire"))
}

func TestGate_Verified(t *testing.T) {
	k1, _ := testKeys(t)
	store := keymem.New()
	register(t, store, "client-1", "u1", publicPEM(t, k1))

	op := domain.ListKeysOperation()
	decision, err := newTestGate(store).Authenticate(context.Background(), signedHeader(t, k1, op, "u1"), op)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if !decision.Allowed() || decision.State != domain.StateVerified {
		t.Fatalf("expected verified, got %+v", decision)
	}
	if decision.Record.ClientID != "client-1" || decision.Identity != "u1" {
		t.Fatalf("unexpected resolved record %+v", decision.Record)
	}
}

func TestGate_Denials(t *testing.T) {
	k1, k2 := testKeys(t)
	store := keymem.New()
	register(t, store, "client-1", "u1", publicPEM(t, k1))
	register(t, store, "client-2", "u2", "not a pem")
	register(t, store, "client-3", "u3", "")

	op := domain.ListKeysOperation()
	good := signedHeader(t, k1, op, "u1")
	creds, _ := parseDigest(good)
	flipped := creds
	if flipped.Signature[0] == '0' {
		flipped.Signature = "1" + flipped.Signature[1:]
	} else {
		flipped.Signature = "0" + flipped.Signature[1:]
	}

	cases := []struct {
		name      string
		header    string
		op        domain.Operation
		reason    domain.DenialReason
		lastState domain.GateState
	}{
		{name: "empty header", header: "", op: op, reason: domain.DenyMissingCredentials},
		{name: "blank header", header: "   ", op: op, reason: domain.DenyMissingCredentials},
		{name: "malformed header", header: "Bearer abc", op: op, reason: domain.DenyUnknownIdentity},
		{name: "unknown identity", header: signedHeader(t, k1, op, "ghost"), op: op, reason: domain.DenyUnknownIdentity},
		{name: "empty stored key", header: signedHeader(t, k1, op, "u3"), op: op, reason: domain.DenyUnknownIdentity},
		{name: "malformed stored key", header: signedHeader(t, k1, op, "u2"), op: op, reason: domain.DenyBadSignature},
		{name: "flipped signature", header: digest.Format(flipped), op: op, reason: domain.DenyBadSignature},
		{name: "other private key", header: signedHeader(t, k2, op, "u1"), op: op, reason: domain.DenyBadSignature},
		{name: "different operation", header: good, op: domain.RevokeKeyOperation("client-1"), reason: domain.DenyBadSignature},
	}
	gate := newTestGate(store)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decision, err := gate.Authenticate(context.Background(), tc.header, tc.op)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if decision.Allowed() || decision.State != domain.StateDenied {
				t.Fatalf("expected denial, got %+v", decision)
			}
			if decision.Reason != tc.reason {
				t.Fatalf("expected reason %q, got %q", tc.reason, decision.Reason)
			}
			if decision.Record != nil {
				t.Fatal("denied decision must not carry a record")
			}
		})
	}
}

func TestGate_StorageFaultIsError(t *testing.T) {
	k1, _ := testKeys(t)
	op := domain.ListKeysOperation()
	_, err := newTestGate(failingStore{KeyStore: keymem.New()}).Authenticate(context.Background(), signedHeader(t, k1, op, "u1"), op)
	if !domain.IsStorageError(err) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestGate_LogsDenialReason(t *testing.T) {
	capture := logging.CaptureForTest()
	defer capture.Restore()

	gate := newTestGate(keymem.New())
	if _, err := gate.Authenticate(context.Background(), "", domain.ListKeysOperation()); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	reason, ok := capture.Attr("request denied", "reason")
	if !ok || reason != string(domain.DenyMissingCredentials) {
		t.Fatalf("expected denial reason in log, got %q ok=%v", reason, ok)
	}
}
