package keygate

import (
	"context"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"keygate/internal/config"
	httpinfra "keygate/internal/infra/http"
	"keygate/internal/infra/keymem"
	"keygate/pkg/keysig"

	"github.com/gin-gonic/gin"
)

var (
	clientKeysOnce sync.Once
	clientKeyA     *rsa.PrivateKey
	clientKeyB     *rsa.PrivateKey
)

func testKeys(t *testing.T) (*rsa.PrivateKey, *rsa.PrivateKey) {
	t.Helper()
	clientKeysOnce.Do(func() {
		var err error
		if clientKeyA, err = keysig.GenerateKey(2048); err != nil {
			panic(err)
		}
		if clientKeyB, err = keysig.GenerateKey(2048); err != nil {
			panic(err)
		}
	})
	return clientKeyA, clientKeyB
}

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Defaults()
	cfg.GinMode = gin.TestMode
	cfg.StoreBackend = config.BackendMemory
	ts := httptest.NewServer(httpinfra.NewServer(cfg, keymem.New()).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func register(t *testing.T, c *Client, clientID, uniqueID string, key *rsa.PrivateKey) string {
	t.Helper()
	pem, err := keysig.MarshalPublicKeyPEM(key)
	if err != nil {
		t.Fatalf("public pem: %v", err)
	}
	err = c.Register(context.Background(), RegisterInput{
		ClientID:    clientID,
		UniqueID:    uniqueID,
		PublicKey:   pem,
		Fingerprint: Fingerprint{Lang: "en-US", HardwareConcurrency: 4, TZ: 120},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return pem
}

func TestClient_FullFlow(t *testing.T) {
	ts := newBackend(t)
	keyA, keyB := testKeys(t)
	ctx := context.Background()

	alice := NewClient(ts.URL+"/", WithSigner("alice", keyA), WithHTTPClient(ts.Client()))
	bob := NewClient(ts.URL, WithSigner("bob", keyB))

	pemA := register(t, alice, "client-a", "alice", keyA)
	register(t, bob, "client-b", "bob", keyB)

	exists, err := alice.CheckKey(ctx, "alice", pemA)
	if err != nil || !exists {
		t.Fatalf("check-key: %v %v", exists, err)
	}

	records, err := alice.ListKeys(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 || records[0].ClientID != "client-a" || records[0].Fingerprint.TZ != 120 {
		t.Fatalf("unexpected records %+v", records)
	}

	ciphertext, err := alice.EncryptMessage(ctx, "hi alice")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	plain, err := keysig.Decrypt(keyA, ciphertext)
	if err != nil || string(plain) != "hi alice" {
		t.Fatalf("decrypt: %q %v", plain, err)
	}

	revoked, err := alice.RevokeKey(ctx, "client-b")
	if err != nil || !revoked {
		t.Fatalf("revoke: %v %v", revoked, err)
	}
	if _, err := bob.ListKeys(ctx); !Denied(err) {
		t.Fatalf("expected bob to be denied after revocation, got %v", err)
	}
}

func TestClient_WrongKeyIsDenied(t *testing.T) {
	ts := newBackend(t)
	keyA, keyB := testKeys(t)
	register(t, NewClient(ts.URL), "client-a", "alice", keyA)

	impostor := NewClient(ts.URL, WithSigner("alice", keyB), WithClock(func() time.Time { return time.Unix(0, 0) }))
	_, err := impostor.ListKeys(context.Background())
	apiErr, ok := err.(*APIError)
	if !ok || apiErr.Status != http.StatusForbidden || apiErr.Code != "FORBIDDEN" {
		t.Fatalf("expected forbidden APIError, got %v", err)
	}
}

func TestClient_RequiresSigner(t *testing.T) {
	c := NewClient("http://127.0.0.1:0")
	if _, err := c.ListKeys(context.Background()); err == nil {
		t.Fatal("expected error without signer")
	}
	if err := c.Register(context.Background(), RegisterInput{}); err == nil {
		t.Fatal("expected error for empty registration")
	}
}
