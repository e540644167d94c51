package crypto

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha512"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"strings"
	"sync"
	"testing"

	"keygate/internal/domain"
)

var (
	testKeyOnce sync.Once
	testKeyA    *rsa.PrivateKey
	testKeyB    *rsa.PrivateKey
)

func testKeys(t *testing.T) (*rsa.PrivateKey, *rsa.PrivateKey) {
	t.Helper()
	testKeyOnce.Do(func() {
		var err error
		testKeyA, err = rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKeyB, err = rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
	})
	return testKeyA, testKeyB
}

func signHex(t *testing.T, key *rsa.PrivateKey, message string) string {
	t.Helper()
	digest := sha512.Sum512([]byte(message))
	sig, err := rsa.SignPSS(rand.Reader, key, crypto.SHA512, digest[:], PSSOptions)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return hex.EncodeToString(sig)
}

func mustPEM(t *testing.T, key *rsa.PublicKey) string {
	t.Helper()
	out, err := MarshalPublicKeyPEM(key)
	if err != nil {
		t.Fatalf("marshal pem: %v", err)
	}
	return out
}

func TestLoadPublicKey_PKIXAndPKCS1(t *testing.T) {
	keyA, _ := testKeys(t)

	pub, err := LoadPublicKey(mustPEM(t, &keyA.PublicKey))
	if err != nil {
		t.Fatalf("load pkix: %v", err)
	}
	if pub.Bits() != 2048 {
		t.Fatalf("expected 2048 bits, got %d", pub.Bits())
	}

	pkcs1 := string(pem.EncodeToMemory(&pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(&keyA.PublicKey)}))
	pub, err = LoadPublicKey(pkcs1)
	if err != nil {
		t.Fatalf("load pkcs1: %v", err)
	}
	if pub.RSA().N.Cmp(keyA.PublicKey.N) != 0 {
		t.Fatal("modulus mismatch")
	}
}

func TestLoadPublicKey_Failures(t *testing.T) {
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate ec key: %v", err)
	}
	ecDER, err := x509.MarshalPKIXPublicKey(&ecKey.PublicKey)
	if err != nil {
		t.Fatalf("marshal ec key: %v", err)
	}
	ecPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: ecDER}))

	cases := map[string]string{
		"empty":        "   ",
		"not pem":      "definitely not a key",
		"wrong type":   string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte{1, 2, 3}})),
		"garbage pkix": string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: []byte{1, 2, 3}})),
		"ecdsa":        ecPEM,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadPublicKey(input)
			var kpe *domain.KeyParseError
			if !errors.As(err, &kpe) {
				t.Fatalf("expected KeyParseError, got %v", err)
			}
		})
	}
}

func TestVerify(t *testing.T) {
	keyA, keyB := testKeys(t)
	svc := NewService()
	pubA, _ := LoadPublicKey(mustPEM(t, &keyA.PublicKey))
	pubB, _ := LoadPublicKey(mustPEM(t, &keyB.PublicKey))

	message := "1700000000|u1"
	sig := signHex(t, keyA, message)

	if !svc.Verify(pubA, sig, []byte(message)) {
		t.Fatal("expected valid signature")
	}
	if !svc.Verify(pubA, strings.ToUpper(sig), []byte(message)) {
		t.Fatal("expected upper-case hex to verify")
	}
	if svc.Verify(pubA, sig, []byte(message+"x")) {
		t.Fatal("expected tampered message to fail")
	}
	if svc.Verify(pubB, sig, []byte(message)) {
		t.Fatal("expected other key to fail")
	}
	if svc.Verify(pubA, "zz"+sig[2:], []byte(message)) {
		t.Fatal("expected malformed hex to fail")
	}
	if svc.Verify(pubA, sig[:len(sig)-1], []byte(message)) {
		t.Fatal("expected odd-length hex to fail")
	}
	if svc.Verify(pubA, "", []byte(message)) {
		t.Fatal("expected empty signature to fail")
	}
	if svc.Verify(nil, sig, []byte(message)) {
		t.Fatal("expected nil key to fail")
	}

	flipped := []byte(sig)
	if flipped[0] == 'a' {
		flipped[0] = 'b'
	} else {
		flipped[0] = 'a'
	}
	if svc.Verify(pubA, string(flipped), []byte(message)) {
		t.Fatal("expected flipped signature to fail")
	}
}

func TestVerify_RejectsOtherSaltLength(t *testing.T) {
	keyA, _ := testKeys(t)
	pubA := NewPublicKey(&keyA.PublicKey)
	message := []byte("1|u1")
	digest := sha512.Sum512(message)
	sig, err := rsa.SignPSS(rand.Reader, keyA, crypto.SHA512, digest[:], &rsa.PSSOptions{SaltLength: 64, Hash: crypto.SHA512})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if NewService().Verify(pubA, hex.EncodeToString(sig), message) {
		t.Fatal("expected mismatched salt length to fail")
	}
}

func TestEncrypt_RoundTripAndRandomised(t *testing.T) {
	keyA, _ := testKeys(t)
	svc := NewService()
	pemText := mustPEM(t, &keyA.PublicKey)

	first, err := svc.EncryptPEM(pemText, []byte("hello"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	second, err := svc.EncryptPEM(pemText, []byte("hello"))
	if err != nil {
		t.Fatalf("encrypt again: %v", err)
	}
	if first == second {
		t.Fatal("expected randomised ciphertext")
	}

	for _, encoded := range []string{first, second} {
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			t.Fatalf("decode base64: %v", err)
		}
		plain, err := rsa.DecryptOAEP(sha512.New(), nil, keyA, raw, nil)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		if !bytes.Equal(plain, []byte("hello")) {
			t.Fatalf("unexpected plaintext %q", plain)
		}
	}
}

func TestEncrypt_MessageTooLong(t *testing.T) {
	keyA, _ := testKeys(t)
	pub := NewPublicKey(&keyA.PublicKey)
	svc := NewService()

	if pub.MaxMessageSize() != 126 {
		t.Fatalf("expected 126 byte limit for 2048-bit key, got %d", pub.MaxMessageSize())
	}
	if _, err := svc.Encrypt(pub, bytes.Repeat([]byte("a"), 126)); err != nil {
		t.Fatalf("expected max-length message to encrypt: %v", err)
	}
	_, err := svc.Encrypt(pub, bytes.Repeat([]byte("a"), 127))
	if !domain.IsEncryptionError(err) {
		t.Fatalf("expected EncryptionError, got %v", err)
	}
	if !errors.Is(err, rsa.ErrMessageTooLong) {
		t.Fatalf("expected ErrMessageTooLong cause, got %v", err)
	}
}

func TestEncryptPEM_MalformedKey(t *testing.T) {
	_, err := NewService().EncryptPEM("nope", []byte("hello"))
	if !domain.IsEncryptionError(err) {
		t.Fatalf("expected EncryptionError, got %v", err)
	}
	var kpe *domain.KeyParseError
	if !errors.As(err, &kpe) {
		t.Fatalf("expected wrapped KeyParseError, got %v", err)
	}
}

func TestVerifyPEM(t *testing.T) {
	keyA, _ := testKeys(t)
	svc := NewService()
	msg := "1700000000|u1"
	sig := signHex(t, keyA, msg)

	ok, err := svc.VerifyPEM(mustPEM(t, &keyA.PublicKey), sig, []byte(msg))
	if err != nil || !ok {
		t.Fatalf("expected valid signature, got ok=%v err=%v", ok, err)
	}

	ok, err = svc.VerifyPEM("not a key", sig, []byte(msg))
	if ok {
		t.Fatal("expected malformed key to fail verification")
	}
	var kpe *domain.KeyParseError
	if !errors.As(err, &kpe) {
		t.Fatalf("expected KeyParseError, got %v", err)
	}
}
