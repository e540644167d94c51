package keysig

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"keygate/internal/domain"
	"keygate/internal/infra/auth/digest"
	cryptoinfra "keygate/internal/infra/crypto"
)

// Sign returns the lowercase hex RSA-PSS/SHA-512 signature of message.
func Sign(key *rsa.PrivateKey, message []byte) (string, error) {
	if key == nil {
		return "", errors.New("private key is required")
	}
	sum := sha512.Sum512(message)
	sig, err := rsa.SignPSS(rand.Reader, key, crypto.SHA512, sum[:], cryptoinfra.PSSOptions)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sig), nil
}

// Timestamp renders t the way the browser client does: milliseconds since
// the epoch. The server treats it as an opaque string.
func Timestamp(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// AuthorizationHeader signs op for identity at timestamp and returns the
// Digest header value.
func AuthorizationHeader(key *rsa.PrivateKey, op domain.Operation, timestamp, identity string) (string, error) {
	if timestamp == "" || identity == "" {
		return "", errors.New("timestamp and identity are required")
	}
	sig, err := Sign(key, op.CanonicalMessage(timestamp, identity))
	if err != nil {
		return "", err
	}
	return digest.Format(domain.Credentials{
		Signature: sig,
		Timestamp: timestamp,
		Identity:  identity,
	}), nil
}

// Decrypt reverses the server's encryption relay: standard base64 of an
// RSA-OAEP/SHA-512 ciphertext with an empty label.
func Decrypt(key *rsa.PrivateKey, ciphertextB64 string) ([]byte, error) {
	if key == nil {
		return nil, errors.New("private key is required")
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return nil, err
	}
	return rsa.DecryptOAEP(sha512.New(), nil, key, raw, nil)
}
