package crypto

import (
	"crypto/rsa"
	"crypto/sha512"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"

	"keygate/internal/domain"
)

const (
	pemTypePKIX  = "PUBLIC KEY"
	pemTypePKCS1 = "RSA PUBLIC KEY"
)

// PublicKey is a loaded RSA public key. Only LoadPublicKey produces one.
type PublicKey struct {
	rsa *rsa.PublicKey
}

// NewPublicKey wraps an already parsed RSA key.
func NewPublicKey(key *rsa.PublicKey) *PublicKey {
	if key == nil {
		return nil
	}
	return &PublicKey{rsa: key}
}

func (k *PublicKey) RSA() *rsa.PublicKey {
	if k == nil {
		return nil
	}
	return k.rsa
}

// Bits is the modulus size.
func (k *PublicKey) Bits() int {
	if k == nil || k.rsa == nil {
		return 0
	}
	return k.rsa.N.BitLen()
}

// MaxMessageSize is the longest plaintext OAEP/SHA-512 accepts for this key.
func (k *PublicKey) MaxMessageSize() int {
	if k == nil || k.rsa == nil {
		return 0
	}
	n := k.rsa.Size() - 2*sha512.Size - 2
	if n < 0 {
		return 0
	}
	return n
}

// LoadPublicKey parses a PEM encoded RSA public key, either SubjectPublicKeyInfo
// ("PUBLIC KEY") or PKCS#1 ("RSA PUBLIC KEY"). Failures are *domain.KeyParseError.
func LoadPublicKey(pemText string) (*PublicKey, error) {
	if strings.TrimSpace(pemText) == "" {
		return nil, &domain.KeyParseError{Reason: "empty key"}
	}
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, &domain.KeyParseError{Reason: "no PEM block found"}
	}
	switch block.Type {
	case pemTypePKIX:
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, &domain.KeyParseError{Reason: "invalid subject public key info", Err: err}
		}
		rsaKey, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, &domain.KeyParseError{Reason: fmt.Sprintf("unsupported key type %T", parsed)}
		}
		return &PublicKey{rsa: rsaKey}, nil
	case pemTypePKCS1:
		rsaKey, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, &domain.KeyParseError{Reason: "invalid pkcs1 public key", Err: err}
		}
		return &PublicKey{rsa: rsaKey}, nil
	default:
		return nil, &domain.KeyParseError{Reason: fmt.Sprintf("unsupported PEM block %q", block.Type)}
	}
}

// MarshalPublicKeyPEM encodes key as a SubjectPublicKeyInfo PEM block.
func MarshalPublicKeyPEM(key *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: pemTypePKIX, Bytes: der})), nil
}
