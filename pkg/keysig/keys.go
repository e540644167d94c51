// Package keysig holds the client half of the keygate protocol: key
// generation, PEM export, request signing and relay decryption.
package keysig

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	cryptoinfra "keygate/internal/infra/crypto"
)

// DefaultKeyBits matches the browser client, which generates 4096-bit keys.
const DefaultKeyBits = 4096

const minKeyBits = 2048

func GenerateKey(bits int) (*rsa.PrivateKey, error) {
	if bits == 0 {
		bits = DefaultKeyBits
	}
	if bits < minKeyBits {
		return nil, fmt.Errorf("key size %d is below %d bits", bits, minKeyBits)
	}
	return rsa.GenerateKey(rand.Reader, bits)
}

// MarshalPrivateKeyPEM encodes key as a PKCS#8 "PRIVATE KEY" block.
func MarshalPrivateKeyPEM(key *rsa.PrivateKey) (string, error) {
	if key == nil {
		return "", errors.New("private key is required")
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})), nil
}

// MarshalPublicKeyPEM encodes the public half as SPKI, the form the server
// stores and compares in check-key.
func MarshalPublicKeyPEM(key *rsa.PrivateKey) (string, error) {
	if key == nil {
		return "", errors.New("private key is required")
	}
	return cryptoinfra.MarshalPublicKeyPEM(&key.PublicKey)
}

// ParsePrivateKeyPEM accepts PKCS#8 and PKCS#1 blocks.
func ParsePrivateKeyPEM(text string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(text))
	if block == nil {
		return nil, errors.New("private key is not PEM encoded")
	}
	switch block.Type {
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("unsupported private key type %T", parsed)
		}
		return key, nil
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	default:
		return nil, fmt.Errorf("unsupported PEM block %q", block.Type)
	}
}
