package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"

	"keygate/internal/domain"
)

// PSSSaltLength is the fixed RSA-PSS salt length shared by signers and the
// verifier. There is no negotiation.
const PSSSaltLength = 32

// PSSOptions is the RSA-PSS configuration: SHA-512 for the digest and for
// MGF1, 32-byte salt.
var PSSOptions = &rsa.PSSOptions{SaltLength: PSSSaltLength, Hash: crypto.SHA512}

// Service verifies request signatures and encrypts relay messages.
type Service struct {
	// Rand is the entropy source for OAEP; nil means crypto/rand.
	Rand io.Reader
}

func NewService() *Service {
	return &Service{}
}

func (s *Service) LoadPublicKey(pemText string) (*PublicKey, error) {
	return LoadPublicKey(pemText)
}

// Verify reports whether signatureHex is a valid RSA-PSS/SHA-512 signature of
// message under pub. Every failure, including malformed hex, is false.
func (s *Service) Verify(pub *PublicKey, signatureHex string, message []byte) bool {
	if pub == nil || pub.rsa == nil {
		return false
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil || len(sig) == 0 {
		return false
	}
	digest := sha512.Sum512(message)
	return rsa.VerifyPSS(pub.rsa, crypto.SHA512, digest[:], sig, PSSOptions) == nil
}

// VerifyPEM loads publicKeyPEM and verifies signatureHex over message. A key
// that does not load returns false and the *domain.KeyParseError.
func (s *Service) VerifyPEM(publicKeyPEM, signatureHex string, message []byte) (bool, error) {
	pub, err := LoadPublicKey(publicKeyPEM)
	if err != nil {
		return false, err
	}
	return s.Verify(pub, signatureHex, message), nil
}

// Encrypt encrypts message under pub with RSA-OAEP (SHA-512 digest and
// MGF1, empty label) and returns standard base64. Output is randomised.
func (s *Service) Encrypt(pub *PublicKey, message []byte) (string, error) {
	if pub == nil || pub.rsa == nil {
		return "", &domain.EncryptionError{Err: errors.New("public key is required")}
	}
	if len(message) > pub.MaxMessageSize() {
		return "", &domain.EncryptionError{Err: rsa.ErrMessageTooLong}
	}
	ciphertext, err := rsa.EncryptOAEP(sha512.New(), s.random(), pub.rsa, message, nil)
	if err != nil {
		return "", &domain.EncryptionError{Err: err}
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// EncryptPEM loads pemText and encrypts message under it. A key that does not
// load is reported as an *domain.EncryptionError wrapping the parse error.
func (s *Service) EncryptPEM(pemText string, message []byte) (string, error) {
	pub, err := LoadPublicKey(pemText)
	if err != nil {
		return "", &domain.EncryptionError{Err: err}
	}
	return s.Encrypt(pub, message)
}

func (s *Service) random() io.Reader {
	if s == nil || s.Rand == nil {
		return rand.Reader
	}
	return s.Rand
}
