package usecase

import (
	"keygate/internal/domain"
)

// CredentialParser turns an Authorization header value into credentials.
// It returns false for any header that does not parse.
type CredentialParser func(header string) (domain.Credentials, bool)

type SignatureVerifier interface {
	// VerifyPEM returns an error only when publicKeyPEM does not load.
	VerifyPEM(publicKeyPEM, signatureHex string, message []byte) (bool, error)
}

type MessageEncrypter interface {
	EncryptPEM(publicKeyPEM string, message []byte) (string, error)
}
