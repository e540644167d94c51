package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrMissingCredentials = errors.New("missing credentials")
	ErrUnknownIdentity    = errors.New("unknown identity")
	ErrBadSignature       = errors.New("bad signature")
	// ErrTargetMismatch is returned when a relay request names an identity
	// other than the signer's own.
	ErrTargetMismatch = errors.New("target identity does not match signer")
)

// StorageError wraps an unexpected failure of the key store backend.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError returns nil when err is nil, so call sites can wrap
// unconditionally.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// KeyParseError reports a stored or submitted public key that could not be
// loaded from PEM.
type KeyParseError struct {
	Reason string
	Err    error
}

func (e *KeyParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse public key: %s: %v", e.Reason, e.Err)
	}
	return "parse public key: " + e.Reason
}

func (e *KeyParseError) Unwrap() error {
	return e.Err
}

// EncryptionError reports a failed relay encryption, including plaintexts
// longer than the key allows.
type EncryptionError struct {
	Err error
}

func (e *EncryptionError) Error() string {
	return fmt.Sprintf("encrypt message: %v", e.Err)
}

func (e *EncryptionError) Unwrap() error {
	return e.Err
}

func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

func IsEncryptionError(err error) bool {
	var ee *EncryptionError
	return errors.As(err, &ee)
}
