package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"keygate/internal/domain"
	"keygate/internal/logging"
)

type RegisterInput struct {
	ClientID    string
	Identity    string
	Fingerprint domain.Fingerprint
	PublicKey   string
}

// Registry exposes the key registry operations. Registration and key checks
// are open; listing, revocation and the encryption relay pass through Gate.
type Registry struct {
	Keys      domain.KeyStore
	Gate      *Gate
	Encrypter MessageEncrypter
	Log       *slog.Logger
}

func NewRegistry(keys domain.KeyStore, gate *Gate, encrypter MessageEncrypter) *Registry {
	return &Registry{
		Keys:      keys,
		Gate:      gate,
		Encrypter: encrypter,
		Log:       logging.For("registry"),
	}
}

// Register stores the public key for in.ClientID, replacing any earlier
// registration of the same client. The key is stored as submitted.
func (r *Registry) Register(ctx context.Context, in RegisterInput) error {
	if err := r.ready(); err != nil {
		return err
	}
	if err := validateRegister(in); err != nil {
		return err
	}
	err := r.Keys.Upsert(ctx, domain.KeyRecord{
		ClientID:    in.ClientID,
		Identity:    in.Identity,
		Fingerprint: in.Fingerprint,
		PublicKey:   in.PublicKey,
	})
	r.outcome("register", in.Identity, err, "client_id", in.ClientID)
	return err
}

func validateRegister(in RegisterInput) error {
	switch {
	case strings.TrimSpace(in.ClientID) == "":
		return fmt.Errorf("%w: client_id is required", domain.ErrInvalidInput)
	case strings.TrimSpace(in.Identity) == "":
		return fmt.Errorf("%w: unique_id is required", domain.ErrInvalidInput)
	case strings.TrimSpace(in.PublicKey) == "":
		return fmt.Errorf("%w: public_key is required", domain.ErrInvalidInput)
	}
	return nil
}

// CheckKey reports whether the key stored for identity is byte-for-byte
// equal to candidate. An unknown identity is false, not an error.
func (r *Registry) CheckKey(ctx context.Context, identity, candidate string) (bool, error) {
	if err := r.ready(); err != nil {
		return false, err
	}
	record, err := r.Keys.FindByIdentity(ctx, identity)
	if errors.Is(err, domain.ErrNotFound) {
		r.outcome("check-key", identity, nil, "exists", false)
		return false, nil
	}
	if err != nil {
		r.outcome("check-key", identity, err)
		return false, err
	}
	exists := record.PublicKey == candidate
	r.outcome("check-key", identity, nil, "exists", exists)
	return exists, nil
}

func (r *Registry) ListKeys(ctx context.Context, header string) ([]domain.KeyRecord, error) {
	decision, err := r.authorize(ctx, header, domain.ListKeysOperation())
	if err != nil {
		return nil, err
	}
	records, err := r.Keys.ListAll(ctx)
	r.outcome("list-keys", decision.Identity, err, "count", len(records))
	if err != nil {
		return nil, err
	}
	return records, nil
}

// RevokeKey deletes the record for targetClientID. Any verified signer may
// revoke any client; the result reports whether a record was removed.
func (r *Registry) RevokeKey(ctx context.Context, header, targetClientID string) (bool, error) {
	decision, err := r.authorize(ctx, header, domain.RevokeKeyOperation(targetClientID))
	if err != nil {
		return false, err
	}
	n, err := r.Keys.DeleteByClientID(ctx, targetClientID)
	r.outcome("revoke-key", decision.Identity, err, "target", targetClientID, "revoked", n > 0)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// EncryptMessage encrypts message under the signer's own stored key. A
// non-empty target must name the signer.
func (r *Registry) EncryptMessage(ctx context.Context, header, message, target string) (string, error) {
	if r.Encrypter == nil {
		return "", errors.New("encrypter is required")
	}
	decision, err := r.authorize(ctx, header, domain.EncryptMessageOperation(message))
	if err != nil {
		return "", err
	}
	if target != "" && target != decision.Identity {
		r.outcome("encrypt-message", decision.Identity, domain.ErrTargetMismatch, "target", target)
		return "", domain.ErrTargetMismatch
	}
	ciphertext, err := r.Encrypter.EncryptPEM(decision.Record.PublicKey, []byte(message))
	r.outcome("encrypt-message", decision.Identity, err, "bytes", len(message))
	if err != nil {
		return "", err
	}
	return ciphertext, nil
}

func (r *Registry) authorize(ctx context.Context, header string, op domain.Operation) (domain.Decision, error) {
	if err := r.ready(); err != nil {
		return domain.Decision{}, err
	}
	if r.Gate == nil {
		return domain.Decision{}, errors.New("gate is required")
	}
	decision, err := r.Gate.Authenticate(ctx, header, op)
	if err != nil {
		r.outcome(string(op.Kind), "", err)
		return domain.Decision{}, err
	}
	if !decision.Allowed() {
		return decision, decision.Reason.Err()
	}
	return decision, nil
}

func (r *Registry) ready() error {
	if r == nil {
		return errors.New("registry is nil")
	}
	if r.Keys == nil {
		return errors.New("key store is required")
	}
	return nil
}

func (r *Registry) outcome(op, identity string, err error, attrs ...any) {
	log := r.Log
	if log == nil {
		log = logging.For("registry")
	}
	args := append([]any{"op", op, "identity", identity}, attrs...)
	switch {
	case err == nil:
		log.Info("operation completed", args...)
	case errors.Is(err, domain.ErrTargetMismatch):
		log.Warn("operation rejected", append(args, "error", err)...)
	default:
		log.Error("operation failed", append(args, "error", err)...)
	}
}
