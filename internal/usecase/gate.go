package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"keygate/internal/domain"
	"keygate/internal/logging"
)

// Gate decides whether a request signed with a Digest header may perform a
// privileged operation.
type Gate struct {
	Keys     domain.KeyStore
	Verifier SignatureVerifier
	Parse    CredentialParser
	Log      *slog.Logger
}

func NewGate(keys domain.KeyStore, verifier SignatureVerifier, parse CredentialParser) *Gate {
	return &Gate{
		Keys:     keys,
		Verifier: verifier,
		Parse:    parse,
		Log:      logging.For("gate"),
	}
}

// Authenticate walks UNAUTHENTICATED, HEADER_PARSED, IDENTITY_RESOLVED and
// VERIFIED, stopping at DENIED on the first failed step. The error is
// non-nil only when the key store fails; denials are reported through the
// decision.
func (g *Gate) Authenticate(ctx context.Context, header string, op domain.Operation) (domain.Decision, error) {
	if g == nil || g.Keys == nil || g.Verifier == nil || g.Parse == nil {
		return domain.Decision{}, errors.New("gate is not configured")
	}
	decision := domain.Decision{State: domain.StateUnauthenticated}

	if strings.TrimSpace(header) == "" {
		return g.deny(op, decision, domain.DenyMissingCredentials), nil
	}
	creds, ok := g.Parse(header)
	if !ok {
		return g.deny(op, decision, domain.DenyUnknownIdentity), nil
	}
	decision.State = domain.StateHeaderParsed
	decision.Identity = creds.Identity

	record, err := g.Keys.FindByIdentity(ctx, creds.Identity)
	if errors.Is(err, domain.ErrNotFound) {
		return g.deny(op, decision, domain.DenyUnknownIdentity), nil
	}
	if err != nil {
		g.logger().Error("identity lookup failed", "op", string(op.Kind), "identity", creds.Identity, "error", err)
		return domain.Decision{}, domain.NewStorageError("find by identity", err)
	}
	if record.PublicKey == "" {
		return g.deny(op, decision, domain.DenyUnknownIdentity), nil
	}
	decision.State = domain.StateIdentityResolved

	message := op.CanonicalMessage(creds.Timestamp, creds.Identity)
	valid, err := g.Verifier.VerifyPEM(record.PublicKey, creds.Signature, message)
	if err != nil {
		g.logger().Warn("stored public key does not load", "identity", creds.Identity, "client_id", record.ClientID, "error", err)
	}
	if !valid {
		return g.deny(op, decision, domain.DenyBadSignature), nil
	}

	decision.State = domain.StateVerified
	decision.Record = record
	g.logger().Debug("request verified", "op", string(op.Kind), "identity", creds.Identity, "client_id", record.ClientID)
	return decision, nil
}

func (g *Gate) deny(op domain.Operation, d domain.Decision, reason domain.DenialReason) domain.Decision {
	g.logger().Info("request denied",
		"op", string(op.Kind),
		"identity", d.Identity,
		"state", string(d.State),
		"reason", string(reason),
	)
	d.State = domain.StateDenied
	d.Reason = reason
	d.Record = nil
	return d
}

func (g *Gate) logger() *slog.Logger {
	if g.Log == nil {
		return logging.For("gate")
	}
	return g.Log
}
