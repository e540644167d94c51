package domain

import "strings"

// OperationKind names a privileged operation guarded by the gate.
type OperationKind string

const (
	OpListKeys       OperationKind = "list-keys"
	OpRevokeKey      OperationKind = "revoke-key"
	OpEncryptMessage OperationKind = "encrypt-message"
)

const canonicalSeparator = "|"

// Operation is a privileged request together with the operation-specific
// value that is part of the signed string (target client id for revoke-key,
// plaintext for encrypt-message, nothing for list-keys).
type Operation struct {
	Kind    OperationKind
	Payload string
}

func ListKeysOperation() Operation {
	return Operation{Kind: OpListKeys}
}

func RevokeKeyOperation(targetClientID string) Operation {
	return Operation{Kind: OpRevokeKey, Payload: targetClientID}
}

func EncryptMessageOperation(message string) Operation {
	return Operation{Kind: OpEncryptMessage, Payload: message}
}

// CanonicalMessage returns the exact bytes a client must have signed for op.
// Fields are joined verbatim; nothing is trimmed or normalised.
func (op Operation) CanonicalMessage(timestamp, identity string) []byte {
	parts := []string{timestamp, identity}
	switch op.Kind {
	case OpRevokeKey, OpEncryptMessage:
		parts = append(parts, op.Payload)
	}
	return []byte(strings.Join(parts, canonicalSeparator))
}

// Credentials are the components of a parsed Digest authorization header.
type Credentials struct {
	Signature string
	Timestamp string
	Identity  string
}

// GateState is the authentication state of a single request.
type GateState string

const (
	StateUnauthenticated  GateState = "UNAUTHENTICATED"
	StateHeaderParsed     GateState = "HEADER_PARSED"
	StateIdentityResolved GateState = "IDENTITY_RESOLVED"
	StateVerified         GateState = "VERIFIED"
	StateDenied           GateState = "DENIED"
)

// DenialReason explains a DENIED decision. It is logged but never returned
// to the caller beyond the status it maps to.
type DenialReason string

const (
	DenyNone               DenialReason = ""
	DenyMissingCredentials DenialReason = "missing-credentials"
	DenyUnknownIdentity    DenialReason = "unknown-identity"
	DenyBadSignature       DenialReason = "bad-signature"
)

// Err maps a denial reason onto the sentinel the transport layer classifies.
func (r DenialReason) Err() error {
	switch r {
	case DenyNone:
		return nil
	case DenyMissingCredentials:
		return ErrMissingCredentials
	case DenyUnknownIdentity:
		return ErrUnknownIdentity
	default:
		return ErrBadSignature
	}
}

// Decision is the terminal outcome of the authentication gate. Record is
// only set when State is StateVerified.
type Decision struct {
	State    GateState
	Reason   DenialReason
	Identity string
	Record   *KeyRecord
}

func (d Decision) Allowed() bool {
	return d.State == StateVerified && d.Record != nil
}
