package domain

import (
	"context"
	"time"
)

// Fingerprint is the device/browser fingerprint captured at registration.
// It is kept for audit only and never takes part in authentication.
type Fingerprint struct {
	CanvasHash          string `json:"canvasHash"`
	DeviceMemory        string `json:"deviceMemory"`
	HardwareConcurrency int    `json:"hardwareConcurrency"`
	Lang                string `json:"lang"`
	Platform            string `json:"platform"`
	TZ                  int    `json:"tz"`
	UA                  string `json:"ua"`
	WebGLHash           string `json:"webGLHash"`
}

// KeyRecord is one registered device/session. ClientID is the storage
// primary key; Identity is the authentication subject.
type KeyRecord struct {
	ClientID    string
	Identity    string
	Fingerprint Fingerprint
	PublicKey   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// KeyStore persists key records. Implementations must apply Upsert and
// DeleteByClientID atomically and wrap backend failures in *StorageError.
//
// FindByIdentity returns ErrNotFound when no record matches. When several
// records share an identity, the one with the smallest ClientID wins.
// ListAll returns records ordered by ClientID.
type KeyStore interface {
	Upsert(ctx context.Context, record KeyRecord) error
	FindByIdentity(ctx context.Context, identity string) (*KeyRecord, error)
	DeleteByClientID(ctx context.Context, clientID string) (int64, error)
	ListAll(ctx context.Context) ([]KeyRecord, error)
	Close() error
}
