// Package boltstore is a single-file KeyStore backed by bbolt.
//
// Two buckets are kept in step inside one read-write transaction:
// key_records maps client_id to the JSON record, identity_index holds
// identity + 0x00 + client_id keys so that a prefix seek yields the
// smallest client_id for an identity.
package boltstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"keygate/internal/domain"

	bolt "go.etcd.io/bbolt"
)

var (
	recordsBucket  = []byte("key_records")
	identityBucket = []byte("identity_index")
)

const indexSeparator = 0x00

// openTimeout bounds the wait for the file lock held by another process.
const openTimeout = 2 * time.Second

type Store struct {
	db  *bolt.DB
	now func() time.Time
}

type recordModel struct {
	ClientID    string             `json:"client_id"`
	Identity    string             `json:"unique_id"`
	Fingerprint domain.Fingerprint `json:"fingerprint"`
	PublicKey   string             `json:"public_key"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Open creates or opens the database at path and ensures both buckets exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{recordsBucket, identityBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Upsert(ctx context.Context, record domain.KeyRecord) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStorageError("upsert", err)
	}
	if strings.IndexByte(record.Identity, indexSeparator) >= 0 || strings.IndexByte(record.ClientID, indexSeparator) >= 0 {
		return fmt.Errorf("%w: NUL byte in identifier", domain.ErrInvalidInput)
	}
	now := s.now().UTC()
	err := s.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket(recordsBucket)
		index := tx.Bucket(identityBucket)

		model := recordModel{
			ClientID:    record.ClientID,
			Identity:    record.Identity,
			Fingerprint: record.Fingerprint,
			PublicKey:   record.PublicKey,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if raw := records.Get([]byte(record.ClientID)); raw != nil {
			var existing recordModel
			if err := json.Unmarshal(raw, &existing); err != nil {
				return fmt.Errorf("decode existing record: %w", err)
			}
			model.CreatedAt = existing.CreatedAt
			if err := index.Delete(indexKey(existing.Identity, existing.ClientID)); err != nil {
				return err
			}
		}
		payload, err := json.Marshal(model)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		if err := records.Put([]byte(record.ClientID), payload); err != nil {
			return err
		}
		return index.Put(indexKey(record.Identity, record.ClientID), []byte{})
	})
	return domain.NewStorageError("upsert", err)
}

func (s *Store) FindByIdentity(ctx context.Context, identity string) (*domain.KeyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStorageError("find by identity", err)
	}
	var (
		out   *domain.KeyRecord
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		prefix := append([]byte(identity), indexSeparator)
		k, _ := tx.Bucket(identityBucket).Cursor().Seek(prefix)
		if k == nil || !bytes.HasPrefix(k, prefix) {
			return nil
		}
		clientID := k[len(prefix):]
		raw := tx.Bucket(recordsBucket).Get(clientID)
		if raw == nil {
			return fmt.Errorf("identity index points at missing record %q", clientID)
		}
		record, err := decodeRecord(raw)
		if err != nil {
			return err
		}
		out, found = &record, true
		return nil
	})
	if err != nil {
		return nil, domain.NewStorageError("find by identity", err)
	}
	if !found {
		return nil, domain.ErrNotFound
	}
	return out, nil
}

func (s *Store) DeleteByClientID(ctx context.Context, clientID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, domain.NewStorageError("delete", err)
	}
	var removed int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket(recordsBucket)
		raw := records.Get([]byte(clientID))
		if raw == nil {
			return nil
		}
		var existing recordModel
		if err := json.Unmarshal(raw, &existing); err != nil {
			return fmt.Errorf("decode existing record: %w", err)
		}
		if err := tx.Bucket(identityBucket).Delete(indexKey(existing.Identity, existing.ClientID)); err != nil {
			return err
		}
		if err := records.Delete([]byte(clientID)); err != nil {
			return err
		}
		removed = 1
		return nil
	})
	if err != nil {
		return 0, domain.NewStorageError("delete", err)
	}
	return removed, nil
}

// ListAll iterates key_records in key order, which is client_id order.
func (s *Store) ListAll(ctx context.Context) ([]domain.KeyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStorageError("list", err)
	}
	out := make([]domain.KeyRecord, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(recordsBucket).ForEach(func(_, v []byte) error {
			record, err := decodeRecord(v)
			if err != nil {
				return err
			}
			out = append(out, record)
			return nil
		})
	})
	if err != nil {
		return nil, domain.NewStorageError("list", err)
	}
	return out, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return nil
	}
	return err
}

// Path is the file backing the store.
func (s *Store) Path() string {
	return s.db.Path()
}

func indexKey(identity, clientID string) []byte {
	key := make([]byte, 0, len(identity)+1+len(clientID))
	key = append(key, identity...)
	key = append(key, indexSeparator)
	key = append(key, clientID...)
	return key
}

func decodeRecord(raw []byte) (domain.KeyRecord, error) {
	var model recordModel
	if err := json.Unmarshal(raw, &model); err != nil {
		return domain.KeyRecord{}, fmt.Errorf("decode record: %w", err)
	}
	return domain.KeyRecord{
		ClientID:    model.ClientID,
		Identity:    model.Identity,
		Fingerprint: model.Fingerprint,
		PublicKey:   model.PublicKey,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}, nil
}

var _ domain.KeyStore = (*Store)(nil)
