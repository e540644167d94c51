package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"keygate/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type KeyRecordRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewKeyRecordRepository(db *gorm.DB) *KeyRecordRepository {
	return &KeyRecordRepository{db: db, now: time.Now}
}

// Upsert is a single INSERT ... ON CONFLICT (client_id) DO UPDATE statement,
// so readers never see a partially replaced row.
func (r *KeyRecordRepository) Upsert(ctx context.Context, record domain.KeyRecord) error {
	if r.db == nil {
		return domain.NewStorageError("upsert", errDBUnavailable)
	}
	fingerprint, err := json.Marshal(record.Fingerprint)
	if err != nil {
		return fmt.Errorf("encode fingerprint: %w", err)
	}
	now := r.now().UTC()
	model := KeyRecordModel{
		ClientID:    record.ClientID,
		UniqueID:    record.Identity,
		Fingerprint: fingerprint,
		PublicKey:   record.PublicKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "client_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"unique_id", "fingerprint", "public_key", "updated_at"}),
		}).
		Create(&model).Error
	return domain.NewStorageError("upsert", err)
}

func (r *KeyRecordRepository) FindByIdentity(ctx context.Context, identity string) (*domain.KeyRecord, error) {
	if r.db == nil {
		return nil, domain.NewStorageError("find by identity", errDBUnavailable)
	}
	var model KeyRecordModel
	err := r.db.WithContext(ctx).
		Where("unique_id = ?", identity).
		Order(byteOrder).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.NewStorageError("find by identity", err)
	}
	record, err := keyRecordFromModel(model)
	if err != nil {
		return nil, domain.NewStorageError("find by identity", err)
	}
	return &record, nil
}

func (r *KeyRecordRepository) DeleteByClientID(ctx context.Context, clientID string) (int64, error) {
	if r.db == nil {
		return 0, domain.NewStorageError("delete", errDBUnavailable)
	}
	res := r.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Delete(&KeyRecordModel{})
	if res.Error != nil {
		return 0, domain.NewStorageError("delete", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *KeyRecordRepository) ListAll(ctx context.Context) ([]domain.KeyRecord, error) {
	if r.db == nil {
		return nil, domain.NewStorageError("list", errDBUnavailable)
	}
	var models []KeyRecordModel
	err := r.db.WithContext(ctx).
		Order(byteOrder).
		Find(&models).Error
	if err != nil {
		return nil, domain.NewStorageError("list", err)
	}
	out := make([]domain.KeyRecord, 0, len(models))
	for _, model := range models {
		record, err := keyRecordFromModel(model)
		if err != nil {
			return nil, domain.NewStorageError("list", err)
		}
		out = append(out, record)
	}
	return out, nil
}

// Close releases the connection pool.
func (r *KeyRecordRepository) Close() error {
	if r.db == nil {
		return nil
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func keyRecordFromModel(model KeyRecordModel) (domain.KeyRecord, error) {
	var fp domain.Fingerprint
	if len(model.Fingerprint) > 0 {
		if err := json.Unmarshal(model.Fingerprint, &fp); err != nil {
			return domain.KeyRecord{}, fmt.Errorf("decode fingerprint for %s: %w", model.ClientID, err)
		}
	}
	return domain.KeyRecord{
		ClientID:    model.ClientID,
		Identity:    model.UniqueID,
		Fingerprint: fp,
		PublicKey:   model.PublicKey,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}, nil
}

var _ domain.KeyStore = (*KeyRecordRepository)(nil)
