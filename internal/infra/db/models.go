package db

import "time"

// KeyRecordModel is one row of public_keys. unique_id is indexed but not
// unique; lookups take the smallest client_id.
type KeyRecordModel struct {
	ClientID    string    `gorm:"column:client_id;primaryKey"`
	UniqueID    string    `gorm:"column:unique_id;index;not null"`
	Fingerprint []byte    `gorm:"type:jsonb;not null"`
	PublicKey   string    `gorm:"type:text;not null"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (KeyRecordModel) TableName() string {
	return "public_keys"
}
