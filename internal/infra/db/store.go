package db

import (
	"context"
	"fmt"
	"time"

	"keygate/internal/config"
	"keygate/internal/logging"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Store struct {
	DB *gorm.DB
}

// NewStore opens one pooled connection handle for the process lifetime.
func NewStore(cfg config.Config) (*Store, error) {
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("connect postgres: %w", errDBUnavailable)
	}
	gdb, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{
		Logger: logger.NewSlogLogger(logging.For("db"), logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormLogLevel(cfg.LogLevel),
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.PostgresMaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.PostgresMaxOpenConns)
	}
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{DB: gdb}, nil
}

// Migrate creates or updates the key record table.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errDBUnavailable
	}
	if err := s.DB.WithContext(ctx).AutoMigrate(&KeyRecordModel{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		return logger.Info
	case "error":
		return logger.Error
	default:
		return logger.Warn
	}
}
