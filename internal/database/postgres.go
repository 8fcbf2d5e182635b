package database

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/allergymenu/allergy-menu-assistant/internal/config"
	"github.com/allergymenu/allergy-menu-assistant/internal/database/migrations"
	"github.com/allergymenu/allergy-menu-assistant/internal/logger"
)

// User is created on first interaction and never changes afterwards.
type User struct {
	ID             uint      `gorm:"primaryKey"`
	Platform       string    `gorm:"size:32;not null;uniqueIndex:idx_users_platform_user"`
	PlatformUserID string    `gorm:"size:128;not null;uniqueIndex:idx_users_platform_user"`
	CreatedAt      time.Time `gorm:"not null"`
}

func (User) TableName() string { return "users" }

// Allergy is the global catalog, deduplicated by name.
type Allergy struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"size:128;not null;uniqueIndex"`
}

func (Allergy) TableName() string { return "allergies" }

type UserAllergy struct {
	UserID    uint    `gorm:"primaryKey"`
	AllergyID uint    `gorm:"primaryKey"`
	User      User    `gorm:"constraint:OnDelete:CASCADE"`
	Allergy   Allergy `gorm:"constraint:OnDelete:CASCADE"`
}

func (UserAllergy) TableName() string { return "user_allergies" }

type UserAPIKey struct {
	UserID          uint      `gorm:"primaryKey;autoIncrement:false"`
	EncryptedAPIKey string    `gorm:"column:encrypted_api_key;not null"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
	User            User      `gorm:"constraint:OnDelete:CASCADE"`
}

func (UserAPIKey) TableName() string { return "user_api_keys" }

// Models lists the persisted models, used by tests that build the schema with AutoMigrate.
func Models() []interface{} {
	return []interface{}{&User{}, &Allergy{}, &UserAllergy{}, &UserAPIKey{}}
}

func NewPostgresDB(cfg config.DBConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	registry, err := migrations.Default()
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	if err := registry.Run(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("Database connection established and migrations completed", "host", cfg.Host, "db", cfg.DBName)
	return db, nil
}

// Close releases the connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
