package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/allergymenu/allergy-menu-assistant/internal/database"
)

// APIKeyRepository stores already-encrypted API keys. It never sees plaintext.
type APIKeyRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewAPIKeyRepository(db *gorm.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db, now: time.Now}
}

// Get returns gorm.ErrRecordNotFound when the user has no key.
func (r *APIKeyRepository) Get(ctx context.Context, userID uint) (*database.UserAPIKey, error) {
	var key database.UserAPIKey
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&key).Error; err != nil {
		return nil, err
	}
	return &key, nil
}

// Upsert writes the ciphertext in place, keeping created_at and refreshing updated_at.
func (r *APIKeyRepository) Upsert(ctx context.Context, userID uint, ciphertext string) error {
	now := r.now()
	key := database.UserAPIKey{
		UserID:          userID,
		EncryptedAPIKey: ciphertext,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"encrypted_api_key": ciphertext,
				"updated_at":        now,
			}),
		}).
		Create(&key).Error
	if err != nil {
		return fmt.Errorf("failed to store api key: %w", err)
	}
	return nil
}

func (r *APIKeyRepository) Delete(ctx context.Context, userID uint) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&database.UserAPIKey{}).Error; err != nil {
		return fmt.Errorf("failed to delete api key: %w", err)
	}
	return nil
}
