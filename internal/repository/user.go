package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/allergymenu/allergy-menu-assistant/internal/database"
)

// UserRepository handles user data operations
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetOrCreateUser returns the user for (platform, platformUserID), creating it on first contact.
func (r *UserRepository) GetOrCreateUser(ctx context.Context, platform, platformUserID string) (*database.User, error) {
	user, err := r.GetByPlatformID(ctx, platform, platformUserID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	user = &database.User{Platform: platform, PlatformUserID: platformUserID}
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		// Another request may have created the row concurrently.
		if existing, lookupErr := r.GetByPlatformID(ctx, platform, platformUserID); lookupErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetByPlatformID returns gorm.ErrRecordNotFound when the user has never interacted.
func (r *UserRepository) GetByPlatformID(ctx context.Context, platform, platformUserID string) (*database.User, error) {
	var user database.User
	err := r.db.WithContext(ctx).
		Where("platform = ? AND platform_user_id = ?", platform, platformUserID).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uint) (*database.User, error) {
	var user database.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Delete removes the user together with its allergies and API key.
// Child rows are deleted explicitly so the behaviour does not depend on the
// driver enforcing ON DELETE CASCADE.
func (r *UserRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&database.UserAllergy{}).Error; err != nil {
			return fmt.Errorf("failed to delete user allergies: %w", err)
		}
		if err := tx.Where("user_id = ?", id).Delete(&database.UserAPIKey{}).Error; err != nil {
			return fmt.Errorf("failed to delete user api key: %w", err)
		}
		if err := tx.Delete(&database.User{}, id).Error; err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		return nil
	})
}
