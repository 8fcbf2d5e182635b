package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/allergymenu/allergy-menu-assistant/internal/database"
)

// AllergyRepository manages the global allergy catalog and user memberships.
type AllergyRepository struct {
	db *gorm.DB
}

func NewAllergyRepository(db *gorm.DB) *AllergyRepository {
	return &AllergyRepository{db: db}
}

// ListForUser returns the user's allergy names ordered by name.
func (r *AllergyRepository) ListForUser(ctx context.Context, userID uint) ([]string, error) {
	var names []string
	err := r.db.WithContext(ctx).
		Table("allergies").
		Select("allergies.name").
		Joins("JOIN user_allergies ON user_allergies.allergy_id = allergies.id").
		Where("user_allergies.user_id = ?", userID).
		Order("allergies.name").
		Pluck("allergies.name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list allergies: %w", err)
	}
	return names, nil
}

// GetOrCreate returns the catalog entry for name, creating it on first reference.
func (r *AllergyRepository) GetOrCreate(ctx context.Context, name string) (*database.Allergy, error) {
	allergy := database.Allergy{Name: name}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(&allergy).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create allergy %q: %w", name, err)
	}
	if allergy.ID != 0 {
		return &allergy, nil
	}

	// DO NOTHING leaves the ID unset when the row already existed.
	var existing database.Allergy
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&existing).Error; err != nil {
		return nil, fmt.Errorf("failed to load allergy %q: %w", name, err)
	}
	return &existing, nil
}

// ReplaceForUser swaps the user's allergy set for names. Callers should run
// it inside a transaction.
func (r *AllergyRepository) ReplaceForUser(ctx context.Context, userID uint, names []string) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("user_id = ?", userID).Delete(&database.UserAllergy{}).Error; err != nil {
		return fmt.Errorf("failed to clear allergies: %w", err)
	}

	for _, name := range names {
		allergy, err := r.GetOrCreate(ctx, name)
		if err != nil {
			return err
		}
		link := database.UserAllergy{UserID: userID, AllergyID: allergy.ID}
		err = db.Omit(clause.Associations).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&link).Error
		if err != nil {
			return fmt.Errorf("failed to link allergy %q: %w", name, err)
		}
	}
	return nil
}
