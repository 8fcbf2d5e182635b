package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repositories groups the repositories sharing one gorm handle so they can
// be used together inside a transaction.
type Repositories struct {
	db        *gorm.DB
	Users     *UserRepository
	Allergies *AllergyRepository
	APIKeys   *APIKeyRepository
}

func New(db *gorm.DB) *Repositories {
	return &Repositories{
		db:        db,
		Users:     NewUserRepository(db),
		Allergies: NewAllergyRepository(db),
		APIKeys:   NewAPIKeyRepository(db),
	}
}

// WithTx runs fn with repositories bound to a single transaction.
func (r *Repositories) WithTx(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}

// GetDB returns the underlying GORM database instance
func (r *Repositories) GetDB() *gorm.DB {
	return r.db
}
