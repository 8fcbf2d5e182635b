package interfaces

import (
	"context"

	"github.com/allergymenu/allergy-menu-assistant/internal/domain"
)

// CredentialServiceInterface defines the contract for per-user allergy and API key operations
type CredentialServiceInterface interface {
	ResolveUser(ctx context.Context, platform, platformUserID string) (uint, error)
	GetAllergies(ctx context.Context, userID uint) ([]string, error)
	SetAllergies(ctx context.Context, userID uint, allergies []string) ([]string, error)
	SetAPIKey(ctx context.Context, userID uint, plaintext string) error
	ClearAPIKey(ctx context.Context, userID uint) error
	HasAPIKey(ctx context.Context, userID uint) (bool, error)
	ResetUser(ctx context.Context, userID uint) error
	DeleteUser(ctx context.Context, platform, platformUserID string) error
}

// AnalyzerInterface defines the contract for one menu analysis run
type AnalyzerInterface interface {
	Analyze(ctx context.Context, userID uint, image []byte) (*domain.AnalysisResult, error)
}
