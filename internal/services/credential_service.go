package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"

	apperrors "github.com/allergymenu/allergy-menu-assistant/internal/errors"
	"github.com/allergymenu/allergy-menu-assistant/internal/llm"
	"github.com/allergymenu/allergy-menu-assistant/internal/logger"
	"github.com/allergymenu/allergy-menu-assistant/internal/repository"
	"github.com/allergymenu/allergy-menu-assistant/internal/secrets"
)

// CredentialService owns the per-user allergy sets and encrypted API keys.
// Plaintext keys only leave it through DecryptAPIKey, wrapped in llm.APIKey.
type CredentialService struct {
	repos  *repository.Repositories
	cipher *secrets.Cipher
}

func NewCredentialService(repos *repository.Repositories, cipher *secrets.Cipher) *CredentialService {
	return &CredentialService{repos: repos, cipher: cipher}
}

// ResolveUser maps a platform identity to the internal user id, creating the user on first contact.
func (s *CredentialService) ResolveUser(ctx context.Context, platform, platformUserID string) (uint, error) {
	if strings.TrimSpace(platformUserID) == "" {
		return 0, apperrors.NewValidationError("platform user id is required")
	}
	user, err := s.repos.Users.GetOrCreateUser(ctx, platform, platformUserID)
	if err != nil {
		return 0, apperrors.NewDatabaseError(err)
	}
	return user.ID, nil
}

func (s *CredentialService) GetAllergies(ctx context.Context, userID uint) ([]string, error) {
	names, err := s.repos.Allergies.ListForUser(ctx, userID)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	if names == nil {
		names = []string{}
	}
	sort.Strings(names)
	return names, nil
}

// SetAllergies replaces the user's whole allergy set. An empty list clears it.
func (s *CredentialService) SetAllergies(ctx context.Context, userID uint, allergies []string) ([]string, error) {
	cleaned := CleanAllergies(allergies)

	err := s.repos.WithTx(ctx, func(tx *repository.Repositories) error {
		return tx.Allergies.ReplaceForUser(ctx, userID, cleaned)
	})
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	logger.WithContext(ctx).Info("Allergies updated", "user_id", userID, "count", len(cleaned))
	sort.Strings(cleaned)
	return cleaned, nil
}

// GetAPIKey returns the stored ciphertext.
func (s *CredentialService) GetAPIKey(ctx context.Context, userID uint) (string, error) {
	key, err := s.repos.APIKeys.Get(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", apperrors.NewCredentialError(err, "no API key stored")
	}
	if err != nil {
		return "", apperrors.NewDatabaseError(err)
	}
	return key.EncryptedAPIKey, nil
}

func (s *CredentialService) SetAPIKey(ctx context.Context, userID uint, plaintext string) error {
	plaintext = strings.TrimSpace(plaintext)
	if plaintext == "" {
		return apperrors.NewValidationError("API key must not be empty")
	}

	ciphertext, err := s.cipher.Encrypt(plaintext)
	if err != nil {
		return apperrors.NewInternalError(fmt.Errorf("encrypt api key: %w", err))
	}
	if err := s.repos.APIKeys.Upsert(ctx, userID, ciphertext); err != nil {
		return apperrors.NewDatabaseError(err)
	}

	logger.WithContext(ctx).Info("API key stored", "user_id", userID)
	return nil
}

func (s *CredentialService) ClearAPIKey(ctx context.Context, userID uint) error {
	if err := s.repos.APIKeys.Delete(ctx, userID); err != nil {
		return apperrors.NewDatabaseError(err)
	}
	logger.WithContext(ctx).Info("API key cleared", "user_id", userID)
	return nil
}

func (s *CredentialService) HasAPIKey(ctx context.Context, userID uint) (bool, error) {
	_, err := s.repos.APIKeys.Get(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.NewDatabaseError(err)
	}
	return true, nil
}

// DecryptAPIKey is the only place a stored key becomes usable again.
func (s *CredentialService) DecryptAPIKey(ctx context.Context, userID uint) (llm.APIKey, error) {
	ciphertext, err := s.GetAPIKey(ctx, userID)
	if err != nil {
		return llm.APIKey{}, err
	}
	plaintext, err := s.cipher.Decrypt(ciphertext)
	if err != nil {
		// Usually means the encryption secret was rotated.
		logger.WithContext(ctx).Warn("Stored API key could not be decrypted", "user_id", userID, "error", err)
		return llm.APIKey{}, apperrors.NewCredentialError(err, "stored API key could not be decrypted")
	}
	return llm.NewAPIKey(plaintext), nil
}

// ResetUser clears the key and the allergy set, as on /start.
func (s *CredentialService) ResetUser(ctx context.Context, userID uint) error {
	err := s.repos.WithTx(ctx, func(tx *repository.Repositories) error {
		if err := tx.APIKeys.Delete(ctx, userID); err != nil {
			return err
		}
		return tx.Allergies.ReplaceForUser(ctx, userID, nil)
	})
	if err != nil {
		return apperrors.NewDatabaseError(err)
	}
	logger.WithContext(ctx).Info("User reset", "user_id", userID)
	return nil
}

// DeleteUser removes the user and everything attached to it. Unknown users are a no-op.
func (s *CredentialService) DeleteUser(ctx context.Context, platform, platformUserID string) error {
	user, err := s.repos.Users.GetByPlatformID(ctx, platform, platformUserID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return apperrors.NewDatabaseError(err)
	}
	if err := s.repos.Users.Delete(ctx, user.ID); err != nil {
		return apperrors.NewDatabaseError(err)
	}
	logger.WithContext(ctx).Info("User deleted", "user_id", user.ID, "platform", platform)
	return nil
}

// CleanAllergies trims entries, drops blanks and removes case-insensitive
// duplicates keeping the first spelling.
func CleanAllergies(allergies []string) []string {
	seen := make(map[string]struct{}, len(allergies))
	cleaned := make([]string, 0, len(allergies))
	for _, a := range allergies {
		a = strings.Join(strings.Fields(a), " ")
		if a == "" {
			continue
		}
		key := strings.ToLower(a)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		cleaned = append(cleaned, a)
	}
	return cleaned
}
