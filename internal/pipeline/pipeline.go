// Package pipeline runs one menu analysis: text extraction followed by the
// dish normalizer, allergen profiler and verdict composer agents.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allergymenu/allergy-menu-assistant/internal/domain"
	apperrors "github.com/allergymenu/allergy-menu-assistant/internal/errors"
	"github.com/allergymenu/allergy-menu-assistant/internal/llm"
	"github.com/allergymenu/allergy-menu-assistant/internal/logger"
	"github.com/allergymenu/allergy-menu-assistant/internal/ocr"
)

type Normalizer interface {
	Normalize(ctx context.Context, rawText string, key llm.APIKey) ([]domain.Dish, error)
}

type Profiler interface {
	Profile(ctx context.Context, dishes []domain.Dish, key llm.APIKey) ([]domain.DishAllergenProfile, error)
}

type Composer interface {
	Compose(ctx context.Context, profiles []domain.DishAllergenProfile, allergies []string, key llm.APIKey) ([]domain.Verdict, error)
}

// CredentialStore is the read-only view of the credential service a run needs.
type CredentialStore interface {
	GetAllergies(ctx context.Context, userID uint) ([]string, error)
	DecryptAPIKey(ctx context.Context, userID uint) (llm.APIKey, error)
}

type Pipeline struct {
	creds      CredentialStore
	extractor  ocr.Extractor
	normalizer Normalizer
	profiler   Profiler
	composer   Composer
}

func New(creds CredentialStore, extractor ocr.Extractor, normalizer Normalizer, profiler Profiler, composer Composer) *Pipeline {
	return &Pipeline{
		creds:      creds,
		extractor:  extractor,
		normalizer: normalizer,
		profiler:   profiler,
		composer:   composer,
	}
}

// Analyze runs every stage for one photo. Any stage error aborts the run and
// nothing about the run is persisted.
func (p *Pipeline) Analyze(ctx context.Context, userID uint, image []byte) (*domain.AnalysisResult, error) {
	runID := logger.RunID(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = logger.ContextWithRun(ctx, runID, "")
	}
	log := logger.WithContext(ctx).With("user_id", userID)
	start := time.Now()

	allergies, err := p.creds.GetAllergies(ctx, userID)
	if err != nil {
		return nil, err
	}

	key, err := p.creds.DecryptAPIKey(ctx, userID)
	if err != nil {
		log.Warn("Run aborted, no usable API key", "error", err)
		return nil, err
	}

	log.Info("Analysis started", "image_bytes", len(image), "allergies", len(allergies))

	text, err := p.extractor.Extract(ctx, image, key)
	if err != nil {
		log.Warn("Extraction failed", "error", err)
		return nil, err
	}

	dishes, err := p.normalizer.Normalize(ctx, text, key)
	if err != nil {
		log.Warn("Normalization failed", "error", err)
		return nil, err
	}
	if len(dishes) == 0 {
		log.Info("No dishes found in menu text", "text_length", len(text))
		return nil, apperrors.NewEmptyDishListError()
	}

	profiles, err := p.profiler.Profile(ctx, dishes, key)
	if err != nil {
		log.Warn("Profiling failed", "error", err)
		return nil, err
	}

	verdicts, err := p.composer.Compose(ctx, profiles, allergies, key)
	if err != nil {
		log.Warn("Composition failed", "error", err)
		return nil, err
	}

	result := &domain.AnalysisResult{
		RunID:     runID,
		Allergies: allergies,
		Verdicts:  verdicts,
	}
	counts := result.Counts()
	log.Info("Analysis completed",
		"dishes", len(verdicts),
		"safe", counts[domain.Safe],
		"unsafe", counts[domain.Unsafe],
		"caution", counts[domain.Caution],
		"duration", time.Since(start),
	)
	return result, nil
}
