package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/allergymenu/allergy-menu-assistant/internal/domain"
	apperrors "github.com/allergymenu/allergy-menu-assistant/internal/errors"
	"github.com/allergymenu/allergy-menu-assistant/internal/llm"
	"github.com/allergymenu/allergy-menu-assistant/internal/logger"
)

const profileSystemPrompt = `You are a food allergen assistant.
For every dish name you receive, list the allergens the dish is likely to contain.

Answer with JSON only, in exactly this shape:
{"dishes":[{"name":"<dish name exactly as given>","allergens":[],"may_contain":[],"ingredients":[],"underspecified":false}]}

RULES:
1. "name" must repeat the dish name exactly as given.
2. "allergens" are allergens a standard recipe contains. Use these English labels when they apply:
   peanut, tree nut, shellfish, mollusc, fish, dairy, gluten, egg, soy, sesame, mustard, celery, sulfite, lupin.
3. "may_contain" are allergens that only some recipes, sauces or seasonings contain.
4. "ingredients" are the main ingredients that explain your answer, in English.
5. Set "underspecified" to true when the name alone does not identify the recipe.
6. When unsure, prefer listing a possible allergen under "may_contain" over leaving it out.`

type profileEntry struct {
	Name           string   `json:"name"`
	Allergens      []string `json:"allergens"`
	MayContain     []string `json:"may_contain"`
	Ingredients    []string `json:"ingredients"`
	Underspecified bool     `json:"underspecified"`
}

type profileResponse struct {
	Dishes []profileEntry `json:"dishes"`
}

// LLMProfiler is the second agent. Dishes are profiled in batches that run
// concurrently; output order always follows input order.
type LLMProfiler struct {
	client      llm.Client
	temperature float32
	batchSize   int
	concurrency int
}

func NewLLMProfiler(client llm.Client, temperature float32, batchSize, concurrency int) *LLMProfiler {
	if batchSize <= 0 {
		batchSize = 8
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &LLMProfiler{
		client:      client,
		temperature: temperature,
		batchSize:   batchSize,
		concurrency: concurrency,
	}
}

func (p *LLMProfiler) Profile(ctx context.Context, dishes []domain.Dish, key llm.APIKey) ([]domain.DishAllergenProfile, error) {
	profiles := make([]domain.DishAllergenProfile, len(dishes))
	if len(dishes) == 0 {
		return profiles, nil
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for offset := 0; offset < len(dishes); offset += p.batchSize {
		end := offset + p.batchSize
		if end > len(dishes) {
			end = len(dishes)
		}
		batch := dishes[offset:end]
		out := profiles[offset:end]

		g.Go(func() error {
			return p.profileBatch(gctx, batch, out, key)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	failed := 0
	for _, prof := range profiles {
		if prof.Err != nil {
			failed++
		}
	}
	logger.WithContext(ctx).Info("Dishes profiled",
		"dishes", len(dishes),
		"failed", failed,
		"duration", time.Since(start),
	)
	return profiles, nil
}

// profileBatch fills out, which is the slice of profiles owned by this batch.
// Only run-fatal errors are returned; anything else degrades the batch.
func (p *LLMProfiler) profileBatch(ctx context.Context, batch []domain.Dish, out []domain.DishAllergenProfile, key llm.APIKey) error {
	names := make([]string, len(batch))
	for i, d := range batch {
		names[i] = d.Name
		out[i] = domain.DishAllergenProfile{DishName: d.Name}
	}

	prompt, err := json.Marshal(names)
	if err != nil {
		return err
	}

	answer, err := p.client.Complete(ctx, llm.Request{
		System:      profileSystemPrompt,
		Prompt:      "Dishes:\n" + string(prompt),
		Temperature: p.temperature,
	}, key)
	if err != nil {
		if apperrors.IsRunFatal(err) {
			return err
		}
		logger.WithContext(ctx).Warn("Profiling batch failed", "dishes", len(batch), "error", err)
		markFailed(out, err)
		return nil
	}

	entries, err := parseProfileAnswer(answer)
	if err != nil {
		logger.WithContext(ctx).Warn("Profiling answer not understood", "dishes", len(batch), "error", err)
		markFailed(out, err)
		return nil
	}

	byName := make(map[string]profileEntry, len(entries))
	for _, e := range entries {
		k := dedupeKey(e.Name)
		if _, dup := byName[k]; !dup {
			byName[k] = e
		}
	}

	for i := range out {
		entry, ok := byName[dedupeKey(out[i].DishName)]
		if !ok {
			out[i].Err = apperrors.NewProfilingError(fmt.Errorf("dish missing from model answer"), out[i].DishName)
			continue
		}
		out[i].Allergens = canonicalizeLabels(entry.Allergens)
		out[i].MayContain = withoutLabels(canonicalizeLabels(entry.MayContain), out[i].Allergens)
		out[i].Ingredients = lowerTrimmed(entry.Ingredients)
		out[i].Underspecified = entry.Underspecified
	}
	return nil
}

func parseProfileAnswer(answer string) ([]profileEntry, error) {
	raw, err := llm.ExtractJSON(answer)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(raw, "[") {
		var entries []profileEntry
		if err := json.Unmarshal([]byte(raw), &entries); err != nil {
			return nil, err
		}
		return entries, nil
	}

	var resp profileResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, err
	}
	if resp.Dishes == nil {
		return nil, fmt.Errorf("answer has no dishes field")
	}
	return resp.Dishes, nil
}

func markFailed(out []domain.DishAllergenProfile, cause error) {
	for i := range out {
		out[i].Err = apperrors.NewProfilingError(cause, out[i].DishName)
	}
}

// withoutLabels drops labels already present in exclude.
func withoutLabels(labels, exclude []string) []string {
	if len(exclude) == 0 {
		return labels
	}
	skip := make(map[string]struct{}, len(exclude))
	for _, e := range exclude {
		skip[e] = struct{}{}
	}
	out := labels[:0]
	for _, l := range labels {
		if _, ok := skip[l]; !ok {
			out = append(out, l)
		}
	}
	return out
}

func lowerTrimmed(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.ToLower(strings.Join(strings.Fields(it), " "))
		if it != "" {
			out = append(out, it)
		}
	}
	return out
}
