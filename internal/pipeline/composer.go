package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/allergymenu/allergy-menu-assistant/internal/domain"
	apperrors "github.com/allergymenu/allergy-menu-assistant/internal/errors"
	"github.com/allergymenu/allergy-menu-assistant/internal/llm"
	"github.com/allergymenu/allergy-menu-assistant/internal/logger"
)

const expandSystemPrompt = `You help people with food allergies read restaurant menus.
For every allergy term you receive, list ingredient keywords that indicate a dish contains it.

Answer with JSON only: an object mapping each term exactly as given to an array of lower-case keywords.
Include the term itself, common English names and Traditional Chinese names.
Example: {"kiwi":["kiwi","kiwifruit","奇異果"]}`

// genericDishNames are names that say nothing about the recipe.
var genericDishNames = []string{
	"soup of the day",
	"chef's special",
	"daily special",
	"seasonal",
	"market price",
	"set meal",
	"今日",
	"主廚",
	"時價",
	"套餐",
	"特餐",
}

// VerdictComposer is the third agent. Classification is deterministic; the
// model is only asked to expand allergy terms the vocabulary does not know.
type VerdictComposer struct {
	client      llm.Client
	temperature float32
}

func NewVerdictComposer(client llm.Client, temperature float32) *VerdictComposer {
	return &VerdictComposer{client: client, temperature: temperature}
}

// allergyTerms is one declared allergy and every spelling that counts as it.
type allergyTerms struct {
	declared string
	terms    []string
}

func (c *VerdictComposer) Compose(ctx context.Context, profiles []domain.DishAllergenProfile, allergies []string, key llm.APIKey) ([]domain.Verdict, error) {
	expanded, err := c.expandAllergies(ctx, allergies, key)
	if err != nil {
		return nil, err
	}

	verdicts := make([]domain.Verdict, len(profiles))
	for i, p := range profiles {
		verdicts[i] = classify(p, expanded)
	}
	return verdicts, nil
}

func classify(p domain.DishAllergenProfile, allergies []allergyTerms) domain.Verdict {
	v := domain.Verdict{
		DishName:           p.DishName,
		MatchedAllergens:   []string{},
		CandidateAllergens: p.Candidates(),
	}

	confident := make([]string, 0, len(p.Allergens)+len(p.Ingredients))
	confident = append(confident, p.Allergens...)
	confident = append(confident, p.Ingredients...)

	if matched := matchAllergies(confident, allergies); len(matched) > 0 {
		v.Classification = domain.Unsafe
		v.MatchedAllergens = matched
		v.Reason = "Contains " + strings.Join(matched, ", ")
		return v
	}

	switch {
	case p.Err != nil:
		v.Classification = domain.Caution
		v.Reason = "Could not be analysed, please ask the staff"
		return v
	case p.Underspecified:
		v.Classification = domain.Caution
		v.Reason = "Recipe unclear from the name"
	case genericDishName(p.DishName):
		v.Classification = domain.Caution
		v.Reason = "Generic dish name, ingredients unknown"
	}

	if mayMatch := matchAllergies(p.MayContain, allergies); len(mayMatch) > 0 {
		v.Classification = domain.Caution
		v.MatchedAllergens = mayMatch
		v.Reason = "May contain " + strings.Join(mayMatch, ", ")
		return v
	}

	if v.Classification == "" {
		v.Classification = domain.Safe
	}
	return v
}

// matchAllergies returns the declared allergies any label mentions, in
// declaration order.
func matchAllergies(labels []string, allergies []allergyTerms) []string {
	var matched []string
	for _, a := range allergies {
		if anyLabelMatches(labels, a.terms) {
			matched = append(matched, a.declared)
		}
	}
	return matched
}

func anyLabelMatches(labels, terms []string) bool {
	for _, l := range labels {
		for _, t := range terms {
			if termMatches(l, t) {
				return true
			}
		}
	}
	return false
}

func genericDishName(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, g := range genericDishNames {
		if strings.Contains(name, g) {
			return true
		}
	}
	return false
}

// expandAllergies resolves every declared allergy to the terms that identify
// it. Vocabulary terms expand to their synonyms; unknown terms are expanded
// by the model in a single call.
func (c *VerdictComposer) expandAllergies(ctx context.Context, allergies []string, key llm.APIKey) ([]allergyTerms, error) {
	out := make([]allergyTerms, 0, len(allergies))
	var unknown []string
	for _, a := range allergies {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		at := allergyTerms{declared: a, terms: []string{a}}
		if canonical, ok := Canonicalize(a); ok {
			at.terms = append(at.terms, canonical)
			at.terms = append(at.terms, Synonyms(canonical)...)
		} else {
			unknown = append(unknown, a)
		}
		out = append(out, at)
	}

	if len(unknown) == 0 {
		return out, nil
	}

	extra, err := c.expandWithModel(ctx, unknown, key)
	if err != nil {
		if apperrors.IsRunFatal(err) {
			return nil, err
		}
		logger.WithContext(ctx).Warn("Allergy expansion failed, matching literal terms", "terms", len(unknown), "error", err)
		return out, nil
	}

	for i := range out {
		for _, kw := range extra[dedupeKey(out[i].declared)] {
			if kw = strings.TrimSpace(kw); kw != "" {
				out[i].terms = append(out[i].terms, kw)
			}
		}
	}
	return out, nil
}

func (c *VerdictComposer) expandWithModel(ctx context.Context, terms []string, key llm.APIKey) (map[string][]string, error) {
	prompt, err := json.Marshal(terms)
	if err != nil {
		return nil, err
	}

	answer, err := c.client.Complete(ctx, llm.Request{
		System:      expandSystemPrompt,
		Prompt:      "Allergy terms:\n" + string(prompt),
		Temperature: c.temperature,
	}, key)
	if err != nil {
		return nil, err
	}

	var raw map[string][]string
	if err := llm.DecodeJSON(answer, &raw); err != nil {
		return nil, apperrors.NewLLMProviderError(fmt.Errorf("decode expansion: %w", err), c.client.Name())
	}

	byKey := make(map[string][]string, len(raw))
	for term, keywords := range raw {
		byKey[dedupeKey(term)] = keywords
	}
	return byKey, nil
}
