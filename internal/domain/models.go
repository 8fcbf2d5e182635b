package domain

// Platform identifies the messaging platform a user came from.
type Platform string

const (
	PlatformTelegram Platform = "telegram"
	PlatformLine     Platform = "line"
	PlatformHTTP     Platform = "http"
)

// Classification is the three-way per-dish verdict.
type Classification string

const (
	Safe    Classification = "SAFE"
	Unsafe  Classification = "UNSAFE"
	Caution Classification = "CAUTION"
)

// Dish is a normalized dish name. Lives only for one analysis run.
type Dish struct {
	Name string
}

// DishAllergenProfile is the profiler's best-effort guess for one dish.
type DishAllergenProfile struct {
	DishName string
	// Allergens are labels the dish is expected to contain.
	Allergens []string
	// MayContain are labels that depend on the recipe or seasoning.
	MayContain []string
	// Ingredients are free-text hints that are not vocabulary labels.
	Ingredients []string
	// Underspecified is set when the name alone cannot identify the recipe.
	Underspecified bool
	// Err is set when profiling failed for this dish.
	Err error
}

// Candidates returns the allergen labels shown to a user who declared no
// allergies: confident labels first, then may-contain labels not already listed.
func (p DishAllergenProfile) Candidates() []string {
	out := make([]string, 0, len(p.Allergens)+len(p.MayContain))
	seen := make(map[string]struct{}, cap(out))
	for _, group := range [][]string{p.Allergens, p.MayContain} {
		for _, label := range group {
			if _, ok := seen[label]; ok {
				continue
			}
			seen[label] = struct{}{}
			out = append(out, label)
		}
	}
	return out
}

type Verdict struct {
	DishName         string         `json:"dish_name"`
	Classification   Classification `json:"classification"`
	MatchedAllergens []string       `json:"matched_allergens"`
	// CandidateAllergens is what the profiler found, shown when the user
	// has no declared allergies.
	CandidateAllergens []string `json:"candidate_allergens,omitempty"`
	Reason             string   `json:"reason,omitempty"`
}

// AnalysisResult is what a pipeline run hands back to the bot adapter.
type AnalysisResult struct {
	RunID     string    `json:"run_id"`
	Allergies []string  `json:"allergies"`
	Verdicts  []Verdict `json:"verdicts"`
}

// Counts returns how many dishes landed in each classification.
func (r *AnalysisResult) Counts() map[Classification]int {
	counts := map[Classification]int{Safe: 0, Unsafe: 0, Caution: 0}
	for _, v := range r.Verdicts {
		counts[v.Classification]++
	}
	return counts
}
