package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allergymenu/allergy-menu-assistant/internal/domain"
	apperrors "github.com/allergymenu/allergy-menu-assistant/internal/errors"
	"github.com/allergymenu/allergy-menu-assistant/internal/llm"
)

func TestCleanLine(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1. Kung Pao Chicken $12", "Kung Pao Chicken"},
		{"2. Stir-fried Cabbage $8", "Stir-fried Cabbage"},
		{"(3) Mapo Tofu NT$180", "Mapo Tofu"},
		{"4、麻婆豆腐 180元", "麻婆豆腐"},
		{"• Beef Noodle Soup ....... 220", "Beef Noodle Soup"},
		{"- Fried Rice | 150", "Fried Rice"},
		{"宮保雞丁　＄180", "宮保雞丁"},
		{"Beef Stew\t180", "Beef Stew"},
		{"Green Salad  95", "Green Salad"},
		{"Iced Tea 2.50", "Iced Tea"},
		{"Fried Rice 150", "Fried Rice"},
		{"Set Meal 2", "Set Meal 2"},
		{"Set Meal 1 $250", "Set Meal 1"},
		{"7 Spice Chicken", "7 Spice Chicken"},
		{"$12", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanLine(tt.in))
		})
	}
}

func TestPreCleanDropsNonDishLines(t *testing.T) {
	lines := preClean("MENU\n1. Kung Pao Chicken $12\n\n150\n$8.50\n2. 炒高麗菜 120元\n")
	assert.Equal(t, []string{"MENU", "Kung Pao Chicken", "炒高麗菜"}, lines)
}

func TestPostCleanDedupesKeepingFirstSpelling(t *testing.T) {
	answer := "Here are the dishes:\n1. Kung Pao Chicken\nkung pao  CHICKEN\n- Mapo Tofu\n\n42\nMapo tofu\n麻婆豆腐"
	dishes := postClean(answer)

	assert.Equal(t, []domain.Dish{
		{Name: "Kung Pao Chicken"},
		{Name: "Mapo Tofu"},
		{Name: "麻婆豆腐"},
	}, dishes)
}

func TestNumberedDishesAreNotMerged(t *testing.T) {
	lines := preClean("Set Meal 1 $250\nSet Meal 2 $320\nSet Meal 3")
	assert.Equal(t, []string{"Set Meal 1", "Set Meal 2", "Set Meal 3"}, lines)

	dishes := postClean("Set Meal 1\nSet Meal 2\nset meal 1")
	assert.Equal(t, []domain.Dish{{Name: "Set Meal 1"}, {Name: "Set Meal 2"}}, dishes)
}

func TestPostCleanDropsImplausibleNames(t *testing.T) {
	long := "This is a very long description of a dish that the model should never have returned as a dish name"
	dishes := postClean(long + "\nBeef Stew")
	assert.Equal(t, []domain.Dish{{Name: "Beef Stew"}}, dishes)
}

func TestLLMNormalizer_SkipsModelOnEmptyInput(t *testing.T) {
	client := &scriptedLLM{}
	dishes, err := NewLLMNormalizer(client, 0.3).Normalize(context.Background(), "\n 12 \n$5\n", llm.APIKey{})
	require.NoError(t, err)
	assert.Empty(t, dishes)
	assert.Zero(t, client.total())
}

func TestTermMatches(t *testing.T) {
	tests := []struct {
		label, term string
		want        bool
	}{
		{"peanut", "peanut", true},
		{"peanuts", "Peanut", true},
		{"egg noodles", "egg", true},
		{"eggplant", "egg", false},
		{"roasted tree nuts", "tree nut", true},
		{"peanut", "nut", false},
		{"花生醬", "花生", true},
		{"蝦仁", "蝦", true},
		{"高麗菜", "花生", false},
		{"", "egg", false},
	}

	for _, tt := range tests {
		t.Run(tt.label+"/"+tt.term, func(t *testing.T) {
			assert.Equal(t, tt.want, termMatches(tt.label, tt.term))
		})
	}
}

func TestCanonicalize(t *testing.T) {
	tests := []struct{ label, want string }{
		{"Peanuts", "peanut"},
		{"花生", "peanut"},
		{"shrimp", "shellfish"},
		{"Milk", "dairy"},
		{"soy sauce", "soy"},
		{"魷魚", "mollusc"},
		{"almonds", "tree nut"},
	}
	for _, tt := range tests {
		got, ok := Canonicalize(tt.label)
		assert.True(t, ok, tt.label)
		assert.Equal(t, tt.want, got, tt.label)
	}

	_, ok := Canonicalize("kiwi")
	assert.False(t, ok)
}

func TestLLMProfiler_CanonicalizesAndMarksMissing(t *testing.T) {
	client := &scriptedLLM{
		profile: func(string) (string, error) {
			return `{"dishes":[
				{"name":"mapo  tofu","allergens":["Soybeans","wheat","soy"],"may_contain":["peanut","soy","Beef"],"ingredients":["Tofu","Chili Bean Paste"],"underspecified":false}
			]}`, nil
		},
	}
	profiles, err := NewLLMProfiler(client, 0.3, 8, 2).Profile(context.Background(),
		[]domain.Dish{{Name: "Mapo Tofu"}, {Name: "Fried Rice"}}, llm.APIKey{})
	require.NoError(t, err)
	require.Len(t, profiles, 2)

	mapo := profiles[0]
	assert.Equal(t, "Mapo Tofu", mapo.DishName, "the supplied name is kept")
	assert.NoError(t, mapo.Err)
	assert.Equal(t, []string{"soy", "gluten"}, mapo.Allergens)
	assert.Equal(t, []string{"peanut", "beef"}, mapo.MayContain)
	assert.Equal(t, []string{"tofu", "chili bean paste"}, mapo.Ingredients)

	assert.Equal(t, "Fried Rice", profiles[1].DishName)
	assert.ErrorIs(t, profiles[1].Err, apperrors.ErrProfiling)
}

func TestLLMProfiler_MalformedAnswerFailsBatch(t *testing.T) {
	client := &scriptedLLM{profile: func(string) (string, error) { return "Sorry, I can't help.", nil }}
	profiles, err := NewLLMProfiler(client, 0.3, 8, 2).Profile(context.Background(),
		[]domain.Dish{{Name: "A"}, {Name: "B"}}, llm.APIKey{})
	require.NoError(t, err)
	for _, p := range profiles {
		assert.ErrorIs(t, p.Err, apperrors.ErrProfiling)
	}
}

func TestLLMProfiler_AcceptsBareArray(t *testing.T) {
	client := &scriptedLLM{profile: func(string) (string, error) {
		return `[{"name":"Omelette","allergens":["eggs"]}]`, nil
	}}
	profiles, err := NewLLMProfiler(client, 0.3, 8, 2).Profile(context.Background(),
		[]domain.Dish{{Name: "Omelette"}}, llm.APIKey{})
	require.NoError(t, err)
	assert.Equal(t, []string{"egg"}, profiles[0].Allergens)
}

func TestClassify(t *testing.T) {
	peanut := allergyTerms{declared: "peanut", terms: append([]string{"peanut"}, Synonyms("peanut")...)}
	shrimp := allergyTerms{declared: "Shrimp", terms: append([]string{"Shrimp", "shellfish"}, Synonyms("shellfish")...)}
	allergies := []allergyTerms{peanut, shrimp}

	tests := []struct {
		name        string
		profile     domain.DishAllergenProfile
		wantClass   domain.Classification
		wantMatched []string
	}{
		{
			name:        "confident allergen",
			profile:     domain.DishAllergenProfile{DishName: "Satay", Allergens: []string{"peanut"}},
			wantClass:   domain.Unsafe,
			wantMatched: []string{"peanut"},
		},
		{
			name:        "ingredient hint",
			profile:     domain.DishAllergenProfile{DishName: "Fried Rice", Ingredients: []string{"dried shrimp", "rice"}},
			wantClass:   domain.Unsafe,
			wantMatched: []string{"Shrimp"},
		},
		{
			name:        "both declared allergies",
			profile:     domain.DishAllergenProfile{DishName: "Pad Thai", Allergens: []string{"peanut", "shellfish"}},
			wantClass:   domain.Unsafe,
			wantMatched: []string{"peanut", "Shrimp"},
		},
		{
			name:        "may contain",
			profile:     domain.DishAllergenProfile{DishName: "Dan Dan Noodles", Allergens: []string{"gluten"}, MayContain: []string{"peanut"}},
			wantClass:   domain.Caution,
			wantMatched: []string{"peanut"},
		},
		{
			name:        "profiling failed",
			profile:     domain.DishAllergenProfile{DishName: "Mystery", Err: apperrors.NewProfilingError(errors.New("x"), "Mystery")},
			wantClass:   domain.Caution,
			wantMatched: []string{},
		},
		{
			name:        "underspecified",
			profile:     domain.DishAllergenProfile{DishName: "House Noodles", Underspecified: true},
			wantClass:   domain.Caution,
			wantMatched: []string{},
		},
		{
			name:        "generic name",
			profile:     domain.DishAllergenProfile{DishName: "Soup of the Day"},
			wantClass:   domain.Caution,
			wantMatched: []string{},
		},
		{
			name:        "generic chinese name",
			profile:     domain.DishAllergenProfile{DishName: "主廚推薦"},
			wantClass:   domain.Caution,
			wantMatched: []string{},
		},
		{
			name:        "unrelated allergens",
			profile:     domain.DishAllergenProfile{DishName: "Cheese Toast", Allergens: []string{"dairy", "gluten"}},
			wantClass:   domain.Safe,
			wantMatched: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := classify(tt.profile, allergies)
			assert.Equal(t, tt.profile.DishName, v.DishName)
			assert.Equal(t, tt.wantClass, v.Classification)
			assert.Equal(t, tt.wantMatched, v.MatchedAllergens)
		})
	}
}

func TestVerdictComposer_NoAllergiesNoModelCall(t *testing.T) {
	client := &scriptedLLM{}
	verdicts, err := NewVerdictComposer(client, 0.3).Compose(context.Background(), []domain.DishAllergenProfile{
		{DishName: "Kung Pao Chicken", Allergens: []string{"peanut", "soy"}, MayContain: []string{"sesame"}},
		{DishName: "Soup of the day"},
	}, nil, llm.APIKey{})
	require.NoError(t, err)

	assert.Zero(t, client.total())
	assert.Equal(t, domain.Safe, verdicts[0].Classification)
	assert.Equal(t, []string{"peanut", "soy", "sesame"}, verdicts[0].CandidateAllergens)
	assert.Equal(t, domain.Caution, verdicts[1].Classification)
}

func TestVerdictComposer_ExpandsUnknownTerms(t *testing.T) {
	client := &scriptedLLM{
		expand: func(prompt string) (string, error) {
			assert.Contains(t, prompt, "Kiwi")
			assert.NotContains(t, prompt, "peanut")
			return `{"kiwi":["kiwi","kiwifruit","奇異果"]}`, nil
		},
	}
	verdicts, err := NewVerdictComposer(client, 0.3).Compose(context.Background(), []domain.DishAllergenProfile{
		{DishName: "Fruit Salad", Ingredients: []string{"kiwifruit", "apple"}},
		{DishName: "奇異果汁", Ingredients: []string{"奇異果"}},
		{DishName: "Plain Rice", Ingredients: []string{"rice"}},
	}, []string{"Kiwi", "peanut"}, llm.APIKey{})
	require.NoError(t, err)

	assert.Equal(t, 1, client.count("expand"))
	assert.Equal(t, domain.Unsafe, verdicts[0].Classification)
	assert.Equal(t, []string{"Kiwi"}, verdicts[0].MatchedAllergens)
	assert.Equal(t, domain.Unsafe, verdicts[1].Classification)
	assert.Equal(t, domain.Safe, verdicts[2].Classification)
}

func TestVerdictComposer_ExpansionFailureFallsBackToLiteral(t *testing.T) {
	client := &scriptedLLM{
		expand: func(string) (string, error) {
			return "", apperrors.NewLLMProviderError(errors.New("503"), "scripted")
		},
	}
	verdicts, err := NewVerdictComposer(client, 0.3).Compose(context.Background(), []domain.DishAllergenProfile{
		{DishName: "Kiwi Tart", Ingredients: []string{"kiwi", "flour"}},
		{DishName: "Fruit Salad", Ingredients: []string{"kiwifruit"}},
	}, []string{"kiwi"}, llm.APIKey{})
	require.NoError(t, err)

	assert.Equal(t, domain.Unsafe, verdicts[0].Classification)
	assert.Equal(t, domain.Safe, verdicts[1].Classification)
}

func TestVerdictComposer_ExpansionRateLimitAborts(t *testing.T) {
	client := &scriptedLLM{
		expand: func(string) (string, error) {
			return "", apperrors.NewLLMRateLimitError(errors.New("429"), "scripted")
		},
	}
	_, err := NewVerdictComposer(client, 0.3).Compose(context.Background(), []domain.DishAllergenProfile{
		{DishName: "Kiwi Tart"},
	}, []string{"kiwi"}, llm.APIKey{})
	assert.ErrorIs(t, err, apperrors.ErrLLMRateLimit)
}
