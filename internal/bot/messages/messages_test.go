package messages

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allergymenu/allergy-menu-assistant/internal/domain"
)

func TestRenderResult_Sections(t *testing.T) {
	result := &domain.AnalysisResult{
		Allergies: []string{"peanut", "sesame"},
		Verdicts: []domain.Verdict{
			{DishName: "Kung Pao Chicken", Classification: domain.Unsafe, MatchedAllergens: []string{"peanut"}},
			{DishName: "Stir-fried Cabbage", Classification: domain.Safe, MatchedAllergens: []string{}},
			{DishName: "Dan Dan Noodles", Classification: domain.Caution, MatchedAllergens: []string{"sesame"}, Reason: "May contain sesame"},
			{DishName: "Steamed Rice", Classification: domain.Safe, MatchedAllergens: []string{}},
		},
	}

	out := RenderResult(result)

	assert.Contains(t, out, "peanut, sesame")
	assert.Contains(t, out, "✅ Safe to eat (2)\n• Stir-fried Cabbage\n• Steamed Rice")
	assert.Contains(t, out, "❌ Not safe to eat (1)\n• Kung Pao Chicken: peanut")
	assert.Contains(t, out, "⚠️ Be careful (1)\n• Dan Dan Noodles (May contain sesame)")

	safe := strings.Index(out, "✅")
	unsafe := strings.Index(out, "❌")
	caution := strings.Index(out, "⚠️")
	assert.Less(t, safe, unsafe)
	assert.Less(t, unsafe, caution)
}

func TestRenderResult_EmptySectionsOmitted(t *testing.T) {
	result := &domain.AnalysisResult{
		Allergies: []string{"egg"},
		Verdicts:  []domain.Verdict{{DishName: "Tea", Classification: domain.Safe}},
	}

	out := RenderResult(result)

	assert.Contains(t, out, "✅ Safe to eat (1)")
	assert.NotContains(t, out, "❌")
	assert.NotContains(t, out, "⚠️")
}

func TestRenderResult_NoAllergiesListsCandidates(t *testing.T) {
	result := &domain.AnalysisResult{
		Allergies: []string{},
		Verdicts: []domain.Verdict{
			{DishName: "Kung Pao Chicken", Classification: domain.Safe, CandidateAllergens: []string{"peanut", "soy"}},
			{DishName: "Plain Rice", Classification: domain.Safe},
			{DishName: "Chef's Special", Classification: domain.Caution, Reason: "Generic dish name, ingredients unknown"},
		},
	}

	out := RenderResult(result)

	assert.Contains(t, out, "• Kung Pao Chicken: peanut, soy")
	assert.Contains(t, out, "• Plain Rice: no common allergens found")
	assert.Contains(t, out, "• Chef's Special (Generic dish name, ingredients unknown)")
	assert.NotContains(t, out, "✅")
	assert.Contains(t, out, "/setallergy")
}

func TestRenderResult_Nil(t *testing.T) {
	assert.NotEmpty(t, RenderResult(nil))
}

func TestSplit(t *testing.T) {
	t.Run("short text is untouched", func(t *testing.T) {
		assert.Equal(t, []string{"hello"}, Split("hello", 10))
	})

	t.Run("splits on line boundaries", func(t *testing.T) {
		chunks := Split("aaaa\nbbbb\ncccc", 10)
		assert.Equal(t, []string{"aaaa\nbbbb", "cccc"}, chunks)
	})

	t.Run("cuts long lines on rune boundaries", func(t *testing.T) {
		line := strings.Repeat("宮", 25)
		chunks := Split(line, 10)
		require.Len(t, chunks, 3)
		for _, c := range chunks {
			assert.True(t, utf8.ValidString(c))
			assert.LessOrEqual(t, utf8.RuneCountInString(c), 10)
		}
		assert.Equal(t, line, strings.Join(chunks, ""))
	})

	t.Run("no chunk exceeds the telegram limit", func(t *testing.T) {
		var lines []string
		for i := 0; i < 500; i++ {
			lines = append(lines, "• 麻婆豆腐 Mapo Tofu: soy, sesame")
		}
		chunks := Split(strings.Join(lines, "\n"), TelegramMaxLength)
		assert.Greater(t, len(chunks), 1)
		for _, c := range chunks {
			assert.LessOrEqual(t, TextLength(c), TelegramMaxLength)
		}
	})

	t.Run("emoji count as two units", func(t *testing.T) {
		assert.Equal(t, 5, TextLength("🍽 ok"))

		line := strings.Repeat("🍽", 6)
		chunks := Split(line, 10)
		require.Len(t, chunks, 2)
		assert.Equal(t, strings.Repeat("🍽", 5), chunks[0])
		assert.Equal(t, line, strings.Join(chunks, ""))
	})

	t.Run("stays under the limit with emoji headers", func(t *testing.T) {
		var lines []string
		for i := 0; i < 800; i++ {
			lines = append(lines, "⚠️🍽 Kung Pao Chicken: peanut")
		}
		text := strings.Join(lines, "\n")
		require.Greater(t, TextLength(text), utf8.RuneCountInString(text))

		for _, c := range Split(text, TelegramMaxLength) {
			assert.LessOrEqual(t, TextLength(c), TelegramMaxLength)
		}
	})

	t.Run("blank chunks are dropped", func(t *testing.T) {
		assert.Empty(t, Split("", 10))
		assert.Empty(t, Split("\n\n\n", 10))
		assert.Equal(t, []string{"aaaa", "bbbb"}, Split("aaaa\n\n\n\n\n\n\n\n\nbbbb", 4))
	})
}

func TestAcknowledge(t *testing.T) {
	assert.Contains(t, Acknowledge([]string{"peanut", "dairy"}), "(peanut, dairy)")
	assert.Contains(t, Acknowledge(nil), "/setallergy")
}

func TestAllergyPrompt(t *testing.T) {
	assert.NotContains(t, AllergyPrompt(nil), "Current allergies")
	assert.Contains(t, AllergyPrompt([]string{"egg"}), "Current allergies:\negg")
}

func TestWelcome(t *testing.T) {
	assert.True(t, strings.HasPrefix(Welcome("Ann"), "Hello, Ann!"))
	assert.True(t, strings.HasPrefix(Welcome(" "), "Hello!"))
}
