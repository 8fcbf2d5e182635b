package messages

import (
	"fmt"
	"strings"

	"github.com/allergymenu/allergy-menu-assistant/internal/domain"
)

// Message size limits of the chat platforms, in UTF-16 code units.
const (
	TelegramMaxLength = 4096
	LineMaxLength     = 5000
)

var sections = []struct {
	class domain.Classification
	title string
}{
	{domain.Safe, "✅ Safe to eat"},
	{domain.Unsafe, "❌ Not safe to eat"},
	{domain.Caution, "⚠️ Be careful"},
}

// RenderResult turns a run's verdicts into the reply text. Users without
// declared allergies get a flat list of each dish's candidate allergens
// instead of the three sections.
func RenderResult(result *domain.AnalysisResult) string {
	if result == nil || len(result.Verdicts) == 0 {
		return "I couldn't find any dishes on this menu."
	}
	if len(result.Allergies) == 0 {
		return renderCandidates(result.Verdicts)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🍽 Menu analysis for your allergies: %s\n", JoinAllergies(result.Allergies))

	for _, s := range sections {
		var lines []string
		for _, v := range result.Verdicts {
			if v.Classification == s.class {
				lines = append(lines, verdictLine(v))
			}
		}
		if len(lines) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s (%d)\n", s.title, len(lines))
		b.WriteString(strings.Join(lines, "\n"))
		b.WriteString("\n")
	}

	b.WriteString("\nThis is an AI estimate. Always confirm with the restaurant staff.")
	return b.String()
}

func verdictLine(v domain.Verdict) string {
	switch v.Classification {
	case domain.Unsafe:
		return fmt.Sprintf("• %s: %s", v.DishName, JoinAllergies(v.MatchedAllergens))
	case domain.Caution:
		if v.Reason != "" {
			return fmt.Sprintf("• %s (%s)", v.DishName, v.Reason)
		}
	}
	return "• " + v.DishName
}

func renderCandidates(verdicts []domain.Verdict) string {
	var b strings.Builder
	b.WriteString("🍽 Menu analysis\nYou haven't set any allergies, so here is what each dish may contain:\n\n")
	for _, v := range verdicts {
		switch {
		case len(v.CandidateAllergens) > 0:
			fmt.Fprintf(&b, "• %s: %s\n", v.DishName, JoinAllergies(v.CandidateAllergens))
		case v.Reason != "":
			fmt.Fprintf(&b, "• %s (%s)\n", v.DishName, v.Reason)
		default:
			fmt.Fprintf(&b, "• %s: no common allergens found\n", v.DishName)
		}
	}
	b.WriteString("\nUse /setallergy to get a personal verdict.")
	return b.String()
}

// Split breaks text into chunks of at most limit UTF-16 code units,
// preferring line boundaries. Lines longer than limit are cut on rune
// boundaries. Blank chunks are dropped, so blank text yields none.
func Split(text string, limit int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if limit <= 0 || TextLength(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var cur strings.Builder
	curLen := 0
	emit := func(s string) {
		if strings.TrimSpace(s) != "" {
			chunks = append(chunks, s)
		}
	}
	flush := func() {
		emit(strings.TrimRight(cur.String(), "\n"))
		cur.Reset()
		curLen = 0
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		n := TextLength(line)
		if curLen+n > limit {
			flush()
		}
		for n > limit {
			head, rest := cutUnits(line, limit)
			emit(head)
			line = rest
			n = TextLength(line)
		}
		cur.WriteString(line)
		curLen += n
	}
	flush()
	return chunks
}

// TextLength counts s the way Telegram and LINE do, in UTF-16 code units.
func TextLength(s string) int {
	n := 0
	for _, r := range s {
		n += utf16Len(r)
	}
	return n
}

// cutUnits splits s after at most limit UTF-16 code units. The head always
// holds at least one rune.
func cutUnits(s string, limit int) (string, string) {
	n := 0
	for i, r := range s {
		n += utf16Len(r)
		if n > limit && i > 0 {
			return s[:i], s[i:]
		}
	}
	return s, ""
}

func utf16Len(r rune) int {
	if r >= 0x10000 {
		return 2
	}
	return 1
}
