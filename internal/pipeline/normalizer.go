package pipeline

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/allergymenu/allergy-menu-assistant/internal/domain"
	"github.com/allergymenu/allergy-menu-assistant/internal/llm"
	"github.com/allergymenu/allergy-menu-assistant/internal/logger"
)

const maxDishNameRunes = 80

const normalizeSystemPrompt = `You are a restaurant menu parsing assistant.
Your task is to extract every dish name from menu text that was produced by OCR.

REQUIREMENTS:
1. Output only the dish names, one dish per line.
2. Keep each dish name in its original language and wording. Do not translate, shorten or add dishes.
3. If OCR clearly misread a dish name, output the corrected name.
4. Ignore prices, portion sizes, section headings, descriptions and seasoning notes.
5. Do not output numbering, bullets or any other text.`

var (
	// Leading list markers: "1.", "(2)", "3、", "a)", bullets.
	listMarkerRe = regexp.MustCompile(`^\s*(?:\(?\d{1,3}\s*[.)、:：．]|\(\d{1,3}\)|[A-Za-z][.)](?:\s|$)|[-*•·●◦▪‣►>]+)\s*`)
	// Prices with a currency marker before or after the amount.
	currencyPriceRe = regexp.MustCompile(`(?i)(?:NT\$|US\$|HK\$|\$|＄|€|£|¥|￥|NTD|TWD|RMB)\s*\d+(?:[.,]\d+)?|\d+(?:[.,]\d+)?\s*(?:元|塊|円|NTD|TWD|dollars?)`)
	// A bare amount at the end of a line that reads as a price column: set
	// apart by a wide gap, a separator or a dot leader, or shaped like a
	// price. "Set Meal 2" keeps its number.
	trailingPriceRe = regexp.MustCompile(`(?:\s{2,}|\s*[/|]\s*)\d+(?:[.,]\d+)?\s*$|\s+(?:\d{3,}|\d+[.,]\d{1,2})\s*$`)
	// Dot leaders between the name and the price column.
	leaderRe = regexp.MustCompile(`[.…·_]{2,}`)
	spacesRe = regexp.MustCompile(`\s+`)
)

// LLMNormalizer is the first agent: it turns raw OCR text into a clean,
// ordered, de-duplicated list of dish names.
type LLMNormalizer struct {
	client      llm.Client
	temperature float32
}

func NewLLMNormalizer(client llm.Client, temperature float32) *LLMNormalizer {
	return &LLMNormalizer{client: client, temperature: temperature}
}

func (n *LLMNormalizer) Normalize(ctx context.Context, rawText string, key llm.APIKey) ([]domain.Dish, error) {
	lines := preClean(rawText)
	if len(lines) == 0 {
		logger.WithContext(ctx).Info("No candidate lines after pre-clean, skipping model call")
		return []domain.Dish{}, nil
	}

	start := time.Now()
	out, err := n.client.Complete(ctx, llm.Request{
		System:      normalizeSystemPrompt,
		Prompt:      strings.Join(lines, "\n"),
		Temperature: n.temperature,
	}, key)
	if err != nil {
		return nil, err
	}

	dishes := postClean(out)
	logger.WithContext(ctx).Info("Dishes normalized",
		"input_lines", len(lines),
		"dishes", len(dishes),
		"duration", time.Since(start),
	)
	return dishes, nil
}

// preClean drops everything that can never be a dish name before the model
// sees the text.
func preClean(raw string) []string {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		if cleaned := cleanLine(line); cleaned != "" && hasLetter(cleaned) {
			lines = append(lines, cleaned)
		}
	}
	return lines
}

// postClean parses the model's line-based answer into dishes, keeping the
// first spelling of each name in first-appearance order.
func postClean(answer string) []domain.Dish {
	answer = strings.ReplaceAll(answer, "```", "")

	dishes := []domain.Dish{}
	seen := make(map[string]struct{})
	for _, line := range strings.Split(answer, "\n") {
		// Headings and preambles such as "Dishes:".
		if trimmed := strings.TrimSpace(line); strings.HasSuffix(trimmed, ":") || strings.HasSuffix(trimmed, "：") {
			continue
		}
		name := cleanLine(line)
		if !plausibleDishName(name) {
			continue
		}
		key := dedupeKey(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		dishes = append(dishes, domain.Dish{Name: name})
	}
	return dishes
}

func cleanLine(line string) string {
	// Tabs separate columns, so they stay wider than a word gap.
	line = strings.ReplaceAll(line, "\t", "  ")
	line = strings.Map(func(r rune) rune {
		if r == '　' || r == '\f' || r == '\r' {
			return ' '
		}
		return r
	}, line)
	line = strings.TrimSpace(line)
	line = listMarkerRe.ReplaceAllString(line, "")
	line = leaderRe.ReplaceAllString(line, "  ")
	line = currencyPriceRe.ReplaceAllString(line, " ")
	line = trailingPriceRe.ReplaceAllString(line, "")
	line = spacesRe.ReplaceAllString(line, " ")
	return strings.Trim(line, " .,;:-|/*。，、：")
}

func plausibleDishName(name string) bool {
	if name == "" || !hasLetter(name) {
		return false
	}
	if utf8.RuneCountInString(name) > maxDishNameRunes {
		return false
	}
	return true
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// dedupeKey ignores case and whitespace.
func dedupeKey(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "")
}
