package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

var ErrNoJSON = errors.New("no JSON value found in model output")

// ExtractJSON returns the outermost JSON object or array embedded in text.
// Models often wrap their answer in markdown fences or prose.
func ExtractJSON(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```JSON")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return "", ErrNoJSON
	}
	open := text[start]
	closeCh := byte('}')
	if open == '[' {
		closeCh = ']'
	}
	end := strings.LastIndexByte(text, closeCh)
	if end <= start {
		return "", ErrNoJSON
	}

	candidate := text[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return "", ErrNoJSON
	}
	return candidate, nil
}

// DecodeJSON extracts the JSON value from text and unmarshals it into v.
func DecodeJSON(text string, v interface{}) error {
	raw, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), v)
}
