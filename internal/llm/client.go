// Package llm is the single boundary to the language model providers used by
// the menu analysis agents.
package llm

import (
	"context"
	"log/slog"
	"strings"
)

const redacted = "[REDACTED]"

// APIKey carries a provider key through the pipeline without ever printing it.
type APIKey struct {
	value string
}

func NewAPIKey(value string) APIKey {
	return APIKey{value: strings.TrimSpace(value)}
}

// Reveal returns the plaintext key. Only provider clients should call it.
func (k APIKey) Reveal() string { return k.value }

func (k APIKey) IsZero() bool { return k.value == "" }

func (k APIKey) String() string { return redacted }

func (k APIKey) GoString() string { return "llm.APIKey{" + redacted + "}" }

func (k APIKey) LogValue() slog.Value { return slog.StringValue(redacted) }

func (k APIKey) MarshalText() ([]byte, error) { return []byte(redacted), nil }

// Request is one completion call. Image is optional and only used by vision
// capable calls.
type Request struct {
	System      string
	Prompt      string
	Temperature float32
	Image       []byte
	ImageMIME   string
}

// Client completes a prompt with the given key. A zero key falls back to the
// provider's shared key.
type Client interface {
	Complete(ctx context.Context, req Request, key APIKey) (string, error)
	Name() string
}
