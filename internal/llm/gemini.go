package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	apperrors "github.com/allergymenu/allergy-menu-assistant/internal/errors"
	"github.com/allergymenu/allergy-menu-assistant/internal/logger"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// GeminiClient keeps one long-lived genai client for the shared key. Calls
// made with a user's key get their own client, closed when the call returns.
type GeminiClient struct {
	model     string
	sharedKey APIKey
	timeout   time.Duration

	mu     sync.Mutex
	shared *genai.Client
}

func NewGeminiClient(model string, sharedKey APIKey, timeout time.Duration) *GeminiClient {
	return &GeminiClient{
		model:     model,
		sharedKey: sharedKey,
		timeout:   timeout,
	}
}

func (c *GeminiClient) Name() string { return ProviderGemini }

func (c *GeminiClient) Complete(ctx context.Context, req Request, key APIKey) (string, error) {
	key, err := resolveKey(key, c.sharedKey)
	if err != nil {
		return "", err
	}

	client, release, err := c.clientFor(ctx, key)
	if err != nil {
		return "", err
	}
	defer release()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	model := client.GenerativeModel(c.model)
	model.SetTemperature(req.Temperature)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}

	parts := make([]genai.Part, 0, 2)
	if len(req.Image) > 0 {
		parts = append(parts, genai.ImageData(imageFormat(req.ImageMIME), req.Image))
	}
	parts = append(parts, genai.Text(req.Prompt))

	start := time.Now()
	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		logger.WithContext(ctx).Warn("Gemini request failed", "model", c.model, "error", err, "duration", time.Since(start))
		return "", classifyGeminiError(err)
	}
	logger.WithContext(ctx).Debug("Gemini request completed", "model", c.model, "duration", time.Since(start))

	text := responseText(resp)
	if text == "" {
		return "", apperrors.NewLLMProviderError(fmt.Errorf("empty response"), ProviderGemini)
	}
	return text, nil
}

// Close releases the shared-key client.
func (c *GeminiClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shared == nil {
		return nil
	}
	err := c.shared.Close()
	c.shared = nil
	return err
}

// clientFor returns a client for key and the function that gives it back.
// Only the shared key's client is kept between calls.
func (c *GeminiClient) clientFor(ctx context.Context, key APIKey) (*genai.Client, func(), error) {
	if key == c.sharedKey {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.shared == nil {
			// The shared client outlives the request, so it must not inherit its cancellation.
			client, err := genai.NewClient(context.WithoutCancel(ctx), option.WithAPIKey(key.Reveal()))
			if err != nil {
				return nil, nil, apperrors.NewLLMProviderError(err, ProviderGemini)
			}
			c.shared = client
		}
		return c.shared, func() {}, nil
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(key.Reveal()))
	if err != nil {
		return nil, nil, apperrors.NewLLMProviderError(err, ProviderGemini)
	}
	return client, func() {
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close Gemini client", "error", err)
		}
	}, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		// First candidate with content is the answer.
		if sb.Len() > 0 {
			break
		}
	}
	return strings.TrimSpace(sb.String())
}

// imageFormat turns a MIME type into the short format genai.ImageData expects.
func imageFormat(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if mime == "" {
		return "jpeg"
	}
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	mime = strings.TrimPrefix(mime, "image/")
	if mime == "jpg" {
		return "jpeg"
	}
	return mime
}

func resolveKey(key, shared APIKey) (APIKey, error) {
	if !key.IsZero() {
		return key, nil
	}
	if !shared.IsZero() {
		return shared, nil
	}
	return APIKey{}, apperrors.NewCredentialError(nil, "no API key configured")
}
