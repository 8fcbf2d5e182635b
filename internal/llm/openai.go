package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	apperrors "github.com/allergymenu/allergy-menu-assistant/internal/errors"
	"github.com/allergymenu/allergy-menu-assistant/internal/logger"
)

// OpenAIClient serves the same agents through the chat completion API. Users
// store Gemini keys, so it always authenticates with the operator's key.
type OpenAIClient struct {
	model     string
	sharedKey APIKey
	timeout   time.Duration
	baseURL   string
}

func NewOpenAIClient(model string, sharedKey APIKey, timeout time.Duration) *OpenAIClient {
	return &OpenAIClient{
		model:     model,
		sharedKey: sharedKey,
		timeout:   timeout,
	}
}

// WithBaseURL points the client at a compatible endpoint, used by tests.
func (c *OpenAIClient) WithBaseURL(url string) *OpenAIClient {
	c.baseURL = url
	return c
}

func (c *OpenAIClient) Name() string { return ProviderOpenAI }

// Complete ignores the per-user key; see OpenAIClient.
func (c *OpenAIClient) Complete(ctx context.Context, req Request, _ APIKey) (string, error) {
	if c.sharedKey.IsZero() {
		return "", apperrors.NewCredentialError(nil, "OPENAI_API_KEY is not configured")
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, userMessage(req))

	start := time.Now()
	resp, err := c.client().CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: req.Temperature,
	})
	if err != nil {
		logger.WithContext(ctx).Warn("OpenAI request failed", "model", c.model, "error", err, "duration", time.Since(start))
		return "", classifyOpenAIError(err)
	}
	logger.WithContext(ctx).Debug("OpenAI request completed", "model", c.model, "duration", time.Since(start))

	if len(resp.Choices) == 0 {
		return "", apperrors.NewLLMProviderError(fmt.Errorf("no choices in response"), ProviderOpenAI)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", apperrors.NewLLMProviderError(fmt.Errorf("empty response"), ProviderOpenAI)
	}
	return text, nil
}

// client is cheap to build: connections are pooled by the default transport.
func (c *OpenAIClient) client() *openai.Client {
	cfg := openai.DefaultConfig(c.sharedKey.Reveal())
	if c.baseURL != "" {
		cfg.BaseURL = c.baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

func userMessage(req Request) openai.ChatCompletionMessage {
	if len(req.Image) == 0 {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt}
	}

	mime := req.ImageMIME
	if mime == "" {
		mime = "image/jpeg"
	}
	dataURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(req.Image)
	return openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{
				Type: openai.ChatMessagePartTypeText,
				Text: req.Prompt,
			},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: dataURL,
				},
			},
		},
	}
}
