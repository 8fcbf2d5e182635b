package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "github.com/allergymenu/allergy-menu-assistant/internal/errors"
)

// classifyStatus maps an HTTP status from a provider to the error taxonomy.
func classifyStatus(err error, code int, provider string) error {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperrors.NewLLMAuthError(err, provider)
	case http.StatusTooManyRequests:
		return apperrors.NewLLMRateLimitError(err, provider)
	default:
		return apperrors.NewLLMProviderError(err, provider)
	}
}

func classifyGeminiError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewLLMProviderError(err, ProviderGemini).WithContext("timeout", true)
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		if gErr.Code == http.StatusBadRequest && invalidKeyMessage(gErr.Message) {
			return apperrors.NewLLMAuthError(err, ProviderGemini)
		}
		return classifyStatus(err, gErr.Code, ProviderGemini)
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unauthenticated, codes.PermissionDenied:
			return apperrors.NewLLMAuthError(err, ProviderGemini)
		case codes.ResourceExhausted:
			return apperrors.NewLLMRateLimitError(err, ProviderGemini)
		case codes.InvalidArgument:
			if invalidKeyMessage(st.Message()) {
				return apperrors.NewLLMAuthError(err, ProviderGemini)
			}
		}
	}
	return apperrors.NewLLMProviderError(err, ProviderGemini)
}

func classifyOpenAIError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(err, apiErr.HTTPStatusCode, ProviderOpenAI)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(err, reqErr.HTTPStatusCode, ProviderOpenAI)
	}
	return apperrors.NewLLMProviderError(err, ProviderOpenAI)
}

// Gemini answers an unknown key with 400 INVALID_ARGUMENT rather than 401.
func invalidKeyMessage(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "api key not valid") || strings.Contains(msg, "api_key_invalid")
}
