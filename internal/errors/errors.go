package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
)

// ErrorType represents different types of errors
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeDatabase   ErrorType = "database"
	ErrorTypeExternal   ErrorType = "external_api"
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypePermission ErrorType = "permission"
	ErrorTypeRateLimit  ErrorType = "rate_limit"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeExtraction ErrorType = "extraction"
	ErrorTypeCredential ErrorType = "credential"
)

// AppError represents an application error with additional context
type AppError struct {
	Type     ErrorType
	Message  string
	Code     string
	Internal error
	Context  map[string]interface{}
	Source   string
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the internal error
func (e *AppError) Unwrap() error {
	return e.Internal
}

// Is checks if the error matches the target
func (e *AppError) Is(target error) bool {
	if t, ok := target.(*AppError); ok {
		return e.Type == t.Type && e.Code == t.Code
	}
	return errors.Is(e.Internal, target)
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// LogFields returns structured logging fields
func (e *AppError) LogFields() []interface{} {
	fields := []interface{}{
		"error_type", e.Type,
		"error_code", e.Code,
		"error_message", e.Message,
		"source", e.Source,
	}

	if e.Internal != nil {
		fields = append(fields, "internal_error", e.Internal.Error())
	}

	for k, v := range e.Context {
		fields = append(fields, k, v)
	}

	return fields
}

// New creates a new AppError
func New(errorType ErrorType, code, message string) *AppError {
	_, file, line, _ := runtime.Caller(1)
	source := fmt.Sprintf("%s:%d", file, line)

	return &AppError{
		Type:    errorType,
		Code:    code,
		Message: message,
		Source:  source,
		Context: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error into AppError
func Wrap(err error, errorType ErrorType, code, message string) *AppError {
	_, file, line, _ := runtime.Caller(1)
	source := fmt.Sprintf("%s:%d", file, line)

	return &AppError{
		Type:     errorType,
		Code:     code,
		Message:  message,
		Internal: err,
		Source:   source,
		Context:  make(map[string]interface{}),
	}
}

// Handler provides error handling strategies
type Handler struct {
	logger *slog.Logger
}

// NewHandler creates a new error handler
func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{logger: logger}
}

// Handle processes an error according to its type
func (h *Handler) Handle(ctx context.Context, err error) {
	if err == nil {
		return
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		h.handleAppError(ctx, appErr)
	} else {
		h.handleGenericError(ctx, err)
	}
}

func (h *Handler) handleAppError(ctx context.Context, err *AppError) {
	switch err.Type {
	case ErrorTypeValidation, ErrorTypeExtraction, ErrorTypeCredential:
		h.logger.WarnContext(ctx, "Request rejected", err.LogFields()...)
	case ErrorTypePermission:
		h.logger.WarnContext(ctx, "Permission error", err.LogFields()...)
	case ErrorTypeRateLimit:
		h.logger.WarnContext(ctx, "Rate limit error", err.LogFields()...)
	case ErrorTypeDatabase, ErrorTypeExternal, ErrorTypeInternal, ErrorTypeTimeout:
		h.logger.ErrorContext(ctx, "Critical error", err.LogFields()...)
	default:
		h.logger.ErrorContext(ctx, "Unknown error type", err.LogFields()...)
	}
}

func (h *Handler) handleGenericError(ctx context.Context, err error) {
	h.logger.ErrorContext(ctx, "Unhandled error", "error", err.Error())
}

// LogAndReturn logs an error and returns it
func (h *Handler) LogAndReturn(ctx context.Context, err error) error {
	h.Handle(ctx, err)
	return err
}

// Predefined errors. Match them with errors.Is; only Type and Code are compared.
var (
	ErrInvalidInput   = New(ErrorTypeValidation, "INVALID_INPUT", "Invalid input provided")
	ErrValidation     = New(ErrorTypeValidation, "VALIDATION", "Validation failed")
	ErrDatabaseError  = New(ErrorTypeDatabase, "DB_ERROR", "Database operation failed")
	ErrExternalAPI    = New(ErrorTypeExternal, "EXTERNAL_API", "External API error")
	ErrTimeout        = New(ErrorTypeTimeout, "TIMEOUT", "Operation timed out")
	ErrInternalServer = New(ErrorTypeInternal, "INTERNAL", "Internal server error")

	ErrExtraction    = New(ErrorTypeExtraction, "EXTRACTION_FAILED", "No usable text could be extracted from the image")
	ErrEmptyDishList = New(ErrorTypeValidation, "EMPTY_DISH_LIST", "No dishes found in the menu")
	ErrProfiling     = New(ErrorTypeExternal, "PROFILING_FAILED", "Allergen profiling failed")
	ErrCredential    = New(ErrorTypeCredential, "CREDENTIAL_MISSING", "API key is missing or invalid")
	ErrLLMAuth       = New(ErrorTypePermission, "LLM_AUTH", "LLM provider rejected the API key")
	ErrLLMRateLimit  = New(ErrorTypeRateLimit, "LLM_RATE_LIMIT", "LLM provider rate limit exceeded")
	ErrLLMProvider   = New(ErrorTypeExternal, "LLM_PROVIDER", "LLM provider error")
)

func NewValidationError(message string) *AppError {
	return New(ErrorTypeValidation, ErrValidation.Code, message)
}

func NewDatabaseError(err error) *AppError {
	return Wrap(err, ErrorTypeDatabase, ErrDatabaseError.Code, ErrDatabaseError.Message)
}

func NewExternalAPIError(err error, api string) *AppError {
	return Wrap(err, ErrorTypeExternal, ErrExternalAPI.Code, fmt.Sprintf("%s API error", api)).
		WithContext("api", api)
}

func NewTimeoutError(operation string) *AppError {
	return New(ErrorTypeTimeout, ErrTimeout.Code, fmt.Sprintf("%s operation timed out", operation)).
		WithContext("operation", operation)
}

func NewInternalError(err error) *AppError {
	return Wrap(err, ErrorTypeInternal, ErrInternalServer.Code, ErrInternalServer.Message)
}

func NewExtractionError(err error, message string) *AppError {
	return Wrap(err, ErrorTypeExtraction, ErrExtraction.Code, message)
}

func NewEmptyDishListError() *AppError {
	return New(ErrorTypeValidation, ErrEmptyDishList.Code, ErrEmptyDishList.Message)
}

func NewProfilingError(err error, dish string) *AppError {
	return Wrap(err, ErrorTypeExternal, ErrProfiling.Code, ErrProfiling.Message).
		WithContext("dish", dish)
}

func NewCredentialError(err error, message string) *AppError {
	return Wrap(err, ErrorTypeCredential, ErrCredential.Code, message)
}

func NewLLMAuthError(err error, provider string) *AppError {
	return Wrap(err, ErrorTypePermission, ErrLLMAuth.Code, ErrLLMAuth.Message).
		WithContext("provider", provider)
}

func NewLLMRateLimitError(err error, provider string) *AppError {
	return Wrap(err, ErrorTypeRateLimit, ErrLLMRateLimit.Code, ErrLLMRateLimit.Message).
		WithContext("provider", provider)
}

func NewLLMProviderError(err error, provider string) *AppError {
	return Wrap(err, ErrorTypeExternal, ErrLLMProvider.Code, ErrLLMProvider.Message).
		WithContext("provider", provider)
}

// IsRunFatal reports whether err must abort a whole analysis run instead of
// degrading a single dish.
func IsRunFatal(err error) bool {
	return errors.Is(err, ErrLLMAuth) || errors.Is(err, ErrLLMRateLimit) || errors.Is(err, ErrCredential)
}

// UserMessage maps an error to the sentence shown to the chat user.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCredential):
		return "Please configure your Gemini API key first with /setapikey."
	case errors.Is(err, ErrLLMAuth):
		return "Your API key was rejected by the AI provider. Please set a valid key with /setapikey."
	case errors.Is(err, ErrLLMRateLimit):
		return "The AI provider is rate limiting your API key. Please try again in a minute."
	case errors.Is(err, ErrExtraction):
		return "I couldn't read any text from this photo. Please send a clearer picture of the menu."
	case errors.Is(err, ErrEmptyDishList):
		return "I couldn't find any dishes on this menu. Please send a clearer picture of the menu."
	case errors.Is(err, ErrLLMProvider):
		return "The AI provider is temporarily unavailable. Please try again later."
	case errors.Is(err, ErrTimeout):
		return "Reading the menu took too long. Please try again with a smaller or clearer photo."
	case errors.Is(err, ErrExternalAPI):
		return "I couldn't download that photo. Please send it again."
	default:
		return "Sorry, something went wrong while analysing the menu. Please try again."
	}
}
