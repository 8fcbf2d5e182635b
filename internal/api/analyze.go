package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/allergymenu/allergy-menu-assistant/internal/domain"
	apperrors "github.com/allergymenu/allergy-menu-assistant/internal/errors"
	"github.com/allergymenu/allergy-menu-assistant/internal/interfaces"
	"github.com/allergymenu/allergy-menu-assistant/internal/logger"
)

const defaultMaxUploadBytes = 10 << 20

// analyzeMetadata is the JSON sent in the "metadata" form field.
type analyzeMetadata struct {
	Platform       string     `json:"platform"`
	PlatformUserID platformID `json:"platform_user_id"`
}

// platformID accepts both strings and numbers; Telegram IDs are numeric.
type platformID string

func (p *platformID) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*p = platformID(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*p = platformID(s)
	return nil
}

type analyzeResponse struct {
	RunID     string           `json:"run_id"`
	Allergies []string         `json:"allergies"`
	Verdicts  []domain.Verdict `json:"verdicts"`
	Counts    map[string]int   `json:"counts"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type analyzeHandler struct {
	creds    interfaces.CredentialServiceInterface
	analyzer interfaces.AnalyzerInterface
	maxBytes int64
	logger   *slog.Logger
}

// Analyze runs the pipeline on an uploaded menu photo for a stored user.
//
// POST /analyze (multipart: file, metadata)
func (h *analyzeHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	maxBytes := h.maxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "expected multipart form with file and metadata")
		return
	}

	var meta analyzeMetadata
	if err := json.Unmarshal([]byte(r.FormValue("metadata")), &meta); err != nil {
		writeError(w, http.StatusBadRequest, "metadata must be a JSON object")
		return
	}
	platform, ok := parsePlatform(meta.Platform)
	if !ok || strings.TrimSpace(string(meta.PlatformUserID)) == "" {
		writeError(w, http.StatusBadRequest, "metadata needs platform and platform_user_id")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()
	image, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read file")
		return
	}

	ctx := logger.ContextWithRun(r.Context(), requestRunID(r), string(platform))
	userID, err := h.creds.ResolveUser(ctx, string(platform), string(meta.PlatformUserID))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	result, err := h.analyzer.Analyze(ctx, userID, image)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	counts := make(map[string]int, 3)
	for class, n := range result.Counts() {
		counts[string(class)] = n
	}
	writeJSON(w, http.StatusOK, analyzeResponse{
		RunID:     result.RunID,
		Allergies: result.Allergies,
		Verdicts:  result.Verdicts,
		Counts:    counts,
	})
}

func (h *analyzeHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	code := ""
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		code = appErr.Code
		h.logger.WarnContext(r.Context(), "Analysis request failed", appErr.LogFields()...)
	} else {
		h.logger.ErrorContext(r.Context(), "Analysis request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: apperrors.UserMessage(err), Code: code})
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrCredential):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrExtraction), errors.Is(err, apperrors.ErrEmptyDishList):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperrors.ErrLLMAuth):
		return http.StatusUnauthorized
	case errors.Is(err, apperrors.ErrLLMRateLimit):
		return http.StatusTooManyRequests
	case errors.Is(err, apperrors.ErrLLMProvider), errors.Is(err, apperrors.ErrProfiling):
		return http.StatusBadGateway
	case errors.Is(err, apperrors.ErrValidation), errors.Is(err, apperrors.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, apperrors.ErrDatabaseError):
		return http.StatusServiceUnavailable
	case errors.Is(err, apperrors.ErrExternalAPI):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func parsePlatform(s string) (domain.Platform, bool) {
	switch p := domain.Platform(strings.ToLower(strings.TrimSpace(s))); p {
	case domain.PlatformTelegram, domain.PlatformLine, domain.PlatformHTTP:
		return p, true
	}
	return "", false
}

// requestRunID reuses a caller supplied request ID so HTTP and pipeline
// logs correlate.
func requestRunID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Request-Id")); id != "" {
		return id
	}
	return uuid.NewString()
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
