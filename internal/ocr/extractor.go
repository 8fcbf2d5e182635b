// Package ocr turns a menu photo into raw text.
package ocr

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/allergymenu/allergy-menu-assistant/internal/config"
	apperrors "github.com/allergymenu/allergy-menu-assistant/internal/errors"
	"github.com/allergymenu/allergy-menu-assistant/internal/llm"
)

// Extractor returns the raw text found in an image. Whitespace-only text is
// not an error; callers decide what an empty menu means.
type Extractor interface {
	Extract(ctx context.Context, image []byte, key llm.APIKey) (string, error)
}

// NewFromConfig picks the OCR engine. The vision engine reuses the LLM client.
func NewFromConfig(cfg config.OCRConfig, client llm.Client) (Extractor, error) {
	switch cfg.Engine {
	case "tesseract", "":
		return NewTesseractExtractor(cfg.TesseractPath, cfg.Languages, cfg.Timeout), nil
	case "gemini", "vision":
		return NewVisionExtractor(client), nil
	default:
		return nil, fmt.Errorf("unknown OCR engine %q", cfg.Engine)
	}
}

// DetectImage sniffs the payload and returns its MIME type, or an extraction
// error when it is not an image.
func DetectImage(image []byte) (string, error) {
	if len(image) == 0 {
		return "", apperrors.NewExtractionError(nil, "image payload is empty")
	}
	mime := http.DetectContentType(image)
	if !strings.HasPrefix(mime, "image/") {
		return "", apperrors.NewExtractionError(nil, "payload is not an image").
			WithContext("content_type", mime)
	}
	return mime, nil
}

func extensionFor(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	default:
		return ".jpg"
	}
}
