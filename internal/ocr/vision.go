package ocr

import (
	"context"
	"time"

	apperrors "github.com/allergymenu/allergy-menu-assistant/internal/errors"
	"github.com/allergymenu/allergy-menu-assistant/internal/llm"
	"github.com/allergymenu/allergy-menu-assistant/internal/logger"
)

const transcribePrompt = `Transcribe all text visible in this restaurant menu photo.

REQUIREMENTS:
- Copy the text exactly as printed, in its original language
- Keep one menu line per output line
- Do not translate, summarise or add commentary
- If there is no readable text, return nothing`

// VisionExtractor asks a multimodal model to transcribe the menu using the
// user's key.
type VisionExtractor struct {
	client llm.Client
}

func NewVisionExtractor(client llm.Client) *VisionExtractor {
	return &VisionExtractor{client: client}
}

func (e *VisionExtractor) Extract(ctx context.Context, image []byte, key llm.APIKey) (string, error) {
	mime, err := DetectImage(image)
	if err != nil {
		return "", err
	}

	start := time.Now()
	text, err := e.client.Complete(ctx, llm.Request{
		Prompt:    transcribePrompt,
		Image:     image,
		ImageMIME: mime,
	}, key)
	if err != nil {
		if apperrors.IsRunFatal(err) {
			return "", err
		}
		return "", apperrors.NewExtractionError(err, "vision transcription failed")
	}

	logger.WithContext(ctx).Info("OCR completed", "engine", e.client.Name(), "bytes", len(image), "text_length", len(text), "duration", time.Since(start))
	return text, nil
}
