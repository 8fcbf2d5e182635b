package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	apperrors "github.com/allergymenu/allergy-menu-assistant/internal/errors"
	"github.com/allergymenu/allergy-menu-assistant/internal/llm"
	"github.com/allergymenu/allergy-menu-assistant/internal/logger"
)

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// TesseractExtractor shells out to the tesseract CLI.
type TesseractExtractor struct {
	binary    string
	languages string
	timeout   time.Duration
	run       runFunc
}

func NewTesseractExtractor(binary, languages string, timeout time.Duration) *TesseractExtractor {
	if binary == "" {
		binary = "tesseract"
	}
	if languages == "" {
		languages = "chi_tra+eng"
	}
	return &TesseractExtractor{
		binary:    binary,
		languages: languages,
		timeout:   timeout,
		run:       runCommand,
	}
}

// Extract ignores the key; local OCR needs no credentials.
func (e *TesseractExtractor) Extract(ctx context.Context, image []byte, _ llm.APIKey) (string, error) {
	mime, err := DetectImage(image)
	if err != nil {
		return "", err
	}

	tmpFile, err := os.CreateTemp("", "menu-*"+extensionFor(mime))
	if err != nil {
		return "", apperrors.NewExtractionError(err, "failed to create temp image")
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(image); err != nil {
		tmpFile.Close()
		return "", apperrors.NewExtractionError(err, "failed to write temp image")
	}
	if err := tmpFile.Close(); err != nil {
		return "", apperrors.NewExtractionError(err, "failed to write temp image")
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := e.run(ctx, e.binary, tmpFile.Name(), "stdout", "-l", e.languages, "--oem", "3", "--psm", "3")
	if err != nil {
		logger.WithContext(ctx).Warn("Tesseract failed", "error", err, "duration", time.Since(start))
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", apperrors.NewTimeoutError("tesseract")
		}
		return "", apperrors.NewExtractionError(err, "tesseract failed")
	}

	text := string(out)
	logger.WithContext(ctx).Info("OCR completed", "engine", "tesseract", "bytes", len(image), "text_length", len(text), "duration", time.Since(start))
	return text, nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}
