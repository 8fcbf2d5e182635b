package ocr

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allergymenu/allergy-menu-assistant/internal/config"
	apperrors "github.com/allergymenu/allergy-menu-assistant/internal/errors"
	"github.com/allergymenu/allergy-menu-assistant/internal/llm"
)

var (
	pngHeader  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	jpegHeader = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F'}
)

func TestDetectImage(t *testing.T) {
	mime, err := DetectImage(pngHeader)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)

	mime, err = DetectImage(jpegHeader)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mime)

	_, err = DetectImage(nil)
	assert.ErrorIs(t, err, apperrors.ErrExtraction)

	_, err = DetectImage([]byte("just some text, definitely not a photo"))
	assert.ErrorIs(t, err, apperrors.ErrExtraction)
}

func TestTesseractExtractor_RunsCLI(t *testing.T) {
	var gotName string
	var gotArgs []string
	var fileExisted bool

	e := NewTesseractExtractor("", "", time.Second)
	e.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotName = name
		gotArgs = args
		_, err := os.Stat(args[0])
		fileExisted = err == nil
		return []byte("1. Kung Pao Chicken $12\n"), nil
	}

	text, err := e.Extract(context.Background(), jpegHeader, llm.APIKey{})
	require.NoError(t, err)

	assert.Equal(t, "1. Kung Pao Chicken $12\n", text)
	assert.Equal(t, "tesseract", gotName)
	assert.True(t, fileExisted)
	assert.Equal(t, []string{"stdout", "-l", "chi_tra+eng", "--oem", "3", "--psm", "3"}, gotArgs[1:])

	_, err = os.Stat(gotArgs[0])
	assert.True(t, os.IsNotExist(err), "temp file is removed after extraction")
}

func TestTesseractExtractor_Failures(t *testing.T) {
	e := NewTesseractExtractor("tesseract", "eng", time.Second)
	called := false
	e.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		called = true
		return nil, errors.New("exit status 1: Error opening data file")
	}

	_, err := e.Extract(context.Background(), []byte("not an image"), llm.APIKey{})
	assert.ErrorIs(t, err, apperrors.ErrExtraction)
	assert.False(t, called, "non-image payloads never reach the CLI")

	_, err = e.Extract(context.Background(), pngHeader, llm.APIKey{})
	assert.ErrorIs(t, err, apperrors.ErrExtraction)
	assert.True(t, called)
}

func TestTesseractExtractor_Timeout(t *testing.T) {
	e := NewTesseractExtractor("tesseract", "eng", 10*time.Millisecond)
	e.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		<-ctx.Done()
		return nil, errors.New("signal: killed")
	}

	_, err := e.Extract(context.Background(), pngHeader, llm.APIKey{})
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.NotErrorIs(t, err, apperrors.ErrExtraction)
}

func TestTesseractExtractor_WhitespaceIsNotAnError(t *testing.T) {
	e := NewTesseractExtractor("tesseract", "eng", time.Second)
	e.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("  \n\f"), nil
	}

	text, err := e.Extract(context.Background(), pngHeader, llm.APIKey{})
	require.NoError(t, err)
	assert.Equal(t, "  \n\f", text)
}

type fakeLLM struct {
	reply string
	err   error
	req   llm.Request
	key   llm.APIKey
}

func (f *fakeLLM) Complete(_ context.Context, req llm.Request, key llm.APIKey) (string, error) {
	f.req = req
	f.key = key
	return f.reply, f.err
}

func (f *fakeLLM) Name() string { return "fake" }

func TestVisionExtractor(t *testing.T) {
	client := &fakeLLM{reply: "Kung Pao Chicken"}
	e := NewVisionExtractor(client)

	text, err := e.Extract(context.Background(), pngHeader, llm.NewAPIKey("user-key"))
	require.NoError(t, err)

	assert.Equal(t, "Kung Pao Chicken", text)
	assert.Equal(t, "image/png", client.req.ImageMIME)
	assert.Equal(t, pngHeader, client.req.Image)
	assert.Equal(t, "user-key", client.key.Reveal())
}

func TestVisionExtractor_ErrorClassification(t *testing.T) {
	e := NewVisionExtractor(&fakeLLM{err: apperrors.NewLLMAuthError(errors.New("401"), "fake")})
	_, err := e.Extract(context.Background(), pngHeader, llm.APIKey{})
	assert.ErrorIs(t, err, apperrors.ErrLLMAuth)

	e = NewVisionExtractor(&fakeLLM{err: apperrors.NewLLMProviderError(errors.New("500"), "fake")})
	_, err = e.Extract(context.Background(), pngHeader, llm.APIKey{})
	assert.ErrorIs(t, err, apperrors.ErrExtraction)
}

func TestNewFromConfig(t *testing.T) {
	ex, err := NewFromConfig(config.OCRConfig{Engine: "tesseract"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &TesseractExtractor{}, ex)

	ex, err = NewFromConfig(config.OCRConfig{Engine: "gemini"}, &fakeLLM{})
	require.NoError(t, err)
	assert.IsType(t, &VisionExtractor{}, ex)

	_, err = NewFromConfig(config.OCRConfig{Engine: "paper"}, nil)
	assert.Error(t, err)
}
