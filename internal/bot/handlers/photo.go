package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/allergymenu/allergy-menu-assistant/internal/bot/messages"
	apperrors "github.com/allergymenu/allergy-menu-assistant/internal/errors"
	"github.com/allergymenu/allergy-menu-assistant/internal/logger"
)

// maxPhotoBytes is larger than any photo Telegram serves to bots.
const maxPhotoBytes = 20 << 20

// PhotoHandler handles photo messages
type PhotoHandler struct {
	responder
}

// NewPhotoHandler creates a new photo handler
func NewPhotoHandler(api BotAPI, deps Dependencies) *PhotoHandler {
	return &PhotoHandler{responder{api: api, deps: deps}}
}

// Handle processes a photo message
func (h *PhotoHandler) Handle(ctx context.Context, message *tgbotapi.Message) error {
	chatID := message.Chat.ID
	id := identityOf(message.From)

	run, reply, err := h.deps.Conversation.PrepareAnalysis(ctx, id)
	if err != nil {
		return h.respondError(chatID, message.MessageID, err)
	}
	if _, err := sendText(h.api, chatID, message.MessageID, reply.Text, nil); err != nil {
		return fmt.Errorf("failed to send acknowledgement: %w", err)
	}
	if run == nil {
		return nil
	}

	// Get the largest photo
	photo := message.Photo[len(message.Photo)-1]
	image, err := h.download(ctx, photo.FileID)
	if err != nil {
		logger.Error("Failed to download photo", "telegram_id", message.From.ID, "error", err)
		_, sendErr := sendText(h.api, chatID, message.MessageID, messages.ImageDownloadError, nil)
		return sendErr
	}

	if h.deps.Runs != nil {
		if err := h.deps.Runs.Acquire(ctx, 1); err != nil {
			return err
		}
		defer h.deps.Runs.Release(1)
	}

	if _, err := h.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		logger.Debug("Failed to send chat action", "error", err)
	}

	result := h.deps.Conversation.Analyze(ctx, id, run, image)
	if _, err := sendText(h.api, chatID, message.MessageID, result.Text, nil); err != nil {
		return fmt.Errorf("failed to send analysis: %w", err)
	}
	return nil
}

func (h *PhotoHandler) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := h.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, apperrors.NewExternalAPIError(fmt.Errorf("failed to get file: %w", err), "telegram file")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.deps.httpClient().Do(req)
	if err != nil {
		return nil, apperrors.NewExternalAPIError(err, "telegram file")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewExternalAPIError(fmt.Errorf("unexpected status %d downloading photo", resp.StatusCode), "telegram file")
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes))
}
