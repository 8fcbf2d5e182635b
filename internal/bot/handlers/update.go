package handlers

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// UpdateHandler handles telegram updates and coordinates other handlers
type UpdateHandler struct {
	callbackHandler *CallbackHandler
	commandHandler  *CommandHandler
	textHandler     *TextHandler
	photoHandler    *PhotoHandler
}

// NewUpdateHandler creates a new update handler
func NewUpdateHandler(api BotAPI, deps Dependencies) *UpdateHandler {
	return &UpdateHandler{
		callbackHandler: NewCallbackHandler(api, deps),
		commandHandler:  NewCommandHandler(api, deps),
		textHandler:     NewTextHandler(api, deps),
		photoHandler:    NewPhotoHandler(api, deps),
	}
}

// Handle processes a telegram update
func (h *UpdateHandler) Handle(ctx context.Context, update tgbotapi.Update) error {
	if update.CallbackQuery != nil {
		if update.CallbackQuery.From == nil {
			return nil
		}
		return h.callbackHandler.Handle(ctx, update.CallbackQuery)
	}

	message := update.Message
	if message == nil || message.From == nil || message.Chat == nil {
		return nil
	}

	switch {
	case message.IsCommand():
		return h.commandHandler.Handle(ctx, message)
	case len(message.Photo) > 0:
		return h.photoHandler.Handle(ctx, message)
	case message.Text != "":
		return h.textHandler.Handle(ctx, message)
	}
	return nil
}
