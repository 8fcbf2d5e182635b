package handlers

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/allergymenu/allergy-menu-assistant/internal/bot/keyboards"
	"github.com/allergymenu/allergy-menu-assistant/internal/logger"
)

// CallbackHandler handles callback query messages
type CallbackHandler struct {
	responder
}

// NewCallbackHandler creates a new callback handler
func NewCallbackHandler(api BotAPI, deps Dependencies) *CallbackHandler {
	return &CallbackHandler{responder{api: api, deps: deps}}
}

// Handle processes a callback query. Buttons behave like the commands of the
// same name.
func (h *CallbackHandler) Handle(ctx context.Context, query *tgbotapi.CallbackQuery) error {
	// Answer the callback query first
	callback := tgbotapi.NewCallback(query.ID, "")
	if _, err := h.api.Request(callback); err != nil {
		logger.Warn("Failed to answer callback query", "error", err)
	}
	if query.Message == nil {
		return nil
	}

	switch query.Data {
	case keyboards.SetAllergy, keyboards.MyAllergies, keyboards.SetAPIKey,
		keyboards.Help, keyboards.Cancel, keyboards.Clear:
	default:
		logger.Warn("Unknown callback data", "data", query.Data)
		return nil
	}

	id := identityOf(query.From)
	reply, err := h.deps.Conversation.HandleCommand(ctx, id, query.Data, "")
	if err != nil {
		return h.respondError(query.Message.Chat.ID, 0, err)
	}

	var markup interface{}
	if query.Data == keyboards.Help {
		markup = keyboards.MainMenu()
	}
	// The button's message belongs to the bot; answer in the chat without
	// quoting it.
	trigger := &tgbotapi.Message{Chat: query.Message.Chat}
	return h.respond(ctx, id, trigger, reply, markup)
}
