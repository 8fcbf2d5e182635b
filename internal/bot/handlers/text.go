package handlers

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TextHandler handles text messages
type TextHandler struct {
	responder
}

// NewTextHandler creates a new text handler
func NewTextHandler(api BotAPI, deps Dependencies) *TextHandler {
	return &TextHandler{responder{api: api, deps: deps}}
}

// Handle processes a text message
func (h *TextHandler) Handle(ctx context.Context, message *tgbotapi.Message) error {
	text := message.Text
	if message.Chat.IsGroup() || message.Chat.IsSuperGroup() {
		text = stripMention(text, h.deps.BotUsername)
		if strings.TrimSpace(text) == "" {
			return nil
		}
	}

	id := identityOf(message.From)
	reply, err := h.deps.Conversation.HandleText(ctx, id, text)
	if err != nil {
		return h.respondError(message.Chat.ID, message.MessageID, err)
	}
	return h.respond(ctx, id, message, reply, nil)
}

// stripMention removes "@bot" mentions so group messages read like private ones.
func stripMention(text, username string) string {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return text
	}
	text = strings.ReplaceAll(text, "@"+username, "")
	return strings.TrimSpace(text)
}
