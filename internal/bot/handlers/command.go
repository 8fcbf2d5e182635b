package handlers

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/allergymenu/allergy-menu-assistant/internal/bot/keyboards"
	"github.com/allergymenu/allergy-menu-assistant/internal/logger"
)

// CommandHandler handles bot commands
type CommandHandler struct {
	responder
}

// NewCommandHandler creates a new command handler
func NewCommandHandler(api BotAPI, deps Dependencies) *CommandHandler {
	return &CommandHandler{responder{api: api, deps: deps}}
}

// Handle processes a command message
func (h *CommandHandler) Handle(ctx context.Context, message *tgbotapi.Message) error {
	id := identityOf(message.From)
	command := message.Command()
	logger.Info("Handling command", "command", command, "telegram_id", message.From.ID)

	reply, err := h.deps.Conversation.HandleCommand(ctx, id, command, message.CommandArguments())
	if err != nil {
		return h.respondError(message.Chat.ID, message.MessageID, err)
	}

	var markup interface{}
	switch command {
	case "start", "help":
		markup = keyboards.MainMenu()
	}
	return h.respond(ctx, id, message, reply, markup)
}
