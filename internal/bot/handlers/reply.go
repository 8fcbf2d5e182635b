package handlers

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/allergymenu/allergy-menu-assistant/internal/bot/conversation"
	"github.com/allergymenu/allergy-menu-assistant/internal/bot/keyboards"
	"github.com/allergymenu/allergy-menu-assistant/internal/bot/messages"
	"github.com/allergymenu/allergy-menu-assistant/internal/bot/state"
	"github.com/allergymenu/allergy-menu-assistant/internal/domain"
	"github.com/allergymenu/allergy-menu-assistant/internal/logger"
)

// sendText sends text split under the Telegram length limit. replyTo and
// markup apply to the first chunk only. It returns the first sent message.
func sendText(api BotAPI, chatID int64, replyTo int, text string, markup interface{}) (tgbotapi.Message, error) {
	var first tgbotapi.Message
	for i, chunk := range messages.Split(text, messages.TelegramMaxLength) {
		msg := tgbotapi.NewMessage(chatID, chunk)
		if i == 0 {
			msg.ReplyToMessageID = replyTo
			if markup != nil {
				msg.ReplyMarkup = markup
			}
		}
		sent, err := api.Send(msg)
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = sent
		}
	}
	return first, nil
}

// deleteMessage removes a message, logging failures. Bots may not be allowed
// to delete in every chat.
func deleteMessage(api BotAPI, chatID int64, messageID int) {
	if _, err := api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		logger.Warn("Failed to delete message", "chat_id", chatID, "message_id", messageID, "error", err)
	}
}

func identityOf(user *tgbotapi.User) conversation.Identity {
	return conversation.Identity{
		Platform: domain.PlatformTelegram,
		UserID:   strconv.FormatInt(user.ID, 10),
		Name:     user.FirstName,
	}
}

// responder sends conversation replies and keeps the prompt bookkeeping that
// only Telegram needs.
type responder struct {
	api  BotAPI
	deps Dependencies
}

// respond sends reply to the chat. trigger is the user's message.
func (r responder) respond(ctx context.Context, id conversation.Identity, trigger *tgbotapi.Message, reply conversation.Reply, markup interface{}) error {
	chatID := trigger.Chat.ID
	key := state.Key(id.Platform, id.UserID)
	current := r.deps.States.GetUserState(ctx, key)

	if markup == nil && current != state.None {
		markup = keyboards.PromptMenu()
	}

	if reply.DeleteTrigger {
		deleteMessage(r.api, chatID, trigger.MessageID)
		if prompt, ok := r.deps.States.GetTempData(ctx, key, state.PromptMessageID); ok {
			if promptID, err := strconv.Atoi(prompt); err == nil {
				deleteMessage(r.api, chatID, promptID)
			}
		}
		r.deps.States.ClearTempData(ctx, key)
	}

	replyTo := trigger.MessageID
	if reply.DeleteTrigger {
		replyTo = 0
	}
	sent, err := sendText(r.api, chatID, replyTo, reply.Text, markup)
	if err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}

	if current == state.WaitingForAPIKey {
		r.deps.States.SetTempData(ctx, key, state.PromptMessageID, strconv.Itoa(sent.MessageID))
	}
	return nil
}

// respondError logs err and tells the user what went wrong.
func (r responder) respondError(chatID int64, replyTo int, err error) error {
	logger.Error("Failed to handle message", "chat_id", chatID, "error", err)
	_, sendErr := sendText(r.api, chatID, replyTo, conversation.ErrorReply(err).Text, nil)
	return sendErr
}
