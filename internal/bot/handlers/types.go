package handlers

import (
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/semaphore"

	"github.com/allergymenu/allergy-menu-assistant/internal/bot/conversation"
	"github.com/allergymenu/allergy-menu-assistant/internal/bot/state"
)

// BotAPI is the part of *tgbotapi.BotAPI the handlers use.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Dependencies holds all service dependencies for handlers
type Dependencies struct {
	Conversation *conversation.Service
	States       state.StateManager
	// BotUsername is stripped from group messages that mention the bot.
	BotUsername string
	// Runs bounds how many analyses run at once across all chats.
	Runs *semaphore.Weighted
	// HTTPClient downloads photos from the Telegram file API.
	HTTPClient *http.Client
}

func (d Dependencies) httpClient() *http.Client {
	if d.HTTPClient != nil {
		return d.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}
