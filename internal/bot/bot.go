package bot

import (
	"context"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/allergymenu/allergy-menu-assistant/internal/bot/handlers"
	"github.com/allergymenu/allergy-menu-assistant/internal/logger"
)

// Bot is the Telegram adapter. Updates arrive by long polling and each one is
// handled in its own goroutine so a running analysis never stalls the loop.
type Bot struct {
	api     *tgbotapi.BotAPI
	handler *handlers.UpdateHandler
	wg      sync.WaitGroup
}

func NewBot(token string, deps handlers.Dependencies) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	if deps.BotUsername == "" {
		deps.BotUsername = api.Self.UserName
	}

	logger.Info("Bot authorized", "account", api.Self.UserName)
	return &Bot{
		api:     api,
		handler: handlers.NewUpdateHandler(api, deps),
	}, nil
}

// Start polls for updates until ctx is cancelled, then waits for in-flight
// updates to finish.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	logger.Info("Bot is now listening for updates")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Bot is shutting down")
			b.api.StopReceivingUpdates()
			b.wg.Wait()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				b.wg.Wait()
				return nil
			}
			b.wg.Add(1)
			go func(update tgbotapi.Update) {
				defer b.wg.Done()
				b.handle(ctx, update)
			}(update)
		}
	}
}

func (b *Bot) handle(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic while handling update", "update_id", update.UpdateID, "panic", r)
		}
	}()

	if update.Message != nil && update.Message.From != nil {
		logger.Debug("Received message", "telegram_id", update.Message.From.ID, "has_photo", len(update.Message.Photo) > 0)
	}
	if err := b.handler.Handle(ctx, update); err != nil {
		logger.Error("Error handling update", "update_id", update.UpdateID, "error", err)
	}
}
