// Package line is the LINE adapter. LINE delivers events to a webhook; text
// goes through the same conversation flow as Telegram and photo results are
// pushed once the analysis finishes.
package line

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
	"golang.org/x/sync/semaphore"

	"github.com/allergymenu/allergy-menu-assistant/internal/bot/conversation"
	"github.com/allergymenu/allergy-menu-assistant/internal/bot/messages"
	"github.com/allergymenu/allergy-menu-assistant/internal/config"
	"github.com/allergymenu/allergy-menu-assistant/internal/domain"
	apperrors "github.com/allergymenu/allergy-menu-assistant/internal/errors"
	"github.com/allergymenu/allergy-menu-assistant/internal/logger"
)

// LINE accepts at most five messages per reply or push.
const maxMessagesPerCall = 5

const maxImageBytes = 20 << 20

// MessagingClient is the part of the messaging API the adapter uses.
type MessagingClient interface {
	ReplyMessage(req *messaging_api.ReplyMessageRequest) (*messaging_api.ReplyMessageResponse, error)
	PushMessage(req *messaging_api.PushMessageRequest, xLineRetryKey string) (*messaging_api.PushMessageResponse, error)
}

// ContentClient downloads message content such as photos.
type ContentClient interface {
	GetMessageContent(messageID string) (*http.Response, error)
}

type Handler struct {
	channelSecret string
	bot           MessagingClient
	blob          ContentClient
	conv          *conversation.Service
	runs          *semaphore.Weighted
	wg            sync.WaitGroup
}

// NewHandler builds the adapter with real LINE API clients.
func NewHandler(cfg config.LineConfig, conv *conversation.Service, runs *semaphore.Weighted) (*Handler, error) {
	bot, err := messaging_api.NewMessagingApiAPI(cfg.ChannelAccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create LINE messaging client: %w", err)
	}
	blob, err := messaging_api.NewMessagingApiBlobAPI(cfg.ChannelAccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create LINE content client: %w", err)
	}
	return NewHandlerWithClients(cfg.ChannelSecret, bot, blob, conv, runs), nil
}

func NewHandlerWithClients(channelSecret string, bot MessagingClient, blob ContentClient, conv *conversation.Service, runs *semaphore.Weighted) *Handler {
	return &Handler{
		channelSecret: channelSecret,
		bot:           bot,
		blob:          blob,
		conv:          conv,
		runs:          runs,
	}
}

// ServeHTTP verifies the signature and dispatches every event in the body.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cb, err := webhook.ParseRequest(h.channelSecret, r)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			logger.Warn("Rejected LINE webhook with invalid signature")
			http.Error(w, "invalid signature", http.StatusBadRequest)
			return
		}
		logger.Error("Failed to parse LINE webhook", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	// Work outlives the request; LINE expects a fast 200.
	ctx := context.WithoutCancel(r.Context())
	for _, event := range cb.Events {
		h.handleEvent(ctx, event)
	}
	w.WriteHeader(http.StatusOK)
}

// Wait blocks until background analyses have finished.
func (h *Handler) Wait() {
	h.wg.Wait()
}

func (h *Handler) handleEvent(ctx context.Context, event webhook.EventInterface) {
	switch e := event.(type) {
	case webhook.FollowEvent:
		id, ok := identityOf(e.Source)
		if !ok {
			return
		}
		reply, err := h.conv.Start(ctx, id)
		if err != nil {
			logger.Error("Failed to reset LINE user", "error", err)
			reply = conversation.ErrorReply(err)
		}
		h.reply(e.ReplyToken, reply.Text)

	case webhook.UnfollowEvent:
		id, ok := identityOf(e.Source)
		if !ok {
			return
		}
		if err := h.conv.Forget(ctx, id); err != nil {
			logger.Error("Failed to delete unfollowed LINE user", "error", err)
		}

	case webhook.MessageEvent:
		id, ok := identityOf(e.Source)
		if !ok {
			return
		}
		switch m := e.Message.(type) {
		case webhook.TextMessageContent:
			h.handleText(ctx, id, e.ReplyToken, m.Text)
		case webhook.ImageMessageContent:
			h.handleImage(ctx, id, e.ReplyToken, m.Id)
		default:
			h.reply(e.ReplyToken, messages.SendPhotoHint)
		}

	default:
		logger.Debug("Ignoring LINE event", "type", fmt.Sprintf("%T", event))
	}
}

func (h *Handler) handleText(ctx context.Context, id conversation.Identity, replyToken, text string) {
	var (
		reply conversation.Reply
		err   error
	)
	if cmd, args, ok := conversation.ParseCommand(text); ok {
		reply, err = h.conv.HandleCommand(ctx, id, cmd, args)
	} else {
		reply, err = h.conv.HandleText(ctx, id, text)
	}
	if err != nil {
		logger.Error("Failed to handle LINE message", "error", err)
		reply = conversation.ErrorReply(err)
	}
	h.reply(replyToken, reply.Text)
}

func (h *Handler) handleImage(ctx context.Context, id conversation.Identity, replyToken, messageID string) {
	run, reply, err := h.conv.PrepareAnalysis(ctx, id)
	if err != nil {
		logger.Error("Failed to prepare LINE analysis", "error", err)
		reply = conversation.ErrorReply(err)
	}
	h.reply(replyToken, reply.Text)
	if run == nil {
		return
	}

	// The reply token is spent, so the result is pushed.
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		image, err := h.download(messageID)
		if err != nil {
			logger.Error("Failed to download LINE image", "message_id", messageID, "error", err)
			h.push(id.UserID, messages.ImageDownloadError)
			return
		}

		if h.runs != nil {
			if err := h.runs.Acquire(ctx, 1); err != nil {
				return
			}
			defer h.runs.Release(1)
		}
		result := h.conv.Analyze(ctx, id, run, image)
		h.push(id.UserID, result.Text)
	}()
}

func (h *Handler) download(messageID string) ([]byte, error) {
	resp, err := h.blob.GetMessageContent(messageID)
	if err != nil {
		return nil, apperrors.NewExternalAPIError(err, "line content")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewExternalAPIError(fmt.Errorf("unexpected status %d fetching content", resp.StatusCode), "line content")
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
}

func (h *Handler) reply(replyToken, text string) {
	msgs := textMessages(text)
	if len(msgs) == 0 {
		return
	}
	if len(msgs) > maxMessagesPerCall {
		msgs = msgs[:maxMessagesPerCall]
	}
	_, err := h.bot.ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   msgs,
	})
	if err != nil {
		logger.Error("Failed to reply on LINE", "error", err)
	}
}

func (h *Handler) push(to, text string) {
	msgs := textMessages(text)
	for start := 0; start < len(msgs); start += maxMessagesPerCall {
		end := min(start+maxMessagesPerCall, len(msgs))
		_, err := h.bot.PushMessage(&messaging_api.PushMessageRequest{
			To:       to,
			Messages: msgs[start:end],
		}, "")
		if err != nil {
			logger.Error("Failed to push LINE message", "error", err)
			return
		}
	}
}

func textMessages(text string) []messaging_api.MessageInterface {
	var out []messaging_api.MessageInterface
	for _, chunk := range messages.Split(text, messages.LineMaxLength) {
		out = append(out, messaging_api.TextMessage{Text: chunk})
	}
	return out
}

func identityOf(source webhook.SourceInterface) (conversation.Identity, bool) {
	var userID string
	switch s := source.(type) {
	case webhook.UserSource:
		userID = s.UserId
	case webhook.GroupSource:
		userID = s.UserId
	case webhook.RoomSource:
		userID = s.UserId
	}
	if userID == "" {
		return conversation.Identity{}, false
	}
	return conversation.Identity{Platform: domain.PlatformLine, UserID: userID}, true
}
