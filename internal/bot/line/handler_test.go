package line

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"github.com/allergymenu/allergy-menu-assistant/internal/bot/conversation"
	"github.com/allergymenu/allergy-menu-assistant/internal/bot/messages"
	"github.com/allergymenu/allergy-menu-assistant/internal/bot/state"
	"github.com/allergymenu/allergy-menu-assistant/internal/domain"
	apperrors "github.com/allergymenu/allergy-menu-assistant/internal/errors"
)

const secret = "channel-secret"

type fakeBot struct {
	mu      sync.Mutex
	replies map[string][]string
	pushes  map[string][]string
}

func newFakeBot() *fakeBot {
	return &fakeBot{replies: make(map[string][]string), pushes: make(map[string][]string)}
}

func texts(msgs []messaging_api.MessageInterface) []string {
	var out []string
	for _, m := range msgs {
		if tm, ok := m.(messaging_api.TextMessage); ok {
			out = append(out, tm.Text)
		}
	}
	return out
}

func (f *fakeBot) ReplyMessage(req *messaging_api.ReplyMessageRequest) (*messaging_api.ReplyMessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[req.ReplyToken] = append(f.replies[req.ReplyToken], texts(req.Messages)...)
	return &messaging_api.ReplyMessageResponse{}, nil
}

func (f *fakeBot) PushMessage(req *messaging_api.PushMessageRequest, _ string) (*messaging_api.PushMessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes[req.To] = append(f.pushes[req.To], texts(req.Messages)...)
	return &messaging_api.PushMessageResponse{}, nil
}

type fakeBlob struct {
	content map[string][]byte
}

func (f *fakeBlob) GetMessageContent(id string) (*http.Response, error) {
	body, ok := f.content[id]
	if !ok {
		return &http.Response{StatusCode: http.StatusNotFound, Body: io.NopCloser(strings.NewReader(""))}, nil
	}
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(body))}, nil
}

type memCreds struct {
	mu        sync.Mutex
	allergies []string
	key       string
	resets    int
	deleted   []string
}

func (m *memCreds) ResolveUser(context.Context, string, string) (uint, error) { return 3, nil }
func (m *memCreds) GetAllergies(context.Context, uint) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allergies, nil
}
func (m *memCreds) SetAllergies(_ context.Context, _ uint, a []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allergies = a
	return a, nil
}
func (m *memCreds) SetAPIKey(_ context.Context, _ uint, k string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.key = k
	return nil
}
func (m *memCreds) ClearAPIKey(context.Context, uint) error { return nil }
func (m *memCreds) HasAPIKey(context.Context, uint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.key != "", nil
}
func (m *memCreds) DeleteUser(_ context.Context, platform, platformUserID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, platform+":"+platformUserID)
	m.key, m.allergies = "", nil
	return nil
}
func (m *memCreds) ResetUser(context.Context, uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
	m.key, m.allergies = "", nil
	return nil
}

type stubAnalyzer struct {
	mu    sync.Mutex
	image []byte
}

func (s *stubAnalyzer) Analyze(_ context.Context, _ uint, image []byte) (*domain.AnalysisResult, error) {
	s.mu.Lock()
	s.image = image
	s.mu.Unlock()
	return &domain.AnalysisResult{
		Allergies: []string{"shrimp"},
		Verdicts: []domain.Verdict{
			{DishName: "蝦仁炒飯", Classification: domain.Unsafe, MatchedAllergens: []string{"shrimp"}},
			{DishName: "炒青菜", Classification: domain.Safe, MatchedAllergens: []string{}},
		},
	}, nil
}

type fixture struct {
	bot      *fakeBot
	blob     *fakeBlob
	creds    *memCreds
	analyzer *stubAnalyzer
	handler  *Handler
}

func newFixture() *fixture {
	f := &fixture{
		bot:      newFakeBot(),
		blob:     &fakeBlob{content: map[string][]byte{"img-1": []byte("jpeg")}},
		creds:    &memCreds{},
		analyzer: &stubAnalyzer{},
	}
	conv := conversation.New(f.creds, f.analyzer, state.NewManager())
	f.handler = NewHandlerWithClients(secret, f.bot, f.blob, conv, semaphore.NewWeighted(2))
	return f
}

func sign(body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func webhookBody(events ...string) string {
	return `{"destination":"Ubot","events":[` + strings.Join(events, ",") + `]}`
}

func textEvent(token, text string) string {
	return `{"type":"message","mode":"active","timestamp":1700000000000,` +
		`"source":{"type":"user","userId":"U1"},"webhookEventId":"ev-` + token + `",` +
		`"deliveryContext":{"isRedelivery":false},"replyToken":"` + token + `",` +
		`"message":{"type":"text","id":"m-` + token + `","quoteToken":"q","text":"` + text + `"}}`
}

func imageEvent(token, id string) string {
	return `{"type":"message","mode":"active","timestamp":1700000000000,` +
		`"source":{"type":"user","userId":"U1"},"webhookEventId":"ev-` + token + `",` +
		`"deliveryContext":{"isRedelivery":false},"replyToken":"` + token + `",` +
		`"message":{"type":"image","id":"` + id + `","quoteToken":"q",` +
		`"contentProvider":{"type":"line"}}}`
}

func followEvent(token string) string {
	return `{"type":"follow","mode":"active","timestamp":1700000000000,` +
		`"source":{"type":"user","userId":"U1"},"webhookEventId":"ev-` + token + `",` +
		`"deliveryContext":{"isRedelivery":false},"replyToken":"` + token + `",` +
		`"follow":{"isUnblocked":false}}`
}

func unfollowEvent() string {
	return `{"type":"unfollow","mode":"active","timestamp":1700000000000,` +
		`"source":{"type":"user","userId":"U1"},"webhookEventId":"ev-unfollow",` +
		`"deliveryContext":{"isRedelivery":false}}`
}

func (f *fixture) post(t *testing.T, body, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/line/webhook", strings.NewReader(body))
	req.Header.Set("X-Line-Signature", signature)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	f.handler.Wait()
	return rec
}

func TestWebhook_InvalidSignature(t *testing.T) {
	f := newFixture()

	rec := f.post(t, webhookBody(textEvent("rt", "/help")), "bogus")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.bot.replies)
}

func TestWebhook_FollowResetsAndWelcomes(t *testing.T) {
	f := newFixture()
	f.creds.key = "old"

	body := webhookBody(followEvent("rt-follow"))
	rec := f.post(t, body, sign(body))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.creds.resets)
	require.Len(t, f.bot.replies["rt-follow"], 1)
	assert.True(t, strings.HasPrefix(f.bot.replies["rt-follow"][0], "Hello!"))
}

func TestWebhook_UnfollowDeletesUser(t *testing.T) {
	f := newFixture()
	f.creds.key = "k"
	f.creds.allergies = []string{"shrimp"}

	body := webhookBody(unfollowEvent())
	rec := f.post(t, body, sign(body))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"line:U1"}, f.creds.deleted)
	assert.Empty(t, f.creds.key)
	assert.Empty(t, f.bot.replies)
	assert.Empty(t, f.bot.pushes)
}

func TestDownload_ClassifiesFailures(t *testing.T) {
	f := newFixture()

	image, err := f.handler.download("img-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), image)

	_, err = f.handler.download("missing")
	assert.ErrorIs(t, err, apperrors.ErrExternalAPI)
	assert.Contains(t, err.Error(), "404")
}

func TestWebhook_TextCommandsAndState(t *testing.T) {
	f := newFixture()

	body := webhookBody(textEvent("rt1", "/setallergy"))
	require.Equal(t, http.StatusOK, f.post(t, body, sign(body)).Code)
	assert.Equal(t, []string{messages.AllergyPrompt(nil)}, f.bot.replies["rt1"])

	body = webhookBody(textEvent("rt2", "蝦, 花生"))
	require.Equal(t, http.StatusOK, f.post(t, body, sign(body)).Code)
	assert.Equal(t, []string{"蝦", "花生"}, f.creds.allergies)
	assert.Equal(t, []string{messages.AllergiesSaved([]string{"蝦", "花生"})}, f.bot.replies["rt2"])
}

func TestWebhook_SetAPIKeyIsNeverEchoed(t *testing.T) {
	f := newFixture()

	body := webhookBody(textEvent("rt1", "/setapikey AIza-line-secret"))
	require.Equal(t, http.StatusOK, f.post(t, body, sign(body)).Code)

	assert.Equal(t, "AIza-line-secret", f.creds.key)
	assert.Equal(t, []string{messages.APIKeySavedNoDel}, f.bot.replies["rt1"])
}

func TestWebhook_ImageWithoutKey(t *testing.T) {
	f := newFixture()

	body := webhookBody(imageEvent("rt-img", "img-1"))
	require.Equal(t, http.StatusOK, f.post(t, body, sign(body)).Code)

	assert.Equal(t, []string{messages.APIKeyRequired}, f.bot.replies["rt-img"])
	assert.Empty(t, f.bot.pushes)
	assert.Nil(t, f.analyzer.image)
}

func TestWebhook_ImageIsAnalysedAndPushed(t *testing.T) {
	f := newFixture()
	f.creds.key = "k"
	f.creds.allergies = []string{"shrimp"}

	body := webhookBody(imageEvent("rt-img", "img-1"))
	require.Equal(t, http.StatusOK, f.post(t, body, sign(body)).Code)

	assert.Equal(t, []string{messages.Acknowledge([]string{"shrimp"})}, f.bot.replies["rt-img"])
	require.Len(t, f.bot.pushes["U1"], 1)
	assert.Contains(t, f.bot.pushes["U1"][0], "蝦仁炒飯: shrimp")
	assert.Equal(t, []byte("jpeg"), f.analyzer.image)
}

func TestWebhook_ImageDownloadFailurePushesError(t *testing.T) {
	f := newFixture()
	f.creds.key = "k"

	body := webhookBody(imageEvent("rt-img", "missing"))
	require.Equal(t, http.StatusOK, f.post(t, body, sign(body)).Code)

	assert.Equal(t, []string{messages.ImageDownloadError}, f.bot.pushes["U1"])
	assert.Nil(t, f.analyzer.image)
}

func TestTextMessagesSplitLongText(t *testing.T) {
	long := strings.Repeat("a", messages.LineMaxLength+10)
	assert.Len(t, textMessages(long), 2)
}
