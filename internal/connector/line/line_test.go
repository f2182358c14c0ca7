package line

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyellow/convobot-go/internal/connector"
	"github.com/garyellow/convobot-go/internal/logger"
)

const testSecret = "test_channel_secret"

type replyCapture struct {
	mu      sync.Mutex
	replies []capturedReply
}

type capturedReply struct {
	ReplyToken string `json:"replyToken"`
	Messages   []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"messages"`
}

func (rc *replyCapture) all() []capturedReply {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return append([]capturedReply(nil), rc.replies...)
}

type fixture struct {
	engine  *gin.Engine
	conn    *Connector
	capture *replyCapture
	events  chan connector.Event
}

func newFixture(t *testing.T, answer string) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	capture := &replyCapture{}
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v2/bot/message/reply" {
			var body capturedReply
			_ = json.NewDecoder(r.Body).Decode(&body)
			capture.mu.Lock()
			capture.replies = append(capture.replies, body)
			capture.mu.Unlock()
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{}`)
	}))
	t.Cleanup(api.Close)

	p := &Provider{
		Logger:        logger.NewWithWriter("error", io.Discard),
		ClientOptions: []messaging_api.MessagingApiAPIOption{messaging_api.WithEndpoint(api.URL)},
	}
	conn, err := p.New(connector.Configuration{
		ConnectorID: "support-line",
		Type:        connector.TypeLine,
		Parameters:  map[string]string{ParamChannelSecret: testSecret, ParamChannelToken: "token"},
	}, "/io/support/support-line")
	require.NoError(t, err)

	events := make(chan connector.Event, 10)
	r := gin.New()
	conn.Register(r, connector.DispatcherFunc(func(_ context.Context, e connector.Event) ([]connector.Message, error) {
		events <- e
		return []connector.Message{{Text: answer}}, nil
	}))
	return &fixture{engine: r, conn: conn.(*Connector), capture: capture, events: events}
}

func (f *fixture) post(t *testing.T, body string, signature string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/io/support/support-line", bytes.NewBufferString(body))
	req.Header.Set("X-Line-Signature", signature)
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.conn.Shutdown(ctx))
	return w.Code
}

func sign(body string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func messageEvent(source, message string) string {
	return `{"destination":"Ubot","events":[{"type":"message","mode":"active","timestamp":1700000000000,` +
		`"source":` + source + `,"webhookEventId":"01HEVENT","deliveryContext":{"isRedelivery":false},` +
		`"replyToken":"reply-token-123456","message":` + message + `}]}`
}

func TestProvider_RequiresCredentials(t *testing.T) {
	p := &Provider{Logger: logger.NewWithWriter("error", io.Discard)}
	_, err := p.New(connector.Configuration{ConnectorID: "x", Type: connector.TypeLine}, "/io/x")
	assert.Error(t, err)

	p.ChannelSecret, p.ChannelToken = "s", "t"
	conn, err := p.New(connector.Configuration{ConnectorID: "x", Type: connector.TypeLine}, "/io/x")
	require.NoError(t, err)
	assert.Equal(t, connector.TypeLine, conn.Type())
	assert.Equal(t, "/io/x", conn.Path())
}

func TestConnector_PersonalTextMessage(t *testing.T) {
	f := newFixture(t, "<p>Hello!</p>")
	body := messageEvent(`{"type":"user","userId":"U1"}`, `{"type":"text","id":"1","quoteToken":"q","text":"hi there"}`)

	assert.Equal(t, http.StatusOK, f.post(t, body, sign(body)))

	require.Len(t, f.events, 1)
	e := <-f.events
	assert.Equal(t, "U1", e.UserID)
	assert.Equal(t, "hi there", e.Text)
	assert.Equal(t, connector.TypeLine, e.ConnectorType)
	assert.Equal(t, "support-line", e.ConnectorID)

	replies := f.capture.all()
	require.Len(t, replies, 1)
	assert.Equal(t, "reply-token-123456", replies[0].ReplyToken)
	require.Len(t, replies[0].Messages, 1)
	assert.Equal(t, "text", replies[0].Messages[0].Type)
	assert.Equal(t, "Hello!", replies[0].Messages[0].Text)
}

func TestConnector_InvalidSignature(t *testing.T) {
	f := newFixture(t, "Hello!")
	body := messageEvent(`{"type":"user","userId":"U1"}`, `{"type":"text","id":"1","quoteToken":"q","text":"hi"}`)

	assert.Equal(t, http.StatusBadRequest, f.post(t, body, "bogus"))
	assert.Empty(t, f.events)
	assert.Empty(t, f.capture.all())
}

func TestConnector_GroupMessages(t *testing.T) {
	group := `{"type":"group","groupId":"G1","userId":"U2"}`

	t.Run("without mention is ignored", func(t *testing.T) {
		f := newFixture(t, "Hello!")
		body := messageEvent(group, `{"type":"text","id":"1","quoteToken":"q","text":"hi all"}`)
		assert.Equal(t, http.StatusOK, f.post(t, body, sign(body)))
		assert.Empty(t, f.events)
	})

	t.Run("with mention is dispatched without it", func(t *testing.T) {
		f := newFixture(t, "Hello!")
		msg := `{"type":"text","id":"1","quoteToken":"q","text":"@Bot opening hours?",` +
			`"mention":{"mentionees":[{"index":0,"length":4,"type":"user","userId":"Ubot","isSelf":true}]}}`
		body := messageEvent(group, msg)
		assert.Equal(t, http.StatusOK, f.post(t, body, sign(body)))

		require.Len(t, f.events, 1)
		e := <-f.events
		assert.Equal(t, "U2", e.UserID)
		assert.Equal(t, "opening hours?", e.Text)
	})
}

func TestConnector_NonTextMessageIgnored(t *testing.T) {
	f := newFixture(t, "Hello!")
	body := messageEvent(`{"type":"user","userId":"U1"}`, `{"type":"sticker","id":"1","quoteToken":"q","packageId":"1","stickerId":"1","stickerResourceType":"STATIC"}`)
	assert.Equal(t, http.StatusOK, f.post(t, body, sign(body)))
	assert.Empty(t, f.events)
}

func TestStripSpans(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "hello world", stripSpans("@Bot hello @Bot world", []span{{0, 4}, {11, 4}}))
	assert.Equal(t, "你好", stripSpans("@機器人 你好", []span{{0, 4}}))
	assert.Equal(t, "keep", stripSpans("keep", []span{{10, 4}}))
	assert.Equal(t, "as is", stripSpans("as is", nil))
}

func TestSourceIDs(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "G1", chatID(webhook.GroupSource{GroupId: "G1", UserId: "U1"}))
	assert.Equal(t, "U1", senderID(webhook.GroupSource{GroupId: "G1", UserId: "U1"}))
	assert.Equal(t, "R1", chatID(webhook.RoomSource{RoomId: "R1"}))
	assert.True(t, isPersonalChat(webhook.UserSource{UserId: "U1"}))
	assert.False(t, isPersonalChat(webhook.RoomSource{RoomId: "R1"}))
}
