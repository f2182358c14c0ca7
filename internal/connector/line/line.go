// Package line provides the LINE Messaging API connector.
//
// The webhook answers 200 as soon as the signature is verified and processes
// events in the background; Shutdown waits for them. Only text messages are
// dispatched, and in group chats only when the bot is mentioned.
package line

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/garyellow/convobot-go/internal/connector"
	"github.com/garyellow/convobot-go/internal/ctxutil"
	"github.com/garyellow/convobot-go/internal/logger"
	"github.com/garyellow/convobot-go/internal/ratelimit"
)

// LINE platform limits.
const (
	maxMessagesPerReply = 5
	maxEventsPerWebhook = 100
	minReplyTokenLength = 10
	loadingSeconds      = 60
)

// Connector parameters.
const (
	ParamChannelSecret    = "channelSecret"
	ParamChannelToken     = "channelToken"
	ParamLoadingAnimation = "loadingAnimation"
)

// ErrorRecorder receives reply failures.
type ErrorRecorder interface {
	RecordHTTPError(errorType, module string)
}

// Provider builds LINE connectors. Channel credentials come from the
// configuration parameters, falling back to the provider defaults.
type Provider struct {
	ChannelSecret string
	ChannelToken  string
	// ReplyRate caps Messaging API calls per second of one connector.
	ReplyRate     float64
	Logger        *logger.Logger
	Metrics       ErrorRecorder
	ClientOptions []messaging_api.MessagingApiAPIOption
}

var _ connector.Provider = (*Provider)(nil)

// Type returns connector.TypeLine.
func (p *Provider) Type() connector.Type { return connector.TypeLine }

// New builds a connector. Missing credentials are a deployment error.
func (p *Provider) New(cfg connector.Configuration, path string) (connector.Connector, error) {
	secret := cfg.Parameter(ParamChannelSecret, p.ChannelSecret)
	token := cfg.Parameter(ParamChannelToken, p.ChannelToken)
	if secret == "" || token == "" {
		return nil, fmt.Errorf("line connector %q: channel secret and token are required", cfg.ConnectorID)
	}

	client, err := messaging_api.NewMessagingApiAPI(token, p.ClientOptions...)
	if err != nil {
		return nil, fmt.Errorf("create messaging API client: %w", err)
	}

	rate := p.ReplyRate
	if rate <= 0 {
		rate = 100
	}
	return &Connector{
		id:          cfg.ConnectorID,
		path:        path,
		secret:      secret,
		client:      client,
		limiter:     ratelimit.New(rate, rate),
		logger:      p.Logger.WithModule("line").WithField("connector_id", cfg.ConnectorID),
		metrics:     p.Metrics,
		showLoading: cfg.Parameter(ParamLoadingAnimation, "false") == "true",
	}, nil
}

// Connector serves one LINE channel.
type Connector struct {
	id          string
	path        string
	secret      string
	client      *messaging_api.MessagingApiAPI
	limiter     *ratelimit.Limiter
	logger      *logger.Logger
	metrics     ErrorRecorder
	showLoading bool
	wg          sync.WaitGroup
}

var _ connector.Shutdowner = (*Connector)(nil)

func (c *Connector) ID() string           { return c.id }
func (c *Connector) Type() connector.Type { return connector.TypeLine }
func (c *Connector) Path() string         { return c.path }

// Register mounts the webhook on POST Path.
func (c *Connector) Register(r gin.IRoutes, d connector.Dispatcher) {
	r.POST(c.path, func(ctx *gin.Context) { c.handle(ctx, d) })
}

func (c *Connector) handle(ctx *gin.Context, d connector.Dispatcher) {
	cb, err := webhook.ParseRequest(c.secret, ctx.Request)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			c.logger.Warn("Invalid webhook signature")
			ctx.Status(http.StatusBadRequest)
		} else {
			c.logger.WithError(err).Error("Failed to parse webhook request")
			ctx.Status(http.StatusInternalServerError)
		}
		return
	}

	// LINE expects the acknowledgement before any processing.
	ctx.Status(http.StatusOK)

	if len(cb.Events) > maxEventsPerWebhook {
		c.logger.WithField("event_count", len(cb.Events)).Warn("Too many events in webhook batch; truncating")
		cb.Events = cb.Events[:maxEventsPerWebhook]
	}
	events := make([]webhook.EventInterface, len(cb.Events))
	copy(events, cb.Events)

	base := ctxutil.WithConnectorID(ctxutil.PreserveTracing(ctx.Request.Context()), c.id)
	c.wg.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.WithField("panic", r).Error("Panic in async event processing")
			}
		}()
		for _, event := range events {
			c.processEvent(base, event, d)
		}
	})
}

func (c *Connector) processEvent(ctx context.Context, event webhook.EventInterface, d connector.Dispatcher) {
	e, ok := event.(webhook.MessageEvent)
	if !ok {
		c.logger.WithField("event_type", fmt.Sprintf("%T", event)).Debug("Unsupported event type")
		return
	}
	text, ok := e.Message.(webhook.TextMessageContent)
	if !ok {
		return
	}
	body, addressed := addressedText(e.Source, text)
	if !addressed {
		return
	}

	log := c.logger
	if e.WebhookEventId != "" {
		ctx = ctxutil.WithRequestID(ctx, e.WebhookEventId)
		log = log.WithRequestID(e.WebhookEventId)
	}
	if e.DeliveryContext != nil && e.DeliveryContext.IsRedelivery {
		log = log.WithField("is_redelivery", true)
	}

	userID := senderID(e.Source)
	if userID == "" {
		userID = chatID(e.Source)
	}

	if c.showLoading && isPersonalChat(e.Source) {
		if _, err := c.client.ShowLoadingAnimation(&messaging_api.ShowLoadingAnimationRequest{
			ChatId:         chatID(e.Source),
			LoadingSeconds: loadingSeconds,
		}); err != nil {
			log.WithError(err).Warn("Failed to show loading animation")
		}
	}

	msgs, err := d.Dispatch(ctx, connector.Event{
		ConnectorID:   c.id,
		ConnectorType: connector.TypeLine,
		UserID:        userID,
		Text:          body,
		ReceivedAt:    time.UnixMilli(e.Timestamp),
	})
	if err != nil {
		// The dispatcher logs and reports its own failures.
		return
	}
	c.reply(ctx, log, e.ReplyToken, connector.PlainMessages(msgs))
}

func (c *Connector) reply(ctx context.Context, log *logger.Logger, token string, msgs []connector.Message) {
	if len(msgs) == 0 {
		return
	}
	if len(token) < minReplyTokenLength {
		log.WithField("token_length", len(token)).Debug("Invalid reply token format")
		return
	}
	if len(msgs) > maxMessagesPerReply {
		log.WithField("message_count", len(msgs)).Warn("Message count exceeds limit; truncating")
		msgs = msgs[:maxMessagesPerReply]
	}

	out := make([]messaging_api.MessageInterface, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messaging_api.TextMessage{Text: m.Text})
	}

	if err := c.limiter.Wait(ctx); err != nil {
		log.WithError(err).Warn("Reply dropped while waiting for rate limiter")
		return
	}
	if _, err := c.client.ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: token,
		Messages:   out,
	}); err != nil {
		errorType := "reply"
		if strings.Contains(err.Error(), "Invalid reply token") {
			errorType = "invalid_reply_token"
			log.WithError(err).Debug("Reply token already used or invalid")
		} else {
			log.WithError(err).WithField("reply_token", token[:8]+"...").Error("Failed to send reply")
		}
		if c.metrics != nil {
			c.metrics.RecordHTTPError(errorType, "line")
		}
	}
}

// Shutdown waits for in-flight events or until ctx is done.
func (c *Connector) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.wg.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
