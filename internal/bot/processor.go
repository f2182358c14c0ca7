// Package bot is the engine behind every connector: it turns an inbound
// event into the answers of one turn.
package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyellow/convobot-go/internal/config"
	"github.com/garyellow/convobot-go/internal/connector"
	"github.com/garyellow/convobot-go/internal/ctxutil"
	"github.com/garyellow/convobot-go/internal/i18n"
	"github.com/garyellow/convobot-go/internal/logger"
	"github.com/garyellow/convobot-go/internal/nlp"
	"github.com/garyellow/convobot-go/internal/ratelimit"
	"github.com/garyellow/convobot-go/internal/script"
	"github.com/garyellow/convobot-go/internal/sentry"
	"github.com/garyellow/convobot-go/internal/storage"
	"github.com/garyellow/convobot-go/internal/story"
)

// MaxTextLength caps inbound text; longer messages are rejected with a notice.
const MaxTextLength = 5000

const systemCategory = "system"

// Parser resolves intents.
type Parser interface {
	Parse(ctx context.Context, q nlp.Query) (*nlp.Result, error)
}

// DispatchRecorder receives dispatch metrics.
type DispatchRecorder interface {
	RecordDispatch(connectorType, status string, duration float64)
}

// ProcessorConfig holds the collaborators of a Processor.
type ProcessorConfig struct {
	Bot         *story.Bot
	Pipeline    *story.Pipeline
	Parser      Parser
	Dialogs     storage.DialogRepository
	Stories     storage.StoryRepository
	Compiler    *script.Compiler
	Labels      *i18n.Provider
	UserLimiter *ratelimit.KeyedLimiter
	Logger      *logger.Logger
	Metrics     DispatchRecorder
	Timeout     time.Duration
}

// Processor dispatches events of one bot. It implements connector.Dispatcher
// and is shared by all connectors of the bot.
type Processor struct {
	bot         *story.Bot
	pipeline    *story.Pipeline
	parser      Parser
	dialogs     storage.DialogRepository
	stories     storage.StoryRepository
	compiler    *script.Compiler
	labels      *i18n.Provider
	userLimiter *ratelimit.KeyedLimiter
	logger      *logger.Logger
	metrics     DispatchRecorder
	timeout     time.Duration
}

var _ connector.Dispatcher = (*Processor)(nil)

// NewProcessor creates a processor. Parser, UserLimiter and Metrics are optional.
func NewProcessor(cfg ProcessorConfig) *Processor {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DispatchProcessing
	}
	compiler := cfg.Compiler
	if compiler == nil {
		compiler = script.NewCompiler()
	}
	return &Processor{
		bot:         cfg.Bot,
		pipeline:    cfg.Pipeline,
		parser:      cfg.Parser,
		dialogs:     cfg.Dialogs,
		stories:     cfg.Stories,
		compiler:    compiler,
		labels:      cfg.Labels,
		userLimiter: cfg.UserLimiter,
		logger:      cfg.Logger.WithModule("bot").WithField("bot_id", cfg.Bot.BotID),
		metrics:     cfg.Metrics,
		timeout:     timeout,
	}
}

// Bot returns the bot served by the processor.
func (p *Processor) Bot() *story.Bot { return p.bot }

// Dispatch handles one inbound event and returns the answers of the turn.
func (p *Processor) Dispatch(ctx context.Context, event connector.Event) ([]connector.Message, error) {
	start := time.Now()
	ctx = ctxutil.WithBotID(ctx, p.bot.BotID)
	ctx = ctxutil.WithConnectorID(ctx, event.ConnectorID)
	ctx = ctxutil.WithUserID(ctx, event.UserID)

	msgs, status, err := p.dispatch(ctx, event)
	if p.metrics != nil {
		p.metrics.RecordDispatch(string(event.ConnectorType), status, time.Since(start).Seconds())
	}
	if err != nil {
		p.logger.WithError(err).ErrorContext(ctx, "dispatch failed")
		sentry.CaptureExceptionWithContext(ctx, err)
	}
	return msgs, err
}

func (p *Processor) dispatch(ctx context.Context, event connector.Event) ([]connector.Message, string, error) {
	text := strings.Join(strings.Fields(event.Text), " ")
	if text == "" {
		return nil, "ignored", nil
	}
	if event.UserID == "" {
		return nil, "error", fmt.Errorf("event from %s has no user id", event.ConnectorID)
	}
	if len(text) > MaxTextLength {
		return p.notice(ctx, event, "Your message is too long."), "rejected", nil
	}
	if p.userLimiter != nil && !p.userLimiter.Allow(p.bot.Namespace+"/"+p.bot.BotID+"/"+event.UserID) {
		return p.notice(ctx, event, "You are sending messages too fast. Please wait a moment."), "rate_limited", nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.dialogs.TouchUser(ctx, &storage.User{
		Namespace: p.bot.Namespace,
		BotID:     p.bot.BotID,
		UserID:    event.UserID,
		Locale:    event.Locale,
	}); err != nil {
		return nil, "error", err
	}
	dialog, err := p.dialogs.GetOrCreateDialog(ctx, p.bot.Namespace, p.bot.BotID, event.UserID, event.ConnectorID)
	if err != nil {
		return nil, "error", err
	}

	bus := story.NewBus(p.bot.BotID, p.bot.Namespace, event)
	bus.UserText = text
	bus.DialogID = dialog.ID
	if bus.Locale == "" {
		bus.Locale = p.bot.Locale
	}

	intent, score := p.parse(ctx, bus)
	bus.Intent = intent
	bus.Score = score

	handler, err := p.selectStory(ctx, intent)
	if err != nil {
		return nil, "error", err
	}

	handleErr := p.pipeline.Handle(ctx, p.bot, handler, bus)

	if err := p.persist(ctx, bus); err != nil {
		return nil, "error", err
	}
	if handleErr != nil {
		return bus.Messages(), "error", handleErr
	}

	p.logger.DebugContext(ctx, "turn dispatched",
		"intent", intent,
		"story", bus.StoryID,
		"answers", len(bus.Actions()))
	return bus.Messages(), "success", nil
}

// parse never fails the turn: NLP problems degrade to the unknown intent.
func (p *Processor) parse(ctx context.Context, bus *story.Bus) (string, float64) {
	if p.parser == nil {
		return story.UnknownIntent, 0
	}
	res, err := p.parser.Parse(ctx, nlp.Query{
		Namespace:   p.bot.Namespace,
		Application: p.bot.NLPModel,
		Locale:      bus.Locale,
		Text:        bus.UserText,
		DialogID:    bus.DialogID,
	})
	if err != nil {
		p.logger.WithError(err).WarnContext(ctx, "intent parsing failed, using unknown")
		return story.UnknownIntent, 0
	}
	if res.Locale != "" && bus.Locale == "" {
		bus.Locale = res.Locale
	}
	return res.Intent, res.Score
}

// selectStory looks up the bot's static stories first, then stories
// configured through the admin layer, then the unknown story.
func (p *Processor) selectStory(ctx context.Context, intent string) (story.Handler, error) {
	if h, ok := p.bot.StoryForIntent(intent); ok {
		return h, nil
	}
	if p.stories != nil && intent != story.UnknownIntent {
		configured, err := p.stories.GetStoriesByBot(ctx, p.bot.Namespace, p.bot.BotID)
		if err != nil {
			return nil, err
		}
		for _, s := range configured {
			if s.Intent == intent {
				return NewConfiguredStory(s, p.compiler), nil
			}
		}
	}
	return p.bot.Unknown(), nil
}

func (p *Processor) persist(ctx context.Context, bus *story.Bus) error {
	actions := []storage.Action{{
		Kind:    storage.ActionUser,
		StoryID: bus.StoryID,
		Intent:  bus.Intent,
		Text:    bus.UserText,
	}}
	for _, a := range bus.Actions() {
		actions = append(actions, storage.Action{
			Kind:       storage.ActionBot,
			StoryID:    a.StoryID,
			Intent:     bus.Intent,
			Text:       a.Text,
			LastAnswer: a.LastAnswer,
		})
	}
	return p.dialogs.AppendActions(ctx, bus.DialogID, actions)
}

func (p *Processor) notice(ctx context.Context, event connector.Event, label string) []connector.Message {
	text := label
	if p.labels != nil {
		text = p.labels.Bind(p.bot.Namespace, event.Locale).Translate(ctx, systemCategory, label)
	}
	return []connector.Message{{Text: text}}
}
