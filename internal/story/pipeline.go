package story

import (
	"context"
	"fmt"

	"github.com/garyellow/convobot-go/internal/i18n"
	"github.com/garyellow/convobot-go/internal/logger"
)

// ViolationRecorder counts dispatches that finish without a terminal action.
type ViolationRecorder interface {
	RecordContractViolation(bot, story string)
}

// Pipeline runs a story handler against one event.
type Pipeline struct {
	labels  *i18n.Provider
	metrics ViolationRecorder
	logger  *logger.Logger
}

// NewPipeline creates a pipeline. metrics may be nil.
func NewPipeline(labels *i18n.Provider, metrics ViolationRecorder, log *logger.Logger) *Pipeline {
	return &Pipeline{
		labels:  labels,
		metrics: metrics,
		logger:  log.WithModule("story"),
	}
}

// Handle dispatches bus to handler. Exactly one terminal action is expected when it returns,
// appended either by the preconditions or by the handler body. A missing terminal action is
// logged and counted, never forced.
func (p *Pipeline) Handle(ctx context.Context, bot *Bot, handler Handler, bus *Bus) error {
	if handler.ID() != bot.Unknown().ID() && !handler.Supports(bus.ConnectorType) {
		p.logger.DebugContext(ctx, "story does not support connector, delegating to unknown story",
			"story", handler.ID(),
			"connector_type", bus.ConnectorType)
		return p.Handle(ctx, bot, bot.Unknown(), bus)
	}

	bus.StoryID = handler.ID()
	if p.labels != nil {
		bus.bind(p.labels.Bind(bot.Namespace, bus.Locale))
	}

	err := p.run(ctx, handler, bus)
	p.complete(ctx, bot, handler, bus)
	return err
}

func (p *Pipeline) run(ctx context.Context, handler Handler, bus *Bus) error {
	if err := handler.CheckPreconditions(ctx, bus); err != nil {
		return fmt.Errorf("story %s preconditions: %w", handler.ID(), err)
	}
	bus.advance(PreconditionChecked)

	if bus.Ended() {
		p.logger.DebugContext(ctx, "turn ended by preconditions",
			"story", handler.ID())
		return nil
	}

	def := handler.NewDefinition(bus)
	bus.advance(HandlerRun)
	outcome, err := def.Handle(ctx)
	if err != nil {
		return fmt.Errorf("story %s: %w", handler.ID(), err)
	}
	if outcome == Completed && !bus.Ended() {
		p.logger.WarnContext(ctx, "story reported completion without a terminal action",
			"story", handler.ID())
	}
	return nil
}

func (p *Pipeline) complete(ctx context.Context, bot *Bot, handler Handler, bus *Bus) {
	if !bus.Ended() {
		p.logger.WarnContext(ctx, "story finished without a terminal action",
			"bot_id", bot.BotID,
			"story", handler.ID(),
			"state", bus.State().String())
		if p.metrics != nil {
			p.metrics.RecordContractViolation(bot.BotID, handler.ID())
		}
	}
	bus.advance(Complete)
}
