// Package story defines bot definitions, story handlers and the dispatch
// pipeline that turns an inbound event into exactly one terminal answer.
package story

import (
	"context"
	"slices"

	"github.com/garyellow/convobot-go/internal/connector"
)

// Outcome is the explicit result of a handler body.
type Outcome int

const (
	// Continued means the handler returned without ending the turn.
	Continued Outcome = iota
	// Completed means the handler ended the turn.
	Completed
)

func (o Outcome) String() string {
	if o == Completed {
		return "completed"
	}
	return "continued"
}

// Definition is the per-invocation context built from an event.
type Definition interface {
	Handle(ctx context.Context) (Outcome, error)
}

// Handler is a story implementation.
type Handler interface {
	// ID is the story identifier, unique within a bot.
	ID() string
	// Intents lists the intents routed to this story.
	Intents() []string
	// Supports reports whether the story can answer through a connector type.
	Supports(t connector.Type) bool
	// CheckPreconditions runs before the definition is built. It may end the turn.
	CheckPreconditions(ctx context.Context, bus *Bus) error
	// NewDefinition builds the definition for one event.
	NewDefinition(bus *Bus) Definition
}

// DefinitionFunc adapts a function to Definition.
type DefinitionFunc func(ctx context.Context) (Outcome, error)

// Handle calls f.
func (f DefinitionFunc) Handle(ctx context.Context) (Outcome, error) {
	return f(ctx)
}

// Simple is a Handler assembled from functions.
type Simple struct {
	StoryID     string
	IntentNames []string
	// Unsupported lists connector types the story cannot answer through.
	Unsupported []connector.Type
	// Precondition is optional.
	Precondition func(ctx context.Context, bus *Bus) error
	Answer       func(ctx context.Context, bus *Bus) (Outcome, error)
}

var _ Handler = (*Simple)(nil)

// ID implements Handler.
func (s *Simple) ID() string { return s.StoryID }

// Intents implements Handler.
func (s *Simple) Intents() []string { return s.IntentNames }

// Supports implements Handler.
func (s *Simple) Supports(t connector.Type) bool {
	return !slices.Contains(s.Unsupported, t)
}

// CheckPreconditions implements Handler.
func (s *Simple) CheckPreconditions(ctx context.Context, bus *Bus) error {
	if s.Precondition == nil {
		return nil
	}
	return s.Precondition(ctx, bus)
}

// NewDefinition implements Handler.
func (s *Simple) NewDefinition(bus *Bus) Definition {
	return DefinitionFunc(func(ctx context.Context) (Outcome, error) {
		if s.Answer == nil {
			return Continued, nil
		}
		return s.Answer(ctx, bus)
	})
}

// EndWith returns an Answer function that ends the turn with a translated label.
func EndWith(label string) func(ctx context.Context, bus *Bus) (Outcome, error) {
	return func(ctx context.Context, bus *Bus) (Outcome, error) {
		if err := bus.End(bus.Translate(ctx, label)); err != nil {
			return Continued, err
		}
		return Completed, nil
	}
}

// UnknownStoryID identifies the built-in fallback story.
const UnknownStoryID = "unknown"

// UnknownIntent is the intent of unmatched sentences.
const UnknownIntent = "unknown"

// NewUnknownStory returns the default fallback story.
func NewUnknownStory() Handler {
	return &Simple{
		StoryID:     UnknownStoryID,
		IntentNames: []string{UnknownIntent},
		Answer:      EndWith("Sorry, I did not understand."),
	}
}
