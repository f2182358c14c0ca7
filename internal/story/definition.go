package story

import (
	"context"
	"fmt"
	"strings"
)

// BotDefinition declares a bot. It is immutable once built for an installation pass.
type BotDefinition struct {
	BotID     string
	Namespace string
	NLPModel  string
	// Locale is the supported locale of the bot; empty means the process default.
	Locale  string
	Stories []Handler
	// Unknown handles unmatched intents and unsupported connectors. Nil uses NewUnknownStory.
	Unknown Handler
}

// BotProvider supplies a bot definition to the installation.
type BotProvider interface {
	BotDefinition(ctx context.Context) (BotDefinition, error)
}

// BotProviderFunc adapts a function to BotProvider.
type BotProviderFunc func(ctx context.Context) (BotDefinition, error)

// BotDefinition calls f.
func (f BotProviderFunc) BotDefinition(ctx context.Context) (BotDefinition, error) {
	return f(ctx)
}

// Bot is a built bot definition with explicit story and intent lookup tables.
type Bot struct {
	BotID     string
	Namespace string
	NLPModel  string
	Locale    string

	unknown  Handler
	order    []string
	stories  map[string]Handler
	byIntent map[string]string
}

// Build validates the definition and builds its lookup tables.
// Story ids and intents must be unique within the bot.
func (d BotDefinition) Build() (*Bot, error) {
	if strings.TrimSpace(d.BotID) == "" {
		return nil, fmt.Errorf("bot definition: bot id is required")
	}
	if strings.TrimSpace(d.Namespace) == "" {
		return nil, fmt.Errorf("bot %s: namespace is required", d.BotID)
	}
	model := d.NLPModel
	if model == "" {
		model = d.BotID
	}
	unknown := d.Unknown
	if unknown == nil {
		unknown = NewUnknownStory()
	}

	b := &Bot{
		BotID:     d.BotID,
		Namespace: d.Namespace,
		NLPModel:  model,
		Locale:    d.Locale,
		unknown:   unknown,
		stories:   make(map[string]Handler, len(d.Stories)+1),
		byIntent:  make(map[string]string),
	}
	for _, h := range append([]Handler{unknown}, d.Stories...) {
		if _, dup := b.stories[h.ID()]; dup {
			return nil, fmt.Errorf("bot %s: duplicate story %q", d.BotID, h.ID())
		}
		b.stories[h.ID()] = h
		b.order = append(b.order, h.ID())
		for _, intent := range h.Intents() {
			if owner, dup := b.byIntent[intent]; dup {
				return nil, fmt.Errorf("bot %s: intent %q claimed by stories %q and %q", d.BotID, intent, owner, h.ID())
			}
			b.byIntent[intent] = h.ID()
		}
	}
	return b, nil
}

// Unknown returns the fallback story.
func (b *Bot) Unknown() Handler {
	return b.unknown
}

// Story returns the story with the given id.
func (b *Bot) Story(id string) (Handler, bool) {
	h, ok := b.stories[id]
	return h, ok
}

// StoryForIntent returns the story bound to intent.
func (b *Bot) StoryForIntent(intent string) (Handler, bool) {
	id, ok := b.byIntent[intent]
	if !ok {
		return nil, false
	}
	return b.stories[id], true
}

// Intents returns every intent routed by the bot, excluding the unknown intent.
func (b *Bot) Intents() []string {
	var out []string
	for _, id := range b.order {
		for _, intent := range b.stories[id].Intents() {
			if intent != UnknownIntent {
				out = append(out, intent)
			}
		}
	}
	return out
}
