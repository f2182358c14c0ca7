package bot

import (
	"context"
	"fmt"

	"github.com/garyellow/convobot-go/internal/connector"
	"github.com/garyellow/convobot-go/internal/script"
	"github.com/garyellow/convobot-go/internal/storage"
	"github.com/garyellow/convobot-go/internal/story"
)

// ConfiguredStory turns a story created through the admin layer into a handler.
// Plain answers end the turn with the answer text; script answers run the
// compiled script with the turn data and end the turn with its output.
type ConfiguredStory struct {
	record   storage.Story
	compiler *script.Compiler
}

var _ story.Handler = (*ConfiguredStory)(nil)

// NewConfiguredStory wraps a stored story.
func NewConfiguredStory(record storage.Story, compiler *script.Compiler) *ConfiguredStory {
	return &ConfiguredStory{record: record, compiler: compiler}
}

func (s *ConfiguredStory) ID() string { return s.record.StoryID }

func (s *ConfiguredStory) Intents() []string { return []string{s.record.Intent} }

// Supports accepts every connector type; configured answers are plain text.
func (s *ConfiguredStory) Supports(connector.Type) bool { return true }

func (s *ConfiguredStory) CheckPreconditions(context.Context, *story.Bus) error { return nil }

func (s *ConfiguredStory) NewDefinition(bus *story.Bus) story.Definition {
	return story.DefinitionFunc(func(ctx context.Context) (story.Outcome, error) {
		text, err := s.answer(ctx, bus)
		if err != nil {
			return story.Continued, err
		}
		if err := bus.End(text); err != nil {
			return story.Continued, err
		}
		return story.Completed, nil
	})
}

func (s *ConfiguredStory) answer(ctx context.Context, bus *story.Bus) (string, error) {
	if s.record.AnswerType != storage.AnswerScript {
		return bus.Translate(ctx, s.record.Answer), nil
	}

	prog, err := s.compiler.Compile(s.record.StoryID, s.record.Answer)
	if err != nil {
		return "", fmt.Errorf("compile answer of %s: %w", s.record.StoryID, err)
	}
	return prog.Run(ScriptData(bus))
}

// ScriptData is the data visible to answer scripts.
func ScriptData(bus *story.Bus) map[string]any {
	return map[string]any{
		"BotID":     bus.BotID,
		"Namespace": bus.Namespace,
		"UserID":    bus.UserID,
		"Locale":    bus.Locale,
		"Text":      bus.UserText,
		"Intent":    bus.Intent,
		"Score":     bus.Score,
		"Data":      bus.Data,
	}
}
