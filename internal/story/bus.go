package story

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyellow/convobot-go/internal/connector"
	"github.com/garyellow/convobot-go/internal/i18n"
)

// ErrTurnAlreadyEnded is returned when a handler answers after the terminal action.
var ErrTurnAlreadyEnded = errors.New("turn already ended")

// TurnState is the dispatch state of one inbound event.
type TurnState int

// Dispatch states. A turn moves Received -> PreconditionChecked -> (Ended | HandlerRun) -> Complete.
// Ended may also be reached from HandlerRun when the handler body ends the turn.
const (
	Received TurnState = iota
	PreconditionChecked
	Ended
	HandlerRun
	Complete
)

func (s TurnState) String() string {
	switch s {
	case Received:
		return "received"
	case PreconditionChecked:
		return "precondition_checked"
	case Ended:
		return "ended"
	case HandlerRun:
		return "handler_run"
	case Complete:
		return "complete"
	default:
		return fmt.Sprintf("TurnState(%d)", int(s))
	}
}

// Action is a bot answer produced during the turn.
type Action struct {
	StoryID    string
	Text       string
	LastAnswer bool
}

// Bus carries one inbound event through the pipeline and collects the answers.
// A Bus belongs to a single dispatch and is not safe for concurrent use.
type Bus struct {
	BotID         string
	Namespace     string
	ConnectorID   string
	ConnectorType connector.Type
	UserID        string
	DialogID      string
	Locale        string
	UserText      string
	Intent        string
	Score         float64

	// StoryID is the story currently handling the event.
	StoryID string

	// Data is free-form per-turn data exposed to answer scripts.
	Data map[string]any

	translator i18n.Translator
	actions    []Action
	state      TurnState
	ended      bool
}

// NewBus returns a bus for an inbound event.
func NewBus(botID, namespace string, event connector.Event) *Bus {
	return &Bus{
		BotID:         botID,
		Namespace:     namespace,
		ConnectorID:   event.ConnectorID,
		ConnectorType: event.ConnectorType,
		UserID:        event.UserID,
		Locale:        event.Locale,
		UserText:      event.Text,
		Data:          make(map[string]any),
	}
}

// State returns the current dispatch state.
func (b *Bus) State() TurnState {
	return b.state
}

// Ended reports whether the terminal action has been appended.
func (b *Bus) Ended() bool {
	return b.ended
}

// Send appends a non-terminal answer.
func (b *Bus) Send(text string) error {
	if b.ended {
		return ErrTurnAlreadyEnded
	}
	b.actions = append(b.actions, Action{StoryID: b.StoryID, Text: text})
	return nil
}

// End appends the terminal answer of the turn. It is the only way to end a turn.
func (b *Bus) End(text string) error {
	if b.ended {
		return ErrTurnAlreadyEnded
	}
	b.actions = append(b.actions, Action{StoryID: b.StoryID, Text: text, LastAnswer: true})
	b.ended = true
	b.state = Ended
	return nil
}

// Translate translates label in the story's category for the bound locale.
func (b *Bus) Translate(ctx context.Context, label string) string {
	return b.translator.Translate(ctx, b.StoryID, label)
}

// Actions returns the answers appended during the turn.
func (b *Bus) Actions() []Action {
	out := make([]Action, len(b.actions))
	copy(out, b.actions)
	return out
}

// LastAction returns the most recent answer.
func (b *Bus) LastAction() (Action, bool) {
	if len(b.actions) == 0 {
		return Action{}, false
	}
	return b.actions[len(b.actions)-1], true
}

// Messages converts the answers into connector messages.
func (b *Bus) Messages() []connector.Message {
	msgs := make([]connector.Message, 0, len(b.actions))
	for _, a := range b.actions {
		msgs = append(msgs, connector.Message{Text: a.Text})
	}
	return msgs
}

func (b *Bus) bind(t i18n.Translator) {
	b.translator = t
}

func (b *Bus) advance(s TurnState) {
	if b.ended && s != Complete {
		return
	}
	b.state = s
}
