package storage

import (
	"time"

	"github.com/garyellow/convobot-go/internal/connector"
)

// ApplicationConfiguration is the persisted pairing of one bot with one connector.
// It is keyed by (BotID, ApplicationID); ID is a stable surrogate used by the admin API.
type ApplicationConfiguration struct {
	ID                 string            `json:"id"`
	ApplicationID      string            `json:"applicationId"`
	BotID              string            `json:"botId"`
	Namespace          string            `json:"namespace"`
	NLPModel           string            `json:"nlpModel"`
	ConnectorID        string            `json:"connectorId"`
	ConnectorType      connector.Type    `json:"connectorType"`
	OwnerConnectorType connector.Type    `json:"ownerConnectorType,omitempty"`
	Name               string            `json:"name"`
	BaseURL            string            `json:"baseUrl,omitempty"`
	Path               string            `json:"path,omitempty"`
	Parameters         map[string]string `json:"parameters,omitempty"`
	ManuallyModified   bool              `json:"manuallyModified"`
	CreatedAt          int64             `json:"createdAt"`
	UpdatedAt          int64             `json:"updatedAt"`
}

// Connector returns the connector configuration stored in the record.
func (a *ApplicationConfiguration) Connector() connector.Configuration {
	cfg := connector.Configuration{
		ConnectorID:        a.ConnectorID,
		Type:               a.ConnectorType,
		OwnerConnectorType: a.OwnerConnectorType,
		Name:               a.Name,
		BaseURL:            a.BaseURL,
		Path:               a.Path,
		Parameters:         a.Parameters,
		ManuallyModified:   a.ManuallyModified,
	}
	return cfg.Clone()
}

// AnswerType distinguishes plain text answers from script answers.
type AnswerType string

// Answer types.
const (
	AnswerPlain  AnswerType = "plain"
	AnswerScript AnswerType = "script"
)

// Story is a configured conversational unit: an intent bound to an answer.
type Story struct {
	ID         string     `json:"id"`
	Namespace  string     `json:"namespace"`
	BotID      string     `json:"botId"`
	StoryID    string     `json:"storyId"`
	Name       string     `json:"name"`
	Intent     string     `json:"intent"`
	AnswerType AnswerType `json:"answerType"`
	Answer     string     `json:"answer"`
	// ScriptMain names the entry template of a compiled script answer.
	ScriptMain string `json:"scriptMain,omitempty"`
	CreatedAt  int64  `json:"createdAt"`
	UpdatedAt  int64  `json:"updatedAt"`
}

// User is a channel user seen by a bot.
type User struct {
	Namespace string `json:"namespace"`
	BotID     string `json:"botId"`
	UserID    string `json:"userId"`
	Locale    string `json:"locale,omitempty"`
	FirstSeen int64  `json:"firstSeen"`
	LastSeen  int64  `json:"lastSeen"`
}

// ActionKind identifies who produced an action.
type ActionKind string

// Action kinds.
const (
	ActionUser ActionKind = "user"
	ActionBot  ActionKind = "bot"
)

// Action is one entry of a dialog.
type Action struct {
	ID         string     `json:"id"`
	DialogID   string     `json:"dialogId"`
	Seq        int        `json:"seq"`
	Kind       ActionKind `json:"kind"`
	StoryID    string     `json:"storyId,omitempty"`
	Intent     string     `json:"intent,omitempty"`
	Text       string     `json:"text"`
	LastAnswer bool       `json:"lastAnswer"`
	CreatedAt  int64      `json:"createdAt"`
}

// Dialog is the ordered action history of one user with one bot.
type Dialog struct {
	ID          string   `json:"id"`
	Namespace   string   `json:"namespace"`
	BotID       string   `json:"botId"`
	UserID      string   `json:"userId"`
	ConnectorID string   `json:"connectorId"`
	CreatedAt   int64    `json:"createdAt"`
	UpdatedAt   int64    `json:"updatedAt"`
	Actions     []Action `json:"actions,omitempty"`
}

// ParseLog records one intent resolution.
type ParseLog struct {
	ID          string  `json:"id"`
	Namespace   string  `json:"namespace"`
	Application string  `json:"application"`
	DialogID    string  `json:"dialogId,omitempty"`
	Text        string  `json:"text"`
	Intent      string  `json:"intent"`
	Score       float64 `json:"score"`
	Source      string  `json:"source"`
	CreatedAt   int64   `json:"createdAt"`
}

// NLPApplication is the classifier model backing one or more bots.
type NLPApplication struct {
	Namespace string   `json:"namespace"`
	Name      string   `json:"name"`
	Locales   []string `json:"locales"`
	CreatedAt int64    `json:"createdAt"`
}

// Intent is a classifier label of an NLP application.
type Intent struct {
	Namespace   string `json:"namespace"`
	Application string `json:"application"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Sentence is an operator-validated example mapped to an intent.
type Sentence struct {
	ID          string `json:"id"`
	Namespace   string `json:"namespace"`
	Application string `json:"application"`
	Text        string `json:"text"`
	Intent      string `json:"intent"`
	Locale      string `json:"locale"`
	CreatedAt   int64  `json:"createdAt"`
}

// Label is a translation of a default label in one locale.
type Label struct {
	Namespace    string `json:"namespace"`
	Category     string `json:"category"`
	DefaultLabel string `json:"defaultLabel"`
	Locale       string `json:"locale"`
	Translation  string `json:"translation"`
}

// Page bounds a search.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) normalize() Page {
	if p.Limit <= 0 || p.Limit > 200 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// UserQuery filters user searches.
type UserQuery struct {
	Namespace string
	BotID     string
	UserID    string // prefix match
	Page
}

// DialogQuery filters dialog searches.
type DialogQuery struct {
	Namespace string
	BotID     string
	UserID    string
	Text      string // substring match on any action text
	Page
}

// ParseLogQuery filters parse log searches.
type ParseLogQuery struct {
	Namespace   string
	Application string
	Intent      string
	Text        string
	Since       time.Time
	Page
}

// SentenceQuery filters sentence searches.
type SentenceQuery struct {
	Namespace   string
	Application string
	Intent      string
	Text        string
	Locale      string
	Page
}

func connectorTypeOf(s string) connector.Type {
	return connector.Type(s)
}
