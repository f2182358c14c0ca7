// Package storage provides SQLite-backed repositories for bot configurations,
// stories, dialogs, parse logs, NLP data and labels. The interfaces decouple
// the engine and admin layer from the concrete database.
package storage

import "context"

// ConfigurationRepository persists bot application configurations.
type ConfigurationRepository interface {
	GetConfigurationsByBotID(ctx context.Context, botID string) ([]ApplicationConfiguration, error)
	GetConfigurationByID(ctx context.Context, id string) (*ApplicationConfiguration, error)
	SaveConfiguration(ctx context.Context, cfg *ApplicationConfiguration) error
	UpdateConfigurationIfNotManuallyModified(ctx context.Context, cfg *ApplicationConfiguration) (bool, error)
	DeleteConfiguration(ctx context.Context, id string) error
}

// StoryRepository persists configured stories.
type StoryRepository interface {
	SaveStory(ctx context.Context, s *Story) error
	GetStory(ctx context.Context, id string) (*Story, error)
	GetStoriesByBot(ctx context.Context, namespace, botID string) ([]Story, error)
	DeleteStory(ctx context.Context, id string) error
}

// DialogRepository persists users, dialogs and actions.
type DialogRepository interface {
	TouchUser(ctx context.Context, u *User) error
	SearchUsers(ctx context.Context, q UserQuery) ([]User, int, error)
	GetOrCreateDialog(ctx context.Context, namespace, botID, userID, connectorID string) (*Dialog, error)
	AppendActions(ctx context.Context, dialogID string, actions []Action) error
	GetDialog(ctx context.Context, id string) (*Dialog, error)
	SearchDialogs(ctx context.Context, q DialogQuery) ([]Dialog, int, error)
}

// ParseLogRepository persists intent resolutions.
type ParseLogRepository interface {
	SaveParseLog(ctx context.Context, l *ParseLog) error
	SearchParseLogs(ctx context.Context, q ParseLogQuery) ([]ParseLog, error)
	CountParseLogs(ctx context.Context, q ParseLogQuery) (int, error)
	ParseLogIntentCounts(ctx context.Context, q ParseLogQuery) (map[string]int, error)
	ParseLogAverageScore(ctx context.Context, q ParseLogQuery) (float64, error)
}

// NLPRepository persists NLP applications, intents and validated sentences.
type NLPRepository interface {
	GetNLPApplication(ctx context.Context, namespace, name string) (*NLPApplication, error)
	SaveNLPApplication(ctx context.Context, app *NLPApplication) error
	SaveIntent(ctx context.Context, in *Intent) error
	GetIntents(ctx context.Context, namespace, application string) ([]Intent, error)
	DeleteIntent(ctx context.Context, namespace, application, name string) error
	SaveSentence(ctx context.Context, s *Sentence) error
	FindValidatedSentence(ctx context.Context, namespace, application, locale, text string) (*Sentence, error)
	SearchSentences(ctx context.Context, q SentenceQuery) ([]Sentence, int, error)
	SaveParseLog(ctx context.Context, l *ParseLog) error
	Ping(ctx context.Context) error
}

// LabelRepository persists label translations.
type LabelRepository interface {
	SaveLabel(ctx context.Context, l *Label) error
	GetLabelTranslations(ctx context.Context, namespace, category, defaultLabel string) (map[string]string, error)
}

var (
	_ ConfigurationRepository = (*DB)(nil)
	_ StoryRepository         = (*DB)(nil)
	_ DialogRepository        = (*DB)(nil)
	_ ParseLogRepository      = (*DB)(nil)
	_ NLPRepository           = (*DB)(nil)
	_ LabelRepository         = (*DB)(nil)
)
