// Package admin implements the operator API: configured intents and their
// answers, user, dialog and parse log searches, connector configurations,
// validated sentences and the "talk" test feature.
//
// Every operation runs in the caller's namespace. Reading or changing a
// resource of another namespace fails with ErrUnauthorized.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	domerrors "github.com/garyellow/convobot-go/internal/errors"
	"github.com/garyellow/convobot-go/internal/logger"
	"github.com/garyellow/convobot-go/internal/script"
	"github.com/garyellow/convobot-go/internal/storage"
	"github.com/garyellow/convobot-go/internal/story"
)

// NLP is the part of the NLP service used by the admin layer.
type NLP interface {
	SaveIntent(ctx context.Context, namespace, application, name, description string) error
	DeleteIntent(ctx context.Context, namespace, application, name string) error
	SaveSentence(ctx context.Context, sentence *storage.Sentence) error
	SearchSentences(ctx context.Context, q storage.SentenceQuery) ([]storage.Sentence, int, error)
}

// Bots exposes the installed bots.
type Bots interface {
	Bot(botID string) (*story.Bot, bool)
	DefaultNamespace() (string, bool)
}

// Recorder receives admin metrics.
type Recorder interface {
	DedupRecorder
	RecordTalk(status string)
}

// Config holds the collaborators of a Service.
type Config struct {
	Configurations storage.ConfigurationRepository
	Stories        storage.StoryRepository
	Dialogs        storage.DialogRepository
	ParseLogs      storage.ParseLogRepository
	NLP            NLP
	Bots           Bots
	Compiler       *script.Compiler
	// SelfBaseURL is used by talk for configurations without a base URL.
	SelfBaseURL string
	TalkTimeout time.Duration
	Metrics     Recorder
	Logger      *logger.Logger
}

// Service implements the admin operations.
type Service struct {
	configurations storage.ConfigurationRepository
	stories        storage.StoryRepository
	dialogs        storage.DialogRepository
	parseLogs      storage.ParseLogRepository
	nlp            NLP
	bots           Bots
	compiler       *script.Compiler
	clients        *ClientCache
	selfBaseURL    string
	metrics        Recorder
	logger         *logger.Logger
}

var validate = validator.New(validator.WithRequiredStructEnabled())

var errNLPUnavailable = errors.New("nlp service not configured")

// NewService creates a service. NLP and Metrics are optional.
func NewService(cfg Config) *Service {
	compiler := cfg.Compiler
	if compiler == nil {
		compiler = script.NewCompiler()
	}
	var dedup DedupRecorder
	if cfg.Metrics != nil {
		dedup = cfg.Metrics
	}
	return &Service{
		configurations: cfg.Configurations,
		stories:        cfg.Stories,
		dialogs:        cfg.Dialogs,
		parseLogs:      cfg.ParseLogs,
		nlp:            cfg.NLP,
		bots:           cfg.Bots,
		compiler:       compiler,
		clients:        NewClientCache(cfg.TalkTimeout, dedup),
		selfBaseURL:    strings.TrimRight(cfg.SelfBaseURL, "/"),
		metrics:        cfg.Metrics,
		logger:         cfg.Logger.WithModule("admin"),
	}
}

// DefaultNamespace is the namespace of callers that do not name one.
func (s *Service) DefaultNamespace() (string, bool) {
	return s.bots.DefaultNamespace()
}

// IntentRequest creates or updates a configured story.
type IntentRequest struct {
	// StoryID defaults to Intent.
	StoryID     string             `json:"storyId" validate:"omitempty,max=128"`
	Name        string             `json:"name" validate:"max=256"`
	Intent      string             `json:"intent" validate:"required,max=128,ne=unknown"`
	Description string             `json:"description" validate:"max=1024"`
	AnswerType  storage.AnswerType `json:"answerType" validate:"omitempty,oneof=plain script"`
	Answer      string             `json:"answer" validate:"required"`
}

func (r *IntentRequest) normalize() {
	r.Intent = strings.TrimSpace(r.Intent)
	r.StoryID = strings.TrimSpace(r.StoryID)
	if r.StoryID == "" {
		r.StoryID = r.Intent
	}
	if r.AnswerType == "" {
		r.AnswerType = storage.AnswerPlain
	}
}

// CreateBotIntent creates a story answering intent on botID and declares the
// intent on the bot's NLP application. A script answer that does not
// compile fails with an error whose message is "compilation failed" and
// nothing is persisted.
func (s *Service) CreateBotIntent(ctx context.Context, namespace, botID string, req IntentRequest) (*storage.Story, error) {
	req.normalize()
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	bot, err := s.bot(namespace, botID)
	if err != nil {
		return nil, err
	}
	if _, builtIn := bot.StoryForIntent(req.Intent); builtIn {
		return nil, domerrors.NewValidationError("intent", fmt.Sprintf("%q is answered by a built-in story", req.Intent))
	}

	rec := &storage.Story{
		Namespace:  bot.Namespace,
		BotID:      bot.BotID,
		StoryID:    req.StoryID,
		Name:       req.Name,
		Intent:     req.Intent,
		AnswerType: req.AnswerType,
		Answer:     req.Answer,
	}
	if err := s.compile(rec); err != nil {
		return nil, err
	}

	if err := s.stories.SaveStory(ctx, rec); err != nil {
		return nil, domerrors.NewWrapper("admin", "create_intent").Wrap(err, "failed to save story")
	}
	s.declareIntent(ctx, bot, req.Intent, req.Description)

	s.logger.WithFields(map[string]any{
		"bot_id":      bot.BotID,
		"story_id":    rec.StoryID,
		"intent":      rec.Intent,
		"answer_type": string(rec.AnswerType),
	}).Info("Bot intent created")
	return rec, nil
}

// UpdateBotIntent replaces the intent and answer of the story with surrogate id.
func (s *Service) UpdateBotIntent(ctx context.Context, namespace, id string, req IntentRequest) (*storage.Story, error) {
	req.normalize()
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	rec, err := s.story(ctx, namespace, id)
	if err != nil {
		return nil, err
	}

	updated := *rec
	updated.Name = req.Name
	updated.Intent = req.Intent
	updated.AnswerType = req.AnswerType
	updated.Answer = req.Answer
	updated.ScriptMain = ""
	if err := s.compile(&updated); err != nil {
		return nil, err
	}

	if err := s.stories.SaveStory(ctx, &updated); err != nil {
		return nil, domerrors.NewWrapper("admin", "update_intent").Wrap(err, "failed to save story")
	}
	if bot, ok := s.bots.Bot(rec.BotID); ok && updated.Intent != rec.Intent {
		s.declareIntent(ctx, bot, updated.Intent, req.Description)
		s.releaseIntent(ctx, bot, rec.Intent)
	}
	return &updated, nil
}

// DeleteBotIntent deletes the story with surrogate id. The intent is removed
// from the NLP application when no other story of the bot answers it.
func (s *Service) DeleteBotIntent(ctx context.Context, namespace, id string) error {
	rec, err := s.story(ctx, namespace, id)
	if err != nil {
		return err
	}
	if err := s.stories.DeleteStory(ctx, id); err != nil {
		return domerrors.NewWrapper("admin", "delete_intent").Wrap(err, "failed to delete story")
	}
	if bot, ok := s.bots.Bot(rec.BotID); ok {
		s.releaseIntent(ctx, bot, rec.Intent)
	}
	s.logger.WithField("bot_id", rec.BotID).WithField("story_id", rec.StoryID).Info("Bot intent deleted")
	return nil
}

// compile checks a script answer and records its entry template.
func (s *Service) compile(rec *storage.Story) error {
	if rec.AnswerType != storage.AnswerScript {
		return nil
	}
	prog, err := s.compiler.Compile(rec.StoryID, rec.Answer)
	if err != nil {
		var ce *script.CompileError
		if errors.As(err, &ce) {
			s.logger.WithField("story_id", rec.StoryID).WithField("details", ce.Details).Debug("Script answer rejected")
		}
		return err
	}
	rec.ScriptMain = prog.Main
	return nil
}

func (s *Service) declareIntent(ctx context.Context, bot *story.Bot, intent, description string) {
	if s.nlp == nil {
		return
	}
	if err := s.nlp.SaveIntent(ctx, bot.Namespace, bot.NLPModel, intent, description); err != nil {
		s.logger.WithError(err).WithField("intent", intent).Warn("Failed to declare intent on NLP application")
	}
}

func (s *Service) releaseIntent(ctx context.Context, bot *story.Bot, intent string) {
	if s.nlp == nil {
		return
	}
	remaining, err := s.stories.GetStoriesByBot(ctx, bot.Namespace, bot.BotID)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to list stories")
		return
	}
	for _, st := range remaining {
		if st.Intent == intent {
			return
		}
	}
	if err := s.nlp.DeleteIntent(ctx, bot.Namespace, bot.NLPModel, intent); err != nil {
		s.logger.WithError(err).WithField("intent", intent).Warn("Failed to remove intent from NLP application")
	}
}

func (s *Service) bot(namespace, botID string) (*story.Bot, error) {
	bot, ok := s.bots.Bot(botID)
	if !ok {
		return nil, fmt.Errorf("bot %s: %w", botID, domerrors.ErrNotFound)
	}
	if bot.Namespace != namespace {
		return nil, fmt.Errorf("bot %s: %w", botID, domerrors.ErrUnauthorized)
	}
	return bot, nil
}

func (s *Service) story(ctx context.Context, namespace, id string) (*storage.Story, error) {
	rec, err := s.stories.GetStory(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("story %s: %w", id, domerrors.ErrNotFound)
	}
	if rec.Namespace != namespace {
		return nil, fmt.Errorf("story %s: %w", id, domerrors.ErrUnauthorized)
	}
	return rec, nil
}

// validateRequest converts validator failures into a ValidationError on the
// first offending field.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return domerrors.NewValidationError(lowerFirst(fe.Field()), fmt.Sprintf("failed %q", fe.Tag()))
	}
	return fmt.Errorf("%w: %w", domerrors.ErrInvalidInput, err)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
