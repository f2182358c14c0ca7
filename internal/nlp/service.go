// Package nlp resolves user sentences to intents for one NLP application
// (a namespace plus model name). Resolution checks operator-validated
// sentences first, then the LLM classifier, and falls back to the unknown
// intent.
package nlp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/garyellow/convobot-go/internal/config"
	domerrors "github.com/garyellow/convobot-go/internal/errors"
	"github.com/garyellow/convobot-go/internal/genai"
	"github.com/garyellow/convobot-go/internal/i18n"
	"github.com/garyellow/convobot-go/internal/storage"
)

// Resolution sources recorded on parse logs and metrics.
const (
	SourceSentence   = "sentence"
	SourceClassifier = "classifier"
	SourceFallback   = "fallback"
)

// UnknownIntent is returned when nothing matched.
const UnknownIntent = genai.UnknownIntent

// Classifier picks an intent from a closed set.
type Classifier interface {
	Classify(ctx context.Context, text string, intents []string) (*genai.Classification, error)
}

// Recorder receives NLP metrics.
type Recorder interface {
	RecordNLPParse(source, status string, duration float64)
	RecordNLPApplication(status string)
}

// Query is one sentence to resolve.
type Query struct {
	Namespace   string
	Application string
	Locale      string
	Text        string
	DialogID    string
}

// Result is the resolved intent.
type Result struct {
	Intent string  `json:"intent"`
	Score  float64 `json:"score"`
	Source string  `json:"source"`
	Locale string  `json:"locale"`
}

// Service implements the NLP operations used by the installer, the engine
// and the admin layer.
type Service struct {
	repo          storage.NLPRepository
	classifier    Classifier
	metrics       Recorder
	defaultLocale string
}

// NewService creates a service. classifier and metrics may be nil.
func NewService(repo storage.NLPRepository, classifier Classifier, metrics Recorder, defaultLocale string) *Service {
	tag, err := language.Parse(defaultLocale)
	if err != nil {
		tag = language.English
	}
	return &Service{
		repo:          repo,
		classifier:    classifier,
		metrics:       metrics,
		defaultLocale: tag.String(),
	}
}

// DefaultLocale returns the canonical default locale.
func (s *Service) DefaultLocale() string { return s.defaultLocale }

// CreateApplication creates the application for (namespace, model) or adds
// locale to an existing one.
func (s *Service) CreateApplication(ctx context.Context, namespace, model, locale string) error {
	if namespace == "" || model == "" {
		return domerrors.NewValidationError("application", "namespace and model are required")
	}
	tag, err := canonicalLocale(locale, s.defaultLocale)
	if err != nil {
		return err
	}

	err = s.repo.SaveNLPApplication(ctx, &storage.NLPApplication{
		Namespace: namespace,
		Name:      model,
		Locales:   []string{tag},
	})
	if s.metrics != nil {
		s.metrics.RecordNLPApplication(statusOf(err))
	}
	if err != nil {
		return fmt.Errorf("create nlp application %s/%s: %w", namespace, model, err)
	}
	return nil
}

// Application returns the application or an error wrapping ErrNotFound.
func (s *Service) Application(ctx context.Context, namespace, model string) (*storage.NLPApplication, error) {
	app, err := s.repo.GetNLPApplication(ctx, namespace, model)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, fmt.Errorf("nlp application %s/%s: %w", namespace, model, domerrors.ErrNotFound)
	}
	return app, nil
}

// Parse resolves q.Text. It only fails on storage errors; classifier
// failures degrade to the unknown intent.
func (s *Service) Parse(ctx context.Context, q Query) (*Result, error) {
	start := time.Now()

	locale := s.defaultLocale
	app, err := s.repo.GetNLPApplication(ctx, q.Namespace, q.Application)
	if err != nil {
		return nil, err
	}
	if app != nil {
		locale = i18n.MatchLocale(orDefault(q.Locale, s.defaultLocale), app.Locales)
	}

	result, err := s.resolve(ctx, q, locale)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordNLPParse(SourceFallback, "error", time.Since(start).Seconds())
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordNLPParse(result.Source, "success", time.Since(start).Seconds())
	}

	if err := s.repo.SaveParseLog(ctx, &storage.ParseLog{
		Namespace:   q.Namespace,
		Application: q.Application,
		DialogID:    q.DialogID,
		Text:        q.Text,
		Intent:      result.Intent,
		Score:       result.Score,
		Source:      result.Source,
	}); err != nil {
		slog.WarnContext(ctx, "parse log not saved", "error", err)
	}
	return result, nil
}

func (s *Service) resolve(ctx context.Context, q Query, locale string) (*Result, error) {
	fallback := &Result{Intent: UnknownIntent, Source: SourceFallback, Locale: locale}
	if strings.TrimSpace(q.Text) == "" {
		return fallback, nil
	}

	sentence, err := s.repo.FindValidatedSentence(ctx, q.Namespace, q.Application, locale, q.Text)
	if err != nil {
		return nil, err
	}
	if sentence != nil {
		return &Result{Intent: sentence.Intent, Score: 1, Source: SourceSentence, Locale: locale}, nil
	}

	if s.classifier == nil {
		return fallback, nil
	}
	intents, err := s.Intents(ctx, q.Namespace, q.Application)
	if err != nil {
		return nil, err
	}
	if len(intents) == 0 {
		return fallback, nil
	}

	cctx, cancel := context.WithTimeout(ctx, config.NLPParse)
	defer cancel()
	c, err := s.classifier.Classify(cctx, q.Text, intents)
	if err != nil {
		slog.WarnContext(ctx, "intent classification failed, using unknown",
			"application", q.Application, "error", err)
		return fallback, nil
	}
	if c.Intent == UnknownIntent {
		fallback.Score = c.Score
		return fallback, nil
	}
	return &Result{Intent: c.Intent, Score: c.Score, Source: SourceClassifier, Locale: locale}, nil
}

// Intents returns the application's intent names in sorted order.
func (s *Service) Intents(ctx context.Context, namespace, application string) ([]string, error) {
	list, err := s.repo.GetIntents(ctx, namespace, application)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(list))
	for _, in := range list {
		names = append(names, in.Name)
	}
	slices.Sort(names)
	return names, nil
}

// SaveIntent declares an intent on an application.
func (s *Service) SaveIntent(ctx context.Context, namespace, application, name, description string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return domerrors.NewValidationError("intent", "name is required")
	}
	if name == UnknownIntent {
		return domerrors.NewValidationError("intent", "unknown is reserved")
	}
	return s.repo.SaveIntent(ctx, &storage.Intent{
		Namespace:   namespace,
		Application: application,
		Name:        name,
		Description: description,
	})
}

// DeleteIntent removes an intent.
func (s *Service) DeleteIntent(ctx context.Context, namespace, application, name string) error {
	return s.repo.DeleteIntent(ctx, namespace, application, name)
}

// SaveSentence stores a validated sentence. The intent must exist on the
// application, or be unknown.
func (s *Service) SaveSentence(ctx context.Context, sentence *storage.Sentence) error {
	if strings.TrimSpace(sentence.Text) == "" {
		return domerrors.NewValidationError("text", "is required")
	}
	locale, err := canonicalLocale(sentence.Locale, s.defaultLocale)
	if err != nil {
		return err
	}
	sentence.Locale = locale

	if sentence.Intent != UnknownIntent {
		intents, err := s.Intents(ctx, sentence.Namespace, sentence.Application)
		if err != nil {
			return err
		}
		if !slices.Contains(intents, sentence.Intent) {
			return domerrors.NewValidationError("intent", fmt.Sprintf("%q is not defined on %s", sentence.Intent, sentence.Application))
		}
	}
	return s.repo.SaveSentence(ctx, sentence)
}

// SearchSentences returns a page of validated sentences and the total count.
func (s *Service) SearchSentences(ctx context.Context, q storage.SentenceQuery) ([]storage.Sentence, int, error) {
	return s.repo.SearchSentences(ctx, q)
}

// Healthcheck fails when storage is unreachable. A missing classifier is
// not an error since parsing still works from validated sentences.
func (s *Service) Healthcheck(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		return fmt.Errorf("nlp storage: %w", err)
	}
	return nil
}

// HasClassifier reports whether an LLM classifier is configured.
func (s *Service) HasClassifier() bool { return s.classifier != nil }

func canonicalLocale(locale, fallback string) (string, error) {
	tag, err := language.Parse(orDefault(locale, fallback))
	if err != nil {
		return "", domerrors.NewValidationError("locale", fmt.Sprintf("%q is not a valid language tag", locale))
	}
	return tag.String(), nil
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func statusOf(err error) string {
	if err == nil {
		return "success"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}
