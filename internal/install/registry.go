package install

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyellow/convobot-go/internal/connector"
	domerrors "github.com/garyellow/convobot-go/internal/errors"
	"github.com/garyellow/convobot-go/internal/logger"
	"github.com/garyellow/convobot-go/internal/router"
	"github.com/garyellow/convobot-go/internal/sentry"
	"github.com/garyellow/convobot-go/internal/sliceutil"
	"github.com/garyellow/convobot-go/internal/storage"
	"github.com/garyellow/convobot-go/internal/story"
)

// Applications creates or verifies the NLP application backing a bot model
// and declares the intents its stories answer.
type Applications interface {
	CreateApplication(ctx context.Context, namespace, model, locale string) error
	Intents(ctx context.Context, namespace, application string) ([]string, error)
	SaveIntent(ctx context.Context, namespace, application, name, description string) error
}

// DispatcherFactory returns the dispatcher shared by every connector of bot.
type DispatcherFactory func(bot *story.Bot) (connector.Dispatcher, error)

// Service is an auxiliary handler mounted next to the connectors.
// A blank name is generated.
type Service struct {
	Name    string
	Handler gin.HandlerFunc
}

// Config holds the collaborators of a Registry.
type Config struct {
	Connectors   *connector.Registry
	Store        storage.ConfigurationRepository
	Router       *router.Router
	Applications Applications
	Dispatchers  DispatcherFactory
	Monitor      Monitor
	Companion    CompanionFunc
	// DefaultNamespace pre-seeds the default namespace; empty lets the
	// first installed bot set it.
	DefaultNamespace string
	DefaultLocale    string
	Metrics          Recorder
	Logger           *logger.Logger
}

// defaultNamespace is set at most once for the process lifetime.
type defaultNamespace struct {
	p atomic.Pointer[string]
}

func (n *defaultNamespace) setOnce(ns string) bool {
	if ns == "" {
		return false
	}
	return n.p.CompareAndSwap(nil, &ns)
}

func (n *defaultNamespace) get() (string, bool) {
	if p := n.p.Load(); p != nil {
		return *p, true
	}
	return "", false
}

// Registry is the installation orchestrator.
type Registry struct {
	cfg       Config
	namespace defaultNamespace
	logger    *logger.Logger

	mu        sync.Mutex
	providers []story.BotProvider
	bots      []*story.Bot
}

// NewRegistry creates a registry. Connectors, Store, Router and Dispatchers are required.
func NewRegistry(cfg Config) *Registry {
	r := &Registry{cfg: cfg, logger: cfg.Logger.WithModule("install")}
	r.namespace.setOnce(cfg.DefaultNamespace)
	return r
}

// AddBot registers a bot provider for the next InstallAll.
func (r *Registry) AddBot(providers ...story.BotProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, providers...)
}

// DefaultNamespace returns the process default namespace once set.
func (r *Registry) DefaultNamespace() (string, bool) {
	return r.namespace.get()
}

// Bots returns the bots built by the last InstallAll.
func (r *Registry) Bots() []*story.Bot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*story.Bot(nil), r.bots...)
}

// Bot returns an installed bot by id.
func (r *Registry) Bot(botID string) (*story.Bot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bots {
		if b.BotID == botID {
			return b, true
		}
	}
	return nil, false
}

// InstallAll installs every registered bot on the declared configurations,
// creates the NLP applications, attaches services and deploys the router.
// Integrity and installation errors abort before deployment.
func (r *Registry) InstallAll(ctx context.Context, services []Service, declared []connector.Configuration) error {
	start := time.Now()

	if len(declared) == 0 {
		declared = []connector.Configuration{{Type: connector.TypeNone}}
	}
	if err := CheckIntegrity(declared); err != nil {
		return err
	}

	r.mu.Lock()
	providers := append([]story.BotProvider(nil), r.providers...)
	r.mu.Unlock()

	bots := make([]*story.Bot, 0, len(providers))
	for _, p := range providers {
		def, err := p.BotDefinition(ctx)
		if err != nil {
			return fmt.Errorf("build bot definition: %w", err)
		}
		b, err := def.Build()
		if err != nil {
			return err
		}
		bots = append(bots, b)
	}
	if err := r.checkCompanions(bots, declared); err != nil {
		return err
	}

	installer := &Installer{
		connectors: r.cfg.Connectors,
		store:      r.cfg.Store,
		router:     r.cfg.Router,
		monitor:    r.cfg.Monitor,
		companion:  r.cfg.Companion,
		namespace:  &r.namespace,
		metrics:    r.cfg.Metrics,
		logger:     r.logger,
	}
	for _, b := range bots {
		d, err := r.cfg.Dispatchers(b)
		if err != nil {
			return fmt.Errorf("create dispatcher of %s: %w", b.BotID, err)
		}
		if err := installer.Install(ctx, b, d, declared); err != nil {
			sentry.CaptureExceptionWithContext(ctx, err)
			return err
		}
	}

	r.mu.Lock()
	r.bots = bots
	r.mu.Unlock()

	r.createApplications(ctx, bots)

	for i, s := range services {
		name := s.Name
		if name == "" {
			name = fmt.Sprintf("service-%d", i+1)
		}
		if err := r.cfg.Router.RegisterServices(name, s.Handler); err != nil {
			return fmt.Errorf("attach service %s: %w", name, err)
		}
	}

	if err := r.cfg.Router.Deploy(); err != nil {
		return err
	}

	if r.cfg.Metrics != nil {
		r.cfg.Metrics.RecordInstallDuration(time.Since(start).Seconds())
	}
	ns, _ := r.DefaultNamespace()
	r.logger.WithFields(map[string]any{
		"bots":              len(bots),
		"connectors":        len(r.cfg.Router.Bindings()),
		"default_namespace": ns,
		"duration_ms":       time.Since(start).Milliseconds(),
	}).Info("Bots installed")
	return nil
}

// createApplications asks the NLP service for one application per distinct
// (namespace, model) and declares the intents of the bots sharing it.
// Failures are logged: NLP availability is eventually consistent and never
// blocks serving.
func (r *Registry) createApplications(ctx context.Context, bots []*story.Bot) {
	if r.cfg.Applications == nil {
		return
	}
	type key struct{ namespace, model string }
	keyOf := func(b *story.Bot) key { return key{b.Namespace, b.NLPModel} }

	intents := make(map[key][]string)
	for _, b := range bots {
		k := keyOf(b)
		for _, intent := range b.Intents() {
			if !slices.Contains(intents[k], intent) {
				intents[k] = append(intents[k], intent)
			}
		}
	}

	for _, b := range sliceutil.Deduplicate(bots, keyOf) {
		locale := b.Locale
		if locale == "" {
			locale = r.cfg.DefaultLocale
		}
		log := r.logger.WithField("namespace", b.Namespace).WithField("nlp_model", b.NLPModel)
		if err := r.cfg.Applications.CreateApplication(ctx, b.Namespace, b.NLPModel, locale); err != nil {
			log.WithError(err).Warn("NLP application not available")
			continue
		}
		declared, err := r.declareIntents(ctx, b.Namespace, b.NLPModel, intents[keyOf(b)])
		if err != nil {
			log.WithError(err).Warn("NLP intents not declared")
		}
		log.WithField("locale", locale).WithField("declared_intents", declared).Info("NLP application ready")
	}
}

// declareIntents saves the intents missing from the application. Existing
// intents are left alone so operator descriptions survive a restart.
func (r *Registry) declareIntents(ctx context.Context, namespace, model string, intents []string) (int, error) {
	if len(intents) == 0 {
		return 0, nil
	}
	existing, err := r.cfg.Applications.Intents(ctx, namespace, model)
	if err != nil {
		return 0, err
	}
	declared := 0
	for _, intent := range intents {
		if slices.Contains(existing, intent) {
			continue
		}
		if err := r.cfg.Applications.SaveIntent(ctx, namespace, model, intent, ""); err != nil {
			return declared, fmt.Errorf("declare intent %q: %w", intent, err)
		}
		declared++
	}
	return declared, nil
}

// checkCompanions fails when a companion configuration would reuse the
// connector id of a declared configuration or of another companion.
func (r *Registry) checkCompanions(bots []*story.Bot, declared []connector.Configuration) error {
	if r.cfg.Companion == nil {
		return nil
	}
	for _, b := range bots {
		planned := make([]connector.Configuration, 0, 2*len(declared))
		for _, c := range declared {
			primary := c.Clone()
			primary.ConnectorID = primary.ApplicationID(b.BotID)
			if c.HasExplicitID() {
				planned = append(planned, primary)
			}
			if extra, ok := r.cfg.Companion(b, primary); ok {
				planned = append(planned, extra)
			}
		}
		if err := CheckIntegrity(planned); err != nil {
			return fmt.Errorf("bot %s companions: %w", b.BotID, err)
		}
	}
	return nil
}

// CheckIntegrity fails with a ConfigurationIntegrityError when a non-blank
// connector id is declared more than once.
func CheckIntegrity(declared []connector.Configuration) error {
	counts := make(map[string]int)
	for _, c := range declared {
		if c.HasExplicitID() {
			counts[c.ConnectorID]++
		}
	}
	groups := make(map[string]int)
	for id, n := range counts {
		if n > 1 {
			groups[id] = n
		}
	}
	if len(groups) > 0 {
		return &domerrors.ConfigurationIntegrityError{Groups: groups}
	}
	return nil
}
