package install

import (
	"context"
	"fmt"

	"github.com/garyellow/convobot-go/internal/connector"
	"github.com/garyellow/convobot-go/internal/logger"
	"github.com/garyellow/convobot-go/internal/router"
	"github.com/garyellow/convobot-go/internal/storage"
	"github.com/garyellow/convobot-go/internal/story"
)

// Recorder receives installation metrics.
type Recorder interface {
	RecordInstall(connectorType, status string)
	RecordInstallDuration(duration float64)
	RecordConnectorRegistered(connectorType string)
}

// Monitor is told which bots are under active configuration.
type Monitor interface {
	Activate(botID, connectorID string, t connector.Type)
}

// CompanionFunc may return a second configuration to install next to primary.
type CompanionFunc func(bot *story.Bot, primary connector.Configuration) (connector.Configuration, bool)

// RestCompanion pairs every primary connector that is neither rest nor none
// with a REST connector <id>-rest owned by the primary type, so operators
// can talk to the bot without the external channel.
func RestCompanion(_ *story.Bot, primary connector.Configuration) (connector.Configuration, bool) {
	if primary.Type == connector.TypeRest || primary.Type == connector.TypeNone || primary.OwnerConnectorType != "" {
		return connector.Configuration{}, false
	}
	return connector.Configuration{
		ConnectorID:        primary.ConnectorID + "-rest",
		Type:               connector.TypeRest,
		OwnerConnectorType: primary.Type,
		Name:               primary.Name,
		BaseURL:            primary.BaseURL,
	}, true
}

// Installer installs the connectors of one bot.
type Installer struct {
	connectors *connector.Registry
	store      storage.ConfigurationRepository
	router     *router.Router
	monitor    Monitor
	companion  CompanionFunc
	namespace  *defaultNamespace
	metrics    Recorder
	logger     *logger.Logger
}

// Install installs bot on every declared configuration, in order.
// The first error aborts the installation of the bot.
func (in *Installer) Install(ctx context.Context, bot *story.Bot, d connector.Dispatcher, declared []connector.Configuration) error {
	records, err := in.store.GetConfigurationsByBotID(ctx, bot.BotID)
	if err != nil {
		return fmt.Errorf("load configurations of %s: %w", bot.BotID, err)
	}
	existing := make(map[string]*storage.ApplicationConfiguration, len(records))
	byConnectorID := make(map[string]connector.Configuration, len(records))
	for i := range records {
		existing[records[i].ApplicationID] = &records[i]
		byConnectorID[records[i].ConnectorID] = records[i].Connector()
	}

	for _, cfg := range declared {
		primary, err := in.installOne(ctx, bot, d, cfg, existing, byConnectorID)
		if err != nil {
			return err
		}
		if in.companion == nil {
			continue
		}
		if extra, ok := in.companion(bot, primary); ok {
			if _, err := in.installOne(ctx, bot, d, extra, existing, byConnectorID); err != nil {
				return fmt.Errorf("companion of %s: %w", primary.ConnectorID, err)
			}
		}
	}
	return nil
}

func (in *Installer) installOne(
	ctx context.Context,
	bot *story.Bot,
	d connector.Dispatcher,
	declared connector.Configuration,
	existing map[string]*storage.ApplicationConfiguration,
	byConnectorID map[string]connector.Configuration,
) (connector.Configuration, error) {
	log := in.logger.WithField("bot_id", bot.BotID).WithField("connector_type", string(declared.Type))

	provider, err := in.connectors.Resolve(declared.Type)
	if err != nil {
		in.record(declared.Type, "unresolved")
		return declared, fmt.Errorf("install %s: %w", bot.BotID, err)
	}

	declared = declared.Clone()
	declared.ConnectorID = declared.ApplicationID(bot.BotID)
	cfg := Reconcile(declared, byConnectorID)
	log = log.WithField("connector_id", cfg.ConnectorID)

	conn, err := provider.New(cfg, cfg.RoutePath(bot.BotID))
	if err != nil {
		in.record(cfg.Type, "error")
		return cfg, fmt.Errorf("instantiate connector %s of %s: %w", cfg.ConnectorID, bot.BotID, err)
	}

	if in.namespace.setOnce(bot.Namespace) {
		log.WithField("namespace", bot.Namespace).Info("Default namespace set by first installed bot")
	}

	status, err := in.persist(ctx, bot, cfg, existing[cfg.ConnectorID])
	if err != nil {
		in.record(cfg.Type, "error")
		return cfg, err
	}

	if err := in.router.RegisterConnector(bot, conn, d); err != nil {
		in.record(cfg.Type, "error")
		return cfg, fmt.Errorf("register connector %s of %s: %w", cfg.ConnectorID, bot.BotID, err)
	}
	if in.monitor != nil {
		in.monitor.Activate(bot.BotID, cfg.ConnectorID, cfg.Type)
	}

	in.record(cfg.Type, status)
	if in.metrics != nil {
		in.metrics.RecordConnectorRegistered(string(cfg.Type))
	}
	log.WithField("path", conn.Path()).
		WithField("configuration", status).
		Info("Connector installed")
	return cfg, nil
}

// persist writes the application configuration and returns created, updated
// or preserved. A record edited by an operator is preserved unless a
// structural field changed.
func (in *Installer) persist(ctx context.Context, bot *story.Bot, cfg connector.Configuration, prev *storage.ApplicationConfiguration) (string, error) {
	rec := &storage.ApplicationConfiguration{
		ApplicationID:      cfg.ConnectorID,
		BotID:              bot.BotID,
		Namespace:          bot.Namespace,
		NLPModel:           bot.NLPModel,
		ConnectorID:        cfg.ConnectorID,
		ConnectorType:      cfg.Type,
		OwnerConnectorType: cfg.OwnerConnectorType,
		Name:               cfg.DisplayName(bot.BotID),
		BaseURL:            cfg.BaseURL,
		Path:               cfg.RoutePath(bot.BotID),
		Parameters:         cfg.Parameters,
		ManuallyModified:   cfg.ManuallyModified,
	}

	switch {
	case prev == nil:
		if err := in.store.SaveConfiguration(ctx, rec); err != nil {
			return "", fmt.Errorf("persist configuration %s: %w", rec.ApplicationID, err)
		}
		return "created", nil

	case prev.ManuallyModified:
		if sameStructure(prev, rec) {
			return "preserved", nil
		}
		rec.ID = prev.ID
		if err := in.store.SaveConfiguration(ctx, rec); err != nil {
			return "", fmt.Errorf("persist configuration %s: %w", rec.ApplicationID, err)
		}
		return "updated", nil

	default:
		rec.ID = prev.ID
		written, err := in.store.UpdateConfigurationIfNotManuallyModified(ctx, rec)
		if err != nil {
			return "", fmt.Errorf("persist configuration %s: %w", rec.ApplicationID, err)
		}
		if !written {
			// An operator edited the record since it was loaded.
			return "preserved", nil
		}
		return "updated", nil
	}
}

func sameStructure(a, b *storage.ApplicationConfiguration) bool {
	return a.Namespace == b.Namespace &&
		a.NLPModel == b.NLPModel &&
		a.ConnectorID == b.ConnectorID &&
		a.ConnectorType == b.ConnectorType &&
		a.OwnerConnectorType == b.OwnerConnectorType
}

func (in *Installer) record(t connector.Type, status string) {
	if in.metrics != nil {
		in.metrics.RecordInstall(string(t), status)
	}
}
