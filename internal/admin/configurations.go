package admin

import (
	"context"
	"fmt"
	"maps"

	domerrors "github.com/garyellow/convobot-go/internal/errors"
	"github.com/garyellow/convobot-go/internal/storage"
)

// ConfigurationUpdate is an operator edit. Nil fields are left unchanged;
// Parameters replaces the whole map when set.
type ConfigurationUpdate struct {
	Name       *string           `json:"name" validate:"omitempty,max=256"`
	BaseURL    *string           `json:"baseUrl" validate:"omitempty,url"`
	Path       *string           `json:"path" validate:"omitempty,startswith=/"`
	Parameters map[string]string `json:"parameters"`
}

// GetConfiguration returns the configuration with surrogate id. A
// configuration of another namespace fails with ErrUnauthorized.
func (s *Service) GetConfiguration(ctx context.Context, namespace, id string) (*storage.ApplicationConfiguration, error) {
	return s.configuration(ctx, namespace, id)
}

// BotConfigurations lists the configurations of botID in the caller's namespace.
func (s *Service) BotConfigurations(ctx context.Context, namespace, botID string) ([]storage.ApplicationConfiguration, error) {
	all, err := s.configurations.GetConfigurationsByBotID(ctx, botID)
	if err != nil {
		return nil, err
	}
	out := make([]storage.ApplicationConfiguration, 0, len(all))
	for _, c := range all {
		if c.Namespace == namespace {
			out = append(out, c)
		}
	}
	if len(out) == 0 && len(all) > 0 {
		return nil, fmt.Errorf("configurations of %s: %w", botID, domerrors.ErrUnauthorized)
	}
	return out, nil
}

// UpdateConfiguration applies an operator edit and marks the record
// manually modified, so later installations keep the edited values.
// Running connectors pick the change up on the next installation.
func (s *Service) UpdateConfiguration(ctx context.Context, namespace, id string, upd ConfigurationUpdate) (*storage.ApplicationConfiguration, error) {
	if err := validateRequest(upd); err != nil {
		return nil, err
	}
	cfg, err := s.configuration(ctx, namespace, id)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		cfg.Name = *upd.Name
	}
	if upd.BaseURL != nil {
		cfg.BaseURL = *upd.BaseURL
	}
	if upd.Path != nil {
		cfg.Path = *upd.Path
	}
	if upd.Parameters != nil {
		cfg.Parameters = maps.Clone(upd.Parameters)
	}
	cfg.ManuallyModified = true

	if err := s.configurations.SaveConfiguration(ctx, cfg); err != nil {
		return nil, domerrors.NewWrapper("admin", "update_configuration").Wrap(err, "failed to save configuration")
	}
	s.logger.WithFields(map[string]any{
		"bot_id":       cfg.BotID,
		"connector_id": cfg.ConnectorID,
	}).Info("Configuration edited by operator")
	return cfg, nil
}

func (s *Service) configuration(ctx context.Context, namespace, id string) (*storage.ApplicationConfiguration, error) {
	cfg, err := s.configurations.GetConfigurationByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("configuration %s: %w", id, domerrors.ErrNotFound)
	}
	if cfg.Namespace != namespace {
		return nil, fmt.Errorf("configuration %s: %w", id, domerrors.ErrUnauthorized)
	}
	return cfg, nil
}
