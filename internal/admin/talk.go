package admin

import (
	"context"
	"fmt"

	"github.com/garyellow/convobot-go/internal/connector"
	"github.com/garyellow/convobot-go/internal/connector/rest"
	domerrors "github.com/garyellow/convobot-go/internal/errors"
	"github.com/garyellow/convobot-go/internal/storage"
)

// TechnicalError is the answer of a talk that could not reach the connector.
const TechnicalError = "technical error :("

// TalkRequest sends a test message through a configured connector.
type TalkRequest struct {
	ConfigurationID string `json:"configurationId" validate:"required"`
	UserID          string `json:"userId" validate:"required,max=256"`
	Text            string `json:"text" validate:"required,max=5000"`
	Locale          string `json:"locale" validate:"omitempty,bcp47_language_tag"`
}

// TalkResponse is the bot answer seen through the connector.
type TalkResponse struct {
	Messages []connector.Message `json:"messages"`
	// Degraded is set when the connector could not be reached.
	Degraded bool `json:"degraded,omitempty"`
}

// Talk sends req through the REST connector of the configuration, or the
// REST companion of a non-REST configuration. Lookup and validation
// failures are errors; once a target is resolved, any transport failure or
// non-2xx answer yields the TechnicalError sentence instead of an error.
func (s *Service) Talk(ctx context.Context, namespace string, req TalkRequest) (*TalkResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	cfg, err := s.configuration(ctx, namespace, req.ConfigurationID)
	if err != nil {
		return nil, err
	}
	target, err := s.talkTarget(ctx, cfg)
	if err != nil {
		return nil, err
	}

	baseURL := target.BaseURL
	if baseURL == "" {
		baseURL = s.selfBaseURL
	}
	log := s.logger.WithFields(map[string]any{
		"bot_id":       target.BotID,
		"connector_id": target.ConnectorID,
		"base_url":     baseURL,
	})

	resp, err := s.clients.Get(baseURL).Talk(ctx, target.Path, rest.Request{
		UserID: req.UserID,
		Text:   req.Text,
		Locale: req.Locale,
	})
	if err != nil {
		log.WithError(err).Warn("Talk failed")
		s.recordTalk("degraded")
		return &TalkResponse{
			Messages: []connector.Message{{Text: TechnicalError}},
			Degraded: true,
		}, nil
	}

	s.recordTalk("success")
	return &TalkResponse{Messages: connector.PlainMessages(resp.Messages)}, nil
}

func (s *Service) talkTarget(ctx context.Context, cfg *storage.ApplicationConfiguration) (*storage.ApplicationConfiguration, error) {
	if cfg.ConnectorType == connector.TypeRest {
		return cfg, nil
	}
	siblings, err := s.configurations.GetConfigurationsByBotID(ctx, cfg.BotID)
	if err != nil {
		return nil, err
	}
	companionID := cfg.ConnectorID + "-rest"
	for i := range siblings {
		c := &siblings[i]
		if c.ConnectorType == connector.TypeRest && c.ConnectorID == companionID && c.Namespace == cfg.Namespace {
			return c, nil
		}
	}
	return nil, domerrors.NewValidationError("configurationId",
		fmt.Sprintf("%s connector %s has no REST endpoint to talk to", cfg.ConnectorType, cfg.ConnectorID))
}

func (s *Service) recordTalk(status string) {
	if s.metrics != nil {
		s.metrics.RecordTalk(status)
	}
}
