package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/garyellow/convobot-go/internal/connector"
)

// Declarations is the content of the connector declarations file.
//
//	bots:
//	  - id: support
//	    namespace: acme
//	    nlpModel: support
//	connectors:
//	  - connectorId: support-line
//	    type: line
//	    parameters:
//	      channelSecret: ...
type Declarations struct {
	Bots       []BotDeclaration       `yaml:"bots" validate:"dive"`
	Connectors []ConnectorDeclaration `yaml:"connectors" validate:"dive"`
}

// BotDeclaration declares one bot served by this process.
type BotDeclaration struct {
	ID           string `yaml:"id" validate:"required,excludesall=/ "`
	Namespace    string `yaml:"namespace" validate:"required"`
	NLPModel     string `yaml:"nlpModel"`
	Locale       string `yaml:"locale" validate:"omitempty,bcp47_language_tag"`
	UnknownStory string `yaml:"unknownStory"`
}

// ConnectorDeclaration declares one connector configuration shared by all bots.
type ConnectorDeclaration struct {
	ConnectorID string            `yaml:"connectorId" validate:"excludesall=/ "`
	Type        string            `yaml:"type" validate:"required"`
	Name        string            `yaml:"name"`
	BaseURL     string            `yaml:"baseUrl" validate:"omitempty,url"`
	Path        string            `yaml:"path" validate:"omitempty,startswith=/"`
	Parameters  map[string]string `yaml:"parameters"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadDeclarations reads and validates a declarations file.
// An empty path yields empty declarations.
func LoadDeclarations(path string) (*Declarations, error) {
	if path == "" {
		return &Declarations{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read declarations %s: %w", path, err)
	}
	return ParseDeclarations(raw)
}

// ParseDeclarations decodes and validates YAML declarations.
func ParseDeclarations(raw []byte) (*Declarations, error) {
	var d Declarations
	if len(strings.TrimSpace(string(raw))) == 0 {
		return &d, nil
	}
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("parse declarations: %w", err)
	}
	if err := validate.Struct(&d); err != nil {
		return nil, describeValidation(err)
	}
	return &d, nil
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate declarations: %w", err)
	}
	problems := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, fmt.Errorf("%s: failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid declarations: %w", errors.Join(problems...))
}

// ToConfigurations converts connector declarations in declaration order.
func (d *Declarations) ToConfigurations() []connector.Configuration {
	out := make([]connector.Configuration, 0, len(d.Connectors))
	for _, c := range d.Connectors {
		params := make(map[string]string, len(c.Parameters))
		for k, v := range c.Parameters {
			params[k] = v
		}
		out = append(out, connector.Configuration{
			ConnectorID: strings.TrimSpace(c.ConnectorID),
			Type:        connector.Type(strings.ToLower(c.Type)),
			Name:        c.Name,
			BaseURL:     c.BaseURL,
			Path:        c.Path,
			Parameters:  params,
		})
	}
	return out
}
