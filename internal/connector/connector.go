// Package connector defines the adapter model between external channels and
// the bot engine, and the registry of connector providers keyed by type.
package connector

import (
	"context"
	"maps"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Type identifies a connector implementation.
type Type string

// Built-in connector types.
const (
	TypeNone Type = "none"
	TypeRest Type = "rest"
	TypeLine Type = "line"
)

// Configuration describes one connector instance of a bot.
// A blank ConnectorID means "derive from the bot id".
type Configuration struct {
	ConnectorID        string            `json:"connectorId"`
	Type               Type              `json:"type"`
	OwnerConnectorType Type              `json:"ownerConnectorType,omitempty"`
	Name               string            `json:"name,omitempty"`
	BaseURL            string            `json:"baseUrl,omitempty"`
	Path               string            `json:"path,omitempty"`
	Parameters         map[string]string `json:"parameters,omitempty"`
	ManuallyModified   bool              `json:"manuallyModified,omitempty"`
}

// HasExplicitID reports whether the configuration carries a non-blank connector id.
func (c Configuration) HasExplicitID() bool {
	return strings.TrimSpace(c.ConnectorID) != ""
}

// ApplicationID returns the connector id, or botID when the id is blank.
func (c Configuration) ApplicationID(botID string) string {
	if c.HasExplicitID() {
		return c.ConnectorID
	}
	return botID
}

// DisplayName returns the configured name, or botID when blank.
func (c Configuration) DisplayName(botID string) string {
	if strings.TrimSpace(c.Name) != "" {
		return c.Name
	}
	return botID
}

// RoutePath returns the configured path or the default /io/<bot>/<application>.
func (c Configuration) RoutePath(botID string) string {
	if c.Path != "" {
		return c.Path
	}
	return "/io/" + botID + "/" + c.ApplicationID(botID)
}

// Parameter returns a parameter value or fallback when unset.
func (c Configuration) Parameter(key, fallback string) string {
	if v, ok := c.Parameters[key]; ok && v != "" {
		return v
	}
	return fallback
}

// Clone returns a deep copy.
func (c Configuration) Clone() Configuration {
	c.Parameters = maps.Clone(c.Parameters)
	return c
}

// Event is an inbound user message decoded by a connector.
type Event struct {
	ConnectorID   string
	ConnectorType Type
	UserID        string
	Text          string
	Locale        string
	ReceivedAt    time.Time
}

// Message is one bot answer sent back through a connector.
type Message struct {
	Text string `json:"text"`
}

// Dispatcher is the engine side of a connector.
type Dispatcher interface {
	Dispatch(ctx context.Context, event Event) ([]Message, error)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, event Event) ([]Message, error)

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(ctx context.Context, event Event) ([]Message, error) {
	return f(ctx, event)
}

// Connector translates one channel's wire format to engine events.
type Connector interface {
	ID() string
	Type() Type
	Path() string
	// Register mounts inbound endpoints under Path. Connectors without
	// inbound traffic register nothing.
	Register(r gin.IRoutes, d Dispatcher)
}

// Shutdowner is implemented by connectors that process events asynchronously.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// Provider builds connectors of one type.
type Provider interface {
	Type() Type
	New(cfg Configuration, path string) (Connector, error)
}
