package connector

import "github.com/gin-gonic/gin"

// NoneProvider builds placeholder connectors used when no connector is declared.
type NoneProvider struct{}

// Type returns TypeNone.
func (NoneProvider) Type() Type { return TypeNone }

// New returns a connector that performs no I/O.
func (NoneProvider) New(cfg Configuration, path string) (Connector, error) {
	return noneConnector{id: cfg.ConnectorID, path: path}, nil
}

type noneConnector struct {
	id   string
	path string
}

func (c noneConnector) ID() string                      { return c.id }
func (c noneConnector) Type() Type                      { return TypeNone }
func (c noneConnector) Path() string                    { return c.path }
func (c noneConnector) Register(gin.IRoutes, Dispatcher) {}
