// Package router is the shared routing surface connectors and auxiliary
// services are installed on. Registrations are rejected once the surface
// is deployed.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/garyellow/convobot-go/internal/connector"
	"github.com/garyellow/convobot-go/internal/story"
)

// ErrDeployed is returned when registering on a deployed surface.
var ErrDeployed = errors.New("routing surface already deployed")

// Binding records one connector installed for one bot.
type Binding struct {
	BotID         string         `json:"botId"`
	Namespace     string         `json:"namespace"`
	ConnectorID   string         `json:"connectorId"`
	ConnectorType connector.Type `json:"connectorType"`
	Path          string         `json:"path"`
}

// Options configures a Router.
type Options struct {
	// Gate runs before every connector route, e.g. a readiness check.
	Gate gin.HandlerFunc
	// OnDeploy is called once when Deploy succeeds.
	OnDeploy func()
}

// Router mounts connectors and services on a gin engine.
type Router struct {
	routes   gin.IRoutes
	engine   *gin.Engine
	onDeploy func()

	mu          sync.Mutex
	bindings    []Binding
	paths       map[string]string
	services    []string
	shutdowners []connector.Shutdowner
	deployed    bool
}

// New creates a router on engine.
func New(engine *gin.Engine, opts Options) *Router {
	var routes gin.IRoutes = engine
	if opts.Gate != nil {
		routes = engine.Group("", opts.Gate)
	}
	return &Router{
		routes:   routes,
		engine:   engine,
		onDeploy: opts.OnDeploy,
		paths:    make(map[string]string),
	}
}

// RegisterConnector mounts conn for bot with d as its dispatcher.
// Two connectors may not share a path.
func (r *Router) RegisterConnector(bot *story.Bot, conn connector.Connector, d connector.Dispatcher) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.deployed {
		return ErrDeployed
	}
	path := conn.Path()
	if owner, taken := r.paths[path]; taken {
		return fmt.Errorf("path %s of connector %s already used by %s", path, conn.ID(), owner)
	}

	conn.Register(r.routes, d)
	r.paths[path] = bot.BotID + "/" + conn.ID()
	r.bindings = append(r.bindings, Binding{
		BotID:         bot.BotID,
		Namespace:     bot.Namespace,
		ConnectorID:   conn.ID(),
		ConnectorType: conn.Type(),
		Path:          path,
	})
	if s, ok := conn.(connector.Shutdowner); ok {
		r.shutdowners = append(r.shutdowners, s)
	}
	return nil
}

// RegisterServices mounts an auxiliary handler on GET and HEAD /<name>.
func (r *Router) RegisterServices(name string, h gin.HandlerFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.deployed {
		return ErrDeployed
	}
	name = strings.Trim(name, "/")
	if name == "" {
		return errors.New("service name is required")
	}
	path := "/" + name
	if owner, taken := r.paths[path]; taken {
		return fmt.Errorf("service path %s already used by %s", path, owner)
	}
	r.engine.GET(path, h)
	r.engine.HEAD(path, h)
	r.paths[path] = "service:" + name
	r.services = append(r.services, name)
	return nil
}

// Deploy freezes the surface and starts serving connector traffic.
func (r *Router) Deploy() error {
	r.mu.Lock()
	if r.deployed {
		r.mu.Unlock()
		return ErrDeployed
	}
	r.deployed = true
	r.mu.Unlock()

	if r.onDeploy != nil {
		r.onDeploy()
	}
	return nil
}

// Deployed reports whether Deploy was called.
func (r *Router) Deployed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deployed
}

// Bindings returns the installed connectors in registration order.
func (r *Router) Bindings() []Binding {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Binding(nil), r.bindings...)
}

// Services returns the registered service names.
func (r *Router) Services() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.services...)
}

// Shutdown waits for connectors processing events asynchronously.
func (r *Router) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	shutdowners := append([]connector.Shutdowner(nil), r.shutdowners...)
	r.mu.Unlock()

	var errs []error
	for _, s := range shutdowners {
		if err := s.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
