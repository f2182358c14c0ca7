package admin

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/garyellow/convobot-go/internal/connector/rest"
)

// DedupRecorder counts callers that waited on another caller's construction.
type DedupRecorder interface {
	RecordSingleflightDedup(module string)
}

// ClientCache holds one REST client per base URL. Concurrent first calls for
// the same base URL share a single construction.
type ClientCache struct {
	clients sync.Map // base URL -> *rest.Client
	group   singleflight.Group
	timeout time.Duration
	metrics DedupRecorder
}

// NewClientCache creates a cache whose clients use timeout. metrics may be nil.
func NewClientCache(timeout time.Duration, metrics DedupRecorder) *ClientCache {
	return &ClientCache{timeout: timeout, metrics: metrics}
}

// Get returns the client for baseURL, creating it if absent.
func (c *ClientCache) Get(baseURL string) *rest.Client {
	key := strings.TrimRight(baseURL, "/")
	if v, ok := c.clients.Load(key); ok {
		return v.(*rest.Client)
	}

	v, _, shared := c.group.Do(key, func() (any, error) {
		if v, ok := c.clients.Load(key); ok {
			return v, nil
		}
		client := rest.NewClient(key, c.timeout)
		c.clients.Store(key, client)
		return client, nil
	})
	if shared && c.metrics != nil {
		c.metrics.RecordSingleflightDedup("admin")
	}
	return v.(*rest.Client)
}

// Len returns the number of cached clients.
func (c *ClientCache) Len() int {
	n := 0
	c.clients.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
