// Package rest provides the JSON test connector and the client used to talk
// to it. The connector accepts POST {userId, text, locale} on its path and
// answers {messages: [{text}]}.
package rest

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyellow/convobot-go/internal/connector"
	"github.com/garyellow/convobot-go/internal/ctxutil"
)

// Request is the inbound payload of the REST connector.
type Request struct {
	UserID string `json:"userId" binding:"required"`
	Text   string `json:"text"`
	Locale string `json:"locale,omitempty"`
}

// Response is the answer payload of the REST connector.
type Response struct {
	Messages []connector.Message `json:"messages"`
}

// Provider builds REST connectors.
type Provider struct{}

var _ connector.Provider = Provider{}

// Type returns connector.TypeRest.
func (Provider) Type() connector.Type { return connector.TypeRest }

// New builds a connector serving path.
func (Provider) New(cfg connector.Configuration, path string) (connector.Connector, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, errors.New("rest connector path must start with /")
	}
	return &Connector{id: cfg.ConnectorID, path: path}, nil
}

// Connector serves one REST endpoint.
type Connector struct {
	id   string
	path string
}

func (c *Connector) ID() string           { return c.id }
func (c *Connector) Type() connector.Type { return connector.TypeRest }
func (c *Connector) Path() string         { return c.path }

// Register mounts POST Path.
func (c *Connector) Register(r gin.IRoutes, d connector.Dispatcher) {
	r.POST(c.path, c.handle(d))
}

func (c *Connector) handle(d connector.Dispatcher) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req Request
		if err := ctx.ShouldBindJSON(&req); err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: userId is required"})
			return
		}

		reqCtx := ctx.Request.Context()
		if id := ctx.GetHeader("X-Request-ID"); id != "" {
			reqCtx = ctxutil.WithRequestID(reqCtx, id)
		}

		msgs, err := d.Dispatch(reqCtx, connector.Event{
			ConnectorID:   c.id,
			ConnectorType: connector.TypeRest,
			UserID:        req.UserID,
			Text:          req.Text,
			Locale:        req.Locale,
			ReceivedAt:    time.Now(),
		})
		if err != nil {
			_ = ctx.Error(err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "dispatch failed"})
			return
		}
		ctx.JSON(http.StatusOK, Response{Messages: connector.PlainMessages(msgs)})
	}
}
