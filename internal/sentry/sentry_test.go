package sentry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyellow/convobot-go/internal/ctxutil"
)

func TestInitialize_EmptyToken(t *testing.T) {
	require.NoError(t, Initialize(Config{Token: ""}))
}

func TestInitialize_MissingHost(t *testing.T) {
	err := Initialize(Config{Token: "test-token", Host: ""})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host")
}

func TestInitialize_ValidConfig(t *testing.T) {
	// Sentry keeps global state; not parallel.
	err := Initialize(Config{
		Token:       "test-token",
		Host:        "errors.betterstack.com",
		Environment: "test",
	})
	require.NoError(t, err)
	assert.True(t, IsEnabled())

	ctx := ctxutil.WithBotID(context.Background(), "support")
	assert.NotPanics(t, func() {
		CaptureExceptionWithContext(ctx, errors.New("boom"))
		CaptureExceptionWithContext(ctx, nil)
	})
	Flush(100 * time.Millisecond)
}

func TestMiddleware_RepanicsIntoRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery(), Middleware())
	r.GET("/panic", func(*gin.Context) { panic("handler bug") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
