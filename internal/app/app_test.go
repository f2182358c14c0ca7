package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyellow/convobot-go/internal/config"
	domerrors "github.com/garyellow/convobot-go/internal/errors"
	"github.com/garyellow/convobot-go/internal/logger"
	"github.com/garyellow/convobot-go/internal/metrics"
	"github.com/garyellow/convobot-go/internal/nlp"
	"github.com/garyellow/convobot-go/internal/readiness"
	"github.com/garyellow/convobot-go/internal/router"
	"github.com/garyellow/convobot-go/internal/storage"
)

// setupTestApp creates a minimal Application for testing health endpoints.
func setupTestApp(t *testing.T) *Application {
	t.Helper()

	db, err := storage.New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	m := metrics.New(prometheus.NewRegistry())
	return &Application{
		cfg:       &config.Config{},
		db:        db,
		metrics:   m,
		logger:    logger.New("error"),
		nlp:       nlp.NewService(db, nil, m, "en"),
		router:    router.New(gin.New(), router.Options{}),
		readiness: readiness.New(time.Hour),
	}
}

func serve(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestLivenessCheck(t *testing.T) {
	t.Parallel()
	app := setupTestApp(t)

	r := gin.New()
	r.GET("/livez", app.livenessCheck)

	w := serve(r, http.MethodGet, "/livez", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alive", decode(t, w)["status"])
}

func TestReadinessCheck(t *testing.T) {
	t.Parallel()
	app := setupTestApp(t)

	r := gin.New()
	r.GET("/readyz", app.readinessCheck)

	w := serve(r, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "installation in progress", decode(t, w)["reason"])

	app.readiness.MarkInstalled()
	w = serve(r, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "connected", body["database"])
	assert.Equal(t, false, body["features"].(map[string]any)["classifier"])

	require.NoError(t, app.db.Close())
	w = serve(r, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "database unavailable", decode(t, w)["reason"])
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()
	app := setupTestApp(t)

	r := gin.New()
	r.GET("/healthcheck", app.healthCheck)

	w := serve(r, http.MethodGet, "/healthcheck", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, app.db.Close())
	w = serve(r, http.MethodGet, "/healthcheck", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMiddlewares(t *testing.T) {
	t.Parallel()
	var gotRequestID string
	r := gin.New()
	r.Use(securityHeadersMiddleware(), loggingMiddleware(logger.New("error")))
	r.GET("/ping", func(c *gin.Context) {
		gotRequestID = c.GetHeader("X-Request-ID")
		c.Status(http.StatusNoContent)
	})

	w := serve(r, http.MethodGet, "/ping", "", map[string]string{"X-Request-ID": "req-1"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "req-1", gotRequestID)
}

const declarations = `
bots:
  - id: support
    namespace: acme
    nlpModel: support
    unknownStory: sorry, I did not get that
connectors:
  - connectorId: web
    type: rest
  - connectorId: chat
    type: line
    parameters:
      channelSecret: secret
      channelToken: token
`

func testConfig(t *testing.T, decls string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "connectors.yaml")
	require.NoError(t, os.WriteFile(path, []byte(decls), 0o600))
	return &config.Config{
		Port:                 "0",
		LogLevel:             "error",
		ShutdownTimeout:      5 * time.Second,
		DataDir:              dir,
		ConnectorsFile:       path,
		DefaultLocale:        "en",
		DispatchTimeout:      10 * time.Second,
		ReadinessGracePeriod: time.Hour,
		UserRateBurst:        10,
		UserRateRefill:       1,
		AdminToken:           "admin-token",
		MetricsUsername:      "prometheus",
	}
}

func initialize(t *testing.T, cfg *config.Config) *Application {
	t.Helper()
	app, err := Initialize(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		app.userLimiter.Stop()
		_ = app.db.Close()
	})
	return app
}

func TestInitialize_InstallsDeclaredBots(t *testing.T) {
	cfg := testConfig(t, declarations)
	cfg.RestCompanion = true
	app := initialize(t, cfg)
	h := app.server.Handler

	w := serve(h, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	require.NoError(t, app.InstallBots(context.Background()))

	w = serve(h, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.InDelta(t, 3, decode(t, w)["connectors"], 0, "web, chat and the chat-rest companion")

	w = serve(h, http.MethodPost, "/io/support/web", `{"userId":"u1","text":"hello"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var answer struct {
		Messages []struct {
			Text string `json:"text"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &answer))
	require.NotEmpty(t, answer.Messages)
	assert.Equal(t, "sorry, I did not get that", answer.Messages[0].Text)

	w = serve(h, http.MethodPost, "/io/support/chat-rest", `{"userId":"u1","text":"hello again"}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(h, http.MethodGet, "/healthcheck", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(h, http.MethodGet, "/bindings", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"connectorId":"chat-rest"`)
	bindings := decode(t, w)
	active, ok := bindings["active"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, active["bots"], 1)
	assert.Contains(t, w.Body.String(), `"botId":"support"`)

	w = serve(h, http.MethodGet, "/admin/api/bots/support/configurations", "", map[string]string{
		"Authorization": "Bearer admin-token",
		"X-Namespace":   "acme",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	items, ok := decode(t, w)["items"].([]any)
	require.True(t, ok)
	assert.Len(t, items, 3)

	w = serve(h, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "convobot_")
}

func TestInitialize_InvalidDeclarations(t *testing.T) {
	cfg := testConfig(t, "connectors:\n  - connectorId: web\n")
	_, err := Initialize(context.Background(), cfg)
	assert.Error(t, err)
}

func TestInstallBots_DuplicateConnectorIDsAbort(t *testing.T) {
	app := initialize(t, testConfig(t, `
connectors:
  - connectorId: web
    type: rest
  - connectorId: web
    type: rest
`))

	err := app.InstallBots(context.Background())
	var integrity *domerrors.ConfigurationIntegrityError
	require.ErrorAs(t, err, &integrity)

	w := serve(app.server.Handler, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestInitialize_MetricsAuth(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.MetricsPassword = "scrape"
	app := initialize(t, cfg)

	w := serve(app.server.Handler, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(app.server.Handler, http.MethodGet, "/metrics", "", map[string]string{
		"Authorization": basic("prometheus", "scrape"),
	})
	assert.Equal(t, http.StatusOK, w.Code)
}
