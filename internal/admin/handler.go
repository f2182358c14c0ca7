package admin

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyellow/convobot-go/internal/ctxutil"
	domerrors "github.com/garyellow/convobot-go/internal/errors"
	"github.com/garyellow/convobot-go/internal/storage"
)

// NamespaceHeader names the caller's namespace. The namespace query
// parameter is accepted as well; both default to the process namespace.
const NamespaceHeader = "X-Namespace"

// HTTPErrorRecorder counts failed admin requests.
type HTTPErrorRecorder interface {
	RecordHTTPError(errorType, module string)
}

// Handler serves the admin API.
type Handler struct {
	service *Service
	token   string
	metrics HTTPErrorRecorder
}

// NewHandler creates a handler. An empty token disables the API: Register
// then mounts nothing.
func NewHandler(service *Service, token string, metrics HTTPErrorRecorder) *Handler {
	return &Handler{service: service, token: token, metrics: metrics}
}

// Register mounts the API under /admin/api.
func (h *Handler) Register(r gin.IRouter) bool {
	if h.token == "" {
		return false
	}
	g := r.Group("/admin/api", h.auth(), h.namespace())

	g.POST("/bots/:botId/intents", h.createIntent)
	g.PUT("/stories/:id", h.updateIntent)
	g.DELETE("/stories/:id", h.deleteIntent)

	g.GET("/users", h.searchUsers)
	g.GET("/dialogs", h.searchDialogs)
	g.GET("/logs", h.searchLogs)

	g.POST("/talk", h.talk)

	g.GET("/configurations/:id", h.getConfiguration)
	g.PUT("/configurations/:id", h.updateConfiguration)
	g.GET("/bots/:botId/configurations", h.botConfigurations)

	g.GET("/nlp/sentences", h.searchSentences)
	g.POST("/nlp/sentences", h.saveSentence)
	return true
}

func (h *Handler) auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) != 1 {
			c.Header("WWW-Authenticate", `Bearer realm="admin"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

const namespaceKey = "admin.namespace"

func (h *Handler) namespace() gin.HandlerFunc {
	return func(c *gin.Context) {
		ns := strings.TrimSpace(c.GetHeader(NamespaceHeader))
		if ns == "" {
			ns = strings.TrimSpace(c.Query("namespace"))
		}
		if ns == "" {
			ns, _ = h.service.DefaultNamespace()
		}
		if ns == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "namespace is required"})
			return
		}
		c.Set(namespaceKey, ns)
		if id := c.GetHeader("X-Request-ID"); id != "" {
			c.Request = c.Request.WithContext(ctxutil.WithRequestID(c.Request.Context(), id))
		}
		c.Next()
	}
}

func (h *Handler) createIntent(c *gin.Context) {
	var req IntentRequest
	if !h.bind(c, &req) {
		return
	}
	st, err := h.service.CreateBotIntent(c.Request.Context(), c.GetString(namespaceKey), c.Param("botId"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

func (h *Handler) updateIntent(c *gin.Context) {
	var req IntentRequest
	if !h.bind(c, &req) {
		return
	}
	st, err := h.service.UpdateBotIntent(c.Request.Context(), c.GetString(namespaceKey), c.Param("id"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) deleteIntent(c *gin.Context) {
	if err := h.service.DeleteBotIntent(c.Request.Context(), c.GetString(namespaceKey), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) searchUsers(c *gin.Context) {
	res, err := h.service.SearchUsers(c.Request.Context(), c.GetString(namespaceKey), storage.UserQuery{
		BotID:  c.Query("botId"),
		UserID: c.Query("userId"),
		Page:   page(c),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) searchDialogs(c *gin.Context) {
	res, err := h.service.SearchDialogs(c.Request.Context(), c.GetString(namespaceKey), storage.DialogQuery{
		BotID:  c.Query("botId"),
		UserID: c.Query("userId"),
		Text:   c.Query("text"),
		Page:   page(c),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) searchLogs(c *gin.Context) {
	q := storage.ParseLogQuery{
		Application: c.Query("application"),
		Intent:      c.Query("intent"),
		Text:        c.Query("text"),
		Page:        page(c),
	}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.fail(c, domerrors.NewValidationError("since", "must be an RFC 3339 timestamp"))
			return
		}
		q.Since = since
	}
	res, err := h.service.SearchParseLogs(c.Request.Context(), c.GetString(namespaceKey), q)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) talk(c *gin.Context) {
	var req TalkRequest
	if !h.bind(c, &req) {
		return
	}
	res, err := h.service.Talk(c.Request.Context(), c.GetString(namespaceKey), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) getConfiguration(c *gin.Context) {
	cfg, err := h.service.GetConfiguration(c.Request.Context(), c.GetString(namespaceKey), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *Handler) updateConfiguration(c *gin.Context) {
	var upd ConfigurationUpdate
	if !h.bind(c, &upd) {
		return
	}
	cfg, err := h.service.UpdateConfiguration(c.Request.Context(), c.GetString(namespaceKey), c.Param("id"), upd)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *Handler) botConfigurations(c *gin.Context) {
	list, err := h.service.BotConfigurations(c.Request.Context(), c.GetString(namespaceKey), c.Param("botId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": list})
}

func (h *Handler) searchSentences(c *gin.Context) {
	res, err := h.service.SearchSentences(c.Request.Context(), c.GetString(namespaceKey), storage.SentenceQuery{
		Application: c.Query("application"),
		Intent:      c.Query("intent"),
		Text:        c.Query("text"),
		Locale:      c.Query("locale"),
		Page:        page(c),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) saveSentence(c *gin.Context) {
	var req SentenceRequest
	if !h.bind(c, &req) {
		return
	}
	s, err := h.service.SaveSentence(c.Request.Context(), c.GetString(namespaceKey), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

func (h *Handler) bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		h.recordError("bad_request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return false
	}
	return true
}

// fail maps domain errors to statuses. Compilation failures keep their
// "compilation failed" message.
func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	errType := "internal"

	var verr *domerrors.ValidationError
	switch {
	case errors.Is(err, domerrors.ErrCompilationFailed):
		status, msg, errType = http.StatusUnprocessableEntity, domerrors.ErrCompilationFailed.Error(), "compilation_failed"
	case errors.As(err, &verr):
		status, msg, errType = http.StatusBadRequest, verr.Error(), "bad_request"
	case domerrors.IsInvalidInput(err):
		status, msg, errType = http.StatusBadRequest, err.Error(), "bad_request"
	case domerrors.IsNotFound(err):
		status, msg, errType = http.StatusNotFound, "not found", "not_found"
	case domerrors.IsUnauthorized(err):
		status, msg, errType = http.StatusForbidden, domerrors.ErrUnauthorized.Error(), "unauthorized"
	case errors.Is(err, errNLPUnavailable):
		status, msg, errType = http.StatusServiceUnavailable, err.Error(), "nlp_unavailable"
	}
	if status >= http.StatusInternalServerError {
		h.service.logger.WithError(err).WithField("path", c.FullPath()).Error("Admin request failed")
	}
	h.recordError(errType)
	c.JSON(status, gin.H{"error": msg})
}

func (h *Handler) recordError(errType string) {
	if h.metrics != nil {
		h.metrics.RecordHTTPError(errType, "admin")
	}
}

func page(c *gin.Context) storage.Page {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	return storage.Page{Limit: limit, Offset: offset}
}
