package rest

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyellow/convobot-go/internal/connector"
	"github.com/garyellow/convobot-go/internal/ctxutil"
)

func newServer(t *testing.T, d connector.Dispatcher) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	conn, err := Provider{}.New(connector.Configuration{ConnectorID: "support-rest", Type: connector.TypeRest}, "/io/support/support-rest")
	require.NoError(t, err)

	r := gin.New()
	conn.Register(r, d)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestProvider_RejectsRelativePath(t *testing.T) {
	_, err := Provider{}.New(connector.Configuration{ConnectorID: "x"}, "io/x")
	assert.Error(t, err)
}

func TestConnector_DispatchesEvent(t *testing.T) {
	var got connector.Event
	var gotRequestID string
	srv := newServer(t, connector.DispatcherFunc(func(ctx context.Context, e connector.Event) ([]connector.Message, error) {
		got = e
		gotRequestID, _ = ctxutil.GetRequestID(ctx)
		return []connector.Message{{Text: "<p>Hello <b>u1</b></p>"}}, nil
	}))

	ctx := ctxutil.WithRequestID(context.Background(), "req-1")
	resp, err := NewClient(srv.URL, time.Second).Talk(ctx, "/io/support/support-rest", Request{UserID: "u1", Text: "hi", Locale: "fr"})
	require.NoError(t, err)

	assert.Equal(t, []connector.Message{{Text: "Hello u1"}}, resp.Messages)
	assert.Equal(t, "support-rest", got.ConnectorID)
	assert.Equal(t, connector.TypeRest, got.ConnectorType)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "hi", got.Text)
	assert.Equal(t, "fr", got.Locale)
	assert.Equal(t, "req-1", gotRequestID)
}

func TestConnector_EmptyAnswerIsEmptyList(t *testing.T) {
	srv := newServer(t, connector.DispatcherFunc(func(context.Context, connector.Event) ([]connector.Message, error) {
		return nil, nil
	}))

	resp, err := http.Post(srv.URL+"/io/support/support-rest", "application/json", bytes.NewBufferString(`{"userId":"u1","text":" "}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	out, err := NewClient(srv.URL, time.Second).Talk(context.Background(), "/io/support/support-rest", Request{UserID: "u1"})
	require.NoError(t, err)
	assert.Empty(t, out.Messages)
}

func TestConnector_RejectsMissingUserID(t *testing.T) {
	srv := newServer(t, connector.DispatcherFunc(func(context.Context, connector.Event) ([]connector.Message, error) {
		t.Fatal("dispatcher must not be called")
		return nil, nil
	}))

	resp, err := http.Post(srv.URL+"/io/support/support-rest", "application/json", bytes.NewBufferString(`{"text":"hi"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestClient_ErrorsOnDispatchFailure(t *testing.T) {
	srv := newServer(t, connector.DispatcherFunc(func(context.Context, connector.Event) ([]connector.Message, error) {
		return nil, errors.New("boom")
	}))

	_, err := NewClient(srv.URL, time.Second).Talk(context.Background(), "/io/support/support-rest", Request{UserID: "u1", Text: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestClient_ErrorsOnTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url+"/", time.Second).Talk(context.Background(), "/io/x", Request{UserID: "u1"})
	assert.Error(t, err)
	assert.Equal(t, url, NewClient(url+"/", time.Second).BaseURL())
}
