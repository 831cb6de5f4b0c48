package transport_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyang/portfolio-api/internal/adapter/memory"
	domainresource "github.com/alanyang/portfolio-api/internal/domain/resource"
	documentsvc "github.com/alanyang/portfolio-api/internal/service/document"
	"github.com/alanyang/portfolio-api/internal/transport"
	"github.com/alanyang/portfolio-api/internal/transport/envelope"
	mcptransport "github.com/alanyang/portfolio-api/internal/transport/mcp"
)

func TestMetrics_SharedAcrossRouters(t *testing.T) {
	metrics := transport.NewMetrics()

	first := newTestRouterWithMetrics(t, nil, metrics)
	var second *gin.Engine
	require.NotPanics(t, func() { second = newTestRouterWithMetrics(t, nil, metrics) })

	serve(first, http.MethodGet, "/api/blogs", nil, nil)
	serve(second, http.MethodGet, "/api/blogs", nil, nil)

	w := serve(second, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `portfolio_http_requests_total{code="200",method="GET",route="/api/blogs"} 2`)
	assert.Contains(t, w.Body.String(), "portfolio_ws_clients 0")
}

func TestMetrics_TrackClientsLatestWins(t *testing.T) {
	metrics := transport.NewMetrics()
	metrics.TrackClients(func() int { return 1 })
	metrics.TrackClients(func() int { return 3 })

	w := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), "portfolio_ws_clients 3")
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestRouter(t *testing.T, pinger transport.Pinger) *gin.Engine {
	t.Helper()
	return newTestRouterWithMetrics(t, pinger, transport.NewMetrics())
}

func newTestRouterWithMetrics(t *testing.T, pinger transport.Pinger, metrics *transport.Metrics) *gin.Engine {
	t.Helper()
	store := memory.NewStore()
	bus := memory.NewEventBus()
	t.Cleanup(func() { _ = bus.Close() })

	var services []*documentsvc.Service
	for _, res := range domainresource.All(domainresource.ModeCompat) {
		services = append(services, documentsvc.NewService(res, store, bus))
	}
	if pinger == nil {
		pinger = store
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	mcpSrv := mcptransport.New("test", services)
	return transport.NewRouter(ctx, domainresource.ModeCompat, services, pinger, bus, mcpSrv.Handler(), memory.NewCache(), time.Hour, metrics)
}

func serve(r http.Handler, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req, _ = http.NewRequestWithContext(context.Background(), method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequestWithContext(context.Background(), method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRoot(t *testing.T) {
	r := newTestRouter(t, nil)

	w := serve(r, http.MethodGet, "/", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Message   string    `json:"message"`
		Timestamp time.Time `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Server is running smoothly", body.Message)
	assert.WithinDuration(t, time.Now(), body.Timestamp, time.Minute)
}

func TestHealthz(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		w := serve(newTestRouter(t, nil), http.MethodGet, "/healthz", nil, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("storage down", func(t *testing.T) {
		r := newTestRouter(t, pingerFunc(func(context.Context) error { return errors.New("no reachable servers") }))
		w := serve(r, http.MethodGet, "/healthz", nil, nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)

		var env envelope.Envelope
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
		assert.False(t, env.Success)
		assert.Equal(t, "no reachable servers", env.Message)
	})
}

func TestResourceRoutesMounted(t *testing.T) {
	r := newTestRouter(t, nil)
	for _, path := range []string{"/api/projects", "/api/blogs", "/api/messages"} {
		w := serve(r, http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.JSONEq(t, `{"success":true,"data":[]}`, w.Body.String(), path)
	}

	w := serve(r, http.MethodGet, "/api/users", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRequestID(t *testing.T) {
	r := newTestRouter(t, nil)

	w := serve(r, http.MethodGet, "/", nil, map[string]string{transport.HeaderRequestID: "abc-123"})
	assert.Equal(t, "abc-123", w.Header().Get(transport.HeaderRequestID))

	w = serve(r, http.MethodGet, "/", nil, nil)
	assert.Len(t, w.Header().Get(transport.HeaderRequestID), 36, "generated ids are uuids")
}

func TestCORS(t *testing.T) {
	r := newTestRouter(t, nil)

	w := serve(r, http.MethodOptions, "/api/projects", nil, map[string]string{
		"Origin":                        "https://portfolio.example",
		"Access-Control-Request-Method": "POST",
	})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "DELETE")

	w = serve(r, http.MethodGet, "/api/blogs", nil, nil)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestIdempotentCreate(t *testing.T) {
	r := newTestRouter(t, nil)
	body := []byte(`{"name":"visitor","text":"hello"}`)
	key := map[string]string{transport.HeaderIdempotencyKey: "k-1"}

	first := serve(r, http.MethodPost, "/api/messages", body, key)
	require.Equal(t, http.StatusCreated, first.Code)
	assert.Empty(t, first.Header().Get(transport.HeaderIdempotentReplay))

	second := serve(r, http.MethodPost, "/api/messages", body, key)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get(transport.HeaderIdempotentReplay))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	list := serve(r, http.MethodGet, "/api/messages", nil, nil)
	var env envelope.Envelope
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &env))
	var docs []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &docs))
	assert.Len(t, docs, 1, "replayed request must not insert again")

	// Same key on another path is a different request.
	third := serve(r, http.MethodPost, "/api/blogs", body, key)
	assert.Equal(t, http.StatusCreated, third.Code)
	assert.Empty(t, third.Header().Get(transport.HeaderIdempotentReplay))
}

func TestIdempotency_FailuresAreNotCached(t *testing.T) {
	r := newTestRouter(t, nil)
	key := map[string]string{transport.HeaderIdempotencyKey: "k-2"}

	bad := serve(r, http.MethodPost, "/api/projects", []byte(`[1]`), key)
	require.Equal(t, http.StatusBadRequest, bad.Code)

	good := serve(r, http.MethodPost, "/api/projects", []byte(`{"title":"A"}`), key)
	assert.Equal(t, http.StatusCreated, good.Code)
	assert.Empty(t, good.Header().Get(transport.HeaderIdempotentReplay))
}

func TestMCPEndpointMounted(t *testing.T) {
	r := newTestRouter(t, nil)
	initReq := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}`

	w := serve(r, http.MethodPost, "/mcp", []byte(initReq), map[string]string{
		"Accept": "application/json, text/event-stream",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "portfolio-api"), w.Body.String())
}

func TestMetrics(t *testing.T) {
	r := newTestRouter(t, nil)

	serve(r, http.MethodGet, "/api/projects", nil, nil)
	serve(r, http.MethodGet, "/api/nowhere", nil, nil)

	w := serve(r, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `portfolio_http_requests_total{code="200",method="GET",route="/api/projects"} 1`)
	assert.Contains(t, body, `route="unmatched"`)
	assert.Contains(t, body, "portfolio_ws_clients 0")
	assert.Contains(t, body, "go_goroutines")
}
