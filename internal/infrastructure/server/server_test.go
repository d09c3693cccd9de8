package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/WindowArranger/backend/internal/domain/arrangement"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/infrastructure/kv"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/transport"
)

// echoApp answers every request with an empty arrangement, or echoes the
// arrangement it was asked to apply.
func echoApp(conn transport.Conn) {
	empty, _ := sonic.Marshal(&arrangement.Serializable[transport.Handle]{IDField: transport.HandleField})
	for {
		msg, err := conn.Receive()
		if err != nil {
			return
		}
		value := json.RawMessage(empty)
		if req, err := transport.DecodeRequest(msg); err == nil {
			if set, ok := req.(*transport.SetArrangementRequest); ok {
				value, _ = sonic.Marshal(set.Arrangement)
			}
		}
		_ = conn.Send(&transport.Message{
			Source: transport.SourceBrowser,
			ID:     msg.ID,
			Type:   transport.TypeResponse,
			Value:  value,
			Status: transport.StatusOK,
		})
	}
}

func newTestServer(t *testing.T, dial transport.Dialer) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.RateLimit.Enabled = false

	reg := prometheus.NewRegistry()
	srv, err := newServer(cfg, logging.NewNop(), monitoring.NewMetrics(reg), reg, kv.NewMemory(), nil, dial)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.arranger.Stop(context.Background()) })
	return srv
}

func call(t *testing.T, srv *Server, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	var out map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w.Code, out
}

func TestServerLifecycle(t *testing.T) {
	srv := newTestServer(t, func(context.Context) (transport.Conn, error) {
		local, remote := transport.NewPipe()
		go echoApp(remote)
		return local, nil
	})

	code, body := call(t, srv, "GET", "/state", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "notRunning", body["state"])

	code, _ = call(t, srv, "POST", "/memory/work/save", "")
	assert.Equal(t, http.StatusConflict, code)

	code, body = call(t, srv, "POST", "/start", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["running"])

	code, _ = call(t, srv, "POST", "/memory/work/save", "")
	assert.Equal(t, http.StatusOK, code)

	code, body = call(t, srv, "GET", "/memory", "")
	require.Equal(t, http.StatusOK, code)
	var names []string
	for _, s := range body["slots"].([]interface{}) {
		names = append(names, s.(map[string]interface{})["name"].(string))
	}
	assert.Contains(t, names, "work")
	assert.Contains(t, names, "$current")

	code, _ = call(t, srv, "POST", "/memory/work/load", "")
	assert.Equal(t, http.StatusOK, code)

	code, _ = call(t, srv, "DELETE", "/memory", "")
	assert.Equal(t, http.StatusConflict, code)

	code, body = call(t, srv, "POST", "/switch", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "notRunning", body["state"])

	code, _ = call(t, srv, "DELETE", "/memory", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestServerStartFailure(t *testing.T) {
	srv := newTestServer(t, func(context.Context) (transport.Conn, error) {
		return nil, errors.New("connection refused")
	})

	code, _ := call(t, srv, "POST", "/start", "")
	assert.GreaterOrEqual(t, code, http.StatusInternalServerError)

	_, body := call(t, srv, "GET", "/state", "")
	assert.Equal(t, "notRunning", body["state"])
}

func TestServerMetricsAndHealth(t *testing.T) {
	srv := newTestServer(t, transport.WebSocketDialer("ws://127.0.0.1:1/unused"))

	code, body := call(t, srv, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "_http_requests_total")

	code, _ = call(t, srv, "POST", "/windows", `{"id": 1, "handle": "h1"}`)
	assert.Equal(t, http.StatusCreated, code)
	code, body = call(t, srv, "GET", "/windows", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, body["windows"], 1)
}
