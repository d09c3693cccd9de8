package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestState(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/state", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]interface{}{"running": true, "state": "running"})
	})

	s, err := c.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, State{Running: true, State: "running"}, s)
}

func TestQueryParameters(t *testing.T) {
	tests := []struct {
		name      string
		call      func(c *Client) error
		wantPath  string
		wantQuery string
		method    string
	}{
		{"save", func(c *Client) error { return c.Save(context.Background(), "work", 3) }, "/memory/work/save", "max=3", "POST"},
		{"load", func(c *Client) error { return c.Load(context.Background(), "work", 1) }, "/memory/work/load", "index=1", "POST"},
		{"copy", func(c *Client) error { return c.Copy(context.Background(), "a", "b", 2, 5) }, "/memory/a/copy", "index=2&max=5&to=b", "POST"},
		{"delete", func(c *Client) error { return c.Delete(context.Background(), "a", 0) }, "/memory/a", "index=0", "DELETE"},
		{"delete array", func(c *Client) error { return c.DeleteArray(context.Background(), "a") }, "/memory/a/all", "", "DELETE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tt.method, r.Method)
				assert.Equal(t, tt.wantPath, r.URL.Path)
				assert.Equal(t, tt.wantQuery, r.URL.Query().Encode())
				writeJSON(w, http.StatusOK, map[string]bool{"success": true})
			})
			require.NoError(t, tt.call(c))
		})
	}
}

func TestAPIError(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "saveToMemory: arranger is notRunning"})
	})

	err := c.Save(context.Background(), "work", 10)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Contains(t, apiErr.Error(), "notRunning")
}

func TestRetriesReadsOnly(t *testing.T) {
	var reads, writes atomic.Int32
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			if reads.Add(1) == 1 {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "busy"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]int64{"counter": 9})
			return
		}
		writes.Add(1)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "app unreachable"})
	})

	n, err := c.Counter(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
	assert.Equal(t, int32(2), reads.Load())

	_, err = c.Start(context.Background())
	assert.Error(t, err)
	assert.Equal(t, int32(1), writes.Load())
}

func TestSettings(t *testing.T) {
	var got map[string]bool
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			assert.Equal(t, "/settings/moveToTop", r.URL.Path)
			_ = json.NewDecoder(r.Body).Decode(&got)
			writeJSON(w, http.StatusOK, map[string]bool{"success": true})
		default:
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"settings": []Setting{{Key: "moveToTop", Value: false, Default: true}},
			})
		}
	})

	require.NoError(t, c.SetSetting(context.Background(), "moveToTop", false))
	assert.Equal(t, map[string]bool{"value": false}, got)

	list, err := c.Settings(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].Value)
}
