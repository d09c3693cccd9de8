// Package client is a typed client for the arranger control API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
)

// APIError is a non-2xx answer from the daemon.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("arranger: %s", http.StatusText(e.Status))
	}
	return fmt.Sprintf("arranger: %s (%d)", e.Message, e.Status)
}

// State is the lifecycle state reported by the daemon.
type State struct {
	Running bool   `json:"running"`
	State   string `json:"state"`
}

// Slot describes one stored slot.
type Slot struct {
	Name  string      `json:"name"`
	Size  int         `json:"size"`
	Dates []time.Time `json:"dates"`
}

// Setting is one boolean setting.
type Setting struct {
	Key         string `json:"key"`
	Value       bool   `json:"value"`
	Default     bool   `json:"default"`
	Description string `json:"description"`
}

// Client talks to a running daemon.
type Client struct {
	resty *resty.Client
}

// New creates a client for the daemon at baseURL.
func New(baseURL string) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.Logger = nil

	r := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(200*time.Millisecond).
		SetHeader("User-Agent", "arrangerctl/1.0").
		SetTransport(retryClient.HTTPClient.Transport)
	// only idempotent reads are retried
	r.AddRetryCondition(func(resp *resty.Response, err error) bool {
		if resp == nil || resp.Request == nil || resp.Request.Method != http.MethodGet {
			return false
		}
		return err != nil || resp.StatusCode() >= http.StatusInternalServerError
	})
	return &Client{resty: r}
}

func (c *Client) do(ctx context.Context, method, path string, query map[string]string, body, out interface{}) error {
	var apiErr struct {
		Error string `json:"error"`
	}
	req := c.resty.R().SetContext(ctx).SetError(&apiErr)
	if query != nil {
		req.SetQueryParams(query)
	}
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return &APIError{Status: resp.StatusCode(), Message: apiErr.Error}
	}
	return nil
}

// State returns the lifecycle state.
func (c *Client) State(ctx context.Context) (State, error) {
	var s State
	err := c.do(ctx, http.MethodGet, "/state", nil, nil, &s)
	return s, err
}

// Start starts the arranger.
func (c *Client) Start(ctx context.Context) (State, error) {
	var s State
	err := c.do(ctx, http.MethodPost, "/start", nil, nil, &s)
	return s, err
}

// Stop stops the arranger.
func (c *Client) Stop(ctx context.Context) (State, error) {
	var s State
	err := c.do(ctx, http.MethodPost, "/stop", nil, nil, &s)
	return s, err
}

// Switch toggles the arranger.
func (c *Client) Switch(ctx context.Context) (State, error) {
	var s State
	err := c.do(ctx, http.MethodPost, "/switch", nil, nil, &s)
	return s, err
}

// Arrangement returns the current snapshot as raw JSON.
func (c *Client) Arrangement(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.do(ctx, http.MethodGet, "/arrangement", nil, nil, &out)
	return out, err
}

// Save stores the current snapshot in name, keeping at most maxSize.
func (c *Client) Save(ctx context.Context, name string, maxSize int) error {
	return c.do(ctx, http.MethodPost, "/memory/"+name+"/save",
		map[string]string{"max": strconv.Itoa(maxSize)}, nil, nil)
}

// Load applies snapshot index of name.
func (c *Client) Load(ctx context.Context, name string, index int) error {
	return c.do(ctx, http.MethodPost, "/memory/"+name+"/load",
		map[string]string{"index": strconv.Itoa(index)}, nil, nil)
}

// Copy copies snapshot index of src into dst.
func (c *Client) Copy(ctx context.Context, src, dst string, index, maxSize int) error {
	return c.do(ctx, http.MethodPost, "/memory/"+src+"/copy", map[string]string{
		"to":    dst,
		"index": strconv.Itoa(index),
		"max":   strconv.Itoa(maxSize),
	}, nil, nil)
}

// CopyArray replaces dst with a copy of src.
func (c *Client) CopyArray(ctx context.Context, src, dst string) error {
	return c.do(ctx, http.MethodPost, "/memory/"+src+"/copy-array",
		map[string]string{"to": dst}, nil, nil)
}

// Delete removes snapshot index of name.
func (c *Client) Delete(ctx context.Context, name string, index int) error {
	return c.do(ctx, http.MethodDelete, "/memory/"+name,
		map[string]string{"index": strconv.Itoa(index)}, nil, nil)
}

// DeleteArray removes the slot name.
func (c *Client) DeleteArray(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/memory/"+name+"/all", nil, nil, nil)
}

// Slots lists stored slots.
func (c *Client) Slots(ctx context.Context) ([]Slot, error) {
	var out struct {
		Slots []Slot `json:"slots"`
	}
	err := c.do(ctx, http.MethodGet, "/memory", nil, nil, &out)
	return out.Slots, err
}

// Dump returns every stored key.
func (c *Client) Dump(ctx context.Context) (map[string]json.RawMessage, error) {
	out := map[string]json.RawMessage{}
	err := c.do(ctx, http.MethodGet, "/memory/dump", nil, nil, &out)
	return out, err
}

// Clear wipes all memory of a stopped arranger.
func (c *Client) Clear(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/memory", nil, nil, nil)
}

// Counter returns the next durable window id.
func (c *Client) Counter(ctx context.Context) (int64, error) {
	var out struct {
		Counter int64 `json:"counter"`
	}
	err := c.do(ctx, http.MethodGet, "/memory/counter", nil, nil, &out)
	return out.Counter, err
}

// Settings lists every setting.
func (c *Client) Settings(ctx context.Context) ([]Setting, error) {
	var out struct {
		Settings []Setting `json:"settings"`
	}
	err := c.do(ctx, http.MethodGet, "/settings", nil, nil, &out)
	return out.Settings, err
}

// SetSetting changes one setting.
func (c *Client) SetSetting(ctx context.Context, key string, value bool) error {
	return c.do(ctx, http.MethodPut, "/settings/"+key, nil, map[string]bool{"value": value}, nil)
}
