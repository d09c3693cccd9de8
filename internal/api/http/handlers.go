package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/WindowArranger/backend/internal/domain/arrangement"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/domain/memory"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/domain/orchestrator"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/domain/registry"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/providers/settings"
)

// Version is reported by the root endpoint.
const Version = "0.3.0"

// Arranger is the orchestrator surface driven over HTTP.
type Arranger interface {
	State() orchestrator.State
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Switch(ctx context.Context) error
	Current(ctx context.Context) (*arrangement.Store, error)
	LiveArrangement(ctx context.Context, ids []arrangement.WindowID, inObserved bool) (*arrangement.Arrangement, error)

	LoadFromMemory(ctx context.Context, name string, index int) (*arrangement.Arrangement, error)
	SaveToMemory(ctx context.Context, name string, maxSize int) error
	CopyInMemory(ctx context.Context, src, dst string, index, maxSize int) error
	CopyArrayInMemory(ctx context.Context, src, dst string) error
	DeleteFromMemory(ctx context.Context, name string, index int) error
	DeleteArrayFromMemory(ctx context.Context, name string) error
	Slots(ctx context.Context) ([]memory.SlotInfo, error)
	MemoryDumpGlobal(ctx context.Context) (map[string]json.RawMessage, error)
	MemoryDumpWindows(ctx context.Context) (map[arrangement.WindowID]memory.UID, error)
	ClearAllMemory(ctx context.Context) error
	WindowCounter(ctx context.Context) (int64, error)
}

// Windows is the window host registry.
type Windows interface {
	Add(w registry.Window) error
	Remove(id arrangement.WindowID) bool
	List() []registry.Window
	Stats() registry.Stats
}

// Settings is the boolean settings store.
type Settings interface {
	List(ctx context.Context) ([]settings.Setting, error)
	Set(ctx context.Context, key string, value bool) error
	Reset(ctx context.Context, key string) error
}

// Handlers contains all HTTP handlers
type Handlers struct {
	arranger Arranger
	windows  Windows
	settings Settings
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	started  time.Time
}

// NewHandlers creates a new handler set
func NewHandlers(arranger Arranger, windows Windows, settings Settings, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		arranger: arranger,
		windows:  windows,
		settings: settings,
		logger:   logger,
		started:  time.Now(),
	}
}

// WithMetrics adds a metrics snapshot to the health report
func (h *Handlers) WithMetrics(metrics *monitoring.Metrics) *Handlers {
	h.metrics = metrics
	return h
}

// Root handles health check
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "window arranger",
		"version": Version,
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{
		"status":  "healthy",
		"state":   h.arranger.State().String(),
		"windows": h.windows.Stats(),
		"uptime":  time.Since(h.started).Round(time.Second).String(),
	}
	if h.metrics != nil {
		body["metrics"] = h.metrics.Snapshot()
	}
	c.JSON(http.StatusOK, body)
}

// State reports the lifecycle state
func (h *Handlers) State(c *gin.Context) {
	s := h.arranger.State()
	c.JSON(http.StatusOK, gin.H{
		"running": s == orchestrator.Running,
		"state":   s.String(),
	})
}

// Start starts the arranger
func (h *Handlers) Start(c *gin.Context) {
	h.lifecycle(c, h.arranger.Start)
}

// Stop stops the arranger
func (h *Handlers) Stop(c *gin.Context) {
	h.lifecycle(c, h.arranger.Stop)
}

// Switch starts a stopped arranger or stops a running one
func (h *Handlers) Switch(c *gin.Context) {
	h.lifecycle(c, h.arranger.Switch)
}

func (h *Handlers) lifecycle(c *gin.Context, fn func(context.Context) error) {
	if err := fn(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	h.State(c)
}

// Arrangement returns the current snapshot
func (h *Handlers) Arrangement(c *gin.Context) {
	store, err := h.arranger.Current(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"date":        store.Date,
		"arrangement": serialize(store.Arrangement),
	})
}

// LiveArrangement asks the app for the arrangement of the windows in ?ids,
// or of every observed window when no ids are given. ?observed defaults to
// true; observed=false lets ?ids name windows outside the observed set.
func (h *Handlers) LiveArrangement(c *gin.Context) {
	ids, err := parseIDs(c.Query("ids"))
	if err != nil {
		badRequest(c, err)
		return
	}
	observed, err := queryBool(c, "observed", true)
	if err != nil {
		badRequest(c, err)
		return
	}

	a, err := h.arranger.LiveArrangement(c.Request.Context(), ids, observed)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"arrangement": serialize(a)})
}

func serialize(a *arrangement.Arrangement) *arrangement.Serializable[arrangement.WindowID] {
	s, _ := arrangement.Serialize(a, orchestrator.WindowIDField, func(id arrangement.WindowID) (arrangement.WindowID, bool) {
		return id, true
	})
	return s
}

func parseIDs(raw string) ([]arrangement.WindowID, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]arrangement.WindowID, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, &paramError{name: "ids", value: p}
		}
		ids = append(ids, arrangement.WindowID(n))
	}
	return ids, nil
}
