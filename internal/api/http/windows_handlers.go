package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/WindowArranger/backend/internal/domain/arrangement"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/domain/registry"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/transport"
)

// AddWindowRequest reports a window opened by the host
type AddWindowRequest struct {
	ID     int64  `json:"id" binding:"required"`
	Handle string `json:"handle" binding:"required"`
	Title  string `json:"title"`
}

// SetSettingRequest changes one boolean setting
type SetSettingRequest struct {
	Value *bool `json:"value" binding:"required"`
}

// ListWindows lists the registered windows
func (h *Handlers) ListWindows(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"windows": h.windows.List(),
		"stats":   h.windows.Stats(),
	})
}

// AddWindow registers a window
func (h *Handlers) AddWindow(c *gin.Context) {
	var req AddWindowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	w := registry.Window{
		ID:     arrangement.WindowID(req.ID),
		Handle: transport.Handle(req.Handle),
		Title:  req.Title,
	}
	if err := h.windows.Add(w); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "id": req.ID})
}

// RemoveWindow unregisters window :id
func (h *Handlers) RemoveWindow(c *gin.Context) {
	raw := c.Param("id")
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		badRequest(c, &paramError{name: "id", value: raw})
		return
	}
	if !h.windows.Remove(arrangement.WindowID(n)) {
		h.fail(c, registry.ErrUnknownWindow)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": n})
}

// ListSettings lists every setting with its effective value
func (h *Handlers) ListSettings(c *gin.Context) {
	list, err := h.settings.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": list})
}

// SetSetting stores a value for :key
func (h *Handlers) SetSetting(c *gin.Context) {
	var req SetSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	key := c.Param("key")
	if err := h.settings.Set(c.Request.Context(), key, *req.Value); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "key": key, "value": *req.Value})
}

// ResetSetting restores the default for :key
func (h *Handlers) ResetSetting(c *gin.Context) {
	key := c.Param("key")
	if err := h.settings.Reset(c.Request.Context(), key); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "key": key})
}
