package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/WindowArranger/backend/internal/domain/memory"
)

// SaveToMemory stores the current snapshot in :name, keeping at most ?max
func (h *Handlers) SaveToMemory(c *gin.Context) {
	name := c.Param("name")
	maxSize, err := queryInt(c, "max", memory.DefaultMaxSize)
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := h.arranger.SaveToMemory(c.Request.Context(), name, maxSize); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "name": name})
}

// LoadFromMemory applies snapshot ?index of :name
func (h *Handlers) LoadFromMemory(c *gin.Context) {
	name := c.Param("name")
	index, err := queryInt(c, "index", 0)
	if err != nil {
		badRequest(c, err)
		return
	}
	a, err := h.arranger.LoadFromMemory(c.Request.Context(), name, index)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "arrangement": serialize(a)})
}

// CopyInMemory copies snapshot ?index of :name into ?to
func (h *Handlers) CopyInMemory(c *gin.Context) {
	src := c.Param("name")
	dst := c.Query("to")
	if dst == "" {
		badRequest(c, errors.New("missing destination"))
		return
	}
	index, err := queryInt(c, "index", 0)
	if err != nil {
		badRequest(c, err)
		return
	}
	maxSize, err := queryInt(c, "max", memory.DefaultMaxSize)
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := h.arranger.CopyInMemory(c.Request.Context(), src, dst, index, maxSize); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "from": src, "to": dst})
}

// CopyArrayInMemory replaces ?to with a copy of :name
func (h *Handlers) CopyArrayInMemory(c *gin.Context) {
	src := c.Param("name")
	dst := c.Query("to")
	if dst == "" {
		badRequest(c, errors.New("missing destination"))
		return
	}
	if err := h.arranger.CopyArrayInMemory(c.Request.Context(), src, dst); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "from": src, "to": dst})
}

// DeleteFromMemory removes snapshot ?index of :name
func (h *Handlers) DeleteFromMemory(c *gin.Context) {
	name := c.Param("name")
	index, err := queryInt(c, "index", 0)
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := h.arranger.DeleteFromMemory(c.Request.Context(), name, index); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DeleteArrayFromMemory removes the slot :name
func (h *Handlers) DeleteArrayFromMemory(c *gin.Context) {
	if err := h.arranger.DeleteArrayFromMemory(c.Request.Context(), c.Param("name")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListSlots lists stored slots with their snapshot dates
func (h *Handlers) ListSlots(c *gin.Context) {
	slots, err := h.arranger.Slots(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slots": slots})
}

// DumpMemory returns every stored key
func (h *Handlers) DumpMemory(c *gin.Context) {
	dump, err := h.arranger.MemoryDumpGlobal(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dump)
}

// DumpWindows returns the durable id of each live window
func (h *Handlers) DumpWindows(c *gin.Context) {
	uids, err := h.arranger.MemoryDumpWindows(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"windows": uids})
}

// ClearMemory wipes tags and stored snapshots of a stopped arranger
func (h *Handlers) ClearMemory(c *gin.Context) {
	if err := h.arranger.ClearAllMemory(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// WindowCounter returns the next durable id
func (h *Handlers) WindowCounter(c *gin.Context) {
	n, err := h.arranger.WindowCounter(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"counter": n})
}
