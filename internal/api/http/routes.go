package http

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the control API on r.
func (h *Handlers) RegisterRoutes(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	r.GET("/state", h.State)
	r.POST("/start", h.Start)
	r.POST("/stop", h.Stop)
	r.POST("/switch", h.Switch)

	r.GET("/arrangement", h.Arrangement)
	r.GET("/arrangement/live", h.LiveArrangement)

	mem := r.Group("/memory")
	mem.GET("", h.ListSlots)
	mem.DELETE("", h.ClearMemory)
	mem.GET("/dump", h.DumpMemory)
	mem.GET("/windows", h.DumpWindows)
	mem.GET("/counter", h.WindowCounter)
	mem.POST("/:name/save", h.SaveToMemory)
	mem.POST("/:name/load", h.LoadFromMemory)
	mem.POST("/:name/copy", h.CopyInMemory)
	mem.POST("/:name/copy-array", h.CopyArrayInMemory)
	mem.DELETE("/:name", h.DeleteFromMemory)
	mem.DELETE("/:name/all", h.DeleteArrayFromMemory)

	r.GET("/settings", h.ListSettings)
	r.PUT("/settings/:key", h.SetSetting)
	r.DELETE("/settings/:key", h.ResetSetting)

	r.GET("/windows", h.ListWindows)
	r.POST("/windows", h.AddWindow)
	r.DELETE("/windows/:id", h.RemoveWindow)
}
