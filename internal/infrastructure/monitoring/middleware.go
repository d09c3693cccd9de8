package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		c.Next()

		// Route template keeps label cardinality bounded
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// Timer measures a correlated app call
type Timer struct {
	start   time.Time
	metrics *Metrics
	msgType string
}

// NewTimer creates a new timer
func NewTimer(metrics *Metrics, msgType string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		msgType: msgType,
	}
}

// Stop records the call outcome. An empty reason means success.
func (t *Timer) Stop(reason string) {
	if t.metrics == nil {
		return
	}
	if reason == "" {
		t.metrics.RecordAppCall(t.msgType, time.Since(t.start))
		return
	}
	t.metrics.RecordAppCallError(t.msgType, reason)
}
