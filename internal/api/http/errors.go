package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/WindowArranger/backend/internal/domain/arrangement"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/domain/memory"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/domain/orchestrator"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/domain/registry"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/providers/settings"
	"github.com/GriffinCanCode/WindowArranger/backend/internal/transport"
)

type paramError struct {
	name  string
	value string
}

func (e *paramError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.name, e.value)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		stateErr  *orchestrator.RunningStateError
		structErr *arrangement.StructuralError
		paramErr  *paramError
	)
	switch {
	case errors.As(err, &stateErr), errors.Is(err, memory.ErrInUse),
		errors.Is(err, registry.ErrWindowExists):
		return http.StatusConflict
	case errors.Is(err, memory.ErrNoSuchStore), errors.Is(err, memory.ErrNoSuchIndex),
		errors.Is(err, registry.ErrUnknownWindow), errors.Is(err, settings.ErrUnknownSetting):
		return http.StatusNotFound
	case errors.As(err, &structErr), errors.As(err, &paramErr),
		errors.Is(err, transport.ErrNoIDs), errors.Is(err, registry.ErrInvalidWindow):
		return http.StatusBadRequest
	case errors.Is(err, resilience.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, transport.ErrTimeout):
		return http.StatusGatewayTimeout
	case transport.IsProtocolError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &paramError{name: name, value: raw}
	}
	return n, nil
}

func queryBool(c *gin.Context, name string, def bool) (bool, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &paramError{name: name, value: raw}
	}
	return b, nil
}
