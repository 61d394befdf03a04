package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Version is a string type for dependency injection of the build version.
type Version string

// ProxyState reports live proxy state for the status endpoint.
type ProxyState interface {
	Addr() string
	Active() int64
}

// HealthHandler serves health and status endpoints on the admin server.
type HealthHandler struct {
	version Version
	state   ProxyState
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(v Version, state ProxyState) *HealthHandler {
	return &HealthHandler{version: v, state: state}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns proxy status information.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":          "ok",
		"version":         string(h.version),
		"listen_addr":     h.state.Addr(),
		"active_sessions": strconv.FormatInt(h.state.Active(), 10),
	})
}
