package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"forward-proxy-go/internal/config"
	"forward-proxy-go/internal/metrics"
)

// RegisterRoutes wires the admin endpoints onto the Echo instance.
func RegisterRoutes(e *echo.Echo, health *HealthHandler, m *metrics.Metrics, cfg *config.Config) {
	e.GET("/healthz", health.Healthz)
	e.GET("/status", health.Status)

	if cfg.Metrics.Enabled {
		h := promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
		e.GET(cfg.Metrics.Path, echo.WrapHandler(h))
	}
}
