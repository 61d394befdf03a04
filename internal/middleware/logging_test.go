package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	e := echo.New()
	e.Use(RequestLogger(logger))
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(buf.String(), "path=/healthz") {
		t.Errorf("log output %q missing request path", buf.String())
	}
	if !strings.Contains(buf.String(), "status=200") {
		t.Errorf("log output %q missing status", buf.String())
	}
	if !strings.Contains(buf.String(), "bytes_out=2") {
		t.Errorf("log output %q missing response size, want bytes_out=2 for %q", buf.String(), "ok")
	}
}
