package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type fakeState struct {
	addr   string
	active int64
}

func (f fakeState) Addr() string  { return f.addr }
func (f fakeState) Active() int64 { return f.active }

func TestHealthz(t *testing.T) {
	e := echo.New()
	h := NewHealthHandler("1.2.3", fakeState{})
	e.GET("/healthz", h.Healthz)

	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf(`body["status"] = %q, want "ok"`, body["status"])
	}
}

func TestStatus(t *testing.T) {
	e := echo.New()
	h := NewHealthHandler("1.2.3", fakeState{addr: "127.0.0.1:8080", active: 7})
	e.GET("/status", h.Status)

	req := httptest.NewRequest(http.MethodGet, "/status", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body["version"] != "1.2.3" {
		t.Errorf(`body["version"] = %q, want "1.2.3"`, body["version"])
	}
	if body["listen_addr"] != "127.0.0.1:8080" {
		t.Errorf(`body["listen_addr"] = %q, want "127.0.0.1:8080"`, body["listen_addr"])
	}
	if body["active_sessions"] != "7" {
		t.Errorf(`body["active_sessions"] = %q, want "7"`, body["active_sessions"])
	}
}
