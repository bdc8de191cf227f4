package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func serveHealth(t *testing.T, h echo.HandlerFunc) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health/db", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return rec, body
}

func TestHealthHandler_Healthy(t *testing.T) {
	stats := func() *PoolStats { return &PoolStats{TotalConns: 3, MaxConns: 20, Healthy: true} }
	rec, body := serveHealth(t, HealthHandler(fakePinger{}, stats))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected healthy, got %v", body["status"])
	}
	pool, ok := body["pool"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected pool stats in body, got %v", body["pool"])
	}
	if pool["totalConns"] != float64(3) {
		t.Errorf("expected totalConns 3, got %v", pool["totalConns"])
	}
}

func TestHealthHandler_PingFails(t *testing.T) {
	stats := func() *PoolStats { return &PoolStats{TotalConns: 1, Healthy: true} }
	rec, body := serveHealth(t, HealthHandler(fakePinger{err: errors.New("connection refused")}, stats))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	if body["status"] != "unhealthy" {
		t.Errorf("expected unhealthy, got %v", body["status"])
	}
	if body["error"] != "connection refused" {
		t.Errorf("unexpected error message: %v", body["error"])
	}
	pool := body["pool"].(map[string]interface{})
	if pool["healthy"] != false {
		t.Error("expected pool healthy=false after failed ping")
	}
}

func TestHealthHandler_NoStats(t *testing.T) {
	_, body := serveHealth(t, HealthHandler(fakePinger{}, nil))
	if _, ok := body["pool"]; ok {
		t.Error("expected no pool key without a stats func")
	}
}
