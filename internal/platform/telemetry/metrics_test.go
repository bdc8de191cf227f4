package telemetry

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_RepositoryFailure(t *testing.T) {
	m := NewMetrics()
	m.RepositoryFailure("create")
	m.RepositoryFailure("create")
	m.RepositoryFailure("delete")

	if got := testutil.ToFloat64(m.repositoryFailures.WithLabelValues("create")); got != 2 {
		t.Errorf("expected 2 create failures, got %v", got)
	}
	if got := testutil.ToFloat64(m.repositoryFailures.WithLabelValues("delete")); got != 1 {
		t.Errorf("expected 1 delete failure, got %v", got)
	}
}

func TestMetrics_Workspaces(t *testing.T) {
	m := NewMetrics()
	m.WorkspaceOpened()
	m.WorkspaceOpened()
	m.WorkspaceClosed()
	if got := testutil.ToFloat64(m.workspaces); got != 1 {
		t.Errorf("expected 1 active workspace, got %v", got)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RepositoryFailure("list")
	m.WorkspaceOpened()
	m.WorkspaceClosed()
}

func TestMetrics_Middleware(t *testing.T) {
	m := NewMetrics()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/api/v1/appointments/:id", func(c echo.Context) error {
		if c.Param("id") == "missing" {
			return echo.NewHTTPError(http.StatusNotFound, "not found")
		}
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/boom", func(c echo.Context) error { return errors.New("boom") })

	for _, path := range []string{"/api/v1/appointments/a1", "/api/v1/appointments/missing", "/boom"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("/api/v1/appointments/:id", "GET", "200")); got != 1 {
		t.Errorf("expected one 200, got %v", got)
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("/api/v1/appointments/:id", "GET", "404")); got != 1 {
		t.Errorf("expected one 404, got %v", got)
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("/boom", "GET", "500")); got != 1 {
		t.Errorf("expected one 500, got %v", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.RepositoryFailure("update")

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/metrics", nil), rec)
	if err := m.Handler()(c); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(rec.Body.String(), `appointments_scheduling_repository_failures_total{op="update"} 1`) {
		t.Errorf("expected failure counter in exposition:\n%s", rec.Body.String())
	}
}
