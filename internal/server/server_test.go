package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"factoryflow/internal/api"
	"factoryflow/internal/plans"
	"factoryflow/internal/store"
)

func newTestServer(t *testing.T, devMode bool, addr string) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mem := store.NewMemoryStore()
	svc := plans.NewService(mem, mem, nil, plans.Options{})
	h := api.NewHandler(svc, api.StatusInfo{Version: "test"}, nil)
	return NewServer(h, Options{Addr: addr, DevMode: devMode})
}

func TestServer_CORSPreflight(t *testing.T) {
	s := newTestServer(t, true, "")

	req := httptest.NewRequest(http.MethodOptions, "/api/plans", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow-origin = %q", got)
	}
}

func TestServer_StatusRoute(t *testing.T) {
	s := newTestServer(t, true, "")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestServer_DevModeRedirect(t *testing.T) {
	s := newTestServer(t, true, "")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/plans/history", nil))
	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want 307", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != devFrontend+"/plans/history" {
		t.Fatalf("location = %q", got)
	}
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	s := newTestServer(t, true, "127.0.0.1:0")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
