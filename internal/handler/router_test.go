package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/podstats/internal/middleware"
)

type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(_ context.Context) error { return m.err }

func newRouterForTest(t *testing.T, db Pinger) http.Handler {
	t.Helper()
	rl := middleware.NewRateLimiter(100)
	t.Cleanup(rl.Stop)

	router, err := NewRouter(&RouterDeps{
		DB:          db,
		AdminToken:  "test-token",
		RateLimiter: rl,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Recorder:    &mockRecorder{},
		Gatherer:    prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return router
}

func TestHealth_OKWhenDatabaseReachable(t *testing.T) {
	router := newRouterForTest(t, &mockPinger{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := rec.Body.String(); body != `{"status":"ok"}` {
		t.Errorf("body = %s", body)
	}
}

func TestHealth_UnavailableWhenPingFails(t *testing.T) {
	router := newRouterForTest(t, &mockPinger{err: errors.New("connection refused")})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
