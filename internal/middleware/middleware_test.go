package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAdminAuth_ValidToken(t *testing.T) {
	handler := NewAdminAuthMiddleware("secret-token")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/admin/api", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestAdminAuth_Rejections(t *testing.T) {
	handler := NewAdminAuthMiddleware("secret-token")(okHandler())

	tests := []struct {
		name   string
		header string
	}{
		{"ヘッダなし", ""},
		{"トークン不一致", "Bearer wrong-token"},
		{"Bearerでない", "Basic secret-token"},
		{"トークンが空", "Bearer "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin/api", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestCSRF_SafeMethodSkipsValidation(t *testing.T) {
	handler := NewCSRFMiddleware(CSRFConfig{})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/admin/csrf-token", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	// トークンCookieが設定される
	cookies := rec.Result().Cookies()
	found := false
	for _, c := range cookies {
		if c.Name == "csrf_token" && c.Value != "" {
			found = true
		}
	}
	if !found {
		t.Error("GETリクエストでcsrf_token Cookieが設定されるべき")
	}
}

func TestCSRF_PostRequiresMatchingToken(t *testing.T) {
	handler := NewCSRFMiddleware(CSRFConfig{})(okHandler())

	// Cookieとヘッダーが一致 → 通過
	req := httptest.NewRequest(http.MethodPost, "/admin/api", nil)
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "tok-1"})
	req.Header.Set("X-CSRF-Token", "tok-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("一致トークン: status = %d, want 200", rec.Code)
	}

	// 不一致 → 403
	req = httptest.NewRequest(http.MethodPost, "/admin/api", nil)
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "tok-1"})
	req.Header.Set("X-CSRF-Token", "tok-2")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("不一致トークン: status = %d, want 403", rec.Code)
	}

	// ヘッダー欠落 → 403
	req = httptest.NewRequest(http.MethodPost, "/admin/api", nil)
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "tok-1"})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("ヘッダー欠落: status = %d, want 403", rec.Code)
	}
}

func TestRateLimiter_BlocksAfterLimit(t *testing.T) {
	rl := NewRateLimiter(3)
	defer rl.Stop()

	handler := rl.Middleware(func(r *http.Request) string { return "client-a" })(okHandler())

	var last int
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodPost, "/admin/api", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		last = rec.Code
	}

	if last != http.StatusTooManyRequests {
		t.Errorf("バースト超過後のstatus = %d, want 429", last)
	}
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(1)
	defer rl.Stop()

	key := "client-a"
	handler := rl.Middleware(func(r *http.Request) string { return key })(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/admin/api", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("1回目: status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/api", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("同一キー2回目: status = %d, want 429", rec.Code)
	}

	// 別キーは制限されない
	key = "client-b"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/api", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("別キー: status = %d, want 200", rec.Code)
	}
}

func TestLoggingMiddleware_SetsRequestID(t *testing.T) {
	logger := discardLogger()
	handler := NewLoggingMiddleware(logger)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-IDが設定されるべき")
	}
}

func TestLoggingMiddleware_PreservesIncomingRequestID(t *testing.T) {
	logger := discardLogger()
	handler := NewLoggingMiddleware(logger)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "req-123" {
		t.Errorf("X-Request-ID = %q, want req-123", got)
	}
}

func TestSecurityHeaders(t *testing.T) {
	handler := NewSecurityHeadersMiddleware()(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
}

func TestCORS_PreflightAndHeaders(t *testing.T) {
	handler := NewCORSMiddleware("https://admin.example")(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/admin/api", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://admin.example" {
		t.Errorf("Allow-Origin = %q", got)
	}
}
