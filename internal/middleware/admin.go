package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

// NewAdminAuthMiddleware は管理APIのベアラートークン認証ミドルウェアを返す。
// Authorization: Bearer <token> が設定トークンと一致しない場合は401を返す。
// 比較はタイミング攻撃を避けるため一定時間で行う。
func NewAdminAuthMiddleware(adminToken string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(adminToken)) != 1 {
				slog.Warn("admin authentication failed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken はAuthorizationヘッダーからベアラートークンを取り出す。
func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}
	return auth[len(prefix):], true
}
