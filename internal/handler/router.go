package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/podstats/internal/metrics"
	"github.com/hitoshi/podstats/internal/middleware"
	"github.com/hitoshi/podstats/internal/tracking"
)

// Pinger はヘルスチェックが確認するデータベース接続。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ヘルスチェック
	DB Pinger

	// ミドルウェア依存
	AdminToken        string
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 管理API
	Registry   RegistryServiceInterface
	Importer   ImporterInterface
	Aggregator AggregatorInterface
	Detector   DetectorInterface
	SiteURL    string

	// 公開トラッキング経路
	Recorder       RecorderInterface
	UpstreamOrigin string

	// メトリクス
	Gatherer  prometheus.Gatherer
	Collector *metrics.Collector
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → (管理ルートのみ: CORS → RateLimit → AdminAuth → CSRF)
//
// 公開トラッキング経路は認証・レート制限の外に置き、配信を妨げない。
func NewRouter(deps *RouterDeps) (http.Handler, error) {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	// ヘルスチェック（DB疎通確認を含む）
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if deps.DB != nil {
			ctx, cancel := context.WithTimeout(req.Context(), 3*time.Second)
			defer cancel()
			if err := deps.DB.PingContext(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Prometheusスクレイプ
	r.Get("/metrics", metrics.Handler(deps.Gatherer).ServeHTTP)

	// --- 管理ルート ---
	adminHandler := NewAdminHandler(deps.Registry, deps.Importer, deps.Aggregator, deps.Detector, deps.SiteURL, deps.Logger)

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
		r.Use(deps.RateLimiter.Middleware(func(req *http.Request) string {
			return tracking.ClientIP(req.Header, req.RemoteAddr)
		}))

		// CSRFトークン取得は認証不要（トークン配布のため）
		r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

		r.Group(func(r chi.Router) {
			r.Use(middleware.NewAdminAuthMiddleware(deps.AdminToken))
			r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
			r.Post("/api", adminHandler.Dispatch)
		})
	})

	// --- 公開トラッキング経路（キャッチオール） ---
	trackHandler, err := NewTrackHandler(deps.Recorder, deps.UpstreamOrigin, latencyHook(deps.Collector), deps.Logger)
	if err != nil {
		return nil, err
	}
	r.Get("/*", trackHandler.ServeHTTP)
	r.Head("/*", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return r, nil
}

// latencyHook はCollectorの有無によらないレイテンシ通知関数を返す。
func latencyHook(c *metrics.Collector) func(time.Duration) {
	if c == nil {
		return nil
	}
	return c.RecordLatency
}
