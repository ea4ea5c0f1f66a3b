// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/podstats/internal/config"
	"github.com/hitoshi/podstats/internal/database"
	"github.com/hitoshi/podstats/internal/discovery"
	"github.com/hitoshi/podstats/internal/episode"
	"github.com/hitoshi/podstats/internal/geo"
	"github.com/hitoshi/podstats/internal/handler"
	"github.com/hitoshi/podstats/internal/logger"
	"github.com/hitoshi/podstats/internal/metrics"
	"github.com/hitoshi/podstats/internal/middleware"
	"github.com/hitoshi/podstats/internal/model"
	"github.com/hitoshi/podstats/internal/registry"
	"github.com/hitoshi/podstats/internal/repository"
	"github.com/hitoshi/podstats/internal/security"
	"github.com/hitoshi/podstats/internal/stats"
	"github.com/hitoshi/podstats/internal/tracking"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("dedup_mode", string(cfg.DedupMode)),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	feedRepo := repository.NewPostgresFeedRepo(db)
	episodeRepo := repository.NewPostgresEpisodeRepo(db)
	eventRepo := repository.NewPostgresEventRepo(db)
	statsRepo := repository.NewPostgresStatsRepo(db)

	// 3. セキュリティサービスの初期化
	fetchGuard := security.NewFetchGuard()
	sanitizer := security.NewTitleSanitizer()

	// 4. メトリクスの初期化
	promRegistry := prometheus.NewRegistry()
	collector := metrics.NewCollector(promRegistry)

	// 5. ドメインサービスの初期化
	registryService := registry.NewService(feedRepo)
	importer := episode.NewImporter(
		episodeRepo, feedRepo, fetchGuard, sanitizer,
		slog.Default(), cfg.FetchTimeout, cfg.FetchMaxSize,
	)
	detector := discovery.NewDetector(
		feedRepo, fetchGuard, slog.Default(), cfg.FetchTimeout, cfg.FetchMaxSize,
	)
	aggregator := stats.NewAggregator(statsRepo)

	// 6. 記録パイプラインの初期化
	// 位置情報の解決はクライアントモードのみ
	var geoResolver tracking.GeoResolver
	if cfg.DedupMode == model.DedupModeClient {
		geoResolver = geo.NewHTTPResolver(cfg.GeoIPEndpoint, cfg.GeoIPTimeout, cfg.GeoIPCacheTTL)
	}
	fingerprinter := tracking.NewFingerprinter(cfg.TrackingSalt)
	recorder := tracking.NewRecorder(
		registryService, episodeRepo, eventRepo, fingerprinter,
		geoResolver, collector, slog.Default(), cfg.DedupMode, cfg.DedupWindow,
	)

	// 7. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitAdmin)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		DB:                db,
		AdminToken:        cfg.AdminToken,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: rateLimiter,
		Logger:      slog.Default(),

		Registry:   registryService,
		Importer:   importer,
		Aggregator: aggregator,
		Detector:   detector,
		SiteURL:    cfg.SiteURL,

		Recorder:       recorder,
		UpstreamOrigin: cfg.UpstreamOrigin,

		Gatherer:  promRegistry,
		Collector: collector,
	}

	router, err := handler.NewRouter(deps)
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:20] + "..."
	}
	return url
}
