package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/hitoshi/podstats/internal/tracking"
)

// recordTimeout は非同期記録1回あたりの上限時間。
// 位置情報解決を含むため、配信レスポンスより長めに取る。
const recordTimeout = 10 * time.Second

// RecorderInterface はトラッキングハンドラーが必要とする記録操作。
type RecorderInterface interface {
	Record(ctx context.Context, input tracking.RecordInput)
}

// TrackHandler は公開フィード経路のHTTPハンドラー。
// アクセスを記録した上で、上流オリジンへのリバースプロキシまたは204で応答する。
// 記録はレスポンスを遅らせないよう非同期で行う。
type TrackHandler struct {
	recorder RecorderInterface
	proxy    *httputil.ReverseProxy
	logger   *slog.Logger

	// latency は記録パイプライン1回分の所要時間の通知先（nil可）。
	latency func(time.Duration)

	// done はテストで記録完了を同期させるためのフック（nil可）。
	done chan struct{}
}

// NewTrackHandler はTrackHandlerを生成する。
// upstreamOriginが空の場合はプロキシせず204で応答する。
func NewTrackHandler(recorder RecorderInterface, upstreamOrigin string, latency func(time.Duration), logger *slog.Logger) (*TrackHandler, error) {
	h := &TrackHandler{
		recorder: recorder,
		logger:   logger,
		latency:  latency,
	}

	if upstreamOrigin != "" {
		target, err := url.Parse(upstreamOrigin)
		if err != nil {
			return nil, err
		}
		proxy := httputil.NewSingleHostReverseProxy(target)
		proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("上流オリジンへのプロキシに失敗しました",
				slog.String("error", err.Error()), slog.String("path", r.URL.Path))
			w.WriteHeader(http.StatusBadGateway)
		}
		h.proxy = proxy
	}

	return h, nil
}

// ServeHTTP は公開経路のリクエストを処理する。
// 記録の成否はレスポンスに影響しない。
func (h *TrackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	input := tracking.RecordInput{
		URL:        publicURL(r),
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Header:     r.Header.Clone(),
	}

	// レスポンスを遅らせないよう、記録はリクエストのライフサイクルから切り離す
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), recordTimeout)
	go func() {
		defer cancel()
		start := time.Now()
		h.recorder.Record(recordCtx, input)
		if h.latency != nil {
			h.latency(time.Since(start))
		}
		if h.done != nil {
			h.done <- struct{}{}
		}
	}()

	if h.proxy != nil {
		h.proxy.ServeHTTP(w, r)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// publicURL はプロキシヘッダーを考慮して公開リクエストURLを再構成する。
func publicURL(r *http.Request) string {
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		if r.TLS != nil {
			scheme = "https"
		} else {
			scheme = "http"
		}
	}

	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}

	return scheme + "://" + host + r.URL.Path
}
