// Package geo はIPアドレスから国・都市を解決する。
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// maxResponseSize は位置情報APIレスポンスの読み込み上限。
const maxResponseSize = 64 * 1024

// location はキャッシュに保持する解決結果。
type location struct {
	Country string
	City    string
}

// apiResponse はip-api.com互換エンドポイントのレスポンス形式。
type apiResponse struct {
	Status  string `json:"status"`
	Country string `json:"country"`
	City    string `json:"city"`
}

// HTTPResolver はip-api.com互換のHTTPエンドポイントで位置情報を解決する。
// 結果はTTL付きでメモリにキャッシュされ、同一IPへの問い合わせを抑制する。
type HTTPResolver struct {
	endpoint string
	client   *http.Client
	cache    *gocache.Cache
}

// NewHTTPResolver はHTTPResolverの新しいインスタンスを生成する。
// endpointは末尾スラッシュなしのベースURL（例: http://ip-api.com/json）。
func NewHTTPResolver(endpoint string, timeout, cacheTTL time.Duration) *HTTPResolver {
	return &HTTPResolver{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		cache:    gocache.New(cacheTTL, 2*cacheTTL),
	}
}

// Lookup はIPアドレスの国と都市を返す。
// キャッシュに存在すればHTTPリクエストを発行しない。
// 失敗応答（status != success）もキャッシュし、再問い合わせを防ぐ。
func (r *HTTPResolver) Lookup(ctx context.Context, ip string) (string, string, error) {
	if cached, found := r.cache.Get(ip); found {
		loc := cached.(location)
		return loc.Country, loc.City, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+"/"+ip, nil)
	if err != nil {
		return "", "", fmt.Errorf("位置情報リクエストの作成に失敗しました: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("位置情報の問い合わせに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("位置情報APIが異常応答を返しました: status=%d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", "", fmt.Errorf("位置情報レスポンスの読み込みに失敗しました: %w", err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", "", fmt.Errorf("位置情報レスポンスの解析に失敗しました: %w", err)
	}

	loc := location{}
	if parsed.Status == "success" {
		loc = location{Country: parsed.Country, City: parsed.City}
	}
	r.cache.Set(ip, loc, gocache.DefaultExpiration)

	return loc.Country, loc.City, nil
}
