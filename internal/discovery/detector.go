// Package discovery はサイトHTMLからのフィード自動検出を提供する。
package discovery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/hitoshi/podstats/internal/registry"
	"github.com/hitoshi/podstats/internal/repository"
	"github.com/hitoshi/podstats/internal/security"
)

// Candidate はHTMLから検出されたフィード候補。
type Candidate struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	FeedType   string `json:"feed_type"`
	Registered bool   `json:"registered"`
}

// フィード候補として認識するlink要素のtype属性値。
const (
	typeRSS  = "application/rss+xml"
	typeAtom = "application/atom+xml"
)

// Detector はサイトのHTMLヘッダからRSS/Atomフィードを検出する。
type Detector struct {
	feedRepo repository.FeedRepository
	guard    security.FetchGuardService
	logger   *slog.Logger
	timeout  time.Duration
	maxSize  int64

	// newClient はテストでHTTPクライアントを差し替えるためのフック。
	newClient func() *http.Client
}

// NewDetector はDetectorの新しいインスタンスを生成する。
func NewDetector(
	feedRepo repository.FeedRepository,
	guard security.FetchGuardService,
	logger *slog.Logger,
	timeout time.Duration,
	maxSize int64,
) *Detector {
	d := &Detector{
		feedRepo: feedRepo,
		guard:    guard,
		logger:   logger,
		timeout:  timeout,
		maxSize:  maxSize,
	}
	d.newClient = func() *http.Client {
		return guard.NewSafeClient(timeout)
	}
	return d
}

// Detect はサイトURLのHTMLを取得し、headタグ内のフィードリンクを候補として返す。
// 既に登録済みのフィードはRegistered=trueとして含める。
// 候補の順序はHTML内の出現順を保つ。
func (d *Detector) Detect(ctx context.Context, siteURL string) ([]Candidate, error) {
	if err := d.guard.ValidateURL(siteURL); err != nil {
		return nil, fmt.Errorf("サイトURLの検証に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, siteURL, nil)
	if err != nil {
		return nil, fmt.Errorf("サイトリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "podstats/1.0")

	resp, err := d.newClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("サイトの取得に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("サイトの取得に失敗しました: status=%d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxSize))
	if err != nil {
		return nil, fmt.Errorf("サイトHTMLの読み込みに失敗しました: %w", err)
	}

	candidates := parseFeedLinks(body, siteURL)

	for i := range candidates {
		normalized, err := registry.NormalizeURL(candidates[i].URL)
		if err != nil {
			continue
		}
		existing, err := d.feedRepo.FindByURL(ctx, normalized)
		if err != nil {
			d.logger.Warn("候補の登録状態の確認に失敗しました", "error", err, "url", candidates[i].URL)
			continue
		}
		candidates[i].Registered = existing != nil
	}

	return candidates, nil
}

// parseFeedLinks はHTMLのheadタグからrel="alternate"のフィードリンクを抽出する。
// 相対URLはbaseURLを基準に絶対URLへ解決し、同一URLの重複は除く。
func parseFeedLinks(htmlBody []byte, baseURL string) []Candidate {
	baseU, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	var candidates []Candidate
	seen := make(map[string]bool)
	tokenizer := html.NewTokenizer(bytes.NewReader(htmlBody))
	inHead := false

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return candidates

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			tagName := string(tn)

			if tagName == "head" {
				inHead = true
				continue
			}
			if tagName == "body" {
				// bodyに入ったらheadの解析を終了
				return candidates
			}
			if !inHead || tagName != "link" || !hasAttr {
				continue
			}

			var rel, linkType, href, title string
			for {
				key, val, more := tokenizer.TagAttr()
				switch strings.ToLower(string(key)) {
				case "rel":
					rel = strings.ToLower(string(val))
				case "type":
					linkType = strings.ToLower(string(val))
				case "href":
					href = string(val)
				case "title":
					title = string(val)
				}
				if !more {
					break
				}
			}

			if rel != "alternate" || href == "" {
				continue
			}

			var feedType string
			switch linkType {
			case typeRSS:
				feedType = "rss"
			case typeAtom:
				feedType = "atom"
			default:
				continue
			}

			ref, err := url.Parse(href)
			if err != nil {
				continue
			}
			resolved := baseU.ResolveReference(ref).String()
			if seen[resolved] {
				continue
			}
			seen[resolved] = true

			candidates = append(candidates, Candidate{
				URL:      resolved,
				Title:    title,
				FeedType: feedType,
			})

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "head" {
				return candidates
			}
		}
	}
}
