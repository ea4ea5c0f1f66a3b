// Package episode はフィードからのエピソード取り込みを提供する。
package episode

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/podstats/internal/model"
	"github.com/hitoshi/podstats/internal/repository"
	"github.com/hitoshi/podstats/internal/security"
)

// Importer はフィードを取得・解析してエピソードを保存する。
// 取り込みは(feed_id, guid)単位で冪等であり、既存エピソードは変更しない。
type Importer struct {
	episodeRepo repository.EpisodeRepository
	feedRepo    repository.FeedRepository
	guard       security.FetchGuardService
	sanitizer   security.TitleSanitizerService
	logger      *slog.Logger
	timeout     time.Duration
	maxSize     int64

	// newClient はテストでHTTPクライアントを差し替えるためのフック。
	newClient func() *http.Client
	now       func() time.Time
}

// NewImporter はImporterの新しいインスタンスを生成する。
func NewImporter(
	episodeRepo repository.EpisodeRepository,
	feedRepo repository.FeedRepository,
	guard security.FetchGuardService,
	sanitizer security.TitleSanitizerService,
	logger *slog.Logger,
	timeout time.Duration,
	maxSize int64,
) *Importer {
	imp := &Importer{
		episodeRepo: episodeRepo,
		feedRepo:    feedRepo,
		guard:       guard,
		sanitizer:   sanitizer,
		logger:      logger,
		timeout:     timeout,
		maxSize:     maxSize,
		now:         time.Now,
	}
	imp.newClient = func() *http.Client {
		return guard.NewSafeClient(timeout)
	}
	return imp
}

// Fetch はフィードURLを検証した上で取得・解析する。
// SSRF防止のため、検証済みクライアント経由でのみリクエストを送る。
func (imp *Importer) Fetch(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	if err := imp.guard.ValidateURL(feedURL); err != nil {
		return nil, fmt.Errorf("フィードURLの検証に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("フィードリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "podstats/1.0")

	resp, err := imp.newClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("フィードの取得に失敗しました: status=%d", resp.StatusCode)
	}

	parsed, err := gofeed.NewParser().Parse(io.LimitReader(resp.Body, imp.maxSize))
	if err != nil {
		return nil, fmt.Errorf("フィードの解析に失敗しました: %w", err)
	}
	return parsed, nil
}

// Refresh はフィードを取得してエピソードを取り込み、新規追加件数を返す。
// 既に取り込み済みのエピソードは(feed_id, guid)の一意性により読み飛ばされる。
// サムネイルURLはチャンネルのiTunes画像を優先し、なければチャンネル画像を使う。
func (imp *Importer) Refresh(ctx context.Context, feed *model.Feed) (int, error) {
	parsed, err := imp.Fetch(ctx, feed.FeedURL)
	if err != nil {
		return 0, err
	}

	added := 0
	for _, item := range parsed.Items {
		ep, ok := imp.buildEpisode(feed.ID, item)
		if !ok {
			continue
		}

		created, err := imp.episodeRepo.CreateIfAbsent(ctx, ep)
		if err != nil {
			return added, fmt.Errorf("エピソードの保存に失敗しました: %w", err)
		}
		if created {
			added++
		}
	}

	imp.updateThumbnail(ctx, feed, parsed)

	imp.logger.Info("エピソードを取り込みました",
		"feed_id", feed.ID, "items", len(parsed.Items), "added", added)
	return added, nil
}

// buildEpisode はフィードアイテムからエピソードを組み立てる。
// エンクロージャのないアイテムは配信回ではないため読み飛ばす。
func (imp *Importer) buildEpisode(feedID int64, item *gofeed.Item) (*model.Episode, bool) {
	enclosureURL := ""
	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" {
			enclosureURL = enc.URL
			break
		}
	}
	if enclosureURL == "" {
		return nil, false
	}

	title := imp.sanitizer.Sanitize(item.Title)

	guid := item.GUID
	if guid == "" {
		guid = fallbackGUID(title, enclosureURL)
	}

	return &model.Episode{
		FeedID:       feedID,
		Title:        title,
		GUID:         guid,
		EnclosureURL: enclosureURL,
		PublishedAt:  item.PublishedParsed,
		CreatedAt:    imp.now(),
	}, true
}

// updateThumbnail はチャンネル画像からサムネイルを更新する。失敗しても致命ではない。
func (imp *Importer) updateThumbnail(ctx context.Context, feed *model.Feed, parsed *gofeed.Feed) {
	thumbnail := ""
	if parsed.ITunesExt != nil && parsed.ITunesExt.Image != "" {
		thumbnail = parsed.ITunesExt.Image
	} else if parsed.Image != nil && parsed.Image.URL != "" {
		thumbnail = parsed.Image.URL
	}
	if thumbnail == "" || thumbnail == feed.ThumbnailURL {
		return
	}

	if err := imp.feedRepo.UpdateThumbnail(ctx, feed.ID, thumbnail); err != nil {
		imp.logger.Warn("サムネイルの更新に失敗しました", "error", err, "feed_id", feed.ID)
		return
	}
	feed.ThumbnailURL = thumbnail
}

// fallbackGUID はGUIDのないアイテムの決定的な代替識別子を導出する。
func fallbackGUID(title, enclosureURL string) string {
	sum := md5.Sum([]byte(title + enclosureURL))
	return hex.EncodeToString(sum[:])
}
