package tracking

import (
	"context"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/podstats/internal/model"
	"github.com/hitoshi/podstats/internal/platform"
	"github.com/hitoshi/podstats/internal/registry"
	"github.com/hitoshi/podstats/internal/repository"
)

// FeedResolver は正規化済みURLから登録フィードを解決する。
type FeedResolver interface {
	Resolve(ctx context.Context, normalizedURL string) (*model.Feed, error)
}

// GeoResolver はIPアドレスから国と都市を解決する。
// 解決できない場合はエラーを返し、呼び出し側は位置情報なしで処理を続行する。
type GeoResolver interface {
	Lookup(ctx context.Context, ip string) (country, city string, err error)
}

// RecordInput は記録パイプラインへの入力。
// ハンドラ層が受信リクエストから組み立てる。
type RecordInput struct {
	URL        string
	UserAgent  string
	RemoteAddr string
	Header     http.Header
}

// Recorder はフィードアクセスを分類・重複排除して保存する。
// 配信経路を妨げないよう、Recordは失敗をエラーとして返さない。
type Recorder struct {
	feeds         FeedResolver
	episodeRepo   repository.EpisodeRepository
	eventRepo     repository.EventRepository
	fingerprinter *Fingerprinter
	geo           GeoResolver
	observer      Observer
	logger        *slog.Logger
	mode          model.DedupMode
	window        time.Duration
	now           func() time.Time
}

// NewRecorder はRecorderの新しいインスタンスを生成する。
// geoはクライアントモード以外ではnilでよい。observerがnilの場合は通知しない。
func NewRecorder(
	feeds FeedResolver,
	episodeRepo repository.EpisodeRepository,
	eventRepo repository.EventRepository,
	fingerprinter *Fingerprinter,
	geo GeoResolver,
	observer Observer,
	logger *slog.Logger,
	mode model.DedupMode,
	window time.Duration,
) *Recorder {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Recorder{
		feeds:         feeds,
		episodeRepo:   episodeRepo,
		eventRepo:     eventRepo,
		fingerprinter: fingerprinter,
		geo:           geo,
		observer:      observer,
		logger:        logger,
		mode:          mode,
		window:        window,
		now:           time.Now,
	}
}

// Record はアクセスを記録する。ベストエフォートで動作し、
// フィード不一致・重複・保存失敗のいずれでも呼び出し元には影響しない。
// 処理フロー: URL正規化 → フィード解決 → 分類 → フィンガープリント →
// 重複判定 → 位置情報（クライアントモードのみ）→ 保存。
func (r *Recorder) Record(ctx context.Context, input RecordInput) {
	normalized, err := registry.NormalizeURL(input.URL)
	if err != nil {
		r.observer.UnmatchedRequest()
		return
	}

	feedID, episodeID, ok := r.resolveTarget(ctx, normalized)
	if !ok {
		r.observer.UnmatchedRequest()
		return
	}

	label := platform.Classify(input.UserAgent)
	if label == platform.LabelOther {
		r.observer.ClassifierMiss()
	}

	ip := ClientIP(input.Header, input.RemoteAddr)
	clientHash := r.fingerprinter.Hash(ip)
	now := r.now()

	// プラットフォームモードはフィード+プラットフォーム+クライアント単位、
	// クライアントモードはフィード+クライアント単位で重複を判定する。
	dedupPlatform := label
	if r.mode == model.DedupModeClient {
		dedupPlatform = ""
	}

	exists, err := r.eventRepo.ExistsRecent(ctx, feedID, dedupPlatform, clientHash, now.Add(-r.window))
	if err != nil {
		r.logger.Warn("重複判定に失敗しました", "error", err, "feed_id", feedID)
		// 判定不能時は記録を優先する
	}
	if exists {
		r.observer.DuplicateDiscarded()
		return
	}

	var country, city string
	if r.mode == model.DedupModeClient && r.geo != nil {
		country, city, err = r.geo.Lookup(ctx, ip)
		if err != nil {
			r.observer.GeoLookupFailed()
			r.logger.Debug("位置情報の解決に失敗しました", "error", err)
			country, city = "", ""
		}
	}

	event := &model.AccessEvent{
		FeedID:     feedID,
		EpisodeID:  episodeID,
		Platform:   label,
		UserAgent:  truncate(input.UserAgent, 512),
		ClientHash: clientHash,
		Country:    country,
		City:       city,
		AccessedAt: now,
	}

	if err := r.eventRepo.Create(ctx, event); err != nil {
		r.logger.Error("アクセスイベントの保存に失敗しました", "error", err, "feed_id", feedID)
		return
	}

	r.observer.EventRecorded(label)
}

// resolveTarget はURLをフィードまたはエピソードの配信URLとして解決する。
// フィードURLに一致すればフィード単位、エピソードのエンクロージャURLに
// 一致すればそのエピソードと親フィードに紐づける。
func (r *Recorder) resolveTarget(ctx context.Context, normalizedURL string) (feedID, episodeID int64, ok bool) {
	feed, err := r.feeds.Resolve(ctx, normalizedURL)
	if err != nil {
		r.logger.Warn("フィードの解決に失敗しました", "error", err)
		return 0, 0, false
	}
	if feed != nil {
		return feed.ID, 0, true
	}

	episode, err := r.episodeRepo.FindByEnclosureURL(ctx, normalizedURL)
	if err != nil {
		r.logger.Warn("エピソードの解決に失敗しました", "error", err)
		return 0, 0, false
	}
	if episode != nil {
		return episode.FeedID, episode.ID, true
	}

	return 0, 0, false
}

// truncate はUser-Agentなど保存前の文字列を最大バイト数で切り詰める。
// マルチバイト文字の途中で切らないよう、境界をルーン先頭まで戻す。
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
