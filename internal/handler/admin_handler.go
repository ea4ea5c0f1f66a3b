// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/podstats/internal/discovery"
	"github.com/hitoshi/podstats/internal/model"
	"github.com/hitoshi/podstats/internal/stats"
)

// RegistryServiceInterface は管理ハンドラーが必要とするフィードレジストリ操作。
type RegistryServiceInterface interface {
	Get(ctx context.Context, feedID int64) (*model.Feed, error)
	Register(ctx context.Context, rawURL, name string) (*model.Feed, error)
	Delete(ctx context.Context, feedID int64) error
	ListWithTotals(ctx context.Context) ([]model.FeedWithTotal, error)
}

// ImporterInterface はエピソード取り込み操作。
type ImporterInterface interface {
	Refresh(ctx context.Context, feed *model.Feed) (int, error)
}

// AggregatorInterface は統計集計操作。
type AggregatorInterface interface {
	BuildFilter(feedID int64, rangeKind, fromDate, toDate string) (model.StatsFilter, error)
	Report(ctx context.Context, filter model.StatsFilter) (*stats.Report, error)
	Total(ctx context.Context, filter model.StatsFilter) (int64, error)
}

// DetectorInterface はフィード自動検出操作。
type DetectorInterface interface {
	Detect(ctx context.Context, siteURL string) ([]discovery.Candidate, error)
}

// AdminHandler は管理APIのアクションディスパッチを行うHTTPハンドラー。
// 全アクションは POST /admin/api にJSONボディで送られる。
type AdminHandler struct {
	registry   RegistryServiceInterface
	importer   ImporterInterface
	aggregator AggregatorInterface
	detector   DetectorInterface
	siteURL    string
	logger     *slog.Logger
}

// NewAdminHandler はAdminHandlerを生成する。
// siteURLが空の場合、detect_feedsアクションは利用不可になる。
func NewAdminHandler(
	registry RegistryServiceInterface,
	importer ImporterInterface,
	aggregator AggregatorInterface,
	detector DetectorInterface,
	siteURL string,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		registry:   registry,
		importer:   importer,
		aggregator: aggregator,
		detector:   detector,
		siteURL:    siteURL,
		logger:     logger,
	}
}

// adminRequest は管理APIリクエストのボディ。
// アクションごとに使用するフィールドが異なる。
type adminRequest struct {
	Action  string `json:"action"`
	FeedID  int64  `json:"feed_id"`
	FeedURL string `json:"feed_url"`
	Name    string `json:"name"`
	Range   string `json:"range"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// feedResponse はフィード情報のAPIレスポンス。
type feedResponse struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	FeedURL      string `json:"feed_url"`
	Slug         string `json:"slug"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// feedWithTotalResponse は累計アクセス数付きフィードのAPIレスポンス。
type feedWithTotalResponse struct {
	feedResponse
	TotalAccesses int64 `json:"total_accesses"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// Dispatch は管理APIアクションを処理する。
// POST /admin/api
func (h *AdminHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req adminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	switch req.Action {
	case "get_overview":
		h.getOverview(w, r)
	case "get_podcast_stats":
		h.getPodcastStats(w, r, req)
	case "get_stats":
		h.getStats(w, r, req)
	case "add_feed":
		h.addFeed(w, r, req)
	case "delete_feed":
		h.deleteFeed(w, r, req)
	case "detect_feeds":
		h.detectFeeds(w, r)
	case "save_manual_feed":
		h.saveManualFeed(w, r, req)
	case "refresh_episodes":
		h.refreshEpisodes(w, r, req)
	default:
		h.handleServiceError(w, model.NewUnknownActionError(req.Action))
	}
}

// getOverview は全フィードの一覧（累計アクセス数付き）と総アクセス数を返す。
func (h *AdminHandler) getOverview(w http.ResponseWriter, r *http.Request) {
	feeds, err := h.registry.ListWithTotals(r.Context())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	total, err := h.aggregator.Total(r.Context(), model.StatsFilter{})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	items := make([]feedWithTotalResponse, 0, len(feeds))
	for _, f := range feeds {
		items = append(items, feedWithTotalResponse{
			feedResponse:  toFeedResponse(&f.Feed),
			TotalAccesses: f.TotalAccesses,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total": total,
		"feeds": items,
	})
}

// getPodcastStats は単一フィードの統計レポートを返す。
func (h *AdminHandler) getPodcastStats(w http.ResponseWriter, r *http.Request, req adminRequest) {
	if req.FeedID == 0 {
		h.handleServiceError(w, model.NewValidationError("feed_id", "feed_idは必須です"))
		return
	}

	feed, err := h.registry.Get(r.Context(), req.FeedID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	if feed == nil {
		h.handleServiceError(w, model.NewFeedNotFoundError(req.FeedID))
		return
	}

	filter, err := h.aggregator.BuildFilter(req.FeedID, req.Range, req.From, req.To)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	report, err := h.aggregator.Report(r.Context(), filter)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"feed":  toFeedResponse(feed),
		"stats": report,
	})
}

// getStats は全フィード横断（またはfeed_id指定）の統計レポートを返す。
// feed_id=0は全フィード対象を意味する。
func (h *AdminHandler) getStats(w http.ResponseWriter, r *http.Request, req adminRequest) {
	filter, err := h.aggregator.BuildFilter(req.FeedID, req.Range, req.From, req.To)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	report, err := h.aggregator.Report(r.Context(), filter)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"stats": report})
}

// addFeed はフィードを登録し、エピソードを取り込む。
// 取り込みの失敗は登録を巻き戻さない（episodes_added=0で応答する）。
func (h *AdminHandler) addFeed(w http.ResponseWriter, r *http.Request, req adminRequest) {
	if req.FeedURL == "" {
		h.handleServiceError(w, model.NewValidationError("feed_url", "feed_urlは必須です"))
		return
	}
	if req.Name == "" {
		h.handleServiceError(w, model.NewValidationError("name", "nameは必須です"))
		return
	}

	feed, err := h.registry.Register(r.Context(), req.FeedURL, req.Name)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	added, err := h.importer.Refresh(r.Context(), feed)
	if err != nil {
		h.logger.Warn("登録直後のエピソード取り込みに失敗しました",
			"error", err, "feed_id", feed.ID)
		added = 0
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"feed":           toFeedResponse(feed),
		"episodes_added": added,
	})
}

// deleteFeed はフィードと配下のエピソード・アクセスイベントを削除する。
func (h *AdminHandler) deleteFeed(w http.ResponseWriter, r *http.Request, req adminRequest) {
	if req.FeedID == 0 {
		h.handleServiceError(w, model.NewValidationError("feed_id", "feed_idは必須です"))
		return
	}

	if err := h.registry.Delete(r.Context(), req.FeedID); err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// detectFeeds は設定されたサイトURLのHTMLからフィード候補を検出する。
func (h *AdminHandler) detectFeeds(w http.ResponseWriter, r *http.Request) {
	if h.siteURL == "" {
		h.handleServiceError(w, model.NewDiscoveryUnavailableError())
		return
	}

	candidates, err := h.detector.Detect(r.Context(), h.siteURL)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	if len(candidates) == 0 {
		h.handleServiceError(w, model.NewNoFeedsDetectedError(h.siteURL))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"candidates": candidates})
}

// saveManualFeed はURLと名前を指定してフィードを登録する。
// 自動検出に現れないフィードのための手動登録経路で、取り込みは行わない。
func (h *AdminHandler) saveManualFeed(w http.ResponseWriter, r *http.Request, req adminRequest) {
	if req.FeedURL == "" {
		h.handleServiceError(w, model.NewValidationError("feed_url", "feed_urlは必須です"))
		return
	}
	if req.Name == "" {
		h.handleServiceError(w, model.NewValidationError("name", "nameは必須です"))
		return
	}

	feed, err := h.registry.Register(r.Context(), req.FeedURL, req.Name)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"feed": toFeedResponse(feed)})
}

// refreshEpisodes は指定フィードのエピソードを再取り込みする。
// 取得・解析の失敗はリクエスト全体を失敗させない（episodes_added=0で応答する）。
func (h *AdminHandler) refreshEpisodes(w http.ResponseWriter, r *http.Request, req adminRequest) {
	if req.FeedID == 0 {
		h.handleServiceError(w, model.NewValidationError("feed_id", "feed_idは必須です"))
		return
	}

	feed, err := h.registry.Get(r.Context(), req.FeedID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	if feed == nil {
		h.handleServiceError(w, model.NewFeedNotFoundError(req.FeedID))
		return
	}

	added, err := h.importer.Refresh(r.Context(), feed)
	if err != nil {
		h.logger.Warn("エピソードの再取り込みに失敗しました",
			"error", err, "feed_id", feed.ID)
		added = 0
	}

	writeJSON(w, http.StatusOK, map[string]any{"episodes_added": added})
}

// toFeedResponse はフィードモデルをAPIレスポンス形式に変換する。
func toFeedResponse(feed *model.Feed) feedResponse {
	return feedResponse{
		ID:           feed.ID,
		Name:         feed.Name,
		FeedURL:      feed.FeedURL,
		Slug:         feed.Slug,
		ThumbnailURL: feed.ThumbnailURL,
	}
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]apiErrorResponse{
		"error": {
			Code:     apiErr.Code,
			Message:  apiErr.Message,
			Category: apiErr.Category,
			Action:   apiErr.Action,
		},
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func (h *AdminHandler) handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	h.logger.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeValidation, model.ErrCodeUnknownAction, "INVALID_REQUEST":
		return http.StatusBadRequest
	case model.ErrCodeFeedNotFound, model.ErrCodeNoFeedsDetected:
		return http.StatusNotFound
	case model.ErrCodeDuplicateFeedURL, model.ErrCodeDuplicateSlug:
		return http.StatusConflict
	case model.ErrCodeDiscoveryUnavailable:
		return http.StatusServiceUnavailable
	case model.ErrCodeSlugExhausted:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
