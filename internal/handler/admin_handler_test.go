package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/podstats/internal/discovery"
	"github.com/hitoshi/podstats/internal/model"
	"github.com/hitoshi/podstats/internal/stats"
)

type mockRegistry struct {
	feeds     map[int64]*model.Feed
	deleteErr error
	regErr    error
}

func (m *mockRegistry) Get(_ context.Context, feedID int64) (*model.Feed, error) {
	return m.feeds[feedID], nil
}

func (m *mockRegistry) Register(_ context.Context, rawURL, name string) (*model.Feed, error) {
	if m.regErr != nil {
		return nil, m.regErr
	}
	return &model.Feed{ID: 1, Name: name, FeedURL: rawURL, Slug: "my-show"}, nil
}

func (m *mockRegistry) Delete(_ context.Context, feedID int64) error {
	return m.deleteErr
}

func (m *mockRegistry) ListWithTotals(_ context.Context) ([]model.FeedWithTotal, error) {
	var out []model.FeedWithTotal
	for _, f := range m.feeds {
		out = append(out, model.FeedWithTotal{Feed: *f, TotalAccesses: 5})
	}
	return out, nil
}

type mockImporter struct {
	added int
	err   error
}

func (m *mockImporter) Refresh(_ context.Context, _ *model.Feed) (int, error) {
	return m.added, m.err
}

type mockAggregator struct {
	report *stats.Report
}

func (m *mockAggregator) BuildFilter(feedID int64, rangeKind, fromDate, toDate string) (model.StatsFilter, error) {
	if rangeKind == "custom" && (fromDate == "" || toDate == "") {
		return model.StatsFilter{}, model.NewValidationError("range", "custom期間にはfromとtoの両方が必要です")
	}
	return model.StatsFilter{FeedID: feedID}, nil
}

func (m *mockAggregator) Report(_ context.Context, _ model.StatsFilter) (*stats.Report, error) {
	return m.report, nil
}

func (m *mockAggregator) Total(_ context.Context, _ model.StatsFilter) (int64, error) {
	return 42, nil
}

type mockDetector struct {
	candidates []discovery.Candidate
	err        error
}

func (m *mockDetector) Detect(_ context.Context, _ string) ([]discovery.Candidate, error) {
	return m.candidates, m.err
}

type handlerFixture struct {
	handler  *AdminHandler
	registry *mockRegistry
	importer *mockImporter
	detector *mockDetector
}

func newHandlerFixture(siteURL string) *handlerFixture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := &mockRegistry{feeds: map[int64]*model.Feed{
		1: {ID: 1, Name: "My Show", FeedURL: "https://site.example/feed/show", Slug: "my-show"},
	}}
	importer := &mockImporter{added: 3}
	aggregator := &mockAggregator{report: &stats.Report{Total: 42}}
	detector := &mockDetector{candidates: []discovery.Candidate{
		{URL: "https://site.example/feed/", FeedType: "rss"},
	}}
	h := NewAdminHandler(registry, importer, aggregator, detector, siteURL, logger)
	return &handlerFixture{handler: h, registry: registry, importer: importer, detector: detector}
}

func dispatch(t *testing.T, h *AdminHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/admin/api", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Dispatch(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスの解析に失敗: %v: %s", err, rec.Body.String())
	}
	return body
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, rec)
	errObj, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("errorフィールドがない: %s", rec.Body.String())
	}
	code, _ := errObj["code"].(string)
	return code
}

func TestDispatch_UnknownAction(t *testing.T) {
	fx := newHandlerFixture("")

	rec := dispatch(t, fx.handler, `{"action":"no_such_action"}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if code := errorCode(t, rec); code != model.ErrCodeUnknownAction {
		t.Errorf("code = %q, want UNKNOWN_ACTION", code)
	}
}

func TestDispatch_InvalidJSON(t *testing.T) {
	fx := newHandlerFixture("")

	rec := dispatch(t, fx.handler, `{not json`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetOverview(t *testing.T) {
	fx := newHandlerFixture("")

	rec := dispatch(t, fx.handler, `{"action":"get_overview"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["total"].(float64) != 42 {
		t.Errorf("total = %v, want 42", body["total"])
	}
	feeds := body["feeds"].([]any)
	if len(feeds) != 1 {
		t.Errorf("feeds件数 = %d, want 1", len(feeds))
	}
}

func TestGetPodcastStats_RequiresFeedID(t *testing.T) {
	fx := newHandlerFixture("")

	rec := dispatch(t, fx.handler, `{"action":"get_podcast_stats"}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetPodcastStats_UnknownFeed(t *testing.T) {
	fx := newHandlerFixture("")

	rec := dispatch(t, fx.handler, `{"action":"get_podcast_stats","feed_id":99}`)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if code := errorCode(t, rec); code != model.ErrCodeFeedNotFound {
		t.Errorf("code = %q, want FEED_NOT_FOUND", code)
	}
}

func TestGetPodcastStats_Success(t *testing.T) {
	fx := newHandlerFixture("")

	rec := dispatch(t, fx.handler, `{"action":"get_podcast_stats","feed_id":1}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if _, ok := body["stats"]; !ok {
		t.Error("statsフィールドがない")
	}
	feed := body["feed"].(map[string]any)
	if feed["slug"] != "my-show" {
		t.Errorf("feed.slug = %v", feed["slug"])
	}
}

func TestGetStats_CustomRangeValidation(t *testing.T) {
	fx := newHandlerFixture("")

	rec := dispatch(t, fx.handler, `{"action":"get_stats","range":"custom","from":"2025-06-01"}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if code := errorCode(t, rec); code != model.ErrCodeValidation {
		t.Errorf("code = %q, want VALIDATION", code)
	}
}

func TestAddFeed_Success(t *testing.T) {
	fx := newHandlerFixture("")

	rec := dispatch(t, fx.handler, `{"action":"add_feed","feed_url":"https://site.example/feed/new","name":"New Show"}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["episodes_added"].(float64) != 3 {
		t.Errorf("episodes_added = %v, want 3", body["episodes_added"])
	}
}

func TestAddFeed_MissingFields(t *testing.T) {
	fx := newHandlerFixture("")

	for _, body := range []string{
		`{"action":"add_feed","name":"New Show"}`,
		`{"action":"add_feed","feed_url":"https://site.example/feed"}`,
	} {
		rec := dispatch(t, fx.handler, body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestAddFeed_DuplicateURL(t *testing.T) {
	fx := newHandlerFixture("")
	fx.registry.regErr = model.NewDuplicateFeedURLError("https://site.example/feed/show")

	rec := dispatch(t, fx.handler, `{"action":"add_feed","feed_url":"https://site.example/feed/show","name":"My Show"}`)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestAddFeed_SlugExhausted(t *testing.T) {
	fx := newHandlerFixture("")
	fx.registry.regErr = model.NewSlugExhaustedError("my-show")

	rec := dispatch(t, fx.handler, `{"action":"add_feed","feed_url":"https://site.example/feed/x","name":"My Show"}`)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestAddFeed_ImportFailureStillCreates(t *testing.T) {
	fx := newHandlerFixture("")
	fx.importer.err = io.ErrUnexpectedEOF

	rec := dispatch(t, fx.handler, `{"action":"add_feed","feed_url":"https://site.example/feed/new","name":"New Show"}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("取り込み失敗でも登録は成功すべき: status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["episodes_added"].(float64) != 0 {
		t.Errorf("episodes_added = %v, want 0", body["episodes_added"])
	}
}

func TestDeleteFeed_NotFound(t *testing.T) {
	fx := newHandlerFixture("")
	fx.registry.deleteErr = model.NewFeedNotFoundError(99)

	rec := dispatch(t, fx.handler, `{"action":"delete_feed","feed_id":99}`)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteFeed_Success(t *testing.T) {
	fx := newHandlerFixture("")

	rec := dispatch(t, fx.handler, `{"action":"delete_feed","feed_id":1}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["deleted"] != true {
		t.Errorf("deleted = %v, want true", body["deleted"])
	}
}

func TestDetectFeeds_UnavailableWithoutSiteURL(t *testing.T) {
	fx := newHandlerFixture("")

	rec := dispatch(t, fx.handler, `{"action":"detect_feeds"}`)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if code := errorCode(t, rec); code != model.ErrCodeDiscoveryUnavailable {
		t.Errorf("code = %q, want DISCOVERY_UNAVAILABLE", code)
	}
}

func TestDetectFeeds_Success(t *testing.T) {
	fx := newHandlerFixture("https://site.example")

	rec := dispatch(t, fx.handler, `{"action":"detect_feeds"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if len(body["candidates"].([]any)) != 1 {
		t.Errorf("candidates = %v", body["candidates"])
	}
}

func TestDetectFeeds_NoCandidates(t *testing.T) {
	fx := newHandlerFixture("https://site.example")
	fx.detector.candidates = nil

	rec := dispatch(t, fx.handler, `{"action":"detect_feeds"}`)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if code := errorCode(t, rec); code != model.ErrCodeNoFeedsDetected {
		t.Errorf("code = %q, want NO_FEEDS_DETECTED", code)
	}
}

func TestSaveManualFeed_Success(t *testing.T) {
	fx := newHandlerFixture("")

	rec := dispatch(t, fx.handler, `{"action":"save_manual_feed","feed_url":"https://site.example/feed/manual","name":"Manual Show"}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
}

func TestRefreshEpisodes_Success(t *testing.T) {
	fx := newHandlerFixture("")

	rec := dispatch(t, fx.handler, `{"action":"refresh_episodes","feed_id":1}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["episodes_added"].(float64) != 3 {
		t.Errorf("episodes_added = %v, want 3", body["episodes_added"])
	}
}

func TestRefreshEpisodes_FetchFailureReportsZero(t *testing.T) {
	fx := newHandlerFixture("")
	fx.importer.added = 0
	fx.importer.err = errors.New("フィードの取得に失敗しました: status=503")

	rec := dispatch(t, fx.handler, `{"action":"refresh_episodes","feed_id":1}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["episodes_added"].(float64) != 0 {
		t.Errorf("episodes_added = %v, want 0", body["episodes_added"])
	}
}

func TestRefreshEpisodes_UnknownFeed(t *testing.T) {
	fx := newHandlerFixture("")

	rec := dispatch(t, fx.handler, `{"action":"refresh_episodes","feed_id":42}`)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
