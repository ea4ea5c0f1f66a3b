// Package stats はアクセスイベントの集計レポートを構築する。
package stats

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hitoshi/podstats/internal/model"
	"github.com/hitoshi/podstats/internal/repository"
)

// 期間指定の種別。customのみ明示的な開始・終了日を必要とする。
const (
	RangeAll    = "all"
	Range7Days  = "7d"
	Range30Days = "30d"
	Range365    = "365d"
	RangeCustom = "custom"
)

// dateLayout はcustom期間の日付形式。
const dateLayout = "2006-01-02"

// Report は1回の集計呼び出しの結果セット。
type Report struct {
	Total      int64                    `json:"total"`
	ByFeed     []model.BreakdownRow     `json:"by_feed"`
	ByPlatform []model.BreakdownRow     `json:"by_platform"`
	ByCountry  []model.BreakdownRow     `json:"by_country"`
	ByCity     []model.CityBreakdownRow `json:"by_city"`
	ByClient   []model.BreakdownRow     `json:"by_client"`
	ByEpisode  []model.BreakdownRow     `json:"by_episode"`
	Timeline   []model.TimelinePoint    `json:"timeline"`
}

// Aggregator は集計リポジトリの上にフィルタ解釈と順序保証を提供する。
type Aggregator struct {
	repo repository.StatsRepository
	now  func() time.Time
}

// NewAggregator はAggregatorの新しいインスタンスを生成する。
func NewAggregator(repo repository.StatsRepository) *Aggregator {
	return &Aggregator{repo: repo, now: time.Now}
}

// BuildFilter は期間指定文字列からStatsFilterを構築する。
// feedID=0は全フィード対象。rangeKindが空の場合はallとして扱う。
// customはfromDateとtoDateの両方（YYYY-MM-DD）を必須とし、
// 欠けている場合や解釈できない場合はValidationエラーを返す。
// 終了日はその日を含む（翌日0時を排他的上限とする）。
func (a *Aggregator) BuildFilter(feedID int64, rangeKind, fromDate, toDate string) (model.StatsFilter, error) {
	filter := model.StatsFilter{FeedID: feedID}
	now := a.now()

	switch rangeKind {
	case "", RangeAll:
		return filter, nil
	case Range7Days:
		since := now.AddDate(0, 0, -7)
		filter.Since = &since
	case Range30Days:
		since := now.AddDate(0, 0, -30)
		filter.Since = &since
	case Range365:
		since := now.AddDate(0, 0, -365)
		filter.Since = &since
	case RangeCustom:
		if fromDate == "" || toDate == "" {
			return model.StatsFilter{}, model.NewValidationError("range", "custom期間にはfromとtoの両方が必要です")
		}
		from, err := time.Parse(dateLayout, fromDate)
		if err != nil {
			return model.StatsFilter{}, model.NewValidationError("from", fmt.Sprintf("日付を解釈できません: %s", fromDate))
		}
		to, err := time.Parse(dateLayout, toDate)
		if err != nil {
			return model.StatsFilter{}, model.NewValidationError("to", fmt.Sprintf("日付を解釈できません: %s", toDate))
		}
		if to.Before(from) {
			return model.StatsFilter{}, model.NewValidationError("range", "toはfrom以降の日付である必要があります")
		}
		until := to.AddDate(0, 0, 1)
		filter.Since = &from
		filter.Until = &until
	default:
		return model.StatsFilter{}, model.NewValidationError("range", fmt.Sprintf("未知の期間指定です: %s", rangeKind))
	}

	return filter, nil
}

// Report はフィルタに一致する全集計を実行して返す。
// 各内訳は件数降順、同数はラベル昇順で安定している。
func (a *Aggregator) Report(ctx context.Context, filter model.StatsFilter) (*Report, error) {
	total, err := a.repo.Total(ctx, filter)
	if err != nil {
		return nil, err
	}

	byFeed, err := a.repo.ByFeed(ctx, filter)
	if err != nil {
		return nil, err
	}
	byPlatform, err := a.repo.ByPlatform(ctx, filter)
	if err != nil {
		return nil, err
	}
	byCountry, err := a.repo.ByCountry(ctx, filter)
	if err != nil {
		return nil, err
	}
	byCity, err := a.repo.ByCity(ctx, filter)
	if err != nil {
		return nil, err
	}
	byClient, err := a.repo.ByClient(ctx, filter)
	if err != nil {
		return nil, err
	}
	byEpisode, err := a.repo.ByEpisode(ctx, filter)
	if err != nil {
		return nil, err
	}
	timeline, err := a.repo.Timeline(ctx, filter)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Total:      total,
		ByFeed:     byFeed,
		ByPlatform: byPlatform,
		ByCountry:  byCountry,
		ByCity:     byCity,
		ByClient:   byClient,
		ByEpisode:  byEpisode,
		Timeline:   timeline,
	}
	report.normalizeOrder()
	return report, nil
}

// Total はフィルタに一致するイベント総数のみを返す。
func (a *Aggregator) Total(ctx context.Context, filter model.StatsFilter) (int64, error) {
	return a.repo.Total(ctx, filter)
}

// normalizeOrder は全内訳の順序契約（件数降順・同数ラベル昇順）を
// リポジトリ実装に依存せず保証する。
func (r *Report) normalizeOrder() {
	sortBreakdown(r.ByFeed)
	sortBreakdown(r.ByPlatform)
	sortBreakdown(r.ByCountry)
	sortBreakdown(r.ByClient)
	sortBreakdown(r.ByEpisode)

	sort.SliceStable(r.ByCity, func(i, j int) bool {
		a, b := r.ByCity[i], r.ByCity[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.City != b.City {
			return a.City < b.City
		}
		return a.Country < b.Country
	})
}

func sortBreakdown(rows []model.BreakdownRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].Label < rows[j].Label
	})
}
