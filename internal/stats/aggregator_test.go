package stats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/podstats/internal/model"
)

// mockStatsRepo は順序の乱れた内訳を返すStatsRepositoryモック。
type mockStatsRepo struct {
	total      int64
	byPlatform []model.BreakdownRow
	lastFilter model.StatsFilter
}

func (m *mockStatsRepo) Total(_ context.Context, f model.StatsFilter) (int64, error) {
	m.lastFilter = f
	return m.total, nil
}

func (m *mockStatsRepo) ByFeed(_ context.Context, f model.StatsFilter) ([]model.BreakdownRow, error) {
	return nil, nil
}

func (m *mockStatsRepo) ByPlatform(_ context.Context, f model.StatsFilter) ([]model.BreakdownRow, error) {
	return m.byPlatform, nil
}

func (m *mockStatsRepo) ByCountry(_ context.Context, f model.StatsFilter) ([]model.BreakdownRow, error) {
	return nil, nil
}

func (m *mockStatsRepo) ByCity(_ context.Context, f model.StatsFilter) ([]model.CityBreakdownRow, error) {
	return nil, nil
}

func (m *mockStatsRepo) ByClient(_ context.Context, f model.StatsFilter) ([]model.BreakdownRow, error) {
	return nil, nil
}

func (m *mockStatsRepo) ByEpisode(_ context.Context, f model.StatsFilter) ([]model.BreakdownRow, error) {
	return nil, nil
}

func (m *mockStatsRepo) Timeline(_ context.Context, f model.StatsFilter) ([]model.TimelinePoint, error) {
	return nil, nil
}

func fixedAggregator(repo *mockStatsRepo) *Aggregator {
	a := NewAggregator(repo)
	a.now = func() time.Time {
		return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	}
	return a
}

func TestBuildFilter_RelativeRanges(t *testing.T) {
	a := fixedAggregator(&mockStatsRepo{})

	tests := []struct {
		rangeKind string
		wantSince time.Time
	}{
		{Range7Days, time.Date(2025, 6, 8, 12, 0, 0, 0, time.UTC)},
		{Range30Days, time.Date(2025, 5, 16, 12, 0, 0, 0, time.UTC)},
		{Range365, time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.rangeKind, func(t *testing.T) {
			f, err := a.BuildFilter(0, tt.rangeKind, "", "")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if f.Since == nil || !f.Since.Equal(tt.wantSince) {
				t.Errorf("Since = %v, want %v", f.Since, tt.wantSince)
			}
			if f.Until != nil {
				t.Errorf("相対期間にUntilは不要: %v", f.Until)
			}
		})
	}
}

func TestBuildFilter_AllAndEmpty(t *testing.T) {
	a := fixedAggregator(&mockStatsRepo{})

	for _, kind := range []string{"", RangeAll} {
		f, err := a.BuildFilter(3, kind, "", "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if f.Since != nil || f.Until != nil {
			t.Errorf("全期間は境界なしのはず: %+v", f)
		}
		if f.FeedID != 3 {
			t.Errorf("FeedID = %d, want 3", f.FeedID)
		}
	}
}

func TestBuildFilter_CustomRange(t *testing.T) {
	a := fixedAggregator(&mockStatsRepo{})

	f, err := a.BuildFilter(0, RangeCustom, "2025-06-01", "2025-06-10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Since == nil || !f.Since.Equal(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Since = %v", f.Since)
	}
	// 終了日はその日を含む
	if f.Until == nil || !f.Until.Equal(time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Until = %v, want 2025-06-11T00:00:00Z", f.Until)
	}
}

func TestBuildFilter_CustomRangeValidation(t *testing.T) {
	a := fixedAggregator(&mockStatsRepo{})

	tests := []struct {
		name string
		from string
		to   string
	}{
		{"fromが欠落", "", "2025-06-10"},
		{"toが欠落", "2025-06-01", ""},
		{"両方欠落", "", ""},
		{"fromが不正な形式", "06/01/2025", "2025-06-10"},
		{"toが不正な形式", "2025-06-01", "next week"},
		{"toがfromより前", "2025-06-10", "2025-06-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.BuildFilter(0, RangeCustom, tt.from, tt.to)
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidation {
				t.Fatalf("expected VALIDATION error, got %v", err)
			}
		})
	}
}

func TestBuildFilter_UnknownRange(t *testing.T) {
	a := fixedAggregator(&mockStatsRepo{})

	_, err := a.BuildFilter(0, "90d", "", "")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidation {
		t.Fatalf("expected VALIDATION error, got %v", err)
	}
}

func TestReport_OrdersBreakdownDeterministically(t *testing.T) {
	repo := &mockStatsRepo{
		total: 12,
		byPlatform: []model.BreakdownRow{
			{Label: "Castro", Count: 2},
			{Label: "Spotify", Count: 5},
			{Label: "Apple Podcasts", Count: 5},
		},
	}
	a := fixedAggregator(repo)

	report, err := a.Report(context.Background(), model.StatsFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []model.BreakdownRow{
		{Label: "Apple Podcasts", Count: 5},
		{Label: "Spotify", Count: 5},
		{Label: "Castro", Count: 2},
	}
	if len(report.ByPlatform) != len(want) {
		t.Fatalf("行数 = %d, want %d", len(report.ByPlatform), len(want))
	}
	for i := range want {
		if report.ByPlatform[i] != want[i] {
			t.Errorf("ByPlatform[%d] = %+v, want %+v", i, report.ByPlatform[i], want[i])
		}
	}
	if report.Total != 12 {
		t.Errorf("Total = %d, want 12", report.Total)
	}
}
