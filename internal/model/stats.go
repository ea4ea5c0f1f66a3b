// Package model はドメインモデルを定義する。
package model

import "time"

// StatsFilter は集計クエリの絞り込み条件を表す。
// FeedIDが0の場合は全フィードが対象。SinceとUntilはnilの場合に無制限。
// Untilは排他的上限（その時刻より前のイベントが対象）。
type StatsFilter struct {
	FeedID int64
	Since  *time.Time
	Until  *time.Time
}

// BreakdownRow は1つのグループとその件数を表す。
type BreakdownRow struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// CityBreakdownRow は都市+国の組み合わせごとの件数を表す。
type CityBreakdownRow struct {
	City    string `json:"city"`
	Country string `json:"country"`
	Count   int64  `json:"count"`
}

// TimelinePoint は1暦日ごとの件数を表す。
type TimelinePoint struct {
	Day   time.Time `json:"day"`
	Count int64     `json:"count"`
}
