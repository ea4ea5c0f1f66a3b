// Package model はドメインモデルを定義する。
package model

import "time"

// Feed は統計トラッキング対象として登録されたポッドキャストフィードを表す。
type Feed struct {
	ID           int64
	Name         string
	FeedURL      string // 正規化済みURL（scheme+host+path、クエリ除去、末尾スラッシュなし）
	Slug         string
	ThumbnailURL string
	CreatedAt    time.Time
}

// FeedWithTotal はフィードと累計アクセス数を結合したモデル。
// 概要一覧（get_overview）で使用する。
type FeedWithTotal struct {
	Feed
	TotalAccesses int64
}
