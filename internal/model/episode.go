// Package model はドメインモデルを定義する。
package model

import "time"

// Episode はフィードの1配信回（シンジケーションアイテム）を表す。
// (FeedID, GUID) はフィード内で一意。ソースがGUIDを省略した場合は
// タイトルとエンクロージャURLから決定的に導出される（再インポートの冪等性を保つ）。
type Episode struct {
	ID           int64
	FeedID       int64
	Title        string
	GUID         string
	EnclosureURL string
	PublishedAt  *time.Time
	CreatedAt    time.Time
}
