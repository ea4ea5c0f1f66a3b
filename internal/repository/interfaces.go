// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/podstats/internal/model"
)

// FeedRepository は登録フィードの永続化インターフェース。
type FeedRepository interface {
	// FindByID は指定IDのフィードを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Feed, error)

	// FindByURL は正規化済みURLでフィードを検索する。
	// 末尾スラッシュの有無どちらの形でも一致する。見つからない場合はnilを返す。
	FindByURL(ctx context.Context, feedURL string) (*model.Feed, error)

	// ExistsSlug は指定スラッグが既に使用されているかを返す。
	ExistsSlug(ctx context.Context, slug string) (bool, error)

	// Create はフィードを作成し、採番されたIDをfeed.IDに設定する。
	// 一意制約違反の場合はmodel.APIError（Duplicate系）を返す。
	Create(ctx context.Context, feed *model.Feed) error

	// UpdateThumbnail はフィードのサムネイルURLを更新する。
	UpdateThumbnail(ctx context.Context, feedID int64, thumbnailURL string) error

	// Delete は指定IDのフィードを削除する。エピソードとアクセスイベントは
	// CASCADE削除される。削除された場合はtrueを返す。
	Delete(ctx context.Context, id int64) (bool, error)

	// ListWithTotals は全フィードを累計アクセス数付きで名前昇順で返す。
	ListWithTotals(ctx context.Context) ([]model.FeedWithTotal, error)
}

// EpisodeRepository はエピソードの永続化インターフェース。
type EpisodeRepository interface {
	// CreateIfAbsent は(feed_id, guid)が未登録の場合のみエピソードを挿入する。
	// 挿入した場合はtrueを返す（再インポートの冪等性はこの操作に依存する）。
	CreateIfAbsent(ctx context.Context, ep *model.Episode) (bool, error)

	// FindByEnclosureURL はエンクロージャURLでエピソードを検索する。
	// 末尾スラッシュの有無どちらの形でも一致する。見つからない場合はnilを返す。
	FindByEnclosureURL(ctx context.Context, enclosureURL string) (*model.Episode, error)
}

// EventRepository はアクセスイベントの永続化インターフェース。
// イベントは追記専用で、更新操作は存在しない。
type EventRepository interface {
	// ExistsRecent は重複排除キーに一致するイベントがウィンドウ内に
	// 存在するかを返す。platformが空文字列の場合はキーから除外する
	// （feed+fingerprintのみのモード）。
	ExistsRecent(ctx context.Context, feedID int64, platform, clientHash string, since time.Time) (bool, error)

	// Create はアクセスイベントを挿入する。
	Create(ctx context.Context, ev *model.AccessEvent) error
}
