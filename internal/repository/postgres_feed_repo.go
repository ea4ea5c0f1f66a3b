package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/hitoshi/podstats/internal/model"
)

// PostgresFeedRepo はPostgreSQLを使用したフィードリポジトリ。
type PostgresFeedRepo struct {
	db *sql.DB
}

// NewPostgresFeedRepo はPostgresFeedRepoを生成する。
func NewPostgresFeedRepo(db *sql.DB) *PostgresFeedRepo {
	return &PostgresFeedRepo{db: db}
}

// FindByID は指定IDのフィードを取得する。見つからない場合はnilを返す。
func (r *PostgresFeedRepo) FindByID(ctx context.Context, id int64) (*model.Feed, error) {
	feed := &model.Feed{}

	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, feed_url, slug, thumbnail_url, created_at
		 FROM feeds WHERE id = $1`,
		id,
	).Scan(&feed.ID, &feed.Name, &feed.FeedURL, &feed.Slug, &feed.ThumbnailURL, &feed.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}

	return feed, nil
}

// FindByURL は正規化済みURLでフィードを検索する。
// 登録時の正規化で末尾スラッシュは除去されているが、過去データとの
// 互換のため両形で照合する。見つからない場合はnilを返す。
func (r *PostgresFeedRepo) FindByURL(ctx context.Context, feedURL string) (*model.Feed, error) {
	trimmed := strings.TrimSuffix(feedURL, "/")
	feed := &model.Feed{}

	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, feed_url, slug, thumbnail_url, created_at
		 FROM feeds WHERE feed_url = $1 OR feed_url = $2`,
		trimmed, trimmed+"/",
	).Scan(&feed.ID, &feed.Name, &feed.FeedURL, &feed.Slug, &feed.ThumbnailURL, &feed.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("フィードの検索に失敗しました: %w", err)
	}

	return feed, nil
}

// ExistsSlug は指定スラッグが既に使用されているかを返す。
func (r *PostgresFeedRepo) ExistsSlug(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM feeds WHERE slug = $1)`,
		slug,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("スラッグの確認に失敗しました: %w", err)
	}
	return exists, nil
}

// Create はフィードを作成し、採番されたIDをfeed.IDに設定する。
// 並行登録でユニーク制約に衝突した場合はDuplicate系のAPIErrorを返す。
func (r *PostgresFeedRepo) Create(ctx context.Context, feed *model.Feed) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO feeds (name, feed_url, slug, thumbnail_url, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		feed.Name, feed.FeedURL, feed.Slug, feed.ThumbnailURL, feed.CreatedAt,
	).Scan(&feed.ID)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			if strings.Contains(pqErr.Constraint, "slug") {
				return model.NewDuplicateSlugError(feed.Slug)
			}
			return model.NewDuplicateFeedURLError(feed.FeedURL)
		}
		return fmt.Errorf("フィードの保存に失敗しました: %w", err)
	}

	return nil
}

// UpdateThumbnail はフィードのサムネイルURLを更新する。
func (r *PostgresFeedRepo) UpdateThumbnail(ctx context.Context, feedID int64, thumbnailURL string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE feeds SET thumbnail_url = $2 WHERE id = $1`,
		feedID, thumbnailURL,
	)
	if err != nil {
		return fmt.Errorf("サムネイルの更新に失敗しました: %w", err)
	}
	return nil
}

// Delete は指定IDのフィードを削除する。削除された場合はtrueを返す。
// エピソードとアクセスイベントは外部キーのCASCADEで削除される。
func (r *PostgresFeedRepo) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM feeds WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("フィードの削除に失敗しました: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("削除結果の確認に失敗しました: %w", err)
	}
	return affected > 0, nil
}

// ListWithTotals は全フィードを累計アクセス数付きで名前昇順で返す。
func (r *PostgresFeedRepo) ListWithTotals(ctx context.Context) ([]model.FeedWithTotal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT f.id, f.name, f.feed_url, f.slug, f.thumbnail_url, f.created_at,
		        COUNT(s.id) AS total_accesses
		 FROM feeds f
		 LEFT JOIN access_events s ON f.id = s.feed_id
		 GROUP BY f.id
		 ORDER BY f.name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("フィード一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var feeds []model.FeedWithTotal
	for rows.Next() {
		var f model.FeedWithTotal
		if err := rows.Scan(&f.ID, &f.Name, &f.FeedURL, &f.Slug, &f.ThumbnailURL, &f.CreatedAt, &f.TotalAccesses); err != nil {
			return nil, fmt.Errorf("フィード行の読み取りに失敗しました: %w", err)
		}
		feeds = append(feeds, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("フィード一覧の読み取りに失敗しました: %w", err)
	}

	return feeds, nil
}
