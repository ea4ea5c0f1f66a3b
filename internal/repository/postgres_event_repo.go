package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/podstats/internal/model"
)

// PostgresEventRepo はPostgreSQLを使用したアクセスイベントリポジトリ。
// イベントは追記専用で、削除はフィード削除のCASCADEのみ。
type PostgresEventRepo struct {
	db *sql.DB
}

// NewPostgresEventRepo はPostgresEventRepoを生成する。
func NewPostgresEventRepo(db *sql.DB) *PostgresEventRepo {
	return &PostgresEventRepo{db: db}
}

// ExistsRecent は重複排除キーに一致するイベントがsince以降に存在するかを返す。
// platformが空文字列の場合はプラットフォームをキーに含めない
// （(feed, fingerprint)モード）。
func (r *PostgresEventRepo) ExistsRecent(ctx context.Context, feedID int64, platform, clientHash string, since time.Time) (bool, error) {
	var exists bool
	var err error

	if platform == "" {
		err = r.db.QueryRowContext(ctx,
			`SELECT EXISTS (
			     SELECT 1 FROM access_events
			     WHERE feed_id = $1 AND client_hash = $2 AND accessed_at > $3
			 )`,
			feedID, clientHash, since,
		).Scan(&exists)
	} else {
		err = r.db.QueryRowContext(ctx,
			`SELECT EXISTS (
			     SELECT 1 FROM access_events
			     WHERE feed_id = $1 AND platform = $2 AND client_hash = $3 AND accessed_at > $4
			 )`,
			feedID, platform, clientHash, since,
		).Scan(&exists)
	}

	if err != nil {
		return false, fmt.Errorf("重複イベントの確認に失敗しました: %w", err)
	}
	return exists, nil
}

// Create はアクセスイベントを挿入する。
func (r *PostgresEventRepo) Create(ctx context.Context, ev *model.AccessEvent) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO access_events
		     (feed_id, episode_id, platform, user_agent, client_hash, country, city, accessed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		ev.FeedID, ev.EpisodeID, ev.Platform, ev.UserAgent, ev.ClientHash,
		ev.Country, ev.City, ev.AccessedAt,
	).Scan(&ev.ID)

	if err != nil {
		return fmt.Errorf("アクセスイベントの保存に失敗しました: %w", err)
	}
	return nil
}
