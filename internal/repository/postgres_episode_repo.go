package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/podstats/internal/model"
)

// PostgresEpisodeRepo はPostgreSQLを使用したエピソードリポジトリ。
type PostgresEpisodeRepo struct {
	db *sql.DB
}

// NewPostgresEpisodeRepo はPostgresEpisodeRepoを生成する。
func NewPostgresEpisodeRepo(db *sql.DB) *PostgresEpisodeRepo {
	return &PostgresEpisodeRepo{db: db}
}

// CreateIfAbsent は(feed_id, guid)が未登録の場合のみエピソードを挿入する。
// 挿入した場合はtrueを返す。ON CONFLICT DO NOTHINGにより、
// 同時インポートでも一意制約エラーにならない。
func (r *PostgresEpisodeRepo) CreateIfAbsent(ctx context.Context, ep *model.Episode) (bool, error) {
	var publishedAt sql.NullTime
	if ep.PublishedAt != nil {
		publishedAt = sql.NullTime{Time: *ep.PublishedAt, Valid: true}
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO episodes (feed_id, title, guid, enclosure_url, published_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (feed_id, guid) DO NOTHING
		 RETURNING id`,
		ep.FeedID, ep.Title, ep.GUID, ep.EnclosureURL, publishedAt, ep.CreatedAt,
	).Scan(&ep.ID)

	if err == sql.ErrNoRows {
		// 既存エピソード（コンフリクトで挿入されなかった）
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("エピソードの保存に失敗しました: %w", err)
	}

	return true, nil
}

// FindByEnclosureURL はエンクロージャURLでエピソードを検索する。
// 末尾スラッシュの有無どちらの形でも一致する。見つからない場合はnilを返す。
func (r *PostgresEpisodeRepo) FindByEnclosureURL(ctx context.Context, enclosureURL string) (*model.Episode, error) {
	trimmed := strings.TrimSuffix(enclosureURL, "/")
	ep := &model.Episode{}
	var publishedAt sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT id, feed_id, title, guid, enclosure_url, published_at, created_at
		 FROM episodes WHERE enclosure_url = $1 OR enclosure_url = $2
		 LIMIT 1`,
		trimmed, trimmed+"/",
	).Scan(&ep.ID, &ep.FeedID, &ep.Title, &ep.GUID, &ep.EnclosureURL, &publishedAt, &ep.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("エピソードの検索に失敗しました: %w", err)
	}

	if publishedAt.Valid {
		t := publishedAt.Time
		ep.PublishedAt = &t
	}

	return ep, nil
}
