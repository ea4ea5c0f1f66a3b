package repository

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/hitoshi/podstats/internal/model"
)

// StatsRepository はアクセスイベントの読み取り専用集計インターフェース。
// Recorderとはスキーマのみを共有し、実行時には独立している。
type StatsRepository interface {
	// Total はフィルタに一致するイベントの総数を返す。
	Total(ctx context.Context, f model.StatsFilter) (int64, error)
	// ByFeed はフィード名ごとの件数を返す。
	ByFeed(ctx context.Context, f model.StatsFilter) ([]model.BreakdownRow, error)
	// ByPlatform はプラットフォームごとの件数を返す（空プラットフォームは除外）。
	ByPlatform(ctx context.Context, f model.StatsFilter) ([]model.BreakdownRow, error)
	// ByCountry は国ごとの件数上位20件を返す（ジオロケーションありの行のみ）。
	ByCountry(ctx context.Context, f model.StatsFilter) ([]model.BreakdownRow, error)
	// ByCity は都市+国ごとの件数上位20件を返す。
	ByCity(ctx context.Context, f model.StatsFilter) ([]model.CityBreakdownRow, error)
	// ByClient は生のUser-Agent文字列ごとの件数上位10件を返す。
	ByClient(ctx context.Context, f model.StatsFilter) ([]model.BreakdownRow, error)
	// ByEpisode はエピソードタイトルごとの件数上位20件を返す
	// （一致イベントが1件以上あるエピソードのみ）。
	ByEpisode(ctx context.Context, f model.StatsFilter) ([]model.BreakdownRow, error)
	// Timeline はフィルタ対象に存在する直近30暦日の日別件数を古い順で返す。
	Timeline(ctx context.Context, f model.StatsFilter) ([]model.TimelinePoint, error)
}

// PostgresStatsRepo はPostgreSQLを使用した集計リポジトリ。
// フィルタ条件が動的なため、squirrelでクエリを組み立てる。
type PostgresStatsRepo struct {
	db *sql.DB
}

// NewPostgresStatsRepo はPostgresStatsRepoを生成する。
func NewPostgresStatsRepo(db *sql.DB) *PostgresStatsRepo {
	return &PostgresStatsRepo{db: db}
}

// psql はPostgreSQLプレースホルダ（$1, $2, ...）用のビルダー。
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// applyFilter はStatsFilterをWHERE条件としてビルダーに適用する。
// カラムはaccess_eventsのエイリアスsを前提とする。
func applyFilter(b sq.SelectBuilder, f model.StatsFilter) sq.SelectBuilder {
	if f.FeedID != 0 {
		b = b.Where(sq.Eq{"s.feed_id": f.FeedID})
	}
	if f.Since != nil {
		b = b.Where(sq.GtOrEq{"s.accessed_at": *f.Since})
	}
	if f.Until != nil {
		b = b.Where(sq.Lt{"s.accessed_at": *f.Until})
	}
	return b
}

// Total はフィルタに一致するイベントの総数を返す。
func (r *PostgresStatsRepo) Total(ctx context.Context, f model.StatsFilter) (int64, error) {
	query := applyFilter(psql.Select("COUNT(*)").From("access_events s"), f)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("総数クエリの構築に失敗しました: %w", err)
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("総数の取得に失敗しました: %w", err)
	}
	return total, nil
}

// ByFeed はフィード名ごとの件数を件数降順（同数は名前昇順）で返す。
func (r *PostgresStatsRepo) ByFeed(ctx context.Context, f model.StatsFilter) ([]model.BreakdownRow, error) {
	query := applyFilter(
		psql.Select("f.name", "COUNT(*) AS count").
			From("access_events s").
			Join("feeds f ON f.id = s.feed_id").
			GroupBy("f.name").
			OrderBy("count DESC", "f.name ASC"),
		f,
	)
	return r.queryBreakdown(ctx, query, "フィード別集計")
}

// ByPlatform はプラットフォームごとの件数を返す。空プラットフォームの行は除外する。
func (r *PostgresStatsRepo) ByPlatform(ctx context.Context, f model.StatsFilter) ([]model.BreakdownRow, error) {
	query := applyFilter(
		psql.Select("s.platform", "COUNT(*) AS count").
			From("access_events s").
			Where(sq.NotEq{"s.platform": ""}).
			GroupBy("s.platform").
			OrderBy("count DESC", "s.platform ASC"),
		f,
	)
	return r.queryBreakdown(ctx, query, "プラットフォーム別集計")
}

// ByCountry は国ごとの件数上位20件を返す。ジオロケーション未解決の行は除外する。
func (r *PostgresStatsRepo) ByCountry(ctx context.Context, f model.StatsFilter) ([]model.BreakdownRow, error) {
	query := applyFilter(
		psql.Select("s.country", "COUNT(*) AS count").
			From("access_events s").
			Where(sq.NotEq{"s.country": ""}).
			GroupBy("s.country").
			OrderBy("count DESC", "s.country ASC").
			Limit(20),
		f,
	)
	return r.queryBreakdown(ctx, query, "国別集計")
}

// ByCity は都市+国ごとの件数上位20件を返す。
func (r *PostgresStatsRepo) ByCity(ctx context.Context, f model.StatsFilter) ([]model.CityBreakdownRow, error) {
	query := applyFilter(
		psql.Select("s.city", "s.country", "COUNT(*) AS count").
			From("access_events s").
			Where(sq.NotEq{"s.city": ""}).
			GroupBy("s.city", "s.country").
			OrderBy("count DESC", "s.city ASC", "s.country ASC").
			Limit(20),
		f,
	)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("都市別集計クエリの構築に失敗しました: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("都市別集計の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var result []model.CityBreakdownRow
	for rows.Next() {
		var row model.CityBreakdownRow
		if err := rows.Scan(&row.City, &row.Country, &row.Count); err != nil {
			return nil, fmt.Errorf("都市別集計行の読み取りに失敗しました: %w", err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("都市別集計の読み取りに失敗しました: %w", err)
	}
	return result, nil
}

// ByClient は生のUser-Agent文字列ごとの件数上位10件を返す。
// ラベルへの単純化は表示側の責務であり、ここでは行わない。
// User-Agentのないイベントはクライアントを識別できないため集計対象外。
func (r *PostgresStatsRepo) ByClient(ctx context.Context, f model.StatsFilter) ([]model.BreakdownRow, error) {
	query := applyFilter(
		psql.Select("s.user_agent", "COUNT(*) AS count").
			From("access_events s").
			Where(sq.NotEq{"s.user_agent": ""}).
			GroupBy("s.user_agent").
			OrderBy("count DESC", "s.user_agent ASC").
			Limit(10),
		f,
	)
	return r.queryBreakdown(ctx, query, "クライアント別集計")
}

// ByEpisode はエピソードタイトルごとの件数上位20件を返す。
// episode_idはエピソードへの弱参照のため内部結合で突き合わせ、
// 一致イベントのないエピソードは含まれない。
func (r *PostgresStatsRepo) ByEpisode(ctx context.Context, f model.StatsFilter) ([]model.BreakdownRow, error) {
	query := applyFilter(
		psql.Select("e.title", "COUNT(*) AS count").
			From("access_events s").
			Join("episodes e ON e.id = s.episode_id").
			GroupBy("e.id", "e.title").
			OrderBy("count DESC", "e.title ASC").
			Limit(20),
		f,
	)
	return r.queryBreakdown(ctx, query, "エピソード別集計")
}

// Timeline はフィルタ対象に存在する直近30暦日の日別件数を古い順で返す。
// 新しい順で30日分を取得してから反転する。
func (r *PostgresStatsRepo) Timeline(ctx context.Context, f model.StatsFilter) ([]model.TimelinePoint, error) {
	query := applyFilter(
		psql.Select("DATE(s.accessed_at) AS day", "COUNT(*) AS count").
			From("access_events s").
			GroupBy("day").
			OrderBy("day DESC").
			Limit(30),
		f,
	)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("タイムラインクエリの構築に失敗しました: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("タイムラインの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var points []model.TimelinePoint
	for rows.Next() {
		var p model.TimelinePoint
		if err := rows.Scan(&p.Day, &p.Count); err != nil {
			return nil, fmt.Errorf("タイムライン行の読み取りに失敗しました: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("タイムラインの読み取りに失敗しました: %w", err)
	}

	// 古い順に反転
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points, nil
}

// queryBreakdown は(ラベル, 件数)の2カラムクエリを実行する共通ヘルパー。
func (r *PostgresStatsRepo) queryBreakdown(ctx context.Context, query sq.SelectBuilder, what string) ([]model.BreakdownRow, error) {
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%sクエリの構築に失敗しました: %w", what, err)
	}

	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("%sの取得に失敗しました: %w", what, err)
	}
	defer rows.Close()

	var result []model.BreakdownRow
	for rows.Next() {
		var row model.BreakdownRow
		if err := rows.Scan(&row.Label, &row.Count); err != nil {
			return nil, fmt.Errorf("%s行の読み取りに失敗しました: %w", what, err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%sの読み取りに失敗しました: %w", what, err)
	}
	return result, nil
}
