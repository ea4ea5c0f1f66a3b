// Package registry は登録フィードの解決・登録・削除のドメインロジックを提供する。
package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/podstats/internal/model"
	"github.com/hitoshi/podstats/internal/repository"
)

// maxSlugAttempts はスラッグ衝突時の採番リトライ上限。
// 上限を超えた場合はSlugExhaustedエラーとして呼び出し元に返す。
const maxSlugAttempts = 100

// Service はフィードレジストリのサービス層。
// フィードURLとスラッグの一意性を所有する。
type Service struct {
	feedRepo repository.FeedRepository
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(feedRepo repository.FeedRepository) *Service {
	return &Service{
		feedRepo: feedRepo,
		now:      time.Now,
	}
}

// Resolve は正規化済みリクエストURLに一致する登録フィードを返す。
// 末尾スラッシュの有無は同一視する。見つからない場合はnilを返す。
func (s *Service) Resolve(ctx context.Context, normalizedURL string) (*model.Feed, error) {
	return s.feedRepo.FindByURL(ctx, normalizedURL)
}

// Get は指定IDのフィードを取得する。見つからない場合はnilを返す。
func (s *Service) Get(ctx context.Context, feedID int64) (*model.Feed, error) {
	return s.feedRepo.FindByID(ctx, feedID)
}

// Register はフィードを登録する。
// フロー: URL正規化 → 重複チェック → スラッグ採番 → 保存。
// URLが既に登録済みの場合はDuplicateFeedURL、スラッグ採番が
// 上限に達した場合はSlugExhaustedを返す。
func (s *Service) Register(ctx context.Context, rawURL, name string) (*model.Feed, error) {
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, model.NewValidationError("feed_url", err.Error())
	}

	existing, err := s.feedRepo.FindByURL(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("フィードの検索に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateFeedURLError(normalized)
	}

	slug, err := s.assignSlug(ctx, name)
	if err != nil {
		return nil, err
	}

	feed := &model.Feed{
		Name:      name,
		FeedURL:   normalized,
		Slug:      slug,
		CreatedAt: s.now(),
	}

	if err := s.feedRepo.Create(ctx, feed); err != nil {
		// 並行登録との競合による一意制約違反はAPIErrorのまま返す
		return nil, err
	}

	return feed, nil
}

// Delete は指定IDのフィードを削除する。
// エピソードとアクセスイベントはカスケード削除される。
// フィードが存在しない場合はFeedNotFoundを返す。
func (s *Service) Delete(ctx context.Context, feedID int64) error {
	deleted, err := s.feedRepo.Delete(ctx, feedID)
	if err != nil {
		return fmt.Errorf("フィードの削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewFeedNotFoundError(feedID)
	}
	return nil
}

// ListWithTotals は全フィードを累計アクセス数付きで名前昇順で返す。
func (s *Service) ListWithTotals(ctx context.Context) ([]model.FeedWithTotal, error) {
	return s.feedRepo.ListWithTotals(ctx)
}

// assignSlug は表示名からスラッグを導出し、一意になるまで
// 数値サフィックスを付けて探索する（my-show, my-show-1, my-show-2, ...）。
// maxSlugAttempts回の探索で一意にならない場合はSlugExhaustedを返す。
func (s *Service) assignSlug(ctx context.Context, name string) (string, error) {
	base := Slugify(name)
	slug := base

	for i := 0; i <= maxSlugAttempts; i++ {
		if i > 0 {
			slug = fmt.Sprintf("%s-%d", base, i)
		}

		exists, err := s.feedRepo.ExistsSlug(ctx, slug)
		if err != nil {
			return "", fmt.Errorf("スラッグの確認に失敗しました: %w", err)
		}
		if !exists {
			return slug, nil
		}
	}

	return "", model.NewSlugExhaustedError(base)
}
