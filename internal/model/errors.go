// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, feed, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeValidation           = "VALIDATION"
	ErrCodeUnknownAction        = "UNKNOWN_ACTION"
	ErrCodeFeedNotFound         = "FEED_NOT_FOUND"
	ErrCodeDuplicateFeedURL     = "DUPLICATE_FEED_URL"
	ErrCodeDuplicateSlug        = "DUPLICATE_SLUG"
	ErrCodeSlugExhausted        = "SLUG_EXHAUSTED"
	ErrCodeDiscoveryUnavailable = "DISCOVERY_UNAVAILABLE"
	ErrCodeNoFeedsDetected      = "NO_FEEDS_DETECTED"
)

// NewUnauthorizedError は認可エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "この操作を実行する権限がありません。",
		Category: "auth",
		Action:   "管理者トークンを確認してください。",
	}
}

// NewValidationError は入力値検証エラーを生成する。
// fieldには問題のあったフィールド名を指定する。
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力値が不正です（%s）: %s", field, reason),
		Category: "validation",
		Action:   "リクエストの内容を確認してください。",
	}
}

// NewUnknownActionError は未定義アクションエラーを生成する。
func NewUnknownActionError(action string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownAction,
		Message:  fmt.Sprintf("未定義のアクションです: %s", action),
		Category: "validation",
		Action:   "actionフィールドの値を確認してください。",
	}
}

// NewFeedNotFoundError はフィード未検出エラーを生成する。
func NewFeedNotFoundError(feedID int64) *APIError {
	return &APIError{
		Code:     ErrCodeFeedNotFound,
		Message:  fmt.Sprintf("指定されたフィードが見つかりません: %d", feedID),
		Category: "feed",
		Action:   "フィードIDを確認してください。",
	}
}

// NewDuplicateFeedURLError はフィードURL重複エラーを生成する。
func NewDuplicateFeedURLError(feedURL string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateFeedURL,
		Message:  fmt.Sprintf("このフィードURLは既に登録されています: %s", feedURL),
		Category: "feed",
		Action:   "登録済みフィードの一覧を確認してください。",
	}
}

// NewDuplicateSlugError はスラッグ重複エラーを生成する。
func NewDuplicateSlugError(slug string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateSlug,
		Message:  fmt.Sprintf("このスラッグは既に使用されています: %s", slug),
		Category: "feed",
		Action:   "別のポッドキャスト名を指定してください。",
	}
}

// NewSlugExhaustedError はスラッグ採番上限エラーを生成する。
// リトライ上限に達した場合の致命的な設定エラーとして扱う。
func NewSlugExhaustedError(base string) *APIError {
	return &APIError{
		Code:     ErrCodeSlugExhausted,
		Message:  fmt.Sprintf("一意なスラッグを生成できませんでした: %s", base),
		Category: "system",
		Action:   "別のポッドキャスト名を指定するか、不要なフィードを削除してください。",
	}
}

// NewDiscoveryUnavailableError はフィード自動検出が利用不可の場合のエラーを生成する。
func NewDiscoveryUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeDiscoveryUnavailable,
		Message:  "フィード自動検出は利用できません。",
		Category: "system",
		Action:   "SITE_URL環境変数を設定してください。",
	}
}

// NewNoFeedsDetectedError はフィード候補が見つからなかった場合のエラーを生成する。
func NewNoFeedsDetectedError(siteURL string) *APIError {
	return &APIError{
		Code:     ErrCodeNoFeedsDetected,
		Message:  fmt.Sprintf("サイトからフィード候補を検出できませんでした: %s", siteURL),
		Category: "feed",
		Action:   "サイトのHTMLにRSS/Atomのlinkタグが含まれているか確認してください。",
	}
}
