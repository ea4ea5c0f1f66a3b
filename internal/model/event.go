// Package model はドメインモデルを定義する。
package model

import "time"

// AccessEvent は重複排除・分類済みの1回のフィード取得を表す。
// Recorderによってのみ作成され、書き込み後は不変。
// フィード削除のカスケードでのみ削除される。
type AccessEvent struct {
	ID         int64
	FeedID     int64
	EpisodeID  int64 // フィードレベルのイベントでは0
	Platform   string
	UserAgent  string
	ClientHash string // クライアントアドレスの一方向フィンガープリント
	Country    string
	City       string
	AccessedAt time.Time
}

// DedupMode は重複排除キーの粒度を表す設定値。
type DedupMode string

const (
	// DedupModePlatform は (feed, platform, fingerprint) をキーとするモード。
	// デフォルトウィンドウは30分。
	DedupModePlatform DedupMode = "platform"
	// DedupModeClient は (feed, fingerprint) をキーとするモード。
	// デフォルトウィンドウは60分で、ジオロケーション解決を併用する。
	DedupModeClient DedupMode = "client"
)

// DefaultWindow はモードごとのデフォルト重複排除ウィンドウを返す。
func (m DedupMode) DefaultWindow() time.Duration {
	if m == DedupModeClient {
		return 60 * time.Minute
	}
	return 30 * time.Minute
}
