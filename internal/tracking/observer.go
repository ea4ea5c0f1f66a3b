package tracking

// Observer は記録パイプラインの結果を通知するためのフック。
// メトリクス収集層が実装する。Recorder本体は通知先を知らない。
type Observer interface {
	// EventRecorded はアクセスイベントが1件保存されたときに呼ばれる。
	EventRecorded(platform string)
	// DuplicateDiscarded は重複排除ウィンドウ内の再アクセスを破棄したときに呼ばれる。
	DuplicateDiscarded()
	// UnmatchedRequest は登録フィードに一致しないリクエストを受けたときに呼ばれる。
	UnmatchedRequest()
	// ClassifierMiss はUser-Agentがどの分類規則にも一致しなかったときに呼ばれる。
	ClassifierMiss()
	// GeoLookupFailed は位置情報の解決に失敗したときに呼ばれる。
	GeoLookupFailed()
}

// NopObserver は何もしないObserver実装。
type NopObserver struct{}

func (NopObserver) EventRecorded(string) {}
func (NopObserver) DuplicateDiscarded()  {}
func (NopObserver) UnmatchedRequest()    {}
func (NopObserver) ClassifierMiss()      {}
func (NopObserver) GeoLookupFailed()     {}
