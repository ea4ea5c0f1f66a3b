// Package security はフィード取得まわりのセキュリティ機能を提供する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TitleSanitizerService はフィード由来のテキストのサニタイズ機能を定義する。
// エピソードタイトルとフィード名の保存前に使用される。
type TitleSanitizerService interface {
	// Sanitize はHTMLタグを全て除去したプレーンテキストを返す。
	// 実体参照はデコードし、連続する空白は1つに畳む。
	// 同一入力に対して常に同一出力を返す。
	Sanitize(raw string) string
}

// titleSanitizer はTitleSanitizerServiceの実装。
// bluemondayのStrictPolicyでタグを除去する。
type titleSanitizer struct {
	policy *bluemonday.Policy
}

// NewTitleSanitizer はTitleSanitizerServiceの新しいインスタンスを生成する。
// タイトルは表示・集計キーの両方に使われるため、許可タグは一切ない。
func NewTitleSanitizer() *titleSanitizer {
	return &titleSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はHTMLタグを除去したプレーンテキストを返す。
func (s *titleSanitizer) Sanitize(raw string) string {
	stripped := s.policy.Sanitize(raw)
	decoded := html.UnescapeString(stripped)
	return strings.Join(strings.Fields(decoded), " ")
}
