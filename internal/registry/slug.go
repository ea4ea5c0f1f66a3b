package registry

import (
	"strings"
	"unicode"
)

// Slugify は表示名からURLセーフなスラッグを導出する。
// 英数字以外の連続はハイフン1つに置換し、前後のハイフンは除去する。
// 大文字は小文字に変換する。空になった場合は"feed"を返す。
func Slugify(name string) string {
	var b strings.Builder
	lastHyphen := true // 先頭のハイフンを抑制

	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) && r < 128 || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastHyphen = false
			continue
		}
		if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
	}

	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "feed"
	}
	return slug
}
