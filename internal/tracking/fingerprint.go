// Package tracking はフィードアクセスの記録パイプラインを提供する。
// URL解決、プラットフォーム判定、フィンガープリント生成、重複排除を担う。
package tracking

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
)

// fallbackIP は送信元IPを特定できなかった場合の代替値。
const fallbackIP = "0.0.0.0"

// Fingerprinter はIPアドレスとソルトから匿名化済みクライアント識別子を生成する。
// 生のIPアドレスは保存されず、ソルトが変わると識別子も変わる。
type Fingerprinter struct {
	salt string
}

// NewFingerprinter はFingerprinterの新しいインスタンスを生成する。
func NewFingerprinter(salt string) *Fingerprinter {
	return &Fingerprinter{salt: salt}
}

// Hash はIPアドレスとソルトを連結したSHA-256ハッシュを16進文字列で返す。
func (f *Fingerprinter) Hash(ip string) string {
	sum := sha256.Sum256([]byte(ip + f.salt))
	return hex.EncodeToString(sum[:])
}

// ClientIP はリクエストから送信元IPアドレスを解決する。
// 優先順位: CF-Connecting-IP → X-Forwarded-For先頭 → X-Real-IP → 接続元アドレス。
// どのヘッダも有効なIPでない場合は"0.0.0.0"を返す。
func ClientIP(header http.Header, remoteAddr string) string {
	if ip := validIP(header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}

	if xff := header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := validIP(first); ip != "" {
			return ip
		}
	}

	if ip := validIP(header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	if ip := validIP(host); ip != "" {
		return ip
	}

	return fallbackIP
}

// validIP は文字列をトリムしてIPアドレスとして解釈できる場合に返す。
func validIP(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return ""
	}
	if net.ParseIP(trimmed) == nil {
		return ""
	}
	return trimmed
}
