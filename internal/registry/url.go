package registry

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL はフィードURLを正規化する。
// scheme+host+pathのみを残し、クエリとフラグメントを除去、
// ホストを小文字化、末尾スラッシュを1つに畳んだ上で除去する。
// 登録時と照合時の両方でこの正規化を通すことで、
// 末尾スラッシュの有無によらず同一フィードとして扱える。
func NormalizeURL(rawURL string) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return "", fmt.Errorf("empty URL")
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("unsupported scheme: %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("empty host in URL: %s", rawURL)
	}

	path := u.EscapedPath()
	for strings.HasSuffix(path, "/") {
		path = strings.TrimSuffix(path, "/")
	}

	return scheme + "://" + strings.ToLower(u.Host) + path, nil
}
