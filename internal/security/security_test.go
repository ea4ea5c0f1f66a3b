package security

import "testing"

func TestTitleSanitizer_Sanitize(t *testing.T) {
	s := NewTitleSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"タグを除去", "<b>Episode</b> 1", "Episode 1"},
		{"scriptを除去", `Episode <script>alert(1)</script>2`, "Episode 2"},
		{"実体参照をデコード", "Q&amp;A Session", "Q&A Session"},
		{"連続空白を畳む", "Episode   \t\n  1", "Episode 1"},
		{"プレーンテキストはそのまま", "Episode 1", "Episode 1"},
		{"空文字列", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Sanitize(tt.input)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
			// 冪等性
			if again := s.Sanitize(got); again != got {
				t.Errorf("Sanitizeは冪等であるべき: %q -> %q", got, again)
			}
		})
	}
}

func TestFetchGuard_ValidateURL(t *testing.T) {
	guard := NewFetchGuard()

	valid := []string{
		"https://example.com/feed",
		"http://example.com/feed.xml",
		"https://203.0.113.10/feed",
	}
	for _, u := range valid {
		if err := guard.ValidateURL(u); err != nil {
			t.Errorf("ValidateURL(%q) = %v, want nil", u, err)
		}
	}

	invalid := []string{
		"",
		"ftp://example.com/feed",
		"javascript:alert(1)",
		"https://localhost/feed",
		"https://127.0.0.1/feed",
		"https://10.0.0.5/feed",
		"https://192.168.1.1/feed",
		"https://169.254.169.254/latest/meta-data",
		"https://[::1]/feed",
	}
	for _, u := range invalid {
		if err := guard.ValidateURL(u); err == nil {
			t.Errorf("ValidateURL(%q) = nil, want error", u)
		}
	}
}
