package registry

import "testing"

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"末尾スラッシュを除去", "https://site.example/feed/show/", "https://site.example/feed/show", false},
		{"末尾スラッシュなしはそのまま", "https://site.example/feed/show", "https://site.example/feed/show", false},
		{"連続する末尾スラッシュも畳む", "https://site.example/feed/show///", "https://site.example/feed/show", false},
		{"クエリを除去", "https://site.example/feed?format=rss&x=1", "https://site.example/feed", false},
		{"フラグメントを除去", "https://site.example/feed#latest", "https://site.example/feed", false},
		{"ホストを小文字化", "https://Site.EXAMPLE/Feed", "https://site.example/Feed", false},
		{"ルートパス", "http://site.example/", "http://site.example", false},
		{"前後の空白を除去", "  https://site.example/feed  ", "https://site.example/feed", false},
		{"空文字列はエラー", "", "", true},
		{"非httpスキームはエラー", "ftp://site.example/feed", "", true},
		{"スキームなしはエラー", "site.example/feed", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeURL(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("NormalizeURL(%q) expected error, got %q", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeURL(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"My Show", "my-show"},
		{"My  Show!!", "my-show"},
		{"Café & Podcast", "caf-podcast"},
		{"2nd Season", "2nd-season"},
		{"---", "feed"},
		{"", "feed"},
	}

	for _, tt := range tests {
		if got := Slugify(tt.input); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
