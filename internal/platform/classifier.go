// Package platform はUser-Agent文字列からリクエスト元アプリケーションを分類する。
package platform

import "regexp"

// 分類ラベル。ルールテーブルに現れないものは以下の2つ。
const (
	// LabelUnknown は空のUser-Agentに対するラベル。
	LabelUnknown = "Unknown"
	// LabelOther はどのルールにも一致しなかった場合のラベル。
	LabelOther = "Other"
)

// rule は分類ルール1件を表す。
// patternが一致し、requireが（設定されていれば）一致し、
// excludeが（設定されていれば）一致しない場合にlabelが採用される。
type rule struct {
	label   string
	pattern *regexp.Regexp
	require *regexp.Regexp // 追加の必須条件（nil可）
	exclude *regexp.Regexp // 除外条件（nil可）
}

var (
	reBotMarker     = regexp.MustCompile(`(?i)bot|crawler`)
	reBrowserToken  = regexp.MustCompile(`(?i)(Chrome|Firefox|Safari|Edge|Opera)`)
	reBrowserToken4 = regexp.MustCompile(`(?i)(Chrome|Firefox|Safari|Edge)`)
	reMobileMarker  = regexp.MustCompile(`(?i)(mobile|android|iphone|ipad)`)
)

// rules は優先順位順の分類ルールテーブル。
// 先頭から評価し、最初に一致したルールのラベルを返す。
// パターンは重複するため順序が契約の一部（例: 汎用ブラウザ判定は
// 全ての専用アプリ判定の後、Mobile Browserはモバイルマーカーの有無で
// Web Browserと区別される）。
var rules = []rule{
	{label: "Apple Podcasts", pattern: regexp.MustCompile(`(?i)iTMS|AppleCoreMedia|Podcasts/|iTunes`)},
	{label: "Spotify", pattern: regexp.MustCompile(`(?i)Spotify`)},
	{label: "Google Podcasts", pattern: regexp.MustCompile(`(?i)Google-Podcast|GoogleChirp|Google Podcasts`)},
	{label: "YouTube Music", pattern: regexp.MustCompile(`(?i)YouTube`), exclude: reBotMarker},
	{label: "Pocket Casts", pattern: regexp.MustCompile(`(?i)Pocket[\s\-]?Casts|PocketCasts|pktc`)},
	{label: "Amazon Music", pattern: regexp.MustCompile(`(?i)Amazon[\s\-]?Music|AmazonMusic|Alexa`)},
	{label: "Podimo", pattern: regexp.MustCompile(`(?i)Podimo`)},
	{label: "iVoox", pattern: regexp.MustCompile(`(?i)iVoox`)},
	{label: "Overcast", pattern: regexp.MustCompile(`(?i)Overcast`)},
	{label: "Castro", pattern: regexp.MustCompile(`(?i)Castro`)},
	{label: "Castbox", pattern: regexp.MustCompile(`(?i)Castbox`)},
	{label: "Podcast Addict", pattern: regexp.MustCompile(`(?i)Podcast[\s\-]?Addict|PodcastAddict`)},
	{label: "Player FM", pattern: regexp.MustCompile(`(?i)Player[\s\-]?FM|PlayerFM`)},
	{label: "Stitcher", pattern: regexp.MustCompile(`(?i)Stitcher`)},
	{label: "TuneIn", pattern: regexp.MustCompile(`(?i)TuneIn`)},
	{label: "Deezer", pattern: regexp.MustCompile(`(?i)Deezer`)},
	{label: "iHeartRadio", pattern: regexp.MustCompile(`(?i)iHeartRadio|iHeart`)},
	{label: "Audible", pattern: regexp.MustCompile(`(?i)Audible`)},
	{label: "AntennaPod", pattern: regexp.MustCompile(`(?i)AntennaPod`)},
	{label: "Podcast Republic", pattern: regexp.MustCompile(`(?i)Podcast[\s\-]?Republic|PodcastRepublic`)},
	{label: "Podbean", pattern: regexp.MustCompile(`(?i)Podbean`)},
	{label: "Downcast", pattern: regexp.MustCompile(`(?i)Downcast`)},
	{label: "iCatcher", pattern: regexp.MustCompile(`(?i)iCatcher`)},
	{label: "Podcast Guru", pattern: regexp.MustCompile(`(?i)Podcast[\s\-]?Guru`)},
	{label: "Fountain", pattern: regexp.MustCompile(`(?i)Fountain`)},
	{label: "Curiocaster", pattern: regexp.MustCompile(`(?i)Curiocaster`)},
	{label: "Podfriend", pattern: regexp.MustCompile(`(?i)Podfriend`)},
	{label: "Luminary", pattern: regexp.MustCompile(`(?i)Luminary`)},
	{label: "Spreaker", pattern: regexp.MustCompile(`(?i)Spreaker`)},
	{label: "Acast", pattern: regexp.MustCompile(`(?i)Acast`)},
	{label: "Podchaser", pattern: regexp.MustCompile(`(?i)Podchaser`)},
	{label: "Wondery", pattern: regexp.MustCompile(`(?i)Wondery`)},
	{label: "Pandora", pattern: regexp.MustCompile(`(?i)Pandora`)},
	{label: "Himalaya", pattern: regexp.MustCompile(`(?i)Himalaya`)},
	{label: "Podcast Index", pattern: regexp.MustCompile(`(?i)PodcastIndex`)},
	{label: "RSS Reader", pattern: regexp.MustCompile(`(?i)Feedly|Feedbin|NewsBlur|Inoreader|FeedMaster|FeedReader|RSS`)},
	{label: "Bot/Crawler", pattern: regexp.MustCompile(`(?i)bot|crawler|spider|slurp|bingpreview|googlebot|facebookexternalhit`)},
	{label: "HTTP Library", pattern: regexp.MustCompile(`(?i)^(axios|curl|wget|python|go-http|java|okhttp|apache-httpclient)`)},
	{label: "WordPress", pattern: regexp.MustCompile(`(?i)WordPress`)},
	{label: "Web Browser", pattern: reBrowserToken, exclude: reMobileMarker},
	{label: "Mobile Browser", pattern: reMobileMarker, require: reBrowserToken4},
}

// Classify はUser-Agent文字列をプラットフォームラベルに分類する。
// 全域関数であり、失敗しない。空文字列はUnknown、どのルールにも
// 一致しない場合はOtherを返す。
func Classify(userAgent string) string {
	if userAgent == "" {
		return LabelUnknown
	}

	for _, r := range rules {
		if !r.pattern.MatchString(userAgent) {
			continue
		}
		if r.require != nil && !r.require.MatchString(userAgent) {
			continue
		}
		if r.exclude != nil && r.exclude.MatchString(userAgent) {
			continue
		}
		return r.label
	}

	return LabelOther
}

// Labels はルールテーブルに定義された全ラベルを優先順位順に返す。
// UnknownとOtherは含まない。
func Labels() []string {
	labels := make([]string, 0, len(rules))
	for _, r := range rules {
		labels = append(labels, r.label)
	}
	return labels
}
