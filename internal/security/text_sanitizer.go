// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は予測データとして取り込むツイート本文やコメント本文を
// 保存前に無害化する。YouTubeのコメント本文は簡易なHTML（改行、太字、リンク）を
// 含むため、bluemondayの許可リストでそれらだけを残す。
// マークアップを含まない本文は書き換えずにそのまま保存する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は投稿本文のサニタイズ機能のインターフェース。
type TextSanitizer interface {
	// Sanitize は許可タグ（br, b, i, strong, em, a）以外を除去した本文を返す。
	// 除去するものがない場合は入力をそのまま返す。同一入力に対して常に同一出力を返す。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
// ポリシーの内容:
//   - 許可タグ: br, b, i, strong, em, a
//   - aタグ: http/httpsの絶対URLのみ。target="_blank"とrel="noopener noreferrer"を付与
//   - script, iframe, style, imgおよびon*属性は除去
func NewTextSanitizer() TextSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements("br", "b", "i", "strong", "em")

	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https")
	p.AllowRelativeURLs(false)
	p.RequireParseableURLs(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &textSanitizer{policy: p}
}

// Sanitize は本文を無害化する。
// bluemondayは地の文の & < > " ' も実体参照にするため、
// 出力を戻して入力と一致すればタグは含まれていないとみなし、入力を返す。
func (s *textSanitizer) Sanitize(raw string) string {
	cleaned := s.policy.Sanitize(raw)
	if html.UnescapeString(cleaned) == raw {
		return raw
	}
	return strings.TrimSpace(cleaned)
}
