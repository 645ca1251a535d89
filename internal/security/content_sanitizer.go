// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はプロジェクト・アイデア・コメントのテキストを保存前にサニタイズし、
// 他のメンバーのクライアントで表示されたときのXSSを防ぐ。
// bluemondayライブラリを使用した許可リストベースのポリシーを使う。
package security

import (
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はユーザー入力テキストのサニタイズ機能のインターフェースを定義する。
type TextSanitizer interface {
	// Plain はすべてのHTML要素を除去する。名前・タイトル・コメントに使用する。
	Plain(s string) string
	// Rich は簡易な書式タグのみを残す。説明文に使用する。
	// 許可タグ: p, br, a, ul, ol, li, blockquote, pre, code, strong, em
	// aタグのhref属性はhttpsのみ許可し、target="_blank"とrel="noopener noreferrer"を付与する。
	Rich(s string) string
}

// textSanitizer はTextSanitizerの実装。ポリシーはスレッドセーフに共有できる。
type textSanitizer struct {
	plain *bluemonday.Policy
	rich  *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() TextSanitizer {
	rich := bluemonday.NewPolicy()
	rich.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
	)
	rich.AllowAttrs("href").OnElements("a")
	rich.AllowRelativeURLs(false)
	rich.AllowURLSchemeWithCustomPolicy("https", func(*url.URL) bool { return true })
	rich.AddTargetBlankToFullyQualifiedLinks(true)
	rich.RequireNoReferrerOnLinks(true)

	return &textSanitizer{
		plain: bluemonday.StrictPolicy(),
		rich:  rich,
	}
}

// Plain はすべてのタグを除去し、前後の空白を取り除く。
func (s *textSanitizer) Plain(in string) string {
	return strings.TrimSpace(s.plain.Sanitize(in))
}

// Rich は許可タグ以外を除去し、前後の空白を取り除く。
func (s *textSanitizer) Rich(in string) string {
	return strings.TrimSpace(s.rich.Sanitize(in))
}
