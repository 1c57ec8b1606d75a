package citation

import (
	"html"
	"regexp"
	"strings"
)

var (
	htmlComment  = regexp.MustCompile(`(?s)<!--.*?-->`)
	htmlTag      = regexp.MustCompile(`<[/!]?[A-Za-z][^<>\n]*>`)
	mdImage      = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	mdLink       = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdRefLink    = regexp.MustCompile(`\[([^\]]+)\]\[[^\]]*\]`)
	mdHeader     = regexp.MustCompile(`(?m)^[ \t]*#{1,6}[ \t]*`)
	mdSetextRule = regexp.MustCompile(`(?m)^[ \t]*(?:={3,}|-{3,}|\*{3,}|_{3,})[ \t]*$`)
	mdBlockquote = regexp.MustCompile(`(?m)^[ \t]*>+[ \t]?`)
	mdBullet     = regexp.MustCompile(`(?m)^[ \t]*[-*+•][ \t]+`)
	mdOrdered    = regexp.MustCompile(`(?m)^[ \t]*\d+[.)][ \t]+`)
	mdCodeFence  = regexp.MustCompile("(?m)^[ \t]*(```|~~~).*$")
	mdUnderscore = regexp.MustCompile(`(^|[\s(])_{1,2}([^_\s][^_]*?)_{1,2}([\s).,;:!?]|$)`)
	spaces       = regexp.MustCompile(`[ \t]+`)
	blankLines   = regexp.MustCompile(`\n{3,}`)
)

// Clean はテキストからHTMLタグとMarkdown記法を取り除き、表示用の平文にする
//
// 不正なマークアップに対しても失敗せず、可能な範囲で除去する。
// 結果が変化しなくなるまで繰り返し適用するため、Clean(Clean(s)) == Clean(s) が成り立つ。
// cleanOnce は置換のたびに文字列を短くするので、ループは必ず終了する。
func Clean(text string) string {
	out := text
	for {
		next := cleanOnce(out)
		if next == out {
			return out
		}
		out = next
	}
}

func cleanOnce(text string) string {
	s := strings.ReplaceAll(text, "\r\n", "\n")

	// HTML
	s = htmlComment.ReplaceAllString(s, "")
	s = htmlTag.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\u00a0", " ")

	// Markdown（リンク・画像はラベルのみ残す）
	s = mdCodeFence.ReplaceAllString(s, "")
	s = mdImage.ReplaceAllString(s, "$1")
	s = mdLink.ReplaceAllString(s, "$1")
	s = mdRefLink.ReplaceAllString(s, "$1")
	s = mdSetextRule.ReplaceAllString(s, "")
	s = mdHeader.ReplaceAllString(s, "")
	s = mdBlockquote.ReplaceAllString(s, "")
	s = mdBullet.ReplaceAllString(s, "")
	s = mdOrdered.ReplaceAllString(s, "")
	s = mdUnderscore.ReplaceAllString(s, "$1$2$3")
	s = strings.ReplaceAll(s, "*", "")
	s = strings.ReplaceAll(s, "`", "")

	// 空白の正規化
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaces.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")

	return strings.TrimSpace(s)
}
