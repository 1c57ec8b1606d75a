package prompt

import "strings"

// ApproxCounter は空白区切りの単語数からトークン数を概算する
// tiktoken のエンコーディングが利用できない環境向けのフォールバック
type ApproxCounter struct{}

// CountTokens は概算トークン数を返す（英語では1単語あたり約4/3トークン）
func (ApproxCounter) CountTokens(text string) int {
	words := len(strings.Fields(text))
	return (words*4 + 2) / 3
}
