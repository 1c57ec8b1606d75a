package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jinford/book-rag/internal/core/chat"
)

// excerptLimit は出典の抜粋を表示する最大文字数
const excerptLimit = 240

// printer は端末の色対応に合わせて回答と出典を描画する
type printer struct {
	w io.Writer

	answer  lipgloss.Style
	unknown lipgloss.Style
	heading lipgloss.Style
	label   lipgloss.Style
	excerpt lipgloss.Style
	note    lipgloss.Style
	errMsg  lipgloss.Style
}

func newPrinter(w io.Writer) *printer {
	r := lipgloss.NewRenderer(w)
	return &printer{
		w:       w,
		answer:  r.NewStyle(),
		unknown: r.NewStyle().Italic(true).Foreground(lipgloss.Color("244")),
		heading: r.NewStyle().Bold(true).Foreground(lipgloss.Color("63")),
		label:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		excerpt: r.NewStyle().Faint(true),
		note:    r.NewStyle().Faint(true),
		errMsg:  r.NewStyle().Foreground(lipgloss.Color("9")),
	}
}

// Turn は1ターンの回答と（必要なら）出典を出力する
func (p *printer) Turn(result *chat.TurnResult, showSources bool) {
	if result == nil {
		return
	}

	if q, ok := result.RewrittenQuery.Get(); ok {
		fmt.Fprintln(p.w, p.note.Render("(searched for: "+q+")"))
	}

	if result.Unknown {
		fmt.Fprintln(p.w, p.unknown.Render(result.Answer))
	} else {
		fmt.Fprintln(p.w, p.answer.Render(result.Answer))
	}

	if !showSources || len(result.Citations) == 0 {
		return
	}

	fmt.Fprintln(p.w)
	fmt.Fprintln(p.w, p.heading.Render("Sources"))
	for i, c := range result.Citations {
		fmt.Fprintf(p.w, "%s %s\n", p.label.Render(fmt.Sprintf("[%d]", i+1)), c.Label())
		if c.Excerpt != "" {
			fmt.Fprintln(p.w, p.excerpt.Render(indent(truncate(c.Excerpt, excerptLimit), "    ")))
		}
	}
}

// Error は利用者向けのエラーメッセージを出力する
func (p *printer) Error(err error) {
	fmt.Fprintln(p.w, p.errMsg.Render(chat.UserMessage(err)))
}

// Note は補足メッセージを出力する
func (p *printer) Note(msg string) {
	fmt.Fprintln(p.w, p.note.Render(msg))
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit])) + "…"
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
