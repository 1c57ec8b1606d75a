package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"

	"github.com/jinford/book-rag/internal/core/chat"
)

const chatHelp = "Ask anything about the book. Commands: /reset clears the conversation, /history shows it, /exit quits."

// ChatAction は対話モードのアクション
func ChatAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, OptionsFrom(cmd))
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		return cli.Exit(chat.UserMessage(err), 1)
	}
	defer appCtx.Close()

	interactive := isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
	return runChat(ctx, os.Stdin, os.Stdout, appCtx.Container.Sessions, cmd.Bool("show-sources"), interactive)
}

// runChat は入力が尽きるか /exit まで1行ずつ質問を処理する
// 1つのセッションを使い続けるため、追加の質問は直前の会話を踏まえて解釈される
func runChat(ctx context.Context, in io.Reader, out io.Writer, sessions *chat.Manager, showSources, interactive bool) error {
	p := newPrinter(out)
	s := sessions.Start()
	defer sessions.End(s.ID())

	if interactive {
		p.Note(chatHelp)
	}

	scanner := bufio.NewScanner(in)
	for {
		if interactive {
			fmt.Fprint(out, "> ")
		}
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			s.Reset()
			p.Note("Conversation cleared.")
			continue
		case "/history":
			printHistory(p, s)
			continue
		case "/help":
			p.Note(chatHelp)
			continue
		}

		result, err := s.Ask(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("turn failed", "error", err)
			p.Error(err)
			continue
		}
		p.Turn(result, showSources)
		fmt.Fprintln(out)
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read input: %w", err)
	}
	return nil
}

func printHistory(p *printer, s *chat.Session) {
	history := s.History()
	if len(history) == 0 {
		p.Note("No conversation yet.")
		return
	}
	for i, t := range history {
		fmt.Fprintf(p.w, "%s %s\n", p.label.Render(fmt.Sprintf("Q%d", i+1)), t.Question)
		fmt.Fprintf(p.w, "%s %s\n", p.label.Render(fmt.Sprintf("A%d", i+1)), t.Answer)
	}
}
