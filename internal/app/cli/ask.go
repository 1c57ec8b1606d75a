package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/jinford/book-rag/internal/core/chat"
)

// AskAction は1回の質問に回答するコマンドのアクション
func AskAction(ctx context.Context, cmd *cli.Command) error {
	question := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if question == "" {
		return cli.Exit(chat.UserMessage(chat.ErrEmptyQuestion), 2)
	}
	showSources := cmd.Bool("show-sources")

	appCtx, err := NewAppContext(ctx, OptionsFrom(cmd))
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		return cli.Exit(chat.UserMessage(err), 1)
	}
	defer appCtx.Close()

	if err := runAsk(ctx, os.Stdout, appCtx.Container.Sessions, question, showSources); err != nil {
		return cli.Exit("", 1)
	}
	return nil
}

// runAsk は新しいセッションで1ターンを実行し、結果を w に出力する
func runAsk(ctx context.Context, w io.Writer, sessions *chat.Manager, question string, showSources bool) error {
	p := newPrinter(w)

	s := sessions.Start()
	defer sessions.End(s.ID())

	result, err := s.Ask(ctx, question)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		slog.Error("question failed", "error", err, "question", question)
		p.Error(err)
		return err
	}

	p.Turn(result, showSources)
	return nil
}
