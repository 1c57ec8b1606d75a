package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	appcli "github.com/jinford/book-rag/internal/app/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "book-rag",
		Usage: "Ask questions about Simon Wardley's \"Wardley Maps\" and get cited answers",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env",
				Usage: "path to a .env file",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:    "profile",
				Usage:   "settings profile to use (see `profile list`)",
				Sources: cli.EnvVars("BOOK_RAG_PROFILE"),
			},
			&cli.StringFlag{
				Name:  "profile-file",
				Usage: "YAML file with additional profiles",
			},
			&cli.StringFlag{
				Name:  "index-file",
				Usage: "answer from a JSONL index dump instead of PostgreSQL",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "ask",
				Usage:     "Ask a single question",
				ArgsUsage: "\"question\"",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "show-sources",
						Usage: "print the passages the answer was based on",
					},
				},
				Action: appcli.AskAction,
			},
			{
				Name:  "chat",
				Usage: "Start an interactive conversation (follow-up questions keep context)",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "show-sources",
						Usage: "print the passages each answer was based on",
					},
				},
				Action: appcli.ChatAction,
			},
			{
				Name:  "index",
				Usage: "Manage the book index",
				Commands: []*cli.Command{
					{
						Name:   "stats",
						Usage:  "Show chunk counts and page ranges per document",
						Action: appcli.IndexStatsAction,
					},
					{
						Name:   "migrate",
						Usage:  "Create the pgvector extension and the book_chunks table",
						Action: appcli.IndexMigrateAction,
					},
					{
						Name:      "import",
						Usage:     "Load chunks from a JSONL dump into PostgreSQL",
						ArgsUsage: "<dump.jsonl>",
						Action:    appcli.IndexImportAction,
					},
				},
			},
			{
				Name:  "profile",
				Usage: "Inspect settings profiles",
				Commands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "List available profiles",
						Action: appcli.ProfileListAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
