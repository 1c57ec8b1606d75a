package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/jinford/book-rag/internal/core/book"
	"github.com/jinford/book-rag/internal/infra/memindex"
	"github.com/jinford/book-rag/internal/platform/container"
)

// importBatchSize は1トランザクションで登録するチャンク数
const importBatchSize = 500

// IndexStatsAction はインデックスの統計を表示するコマンドのアクション
func IndexStatsAction(ctx context.Context, cmd *cli.Command) error {
	cfg, _, err := LoadConfig(OptionsFrom(cmd))
	if err != nil {
		return err
	}

	var stats []book.DocumentStats
	if cfg.IndexFile != "" {
		idx, err := memindex.LoadFile(cfg.IndexFile)
		if err != nil {
			return err
		}
		stats = book.Summarize(idx.Chunks())
	} else {
		pg, err := container.OpenPostgres(ctx, cfg)
		if err != nil {
			return err
		}
		defer pg.Close()

		stats, err = pg.Stats(ctx)
		if err != nil {
			return err
		}
	}

	renderStats(os.Stdout, stats)
	return nil
}

// IndexMigrateAction は pgvector 拡張と book_chunks テーブルを作成するコマンドのアクション
func IndexMigrateAction(ctx context.Context, cmd *cli.Command) error {
	cfg, _, err := LoadConfig(OptionsFrom(cmd))
	if err != nil {
		return err
	}

	pg, err := container.OpenPostgres(ctx, cfg)
	if err != nil {
		return err
	}
	defer pg.Close()

	if err := pg.EnsureSchema(ctx); err != nil {
		return err
	}

	fmt.Printf("book_chunks is ready (embedding dimension %d)\n", cfg.OpenAI.EmbeddingDimension)
	return nil
}

// IndexImportAction は JSONL ダンプのチャンクを PostgreSQL に登録するコマンドのアクション
func IndexImportAction(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("path to a JSONL dump is required")
	}

	cfg, _, err := LoadConfig(OptionsFrom(cmd))
	if err != nil {
		return err
	}

	idx, err := memindex.LoadFile(path)
	if err != nil {
		return err
	}

	pg, err := container.OpenPostgres(ctx, cfg)
	if err != nil {
		return err
	}
	defer pg.Close()

	chunks := idx.Chunks()
	total := 0
	for start := 0; start < len(chunks); start += importBatchSize {
		end := min(start+importBatchSize, len(chunks))
		n, err := pg.Upsert(ctx, chunks[start:end])
		if err != nil {
			return fmt.Errorf("import stopped after %d chunks: %w", total, err)
		}
		total += n
		slog.Info("imported batch", "done", total, "total", len(chunks))
	}

	fmt.Printf("imported %d chunks from %s\n", total, path)
	return nil
}

func renderStats(w io.Writer, stats []book.DocumentStats) {
	if len(stats) == 0 {
		fmt.Fprintln(w, "The index is empty.")
		return
	}

	table := tablewriter.NewWriter(w)
	table.Header("Document", "Chunks", "Pages")

	total := 0
	for _, s := range stats {
		table.Append(s.Document, strconv.Itoa(s.Chunks), s.PageRange())
		total += s.Chunks
	}
	table.Render()
	fmt.Fprintf(w, "%d chunks in %d documents\n", total, len(stats))
}
