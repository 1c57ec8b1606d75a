package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/jinford/book-rag/internal/platform/config"
)

// ProfileListAction は利用可能なプロファイルを表示するコマンドのアクション
func ProfileListAction(ctx context.Context, cmd *cli.Command) error {
	cfg, profiles, err := LoadConfig(OptionsFrom(cmd))
	if err != nil {
		return err
	}

	renderProfiles(os.Stdout, profiles, cfg.Profile)
	return nil
}

func renderProfiles(w io.Writer, profiles map[string]config.Profile, active string) {
	table := tablewriter.NewWriter(w)
	table.Header("", "Profile", "Model", "K", "Search", "Max Tokens", "Description")

	for _, p := range config.SortedProfiles(profiles) {
		// 未指定の項目は既定値を表示する
		resolved := p.Apply(config.DefaultChatConfig())

		marker := ""
		if p.Name == active {
			marker = "*"
		}
		table.Append(
			marker,
			p.Name,
			resolved.Model,
			strconv.Itoa(resolved.RetrievalK),
			resolved.SearchMode,
			strconv.Itoa(resolved.MaxTokens),
			p.Description,
		)
	}

	table.Render()
	if active == "" {
		fmt.Fprintln(w, "No profile selected; environment settings are used as-is.")
	}
}
