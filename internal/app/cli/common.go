package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/jinford/book-rag/internal/platform/config"
	"github.com/jinford/book-rag/internal/platform/container"
	"github.com/jinford/book-rag/internal/platform/logger"
)

// Options はコマンドライン共通フラグの値
type Options struct {
	EnvFile     string
	Profile     string
	ProfileFile string
	IndexFile   string
}

// OptionsFrom はコマンドのフラグから Options を作成する
// フラグはルートコマンドに定義され、サブコマンドからも参照できる
func OptionsFrom(cmd *cli.Command) Options {
	return Options{
		EnvFile:     cmd.String("env"),
		Profile:     cmd.String("profile"),
		ProfileFile: cmd.String("profile-file"),
		IndexFile:   cmd.String("index-file"),
	}
}

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config    *config.Config
	Container *container.ServiceContainer
}

// LoadConfig は設定を読み込み、プロファイルとフラグを適用してロガーを初期化する
func LoadConfig(opts Options) (*config.Config, map[string]config.Profile, error) {
	cfg, err := config.Load(opts.EnvFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if opts.IndexFile != "" {
		cfg.IndexFile = opts.IndexFile
	}
	if opts.ProfileFile != "" {
		cfg.ProfileFile = opts.ProfileFile
	}

	logger.New(logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
	})

	profiles, err := config.LoadProfiles(cfg.ProfileFile)
	if err != nil {
		return nil, nil, err
	}

	name := cfg.Profile
	if opts.Profile != "" {
		name = opts.Profile
	}
	if err := cfg.ApplyProfile(name, profiles); err != nil {
		return nil, nil, err
	}

	return cfg, profiles, nil
}

// NewAppContext は設定を読み込み、インデックスに接続して AppContext を作成する
func NewAppContext(ctx context.Context, opts Options, containerOpts ...container.ContainerOption) (*AppContext, error) {
	cfg, _, err := LoadConfig(opts)
	if err != nil {
		return nil, err
	}

	cont, err := container.NewContainer(ctx, cfg, containerOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize container: %w", err)
	}

	return &AppContext{
		Config:    cfg,
		Container: cont,
	}, nil
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	if ac.Container != nil {
		ac.Container.Close()
	}
}

// Logger はAppContextのロガーを返す
func (ac *AppContext) Logger() *slog.Logger {
	if ac.Container != nil {
		return ac.Container.Logger()
	}
	return slog.Default()
}
