package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/ansuz/internal"
	"github.com/starford/ansuz/internal/backup"
	"github.com/starford/ansuz/internal/cardstore"
	"github.com/starford/ansuz/internal/mcpserver"
	"github.com/starford/ansuz/internal/reconciler"
	"github.com/starford/ansuz/internal/session"
	pkgconfig "github.com/starford/ansuz/pkg/config"
)

// loadConfig reads the YAML config when the file exists and falls back to
// defaults otherwise, so a freshly installed daemon starts without any setup.
func loadConfig(configPath string) (*internal.Config, bool, error) {
	cfg := internal.NewDefaultConfig()

	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		return cfg, false, nil
	}
	if err := pkgconfig.Load(configPath, cfg); err != nil {
		return nil, false, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, true, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	cfg, fromFile, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}
	if fromFile {
		opts = append(opts, internal.WithConfigPath(configPath))
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

// serveMCP runs the MCP server on stdio. Logs go to stderr: stdout belongs
// to the protocol.
func serveMCP(_ context.Context, cmd *cli.Command) error {
	cfg, _, err := loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))

	store, err := cardstore.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open card store: %w", err)
	}
	defer store.Close()

	sessions := session.New(store, nil, logger)
	rec := reconciler.New(store, nil, nil, logger)

	return mcpserver.New(store, sessions, rec, nil).ServeStdio()
}

func export(_ context.Context, cmd *cli.Command) error {
	cfg, _, err := loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	store, err := cardstore.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open card store: %w", err)
	}
	defer store.Close()

	exporter, err := backup.NewExporter(cmd.String("dir"), slog.Default())
	if err != nil {
		return err
	}
	n, err := exporter.ExportAll(store)
	if err != nil {
		return err
	}
	fmt.Printf("exported %d cards to %s\n", n, cmd.String("dir"))
	return nil
}

func main() {
	configFlag := &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config file",
		DefaultText: "config/config.yaml",
		Value:       "config/config.yaml",
		Sources:     cli.EnvVars("APP_CONFIG_FILE"),
	}

	cmd := &cli.Command{
		Name:   "ansuz",
		Usage:  "Local companion daemon for capturing note cards and syncing them into an Obsidian vault",
		Action: serve,
		Flags:  []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP daemon (default)",
				Action: serve,
				Flags:  []cli.Flag{configFlag},
			},
			{
				Name:   "mcp",
				Usage:  "Run the MCP server on stdio for LLM integration",
				Action: serveMCP,
				Flags:  []cli.Flag{configFlag},
			},
			{
				Name:   "export",
				Usage:  "Export every card in the store to markdown files",
				Action: export,
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{
						Name:  "dir",
						Usage: "Export target directory",
						Value: "./ansuz-export",
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
