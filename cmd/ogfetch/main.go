package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/ogfetch/internal"
	"github.com/starford/ogfetch/internal/ogservice"
	pkgconfig "github.com/starford/ogfetch/pkg/config"
)

func loadOptions(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	// An explicitly named file must exist; the default one may be absent.
	if cmd.IsSet("config") {
		if err := pkgconfig.Load(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	} else if _, err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return []internal.Option{
		internal.WithConfig(cfg),
	}, nil
}

// processOptions reads the per-run policy flags shared by fetch, batch and create.
func processOptions(cmd *cli.Command) ogservice.ProcessOptions {
	var po ogservice.ProcessOptions
	if cmd.IsSet("overwrite") {
		v := cmd.Bool("overwrite")
		po.Overrides.OverwriteExisting = &v
	}
	if cmd.IsSet("write-errors") {
		v := cmd.Bool("write-errors")
		po.Overrides.WriteErrors = &v
	}
	po.Force = cmd.Bool("force")
	return po
}

var processFlags = []cli.Flag{
	&cli.BoolFlag{Name: "overwrite", Usage: "Replace metadata values that are already present"},
	&cli.BoolFlag{Name: "write-errors", Usage: "Record fetch failures in the frontmatter", Value: true},
	&cli.BoolFlag{Name: "force", Usage: "Ignore cached metadata"},
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func fetch(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("usage: ogfetch fetch <path>")
	}
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.RunFetch(ctx, path, processOptions(cmd), opts...)
}

func batch(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	delay := cmd.Duration("delay")
	if !cmd.IsSet("delay") {
		delay = -1
	}
	return internal.RunBatch(ctx, cmd.Args().First(), processOptions(cmd), delay, opts...)
}

func scan(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.RunScan(ctx, cmd.Args().First(), opts...)
}

func create(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 2 {
		return fmt.Errorf("usage: ogfetch create <dir> <url>")
	}
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.RunCreate(ctx, cmd.Args().Get(0), cmd.Args().Get(1), processOptions(cmd), opts...)
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, opts...)
}

func main() {
	cmd := &cli.Command{
		Name:   "ogfetch",
		Usage:  "Fill Markdown frontmatter with OpenGraph metadata for the URLs it references",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, progress events and the vault watcher",
				Action: serve,
			},
			{
				Name:      "fetch",
				Usage:     "Fetch metadata for one document",
				ArgsUsage: "<path>",
				Flags:     processFlags,
				Action:    fetch,
			},
			{
				Name:      "batch",
				Usage:     "Fetch metadata for every eligible document under a directory",
				ArgsUsage: "[dir]",
				Flags: append([]cli.Flag{
					&cli.DurationFlag{Name: "delay", Usage: "Pause between documents (default from config)"},
				}, processFlags...),
				Action: batch,
			},
			{
				Name:      "scan",
				Usage:     "List documents that reference a URL and their missing fields",
				ArgsUsage: "[dir]",
				Action:    scan,
			},
			{
				Name:      "create",
				Usage:     "Create a document from a URL",
				ArgsUsage: "<dir> <url>",
				Flags:     processFlags,
				Action:    create,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: mcp,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
