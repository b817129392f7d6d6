package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/starford/ogfetch/internal/mcpserver"
	"github.com/starford/ogfetch/internal/ogservice"
)

func (c *components) print(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// RunFetch fetches metadata for one document and prints the result.
func RunFetch(ctx context.Context, path string, po ogservice.ProcessOptions, opts ...Option) error {
	c, err := build(opts, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	res, err := c.svc.ProcessDocument(ctx, path, po)
	if res != nil {
		if perr := c.print(res); perr != nil {
			return perr
		}
	}
	return err
}

// RunBatch fetches every eligible document under dir, one at a time, and
// prints the summary. An interrupt stops the run between documents.
// A negative delay uses the configured pacing.
func RunBatch(ctx context.Context, dir string, po ogservice.ProcessOptions, delay time.Duration, opts ...Option) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := build(opts, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	policy := c.svc.Policy().Apply(po.Overrides)
	if err := policy.Validate(); err != nil {
		return err
	}
	paths, err := c.scanner.Select(dir, policy, c.cfg.Batch.RefreshAfter, time.Now())
	if err != nil {
		return fmt.Errorf("scan %q: %w", dir, err)
	}
	if delay < 0 {
		delay = c.cfg.DelayFor()
	}
	c.logger.Info("batch selected documents", slog.String("dir", dir), slog.Int("count", len(paths)))

	sum := c.svc.NewBatch().Run(ctx, paths, ogservice.BatchOptions{Process: po, Delay: delay})
	if err := c.print(sum); err != nil {
		return err
	}
	if sum.Errors > 0 {
		return fmt.Errorf("%d of %d documents failed", sum.Errors, len(sum.Results))
	}
	return nil
}

// RunScan prints the documents under dir that reference a URL.
func RunScan(_ context.Context, dir string, opts ...Option) error {
	c, err := build(opts, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	docs, err := c.scanner.Scan(dir)
	if err != nil {
		return fmt.Errorf("scan %q: %w", dir, err)
	}
	return c.print(docs)
}

// RunCreate creates a document under dir from rawURL and prints the result.
func RunCreate(ctx context.Context, dir, rawURL string, po ogservice.ProcessOptions, opts ...Option) error {
	c, err := build(opts, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	res, err := c.svc.CreateDocument(ctx, dir, rawURL, po)
	if err != nil {
		return err
	}
	return c.print(res)
}

// RunMCP serves the MCP tools over stdio. Logs go to stderr unless
// redirected, since stdout carries the protocol.
func RunMCP(_ context.Context, opts ...Option) error {
	c, err := build(append([]Option{WithLogOutput(os.Stderr)}, opts...), nil)
	if err != nil {
		return err
	}
	defer c.Close()

	c.logger.Info("MCP server starting", slog.String("vault_path", c.cfg.Vault.Path))
	return mcpserver.New(c.svc, c.scanner, c.db).ServeStdio()
}
