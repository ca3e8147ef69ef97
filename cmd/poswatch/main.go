// Command poswatch records position snapshots of verified trading profiles
// and serves their change history.
//
// Usage:
//
//	poswatch serve --config config.yaml
//	poswatch scrape --once
//	poswatch diff 42
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/vadiminshakov/poswatch/config"
	"github.com/vadiminshakov/poswatch/internal/app"
	"go.uber.org/zap"
)

type rootOptions struct {
	configPath string
}

func main() {
	decimal.MarshalJSONWithoutQuotes = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "poswatch",
		Short:         "Track verified position snapshots and their changes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to yaml config")

	cmd.AddCommand(
		newServeCmd(opts),
		newScrapeCmd(opts),
		newDiffCmd(opts),
		newLifecycleCmd(opts),
		newMetricsCmd(opts),
		newPurgeCmd(opts),
	)
	return cmd
}

// withApp loads the configuration, builds the app and runs fn with it.
func withApp(ctx context.Context, opts *rootOptions, fn func(*app.App) error) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	logger, err := app.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()

	return fn(a)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
