package main

import (
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/vadiminshakov/poswatch/internal/app"
)

func newDiffCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "diff <change-id>",
		Short: "Print the detailed diff of a recorded change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return errors.Errorf("change id must be an integer, got %q", args[0])
			}
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				out, err := a.History.Diff(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}
}

func newLifecycleCmd(opts *rootOptions) *cobra.Command {
	var symbol, product, underlying string
	cmd := &cobra.Command{
		Use:   "lifecycle <slug>",
		Short: "Print position lifecycle events of a profile",
		Long: "With --symbol prints the events of one symbol, optionally restricted to --product.\n" +
			"Otherwise prints every event grouped by underlying, optionally restricted to --underlying.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				if symbol != "" {
					out, err := a.History.SymbolLifecycle(cmd.Context(), args[0], symbol, product)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), out)
				}
				out, err := a.History.Underlyings(cmd.Context(), args[0], underlying)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "trading symbol")
	cmd.Flags().StringVar(&product, "product", "", "product, used with --symbol")
	cmd.Flags().StringVar(&underlying, "underlying", "", "underlying, used without --symbol")
	return cmd
}

func newMetricsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics <slug> <date>",
		Short: "Print the daily P&L metrics of a profile (date is YYYY-MM-DD)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				out, err := a.History.DailyMetrics(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}
}

func newPurgeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <date>",
		Short: "Delete every snapshot and change recorded on date (YYYY-MM-DD)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				out, err := a.History.DeleteDay(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}
}
