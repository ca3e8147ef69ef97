package main

import (
	"github.com/spf13/cobra"
	"github.com/vadiminshakov/poswatch/internal/app"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var noPoll bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API together with the snapshot poller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				return a.Serve(cmd.Context(), !noPoll)
			})
		},
	}
	cmd.Flags().BoolVar(&noPoll, "no-poll", false, "serve the API without polling the feed")
	return cmd
}

func newScrapeCmd(opts *rootOptions) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Poll the position feed for every active profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, func(a *app.App) error {
				s := a.Scraper()
				if once {
					return s.RunOnce(cmd.Context())
				}
				if err := s.Run(cmd.Context()); err != nil && cmd.Context().Err() == nil {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "poll every profile once and exit")
	return cmd
}
