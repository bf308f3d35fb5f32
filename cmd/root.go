// Package cmd defines the crawler's command line interface.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mediapulse/newscrawler/internal/app"
)

var cfgFile string

type appKeyType struct{}

// newApp is the application factory, a variable so tests can swap in a
// prebuilt App.
var newApp = func(ctx context.Context, cfgPath string) (*app.App, error) {
	return app.New(ctx, cfgPath)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "newscrawler",
		Short: "Crawls configured news sources into the article store.",
		Long: `newscrawler ingests articles from RSS feeds, JSON APIs, and HTML
listing pages. Sources are defined as structured configurations and
crawled on their own intervals, with per-source rate limiting,
response caching, and URL-level deduplication.`,

		// Build the app after flags are parsed, before the subcommand
		// runs, and hand it down through the command context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("initialize application: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKeyType{}, a))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a := appFromContext(cmd.Context()); a != nil {
				a.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCrawlCmd())
	return cmd
}

func appFromContext(ctx context.Context) *app.App {
	a, _ := ctx.Value(appKeyType{}).(*app.App)
	return a
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
