package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mediapulse/newscrawler/internal/scheduler"
)

func newCrawlCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "crawl [config-id...]",
		Short: "Run one-off crawls and exit.",
		Long: `crawl runs the named source configurations once, in order. With
--all it instead sweeps every source that is currently due.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFromContext(cmd.Context())

			if all {
				sched := scheduler.New(a.Configs, a.Runner, a.Clock,
					a.Cfg.Scheduler.Tick(), a.Cfg.Scheduler.MaxConcurrent, a.Logger)
				sched.Sweep(cmd.Context())
				return nil
			}
			if len(args) == 0 {
				return fmt.Errorf("pass config ids or --all")
			}

			for _, id := range args {
				task, err := a.Runner.RunByID(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("run config %s: %w", id, err)
				}
				if task == nil {
					a.Logger.Info("run skipped", zap.String("config_id", id))
					continue
				}
				a.Logger.Info("run finished",
					zap.String("config_id", id),
					zap.String("task_id", task.ID),
					zap.String("status", string(task.Status)),
					zap.Int("saved", task.Summary.Saved),
				)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "crawl every due source")
	return cmd
}
