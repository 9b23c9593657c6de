package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"eclipse/internal/config"
	"eclipse/internal/store"
)

func newStatsCommand(configFlag *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show delivery totals and recent jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := config.Load(*configFlag)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			st, err := store.Open(cfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer func() { _ = st.Close() }()

			ctx := cmd.Context()
			stats, err := st.Stats(ctx)
			if err != nil {
				return fmt.Errorf("read stats: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Metric", "Value"},
				[][]string{
					{"Delivered today", strconv.FormatInt(stats.Today, 10)},
					{"Delivered all time", strconv.FormatInt(stats.Lifetime, 10)},
					{"Jobs total", strconv.Itoa(stats.Total)},
					{"Jobs active", strconv.Itoa(stats.Active)},
					{"Jobs completed", strconv.Itoa(stats.Completed)},
					{"Jobs failed", strconv.Itoa(stats.Failed)},
				},
				[]columnAlignment{alignLeft, alignRight},
			))

			jobs, err := st.RecentJobs(ctx, limit)
			if err != nil {
				return fmt.Errorf("list jobs: %w", err)
			}
			if len(jobs) == 0 {
				return nil
			}

			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				rows = append(rows, []string{
					shortID(job.ID),
					job.Kind,
					string(job.Status),
					strconv.Itoa(job.DeliveredCount),
					job.CreatedAt.Local().Format(time.DateTime),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Job", "Kind", "Status", "Sent", "Created"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of recent jobs to show")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
