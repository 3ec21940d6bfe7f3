package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"
)

// parseSince reads --since as RFC 3339, a plain date, or English such as
// "2 weeks ago" or "last monday". Empty means no lower bound.
func parseSince(text string, now time.Time) (*time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return &t, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, text, now.Location()); err == nil {
		return &t, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(text, now)
	if err != nil {
		return nil, fmt.Errorf("invalid --since %q: %w", text, err)
	}
	if r == nil {
		return nil, fmt.Errorf("invalid --since %q: not a date", text)
	}
	if r.Time.After(now) {
		return nil, fmt.Errorf("invalid --since %q: %s is in the future", text, r.Time.Format(time.RFC3339))
	}
	return &r.Time, nil
}

var tasksCmd = &cobra.Command{
	Use:     "tasks",
	GroupID: "data",
	Short:   "Artist task maintenance",
}

var tasksBackfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Assign artists to in-production orders that have no task",
	Long: `Find orders in a production status (layout through packing) with no
active artist task and assign each to the least loaded active artist,
oldest order first.

Example usage:
  yohanns tasks backfill --dry-run
  yohanns tasks backfill --since "2 weeks ago"
  yohanns tasks backfill --since 2025-06-01`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sinceText, _ := cmd.Flags().GetString("since")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		since, err := parseSince(sinceText, time.Now())
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		b, err := openBackend(ctx, cfg, logger.Named("store"))
		if err != nil {
			return err
		}
		defer b.Close()

		rep, err := b.assigner(cfg, nil, logger.Logger).Backfill(ctx, since, dryRun)
		if err != nil {
			return err
		}

		if since != nil {
			fmt.Println(muted("Orders created since " + since.Format(time.RFC3339)))
		}
		fmt.Printf("Checked %d order(s), %d without a task\n", rep.Checked, rep.Needing)
		if rep.DryRun {
			for _, id := range rep.Orders {
				fmt.Printf("  would assign %s\n", id)
			}
			fmt.Println(warn("Dry run, nothing was assigned"))
			return nil
		}
		fmt.Printf("%s Assigned %d\n", accent("✓"), rep.Assigned)
		if rep.Failed > 0 {
			fmt.Println(failed(fmt.Sprintf("✗ %d failed, see the log for details", rep.Failed)))
		}
		return nil
	},
}

var tasksWorkloadCmd = &cobra.Command{
	Use:   "workload",
	Short: "Show open and completed tasks per artist",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		b, err := openBackend(ctx, cfg, logger.Named("store"))
		if err != nil {
			return err
		}
		defer b.Close()

		loads, err := b.assigner(cfg, nil, logger.Logger).WorkloadSummary(ctx)
		if err != nil {
			return err
		}
		if len(loads) == 0 {
			fmt.Println(muted("No artists"))
			return nil
		}

		rows := make([][]string, 0, len(loads))
		for _, l := range loads {
			status := accent("active")
			if !l.IsActive {
				status = muted("inactive")
			}
			rows = append(rows, []string{
				l.ArtistName,
				status,
				strconv.Itoa(l.Open),
				strconv.Itoa(l.Completed),
				strconv.Itoa(l.Total),
			})
		}
		fmt.Print(renderTable([]string{"ARTIST", "STATUS", "OPEN", "DONE", "TOTAL"}, rows))
		return nil
	},
}

func init() {
	tasksBackfillCmd.Flags().String("since", "", `only orders created after this time ("2 weeks ago", 2025-06-01, RFC 3339)`)
	tasksBackfillCmd.Flags().Bool("dry-run", false, "list the orders without assigning")

	tasksCmd.AddCommand(tasksBackfillCmd)
	tasksCmd.AddCommand(tasksWorkloadCmd)
	rootCmd.AddCommand(tasksCmd)
}
