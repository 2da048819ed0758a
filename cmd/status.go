package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/reengage-cli/internal/model"
	"github.com/sells-group/reengage-cli/internal/monitoring"
	"github.com/sells-group/reengage-cli/internal/store"
)

var (
	statusHours int
	statusRuns  int
	statusJSON  bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ledger metrics and recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("status"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		hours := statusHours
		if hours <= 0 {
			hours = cfg.Monitoring.LookbackWindowHours
		}
		snap, err := monitoring.NewCollector(st).Collect(ctx, hours)
		if err != nil {
			return err
		}
		runs, err := st.ListRuns(ctx, store.RunFilter{Limit: statusRuns})
		if err != nil {
			return eris.Wrap(err, "status: list runs")
		}

		if statusJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Metrics *monitoring.MetricsSnapshot `json:"metrics"`
				Runs    []model.Run                 `json:"runs"`
			}{snap, runs})
		}

		formatSnapshot(os.Stdout, snap)
		fmt.Fprintln(os.Stdout)
		formatRuns(os.Stdout, runs)
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusHours, "hours", 0, "lookback window in hours (default from config)")
	statusCmd.Flags().IntVar(&statusRuns, "runs", 10, "number of recent runs to list")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print as JSON")
	rootCmd.AddCommand(statusCmd)
}

func formatSnapshot(w io.Writer, s *monitoring.MetricsSnapshot) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Window:\tlast %dh\n", s.LookbackHours)
	fmt.Fprintf(tw, "Deals:\t%d (written %d, skipped %d, failed %d, conflicts %d)\n",
		s.DealsTotal, s.DealsWritten, s.DealsSkipped, s.DealsFailed, s.DealsConflicts)
	fmt.Fprintf(tw, "Failure rate:\t%.1f%%\n", s.DealFailRate*100)
	fmt.Fprintf(tw, "Cost:\t$%.4f\n", s.CostUSD)
	fmt.Fprintf(tw, "Runs:\t%d (failed %d, running %d)\n", s.RunsTotal, s.RunsFailed, s.RunsRunning)
	_ = tw.Flush()
}

func formatRuns(w io.Writer, runs []model.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tTRIGGER\tDEALS\tWRITTEN\tCOST\tSTARTED\tDURATION")
	for _, r := range runs {
		var total, written int
		var cost float64
		if r.Summary != nil {
			total, written, cost = r.Summary.Total, r.Summary.Written, r.Summary.TotalCost
		}
		duration := "-"
		if r.FinishedAt != nil {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t$%.4f\t%s\t%s\n",
			r.ID, r.Status, r.Trigger, total, written, cost,
			r.StartedAt.Format(time.RFC3339), duration)
	}
	_ = tw.Flush()
}
