package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/reengage-cli/internal/model"
	"github.com/sells-group/reengage-cli/internal/pipeline"
)

var (
	runLimit  int
	runDryRun bool
	runJSON   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process every open deal in the cadence stages",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := env.Pipeline.RunBatch(ctx, pipeline.BatchOptions{
			Limit:   runLimit,
			DryRun:  runDryRun,
			Trigger: "cli",
		})
		if errors.Is(err, pipeline.ErrBatchLocked) {
			fmt.Fprintln(os.Stderr, "Another batch is running.")
			return err
		}
		if summary != nil {
			if runJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(summary); encErr != nil {
					return encErr
				}
			} else {
				formatSummary(os.Stdout, summary)
			}
		}
		return err
	},
}

func init() {
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "max number of deals to process (default from config, 0 = all)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "generate emails without writing to Pipedrive")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the summary as JSON")
	rootCmd.AddCommand(runCmd)
}

// formatSummary prints a batch summary as an aligned table.
func formatSummary(w io.Writer, s *model.BatchSummary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Total:\t%d\n", s.Total)
	fmt.Fprintf(tw, "Written:\t%d\n", s.Written)
	fmt.Fprintf(tw, "Skipped:\t%d\n", s.Skipped)
	fmt.Fprintf(tw, "Failed:\t%d\n", s.Failed)
	fmt.Fprintf(tw, "Step conflicts:\t%d\n", s.Conflicts)
	fmt.Fprintf(tw, "Cost:\t$%.4f\n", s.TotalCost)

	if len(s.ByStatus) > 0 {
		statuses := make([]string, 0, len(s.ByStatus))
		for st := range s.ByStatus {
			statuses = append(statuses, string(st))
		}
		sort.Strings(statuses)
		fmt.Fprintln(tw, "\nSTATUS\tDEALS")
		for _, st := range statuses {
			fmt.Fprintf(tw, "%s\t%d\n", st, s.ByStatus[model.OutcomeStatus(st)])
		}
	}
	_ = tw.Flush()
}
