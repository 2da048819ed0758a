package main

import (
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/reengage-cli/internal/pipeline"
)

var dealDryRun bool

var dealCmd = &cobra.Command{
	Use:   "deal <id>",
	Short: "Process a single deal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return eris.Errorf("invalid deal id %q", args[0])
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		out, err := env.Pipeline.ProcessDealByID(ctx, id, dealDryRun)
		if errors.Is(err, pipeline.ErrBatchLocked) {
			return eris.Wrapf(err, "deal %d not processed", id)
		}
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	dealCmd.Flags().BoolVar(&dealDryRun, "dry-run", false, "generate the email without writing to Pipedrive")
	rootCmd.AddCommand(dealCmd)
}
