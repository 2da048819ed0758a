package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/reengage-cli/internal/cadence"
)

var cadenceCmd = &cobra.Command{
	Use:   "cadence",
	Short: "Inspect the cadence tables",
}

var cadenceValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Load the cadence tables and print them",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Cadence.File
		if len(args) == 1 {
			path = args[0]
		}
		r, err := cadence.LoadFile(path)
		if err != nil {
			return err
		}
		formatCadences(os.Stdout, r)
		return nil
	},
}

func init() {
	cadenceCmd.AddCommand(cadenceValidateCmd)
	rootCmd.AddCommand(cadenceCmd)
}

func formatCadences(w io.Writer, r *cadence.Resolver) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CADENCE\tSTAGES\tSTEP\tCONTENT\tRESEARCH")
	for _, t := range cadence.Types {
		def, ok := r.Definition(t)
		if !ok {
			continue
		}
		for i, step := range r.StepNumbers(t) {
			rule, _ := r.StepRule(t, step)
			name, stages := "", ""
			if i == 0 {
				name, stages = def.Name, fmt.Sprint(def.Stages)
			}
			research := ""
			if rule.ResearchNeeded {
				research = "yes"
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", name, stages, step, rule.ContentType, research)
		}
		if len(def.InfiniteCycle) > 0 {
			fmt.Fprintf(tw, "\t\tthen\tcycle %v\t\n", def.InfiniteCycle)
		}
	}
	_ = tw.Flush()
}
