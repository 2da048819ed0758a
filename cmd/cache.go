package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the Pipedrive field cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop cached field and stage mappings",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initSyncEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.FieldMap.Clear(ctx); err != nil {
			return err
		}
		expired, err := env.Store.DeleteExpiredCache(ctx)
		if err != nil {
			return eris.Wrap(err, "cache clear")
		}

		fmt.Fprintf(os.Stdout, "Field cache cleared (%d expired entries removed).\n", expired)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
