package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm <event-id>",
	Short: "Delete an event, removing the mirrored copy first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		reconciler, _, userID, err := newReconciler(cfg)
		if err != nil {
			return err
		}

		if err := reconciler.Delete(cmd.Context(), userID, args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)
}
