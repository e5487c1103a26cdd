package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dayloop/dayloop-go/pkg/auth"
	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and invalidate the backend session",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		manager, err := newAuthManager(cfg)
		if err != nil {
			return err
		}
		defer manager.Close()

		// Local session state is cleared even when the backend rejects the
		// invalidation; log the rejection instead of keeping a broken session.
		if err := manager.SignOut(cmd.Context()); err != nil {
			if errors.Is(err, auth.ErrNotSignedIn) {
				fmt.Println("Not signed in")
				return nil
			}
			slog.Warn("backend session invalidation failed", "error", err)
		}
		fmt.Println("Signed out")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
