package main

import (
	"fmt"
	"log/slog"

	"github.com/dayloop/dayloop-go/pkg/auth"
	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with Google via the browser",
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

		outcome, err := manager.StartInteractiveSignIn(cmd.Context())
		if err != nil {
			return err
		}

		switch outcome {
		case auth.OutcomeSuccess:
			session := manager.Session()
			fmt.Printf("Signed in as %s (%s)\n", session.Email, session.UserID)
		case auth.OutcomeCancelled:
			slog.Info("sign-in cancelled")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
}
