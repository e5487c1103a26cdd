package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/dayloop/dayloop-go/pkg/eventstore"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [YYYY-MM-DD]",
	Short: "Follow the change feed and re-list the day on every change",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		dayArg := ""
		if len(args) == 1 {
			dayArg = args[0]
		}
		day, err := parseDay(dayArg)
		if err != nil {
			return err
		}

		reconciler, store, userID, err := newReconciler(cfg)
		if err != nil {
			return err
		}

		ctx := cmd.Context()

		events, err := reconciler.ListActive(ctx, userID, day)
		if err != nil {
			return err
		}
		printEvents(events)

		feed, err := store.SubscribeChanges(ctx, userID)
		if err != nil {
			return err
		}

		subscription := reconciler.Subscribe(ctx, feed, userID, day,
			func(events []eventstore.CalendarEvent, err error) {
				if err != nil {
					slog.Warn("refresh failed", "error", err)
					return
				}
				fmt.Println("---")
				printEvents(events)
			})
		defer subscription.Close()

		slog.Info("watching for changes", "user_id", userID, "day", day.Format("2006-01-02"))

		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, os.Interrupt)
		select {
		case <-interrupt:
		case <-ctx.Done():
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
