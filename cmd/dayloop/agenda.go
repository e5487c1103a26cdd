package main

import (
	"fmt"

	"github.com/dayloop/dayloop-go/pkg/eventstore"
	"github.com/spf13/cobra"
)

var agendaCmd = &cobra.Command{
	Use:   "agenda [YYYY-MM-DD]",
	Short: "List the events active on a day (default: today)",
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

		reconciler, _, userID, err := newReconciler(cfg)
		if err != nil {
			return err
		}

		events, err := reconciler.ListActive(cmd.Context(), userID, day)
		if err != nil {
			return err
		}

		printEvents(events)
		return nil
	},
}

func printEvents(events []eventstore.CalendarEvent) {
	if len(events) == 0 {
		fmt.Println("No events")
		return
	}
	for _, event := range events {
		synced := " "
		if event.ExternalEventID != "" {
			synced = "*"
		}
		span := fmt.Sprintf("%s - %s",
			event.StartTime.UTC().Format("15:04"),
			event.EndTime.UTC().Format("15:04"))
		if event.AllDay {
			span = "all day      "
		}
		fmt.Printf("%s %s  %s  %s\n", synced, event.ID, span, event.Title)
	}
}

func init() {
	rootCmd.AddCommand(agendaCmd)
}
