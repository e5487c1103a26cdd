package main

import (
	"fmt"
	"time"

	"github.com/dayloop/dayloop-go/pkg/sync"
	"github.com/spf13/cobra"
)

var (
	addTitle  string
	addDesc   string
	addFrom   string
	addTo     string
	addAllDay bool
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Create an event and mirror it to Google Calendar",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		start, err := parseWhen(addFrom)
		if err != nil {
			return fmt.Errorf("--from: %w", err)
		}
		end, err := parseWhen(addTo)
		if err != nil {
			return fmt.Errorf("--to: %w", err)
		}

		reconciler, _, userID, err := newReconciler(cfg)
		if err != nil {
			return err
		}

		event, err := reconciler.Create(cmd.Context(), userID, sync.Draft{
			Title:       addTitle,
			Description: addDesc,
			StartTime:   start,
			EndTime:     end,
			AllDay:      addAllDay,
		})
		if err != nil {
			return err
		}

		if event.ExternalEventID != "" {
			fmt.Printf("Created %s (mirrored as %s)\n", event.ID, event.ExternalEventID)
		} else {
			fmt.Printf("Created %s (not yet mirrored)\n", event.ID)
		}
		return nil
	},
}

func parseWhen(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", value)
}

func init() {
	addCmd.Flags().StringVarP(&addTitle, "title", "t", "", "event title")
	addCmd.Flags().StringVarP(&addDesc, "desc", "d", "", "event description")
	addCmd.Flags().StringVar(&addFrom, "from", "", "start time (RFC3339 or YYYY-MM-DD HH:MM)")
	addCmd.Flags().StringVar(&addTo, "to", "", "end time (RFC3339 or YYYY-MM-DD HH:MM)")
	addCmd.Flags().BoolVar(&addAllDay, "all-day", false, "all-day event")
	addCmd.MarkFlagRequired("title")
	addCmd.MarkFlagRequired("from")
	addCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(addCmd)
}
