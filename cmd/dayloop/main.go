package main

import (
	"log/slog"
	"os"

	"github.com/dayloop/dayloop-go/pkg/prettylog"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "dayloop",
	Short: "Calendar client core: Google sign-in and event sync",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
}

func main() {
	godotenv.Load()

	if os.Getenv("PRETTY_LOGS") != "false" {
		slog.SetDefault(slog.New(prettylog.NewHandler(slog.LevelInfo)))
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
