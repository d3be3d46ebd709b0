package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"planmark/internal/config"
	appLog "planmark/internal/log"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:           "planmark",
	Short:         "planmark - agenda and reminders from Markdown notes",
	Long:          `planmark reads Markdown notes with SCHEDULED, REPEAT and NOTIFY tags and turns them into an agenda, reminders and an iCalendar feed.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	configPath string
	logLevel   string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "path to config.yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd, agendaCmd, tokensCmd, toggleCmd, remindersCmd, nextCmd)
}

func main() {
	defer appLog.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
