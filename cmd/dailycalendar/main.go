package main

import (
	"fmt"
	"os"

	_ "time/tzdata"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "dailycalendar",
	Short: "Calendar and todo assistant with reminders and daily summaries",
	Long: `dailycalendar keeps events and todo items per user, fires their reminders,
sends each user a daily summary and turns chat messages into calendar entries.

Configuration comes from environment variables, optionally layered over the
YAML file named by CONFIG_FILE.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(userCmd)
}
