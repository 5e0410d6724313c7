package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	apiFlag     string
	historyFlag string
	userFlag    string
	rootCmd     = &cobra.Command{
		Use:   "nudgectl",
		Short: "Offline pattern analysis and scheduler control for the nudge server",
	}
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&apiFlag, "api", "a", "http://localhost:8080", "Nudge server base URL")

	// analyze subcommand
	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Build a user pattern from a history export",
		RunE: func(cmd *cobra.Command, args []string) error {
			at, _ := cmd.Flags().GetString("at")
			now, err := parseAt(at)
			if err != nil {
				return err
			}
			h, err := loadHistory(historyFlag)
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, analyze(h, userFlag, now))
		},
	}
	analyzeCmd.Flags().StringVarP(&historyFlag, "history", "f", "", "History JSON file (required)")
	analyzeCmd.Flags().StringVarP(&userFlag, "user", "u", "", "Only use records of this user")
	analyzeCmd.Flags().String("at", "", "Analysis time, RFC3339 (defaults to now)")
	_ = analyzeCmd.MarkFlagRequired("history")
	rootCmd.AddCommand(analyzeCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
