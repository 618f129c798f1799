package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	noColor  bool
	userFlag string
)

var rootCmd = &cobra.Command{
	Use:           "anchor",
	Short:         "anchor: recovery counselor chat with survey-driven priority scoring",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable coloured output")
	rootCmd.PersistentFlags().StringVar(&userFlag, "user", defaultUser(), "user ID to act as")

	rootCmd.AddCommand(startCmd, stopCmd, statusCmd)
	rootCmd.AddCommand(chatCmd, resetCmd, prioritiesCmd, intakeCmd)
	rootCmd.AddCommand(questionsCmd, tokenCmd, configCmd)
}

func defaultUser() string {
	if u := os.Getenv("ANCHOR_USER"); u != "" {
		return u
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "local"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
