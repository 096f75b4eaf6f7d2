package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:     "itembank",
	Short:   "Discord bot that lends shared community items",
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if !term.IsTerminal(int(os.Stderr.Fd())) {
			noColor = true
		}
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
