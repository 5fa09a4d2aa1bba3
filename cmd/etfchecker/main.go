package main

import (
	"fmt"
	"os"

	"github.com/Alessandro1981/etf-checker/internal/config"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	optionsPath string
	debug       bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	serve := newServeCmd(flags)
	root := &cobra.Command{
		Use:   "etfchecker",
		Short: "Watch ETF prices and notify Home Assistant on large moves",
		Long: `etfchecker polls quotes for a list of ETFs, compares each price with a
stored baseline and sends a Home Assistant notification when the move
reaches the configured threshold. The baseline is then moved to the new
price.

Running without a subcommand is the same as 'etfchecker serve'.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}

	root.PersistentFlags().StringVar(&flags.optionsPath, "options", config.DefaultOptionsPath, "path to the add-on options file")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "enable debug logging")

	root.AddCommand(serve, newPollCmd(flags), newBaselinesCmd(flags))
	return root
}
