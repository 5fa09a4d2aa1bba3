package main

import (
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"text/tabwriter"

	"github.com/Alessandro1981/etf-checker/internal/logger"
	"github.com/Alessandro1981/etf-checker/internal/models"
	"github.com/Alessandro1981/etf-checker/internal/web"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the monitor loop and the web UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			logDiagnostics(cfg, flags.optionsPath)

			a, err := newApp(cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if a.telegram != nil {
				a.telegram.ListenForCommands(ctx, a.engine.Snapshot)
			}

			logger.Info("Starting monitoring service (interval: %v, symbols: %d, threshold: %.2f%%)",
				cfg.Options.PollInterval(), len(cfg.UI.Symbols), cfg.UI.ThresholdPercent)
			a.engine.Start(ctx)
			defer a.engine.Stop()

			srv := web.NewServer(a.engine, cfg.Options.UIConfigPath, os.Getenv("SUPERVISOR_INGRESS"))
			if err := srv.ListenAndServe(ctx, cfg.Options.ListenAddr); err != nil {
				return err
			}
			logger.Info("Shutdown signal received, cleaning up...")
			return nil
		},
	}
}

func newPollCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Run a single monitoring cycle and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.RunOnce(cmd.Context()); err != nil {
				return fmt.Errorf("monitoring cycle failed: %w", err)
			}
			return printBaselines(cmd, a.engine.Snapshot())
		},
	}
}

func newBaselinesCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "baselines",
		Short: "Print the persisted baselines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()
			return printBaselines(cmd, a.store.Load())
		},
	}
}

func printBaselines(cmd *cobra.Command, state models.State) error {
	out := cmd.OutOrStdout()
	if len(state.Baselines) == 0 {
		_, err := fmt.Fprintln(out, "No baselines recorded yet.")
		return err
	}

	symbols := make([]string, 0, len(state.Baselines))
	for symbol := range state.Baselines {
		symbols = append(symbols, symbol)
	}
	slices.Sort(symbols)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tBASELINE")
	for _, symbol := range symbols {
		fmt.Fprintf(tw, "%s\t%s\n", symbol, decimal.NewFromFloat(state.Baselines[symbol]).StringFixed(4))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if !state.LastBaselineUpdate.IsZero() {
		_, err := fmt.Fprintf(out, "\nLast baseline update: %s\n", state.LastBaselineUpdate.Format("2006-01-02 15:04:05 MST"))
		return err
	}
	return nil
}
