package main

import (
	"os"

	"github.com/spf13/cobra"

	"signal-replay-lab/internal/domain"
)

var importInterval string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load signals or candles from CSV into the configured stores",
}

var importSignalsCmd = &cobra.Command{
	Use:   "signals [file]",
	Short: "Import signals (id,caller,asset_id,created_at,reference_price)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer e.close()

		if _, err := os.Stat(args[0]); err != nil {
			return err
		}
		return importFile(args[0], func(f *os.File) error {
			return importSignals(cmd.Context(), e, f)
		})
	},
}

var importCandlesCmd = &cobra.Command{
	Use:   "candles [file]",
	Short: "Import candles (asset_id,timestamp,open,high,low,close,volume)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer e.close()

		interval := e.interval
		if importInterval != "" {
			interval = domain.Interval(importInterval)
		}
		if !interval.Valid() {
			return domain.Errorf(domain.ErrConfiguration, "interval %q is not supported", interval)
		}
		if _, err := os.Stat(args[0]); err != nil {
			return err
		}
		return importFile(args[0], func(f *os.File) error {
			return importCandles(cmd.Context(), e, f, interval)
		})
	},
}

func init() {
	importCandlesCmd.Flags().StringVar(&importInterval, "interval", "", "candle interval (default: replay.interval)")

	importCmd.AddCommand(importSignalsCmd, importCandlesCmd)
	rootCmd.AddCommand(importCmd)
}
