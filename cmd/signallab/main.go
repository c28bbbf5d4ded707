package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
	dataDir string
)

var rootCmd = &cobra.Command{
	Use:   "signallab",
	Short: "Signal Replay Lab - deterministic replay and validation of trading calls",
	Long: `signallab replays trading signals against historical candles under
configurable strategies and cost models, and ranks candidate strategies
with walk-forward validation across stress lanes.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "directory with signals.csv and candles.csv to load before running")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
