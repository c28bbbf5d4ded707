package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"signal-replay-lab/internal/catalog"
	"signal-replay-lab/internal/domain"
	"signal-replay-lab/internal/features"
	"signal-replay-lab/internal/replay"
	"signal-replay-lab/internal/validation"
)

// sliceDataset names the candle dataset in slice specs.
const sliceDataset = "candles"

var (
	catalogStart    string
	catalogEnd      string
	catalogAssets   []string
	catalogChain    string
	catalogFeatures string
	catalogJSON     bool
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Materialise and inspect catalog artifacts",
}

var catalogSliceCmd = &cobra.Command{
	Use:   "slice",
	Short: "Export a candle slice, or return the cached one",
	RunE:  runCatalogSlice,
}

var catalogFeaturesCmd = &cobra.Command{
	Use:   "features",
	Short: "Compute a feature set over a slice, or return the cached one",
	RunE:  runCatalogFeatures,
}

var catalogShowCmd = &cobra.Command{
	Use:   "show [manifest-path]",
	Short: "Print a manifest after verifying its artifact hash",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogShow,
}

func init() {
	for _, c := range []*cobra.Command{catalogSliceCmd, catalogFeaturesCmd} {
		f := c.Flags()
		f.StringVar(&catalogStart, "start", "", "slice start, unix seconds, RFC3339 or YYYY-MM-DD (required)")
		f.StringVar(&catalogEnd, "end", "", "slice end (required)")
		f.StringSliceVar(&catalogAssets, "assets", nil, "asset ids (default: assets of signals in range)")
		f.StringVar(&catalogChain, "chain", "solana", "chain recorded in the slice spec")
		f.BoolVar(&catalogJSON, "json", false, "output as JSON")
		c.MarkFlagRequired("start")
		c.MarkFlagRequired("end")
	}
	catalogFeaturesCmd.Flags().StringVar(&catalogFeatures, "features", "log_return,sma:20,atr:14", "features, e.g. sma:20,ema:12,log_return")

	catalogCmd.AddCommand(catalogSliceCmd, catalogFeaturesCmd, catalogShowCmd)
	rootCmd.AddCommand(catalogCmd)
}

func newRunner(e *env) *replay.Runner {
	return replay.NewRunner(replay.RunnerOptions{Source: e.candles, Logger: e.log})
}

// newCatalog wires the catalog producers. exec backs sim runs and may be nil.
func newCatalog(e *env, exec validation.Executor) (*catalog.Catalog, error) {
	opts := catalog.Options{
		Index:    e.index,
		Archive:  e.blobs,
		Slices:   catalog.NewStoreSliceExporter(e.candles, e.blobs),
		Features: features.NewComputer(e.blobs, e.log),
		Logger:   e.log,
	}
	if exec != nil {
		opts.Sims = validation.NewSimRunner(exec, e.blobs)
	}
	return catalog.New(opts)
}

func sliceSpec(e *env, chain string, from, to int64, assets []string) domain.SliceSpec {
	return domain.SliceSpec{
		Dataset:    sliceDataset,
		Chain:      chain,
		Interval:   e.interval,
		StartISO:   time.Unix(from, 0).UTC().Format(time.RFC3339),
		EndISO:     time.Unix(to, 0).UTC().Format(time.RFC3339),
		AssetIDs:   assets,
		SchemaHash: catalog.CandleSchemaHash,
	}
}

func catalogSliceSpec(cmd *cobra.Command, e *env) (domain.SliceSpec, error) {
	from, err := parseTime(catalogStart)
	if err != nil {
		return domain.SliceSpec{}, err
	}
	to, err := parseTime(catalogEnd)
	if err != nil {
		return domain.SliceSpec{}, err
	}
	assets := catalogAssets
	if len(assets) == 0 {
		if assets, err = signalAssets(cmd.Context(), e, from, to); err != nil {
			return domain.SliceSpec{}, err
		}
	}
	if len(assets) == 0 {
		return domain.SliceSpec{}, domain.Errorf(domain.ErrConfiguration, "no assets given and no signals in range")
	}
	return sliceSpec(e, catalogChain, from, to, assets), nil
}

func runCatalogSlice(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer e.close()

	spec, err := catalogSliceSpec(cmd, e)
	if err != nil {
		return err
	}
	cat, err := newCatalog(e, nil)
	if err != nil {
		return err
	}
	rec, err := cat.Slice(cmd.Context(), spec)
	if err != nil {
		return err
	}

	if catalogJSON {
		return printJSON(rec)
	}
	printRecord([][2]string{
		{"Slice ID", rec.SliceID},
		{"Token set ID", rec.TokenSetID},
		{"Manifest", rec.ManifestPath},
		{"Rows", fmt.Sprint(rec.RowCount)},
		{"Created", rec.CreatedAt.UTC().Format(time.RFC3339)},
	})
	return nil
}

func runCatalogFeatures(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer e.close()

	specs, err := features.ParseList(catalogFeatures)
	if err != nil {
		return err
	}
	spec, err := catalogSliceSpec(cmd, e)
	if err != nil {
		return err
	}
	cat, err := newCatalog(e, nil)
	if err != nil {
		return err
	}
	rec, err := cat.Features(cmd.Context(), spec, specs)
	if err != nil {
		return err
	}

	if catalogJSON {
		return printJSON(rec)
	}
	printRecord([][2]string{
		{"Features ID", rec.FeaturesID},
		{"Slice ID", rec.SliceID},
		{"Feature set ID", rec.FeatureSetID},
		{"Manifest", rec.ManifestPath},
		{"Rows", fmt.Sprint(rec.RowCount)},
		{"Created", rec.CreatedAt.UTC().Format(time.RFC3339)},
	})
	return nil
}

func runCatalogShow(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer e.close()

	m, err := catalog.ReadManifest(cmd.Context(), e.blobs, args[0])
	if err != nil {
		return err
	}
	if _, err := catalog.ReadArtifact(cmd.Context(), e.blobs, args[0]); err != nil {
		return err
	}
	return printJSON(m)
}

func printRecord(rows [][2]string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, r := range rows {
		fmt.Fprintf(w, "%s:\t%s\n", r[0], r[1])
	}
	_ = w.Flush()
}
