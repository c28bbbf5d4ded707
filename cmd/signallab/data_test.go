package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-replay-lab/internal/domain"
)

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"1735689600", 1735689600},
		{"2025-01-01T00:00:00Z", 1735689600},
		{"2025-01-01T02:00:00+02:00", 1735689600},
		{"2025-01-01", 1735689600},
		{" 2025-01-02 ", 1735776000},
	}
	for _, tt := range tests {
		got, err := parseTime(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := parseTime("yesterday")
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}

func TestReadSignalsCSV(t *testing.T) {
	in := strings.Join([]string{
		"id,caller,asset_id,created_at,reference_price",
		"s1,alice,tokA,1735689600,0.5",
		"s2,bob,tokB,2025-01-01T00:05:00Z,",
	}, "\n")

	got, err := readSignalsCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "s1", got[0].ID)
	assert.Equal(t, "alice", got[0].Caller)
	assert.Equal(t, "tokA", got[0].AssetID)
	assert.Equal(t, int64(1735689600), got[0].CreatedAt)
	require.NotNil(t, got[0].ReferencePrice)
	assert.Equal(t, 0.5, *got[0].ReferencePrice)

	assert.Equal(t, int64(1735689900), got[1].CreatedAt)
	assert.Nil(t, got[1].ReferencePrice)
}

func TestReadSignalsCSV_Errors(t *testing.T) {
	tests := map[string]string{
		"bad header": "signal,caller,asset_id,created_at,reference_price\n",
		"bad time":   "id,caller,asset_id,created_at,reference_price\ns1,a,b,noon,\n",
		"bad price":  "id,caller,asset_id,created_at,reference_price\ns1,a,b,1,abc\n",
		"short row":  "id,caller,asset_id,created_at,reference_price\ns1,a,b\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := readSignalsCSV(strings.NewReader(in))
			assert.Error(t, err)
		})
	}
}

const (
	day               = int64(86400)
	fixtureStudyStart = int64(1735689600) // 2025-01-01
)

// writeFixture lays out a data dir, config and strategy file for an
// in-memory run. Signal s1 fires one day into the study on a steadily
// rising asset.
func writeFixture(t *testing.T) (dir, cfgPath, strategiesPath string) {
	t.Helper()
	dir = t.TempDir()
	signalAt := fixtureStudyStart + day + 60

	signals := "id,caller,asset_id,created_at,reference_price\n" +
		fmt.Sprintf("s1,alice,tokA,%d,\n", signalAt)
	require.NoError(t, os.WriteFile(filepath.Join(dir, signalsFile), []byte(signals), 0644))

	var candles strings.Builder
	candles.WriteString("asset_id,timestamp,open,high,low,close,volume\n")
	for i := int64(0); i < 120; i++ {
		p := 1 + float64(i)*0.01
		fmt.Fprintf(&candles, "tokA,%d,%g,%g,%g,%g,1000\n", signalAt+i*60, p, p+0.005, p-0.005, p+0.004)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, candlesFile), []byte(candles.String()), 0644))

	cfgPath = filepath.Join(dir, "config.yaml")
	cfg := fmt.Sprintf("archive:\n  type: localfs\n  path: %q\nstudy:\n  workers: 2\n", filepath.Join(dir, "artifacts"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0644))

	strategiesPath = filepath.Join(dir, "strategies.yaml")
	strategies := `
strategies:
  - id: tp
    type: overlay
    take_profit_multiple: 1.3
    stop_loss_pct: 0.2
  - id: hold
    type: overlay
    stop_loss_pct: 0.5
`
	require.NoError(t, os.WriteFile(strategiesPath, []byte(strategies), 0644))
	return dir, cfgPath, strategiesPath
}

// resetFlags restores every flag to its default so rootCmd can be executed
// again within one process.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func TestCommands_InMemory(t *testing.T) {
	dir, cfgPath, strategiesPath := writeFixture(t)
	common := []string{"--config", cfgPath, "--data", dir}

	runs := [][]string{
		{"replay", "--signal-id", "s1", "--strategies", strategiesPath, "--strategy", "tp", "--json"},
		{"replay", "--from", "2025-01-01", "--to", "2025-01-04", "--strategies", strategiesPath, "--lane", domain.LaneFeeShock},
		{"study", "--strategies", strategiesPath, "--start", "2025-01-01", "--end", "2025-01-04",
			"--train-days", "1", "--test-days", "1", "--step-days", "1", "--lanes", "baseline,fee_shock",
			"--report", filepath.Join(dir, "report")},
		{"study", "--strategies", strategiesPath, "--start", "2025-01-01", "--end", "2025-01-04",
			"--train-days", "1", "--test-days", "1", "--step-days", "1", "--lanes", "baseline", "--cache"},
		{"catalog", "features", "--start", "2025-01-02", "--end", "2025-01-03", "--features", "sma:5,log_return"},
	}
	for _, args := range runs {
		t.Run(strings.Join(args[:2], " "), func(t *testing.T) {
			resetFlags(rootCmd)
			rootCmd.SetArgs(append(append([]string{}, args...), common...))
			require.NoError(t, rootCmd.ExecuteContext(t.Context()))
		})
	}

	manifests, err := filepath.Glob(filepath.Join(dir, "artifacts", "*", "*", "manifest.json"))
	require.NoError(t, err)
	assert.NotEmpty(t, manifests)

	md, err := os.ReadFile(filepath.Join(dir, "report", "study_report.md"))
	require.NoError(t, err)
	assert.Contains(t, string(md), "| 1 | ")
	assert.FileExists(t, filepath.Join(dir, "report", "champions.csv"))
}

func TestReplay_UnknownStrategy(t *testing.T) {
	dir, cfgPath, strategiesPath := writeFixture(t)
	resetFlags(rootCmd)
	rootCmd.SetArgs([]string{"replay", "--config", cfgPath, "--data", dir,
		"--signal-id", "s1", "--strategies", strategiesPath, "--strategy", "missing"})
	err := rootCmd.ExecuteContext(t.Context())
	assert.True(t, errors.Is(err, domain.ErrConfiguration), "got %v", err)
}
