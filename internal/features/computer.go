package features

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"path"
	"strconv"

	"go.uber.org/zap"

	"signal-replay-lab/internal/archive"
	"signal-replay-lab/internal/catalog"
	"signal-replay-lab/internal/domain"
	"signal-replay-lab/internal/logger"
)

// Artifact is the file name of a computed feature set.
const Artifact = "features.csv"

// Computer produces feature sets for the catalog.
type Computer struct {
	blobs archive.Storage
	log   *zap.Logger
}

// NewComputer creates a Computer reading slices from and writing features to blobs.
func NewComputer(blobs archive.Storage, log *zap.Logger) *Computer {
	return &Computer{blobs: blobs, log: logger.OrNop(log)}
}

// ComputeFeatures implements catalog.FeatureComputer. The artifact has one
// row per slice candle: asset_id, timestamp and one column per feature in
// Normalize order. Undefined values are empty cells.
func (c *Computer) ComputeFeatures(ctx context.Context, slice *domain.SliceRecord, features []domain.FeatureSpec, dir string) (*catalog.Output, error) {
	specs, err := Normalize(features)
	if err != nil {
		return nil, err
	}

	assets, err := catalog.ReadSlice(ctx, c.blobs, slice)
	if err != nil {
		return nil, fmt.Errorf("read slice %s: %w", slice.SliceID, err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{"asset_id", "timestamp"}
	for _, f := range specs {
		header = append(header, Column(f))
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(assets))
	for _, a := range assets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := Compute(a.AssetID, a.Candles, specs)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			rec := make([]string, 0, len(header))
			rec = append(rec, r.AssetID, strconv.FormatInt(r.Timestamp, 10))
			for _, name := range header[2:] {
				rec = append(rec, formatValue(r.Values[name]))
			}
			if err := w.Write(rec); err != nil {
				return nil, err
			}
		}
		counts[a.AssetID] = int64(len(rows))
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	artifact := path.Join(dir, Artifact)
	if err := c.blobs.Write(ctx, artifact, buf.Bytes()); err != nil {
		return nil, fmt.Errorf("write features artifact: %w", err)
	}
	c.log.Debug("features computed",
		zap.String("slice_id", slice.SliceID),
		zap.Int("assets", len(assets)),
		zap.Int("columns", len(specs)))

	return &catalog.Output{
		ArtifactPath: artifact,
		ContentHash:  catalog.ContentHash(buf.Bytes()),
		RowCounts:    counts,
	}, nil
}

func formatValue(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}
