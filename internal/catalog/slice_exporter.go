package catalog

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"signal-replay-lab/internal/archive"
	"signal-replay-lab/internal/domain"
	"signal-replay-lab/internal/storage"
)

// CandlesArtifact is the file name of an exported slice.
const CandlesArtifact = "candles.csv"

var candleHeader = []string{"asset_id", "timestamp", "open", "high", "low", "close", "volume"}

// CandleSchemaHash identifies the column layout of CandlesArtifact. Slice
// specs carry it so a layout change yields new slice ids.
var CandleSchemaHash = ContentHash([]byte(strings.Join(candleHeader, ",")))

// AssetCandles is one asset's candles inside a slice.
type AssetCandles struct {
	AssetID string
	Candles []domain.Candle
}

// StoreSliceExporter exports slices from a candle store as CSV.
type StoreSliceExporter struct {
	candles storage.CandleStore
	blobs   archive.Storage
}

// NewStoreSliceExporter creates an exporter reading from candles and writing to blobs.
func NewStoreSliceExporter(candles storage.CandleStore, blobs archive.Storage) *StoreSliceExporter {
	return &StoreSliceExporter{candles: candles, blobs: blobs}
}

// ExportSlice writes every candle of spec's assets with open time in
// [StartISO, EndISO) to dir/candles.csv, assets in sorted order.
func (e *StoreSliceExporter) ExportSlice(ctx context.Context, spec domain.SliceSpec, dir string) (*Output, error) {
	from, to, err := sliceRange(spec)
	if err != nil {
		return nil, err
	}

	assets := append([]string(nil), spec.AssetIDs...)
	sort.Strings(assets)

	var data []AssetCandles
	counts := make(map[string]int64, len(assets))
	for i, id := range assets {
		if i > 0 && assets[i-1] == id {
			continue
		}
		candles, err := e.candles.GetRange(ctx, id, spec.Interval, from, to-1)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", id, err)
		}
		data = append(data, AssetCandles{AssetID: id, Candles: candles})
		counts[id] = int64(len(candles))
	}

	var buf bytes.Buffer
	if err := WriteCandlesCSV(&buf, data); err != nil {
		return nil, err
	}

	artifact := path.Join(dir, CandlesArtifact)
	if err := e.blobs.Write(ctx, artifact, buf.Bytes()); err != nil {
		return nil, fmt.Errorf("write slice artifact: %w", err)
	}

	return &Output{
		ArtifactPath: artifact,
		ContentHash:  ContentHash(buf.Bytes()),
		RowCounts:    counts,
	}, nil
}

// ContentHash returns the hex SHA256 of data.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func sliceRange(spec domain.SliceSpec) (from, to int64, err error) {
	if !spec.Interval.Valid() {
		return 0, 0, domain.Errorf(domain.ErrConfiguration, "slice interval %q", spec.Interval)
	}
	start, err := time.Parse(time.RFC3339, spec.StartISO)
	if err != nil {
		return 0, 0, domain.Errorf(domain.ErrConfiguration, "slice start: %v", err)
	}
	end, err := time.Parse(time.RFC3339, spec.EndISO)
	if err != nil {
		return 0, 0, domain.Errorf(domain.ErrConfiguration, "slice end: %v", err)
	}
	if !end.After(start) {
		return 0, 0, domain.Errorf(domain.ErrConfiguration, "slice end %s not after start %s", spec.EndISO, spec.StartISO)
	}
	return start.Unix(), end.Unix(), nil
}

// WriteCandlesCSV writes candles in the slice artifact format.
func WriteCandlesCSV(w io.Writer, data []AssetCandles) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(candleHeader); err != nil {
		return err
	}
	for _, a := range data {
		for _, c := range a.Candles {
			err := cw.Write([]string{
				a.AssetID,
				strconv.FormatInt(c.Timestamp, 10),
				formatF(c.Open), formatF(c.High), formatF(c.Low), formatF(c.Close), formatF(c.Volume),
			})
			if err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCandlesCSV parses a slice artifact. Assets keep their file order.
func ReadCandlesCSV(r io.Reader) ([]AssetCandles, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(candleHeader)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if header[0] != candleHeader[0] {
		return nil, fmt.Errorf("unexpected header %v", header)
	}

	var out []AssetCandles
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		var c domain.Candle
		if c.Timestamp, err = strconv.ParseInt(rec[1], 10, 64); err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", rec[1], err)
		}
		vals := []*float64{&c.Open, &c.High, &c.Low, &c.Close, &c.Volume}
		for i, v := range vals {
			if *v, err = strconv.ParseFloat(rec[2+i], 64); err != nil {
				return nil, fmt.Errorf("parse %s %q: %w", candleHeader[2+i], rec[2+i], err)
			}
		}

		if n := len(out); n == 0 || out[n-1].AssetID != rec[0] {
			out = append(out, AssetCandles{AssetID: rec[0]})
		}
		last := &out[len(out)-1]
		last.Candles = append(last.Candles, c)
	}
	return out, nil
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

// ReadSlice loads the candles of an indexed slice.
func ReadSlice(ctx context.Context, blobs archive.Storage, rec *domain.SliceRecord) ([]AssetCandles, error) {
	data, err := ReadArtifact(ctx, blobs, rec.ManifestPath)
	if err != nil {
		return nil, err
	}
	return ReadCandlesCSV(bytes.NewReader(data))
}
