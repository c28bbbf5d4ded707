package catalog

import (
	"context"
	"sort"

	"signal-replay-lab/internal/archive"
	"signal-replay-lab/internal/domain"
)

// SliceSource serves candles from an indexed slice artifact. Replays that
// read from it see exactly the candles the slice id was produced from.
type SliceSource struct {
	sliceID  string
	interval domain.Interval
	byAsset  map[string][]domain.Candle
}

// NewSliceSource loads the candles of rec.
func NewSliceSource(ctx context.Context, blobs archive.Storage, rec *domain.SliceRecord) (*SliceSource, error) {
	data, err := ReadSlice(ctx, blobs, rec)
	if err != nil {
		return nil, err
	}
	src := &SliceSource{
		sliceID:  rec.SliceID,
		interval: rec.Spec.Interval,
		byAsset:  make(map[string][]domain.Candle, len(data)),
	}
	for _, a := range data {
		src.byAsset[a.AssetID] = append(src.byAsset[a.AssetID], a.Candles...)
	}
	for _, candles := range src.byAsset {
		sort.Slice(candles, func(i, j int) bool { return candles[i].Timestamp < candles[j].Timestamp })
	}
	return src, nil
}

// SliceID returns the id of the slice the candles come from.
func (s *SliceSource) SliceID() string { return s.sliceID }

// GetRange implements causal.CandleSource. Assets outside the slice, or a
// different interval, yield no candles.
func (s *SliceSource) GetRange(_ context.Context, assetID string, interval domain.Interval, from, to int64) ([]domain.Candle, error) {
	if interval != s.interval {
		return nil, nil
	}
	candles := s.byAsset[assetID]
	lo := sort.Search(len(candles), func(i int) bool { return candles[i].Timestamp >= from })
	hi := sort.Search(len(candles), func(i int) bool { return candles[i].Timestamp > to })
	if lo >= hi {
		return nil, nil
	}
	return append([]domain.Candle(nil), candles[lo:hi]...), nil
}
