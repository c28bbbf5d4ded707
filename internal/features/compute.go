// Package features computes per-candle feature columns over candle slices.
//
// Every feature is causal: the value at row t depends only on candles 0..t.
// Rows inside a feature's warm-up window carry a nil value.
package features

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"signal-replay-lab/internal/domain"
)

// Column returns the output column name of a feature, e.g. "sma_20".
func Column(f domain.FeatureSpec) string {
	return f.Name + "_" + strconv.Itoa(f.Window)
}

// Normalize validates features and returns them sorted by column name with
// duplicates removed. Lag features (log_return, price_velocity) default to a
// window of 1.
func Normalize(features []domain.FeatureSpec) ([]domain.FeatureSpec, error) {
	if len(features) == 0 {
		return nil, domain.Errorf(domain.ErrConfiguration, "no features requested")
	}

	out := make([]domain.FeatureSpec, 0, len(features))
	seen := make(map[string]bool, len(features))
	for _, f := range features {
		f = f.WithDefaults()
		switch f.Name {
		case domain.FeatureLogReturn, domain.FeaturePriceVelocity,
			domain.FeatureSMA, domain.FeatureEMA, domain.FeatureATR, domain.FeatureVolumeZScore:
		default:
			return nil, domain.Errorf(domain.ErrConfiguration, "unknown feature %q", f.Name)
		}
		if f.Window <= 0 {
			return nil, domain.Errorf(domain.ErrConfiguration, "feature %s: window must be positive", f.Name)
		}
		if c := Column(f); !seen[c] {
			seen[c] = true
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return Column(out[i]) < Column(out[j]) })
	return out, nil
}

// ParseList parses a comma separated feature list such as
// "sma:20,ema:12,log_return". A missing window is left as 0 for Normalize to
// default or reject.
func ParseList(s string) ([]domain.FeatureSpec, error) {
	var out []domain.FeatureSpec
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, window, hasWindow := strings.Cut(item, ":")
		f := domain.FeatureSpec{Name: name}
		if hasWindow {
			n, err := strconv.Atoi(window)
			if err != nil {
				return nil, domain.Errorf(domain.ErrConfiguration, "feature %q: bad window %q", name, window)
			}
			f.Window = n
		}
		out = append(out, f)
	}
	return Normalize(out)
}

// Compute evaluates features over one asset's candles, which must be sorted
// by timestamp. features must come from Normalize.
func Compute(assetID string, candles []domain.Candle, features []domain.FeatureSpec) ([]domain.FeatureRow, error) {
	rows := make([]domain.FeatureRow, len(candles))
	for i, c := range candles {
		if i > 0 && c.Timestamp <= candles[i-1].Timestamp {
			return nil, domain.Errorf(domain.ErrOrderingViolation,
				"asset %s: candle %d at %d not after %d", assetID, i, c.Timestamp, candles[i-1].Timestamp)
		}
		rows[i] = domain.FeatureRow{
			AssetID:   assetID,
			Timestamp: c.Timestamp,
			Values:    make(map[string]*float64, len(features)),
		}
	}

	for _, f := range features {
		var col []*float64
		switch f.Name {
		case domain.FeatureLogReturn:
			col = logReturn(candles, f.Window)
		case domain.FeaturePriceVelocity:
			col = priceVelocity(candles, f.Window)
		case domain.FeatureSMA:
			col = sma(candles, f.Window)
		case domain.FeatureEMA:
			col = ema(candles, f.Window)
		case domain.FeatureATR:
			col = atr(candles, f.Window)
		case domain.FeatureVolumeZScore:
			col = volumeZScore(candles, f.Window)
		default:
			return nil, fmt.Errorf("feature %q not normalized", f.Name)
		}
		name := Column(f)
		for i := range rows {
			rows[i].Values[name] = col[i]
		}
	}
	return rows, nil
}

func ptr(v float64) *float64 { return &v }

// logReturn = ln(close[t] / close[t-lag]), nil when either close is not positive.
func logReturn(candles []domain.Candle, lag int) []*float64 {
	out := make([]*float64, len(candles))
	for i := lag; i < len(candles); i++ {
		prev, cur := candles[i-lag].Close, candles[i].Close
		if prev > 0 && cur > 0 {
			out[i] = ptr(math.Log(cur / prev))
		}
	}
	return out
}

// priceVelocity = (close[t] - close[t-lag]) / (timestamp[t] - timestamp[t-lag]), per second.
func priceVelocity(candles []domain.Candle, lag int) []*float64 {
	out := make([]*float64, len(candles))
	for i := lag; i < len(candles); i++ {
		dt := candles[i].Timestamp - candles[i-lag].Timestamp
		if dt > 0 {
			out[i] = ptr((candles[i].Close - candles[i-lag].Close) / float64(dt))
		}
	}
	return out
}

func sma(candles []domain.Candle, n int) []*float64 {
	out := make([]*float64, len(candles))
	sum := 0.0
	for i, c := range candles {
		sum += c.Close
		if i >= n {
			sum -= candles[i-n].Close
		}
		if i >= n-1 {
			out[i] = ptr(sum / float64(n))
		}
	}
	return out
}

// ema is seeded with the SMA of the first n closes, then smoothed with
// alpha = 2/(n+1).
func ema(candles []domain.Candle, n int) []*float64 {
	out := make([]*float64, len(candles))
	if len(candles) < n {
		return out
	}
	alpha := 2 / float64(n+1)
	seed := 0.0
	for _, c := range candles[:n] {
		seed += c.Close
	}
	v := seed / float64(n)
	out[n-1] = ptr(v)
	for i := n; i < len(candles); i++ {
		v = alpha*candles[i].Close + (1-alpha)*v
		out[i] = ptr(v)
	}
	return out
}

// atr uses Wilder smoothing over the true range. The first candle's true
// range is its high-low span.
func atr(candles []domain.Candle, n int) []*float64 {
	out := make([]*float64, len(candles))
	if len(candles) < n {
		return out
	}
	tr := make([]float64, len(candles))
	for i, c := range candles {
		tr[i] = c.High - c.Low
		if i > 0 {
			prev := candles[i-1].Close
			tr[i] = math.Max(tr[i], math.Max(math.Abs(c.High-prev), math.Abs(c.Low-prev)))
		}
	}

	v := 0.0
	for _, x := range tr[:n] {
		v += x
	}
	v /= float64(n)
	out[n-1] = ptr(v)
	for i := n; i < len(candles); i++ {
		v = (v*float64(n-1) + tr[i]) / float64(n)
		out[i] = ptr(v)
	}
	return out
}

// volumeZScore compares each volume to the mean and population stddev of the
// trailing n volumes including itself. Undefined for a flat window.
func volumeZScore(candles []domain.Candle, n int) []*float64 {
	out := make([]*float64, len(candles))
	for i := n - 1; i < len(candles); i++ {
		window := candles[i-n+1 : i+1]
		mean := 0.0
		for _, c := range window {
			mean += c.Volume
		}
		mean /= float64(n)
		variance := 0.0
		for _, c := range window {
			d := c.Volume - mean
			variance += d * d
		}
		std := math.Sqrt(variance / float64(n))
		if std > 0 {
			out[i] = ptr((candles[i].Volume - mean) / std)
		}
	}
	return out
}
