package domain

// FeatureSpec is one feature column request, e.g. {Name: "sma", Window: 20}.
type FeatureSpec struct {
	Name   string
	Window int
}

// Feature names.
const (
	FeatureLogReturn     = "log_return"
	FeatureSMA           = "sma"
	FeatureEMA           = "ema"
	FeatureATR           = "atr"
	FeatureVolumeZScore  = "volume_zscore"
	FeaturePriceVelocity = "price_velocity"
)

// FeatureRow holds the feature values for one candle. A nil value means the
// feature is undefined at that row (warm-up).
type FeatureRow struct {
	AssetID   string
	Timestamp int64
	Values    map[string]*float64
}

// WithDefaults fills the window of lag features (log_return, price_velocity)
// with 1 when unset, so "log_return" and "log_return:1" are the same column.
func (f FeatureSpec) WithDefaults() FeatureSpec {
	switch f.Name {
	case FeatureLogReturn, FeaturePriceVelocity:
		if f.Window == 0 {
			f.Window = 1
		}
	}
	return f
}
