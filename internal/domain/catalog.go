package domain

import "time"

// ArtifactKind identifies which producer materialised an artifact.
type ArtifactKind string

// Artifact kinds.
const (
	ArtifactSlice    ArtifactKind = "slice"
	ArtifactFeatures ArtifactKind = "features"
	ArtifactSimRun   ArtifactKind = "sim_run"
)

// SliceSpec fully determines a candle slice.
type SliceSpec struct {
	Dataset    string
	Chain      string
	Interval   Interval
	StartISO   string // RFC3339, UTC
	EndISO     string // RFC3339, UTC
	AssetIDs   []string
	SchemaHash string
}

// SliceRecord indexes a materialised slice.
type SliceRecord struct {
	SliceID      string
	TokenSetID   string
	Spec         SliceSpec
	ManifestPath string
	RowCount     int64
	CreatedAt    time.Time
}

// FeaturesRecord indexes a materialised feature set over a slice.
type FeaturesRecord struct {
	FeaturesID   string
	SliceID      string
	FeatureSetID string
	ManifestPath string
	RowCount     int64
	CreatedAt    time.Time
}

// SimRunRecord indexes a materialised simulation run.
type SimRunRecord struct {
	SimID         string
	FeaturesID    string
	StrategyHash  string
	RiskHash      string
	WindowID      string
	EngineVersion string
	ManifestPath  string
	RowCount      int64
	CreatedAt     time.Time
}

// Manifest is the authoritative description of an artifact on disk.
type Manifest struct {
	Version      int              `json:"version"`
	RunID        string           `json:"runId"`
	Kind         ArtifactKind     `json:"kind"`
	Spec         any              `json:"spec"`
	ContentHash  string           `json:"contentHash"`
	ArtifactPath string           `json:"artifactPath"`
	RowCounts    map[string]int64 `json:"rowCounts"`
	CreatedAtUTC string           `json:"createdAtUtc"`
}

// ManifestVersion is the current manifest format version.
const ManifestVersion = 1
