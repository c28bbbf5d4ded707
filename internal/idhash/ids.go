// Package idhash computes the content-addressed identity chain of catalog
// artifacts. Every id is the hex SHA256 of '|'-joined canonical fields, so
// equal inputs produce equal ids on every machine.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"signal-replay-lab/internal/domain"
)

func hashFields(fields ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(fields, "|")))
	return hex.EncodeToString(hash[:])
}

// TokenSetID hashes the sorted, de-duplicated asset ids.
// Formula: SHA256(id1,id2,...)
func TokenSetID(assetIDs []string) string {
	ids := make([]string, 0, len(assetIDs))
	seen := make(map[string]struct{}, len(assetIDs))
	for _, id := range assetIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return hashFields(strings.Join(ids, ","))
}

// SliceID identifies a candle slice.
// Formula: SHA256(dataset|chain|interval|startIso|endIso|tokenSetId|schemaHash)
func SliceID(spec domain.SliceSpec) string {
	return hashFields(
		spec.Dataset,
		spec.Chain,
		string(spec.Interval),
		spec.StartISO,
		spec.EndISO,
		TokenSetID(spec.AssetIDs),
		spec.SchemaHash,
	)
}

// FeatureSetID hashes a canonical feature spec. Column order does not matter;
// duplicate columns collapse and default windows are filled in first.
func FeatureSetID(features []domain.FeatureSpec) string {
	cols := make([]string, 0, len(features))
	seen := make(map[string]struct{}, len(features))
	for _, f := range features {
		c := canonicalFeature(f)
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return hashFields(cols...)
}

func canonicalFeature(f domain.FeatureSpec) string {
	f = f.WithDefaults()
	c := canonical{}
	c.putStr("name", f.Name)
	c.putInt("window", f.Window)
	return c.String()
}

// FeaturesID identifies a feature set computed over a slice.
// Formula: SHA256(sliceId|featureSetId)
func FeaturesID(sliceID, featureSetID string) string {
	return hashFields(sliceID, featureSetID)
}

// SignalSetID hashes the signals a run replays: id, asset and creation time
// of each, in id order. Input order does not matter.
// Formula: SHA256(id,asset,createdAt|...)
func SignalSetID(signals []domain.Signal) string {
	rows := make([]string, len(signals))
	for i, s := range signals {
		rows[i] = s.ID + "," + s.AssetID + "," + strconv.FormatInt(s.CreatedAt, 10)
	}
	sort.Strings(rows)
	return hashFields(rows...)
}

// SimID identifies a simulation run. windowID and signalSetID may be empty.
// Formula: SHA256(featuresId|strategyHash|riskHash|windowId|signalSetId|engineVersion)
func SimID(featuresID, strategyHash, riskHash, windowID, signalSetID, engineVersion string) string {
	return hashFields(featuresID, strategyHash, riskHash, windowID, signalSetID, engineVersion)
}
