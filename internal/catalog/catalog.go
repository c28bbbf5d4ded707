// Package catalog deduplicates slice, feature and simulation computation.
//
// Every artifact has a content-derived id (see idhash). The catalog index maps
// ids to manifest paths; the manifest on the archive is the source of truth.
// An indexed entry whose manifest is gone is a miss, and is recomputed.
// Concurrent requests for the same id share one computation.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"signal-replay-lab/internal/archive"
	"signal-replay-lab/internal/domain"
	"signal-replay-lab/internal/engine"
	"signal-replay-lab/internal/idhash"
	"signal-replay-lab/internal/logger"
	"signal-replay-lab/internal/observability"
	"signal-replay-lab/internal/storage"
)

// Archive directory per artifact kind.
const (
	dirSlices   = "slices"
	dirFeatures = "features"
	dirSimRuns  = "sim_runs"

	manifestFile = "manifest.json"
)

// ErrNoProducer is returned when the producer for a kind is not configured.
var ErrNoProducer = errors.New("catalog: producer not configured")

// Catalog is a caching decorator around the three producers.
type Catalog struct {
	index    storage.CatalogStore
	blobs    archive.Storage
	slices   SliceExporter
	features FeatureComputer
	sims     SimulationRunner
	log      *zap.Logger
	now      func() time.Time

	flight singleflight.Group
}

// Options contains configuration for creating a Catalog. Producers are
// optional; requesting a kind without a producer fails on a cache miss.
type Options struct {
	Index    storage.CatalogStore
	Archive  archive.Storage
	Slices   SliceExporter
	Features FeatureComputer
	Sims     SimulationRunner
	Logger   *zap.Logger
	Now      func() time.Time // default time.Now
}

// New creates a Catalog.
func New(opts Options) (*Catalog, error) {
	if opts.Index == nil || opts.Archive == nil {
		return nil, errors.New("catalog: index and archive are required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Catalog{
		index:    opts.Index,
		blobs:    opts.Archive,
		slices:   opts.Slices,
		features: opts.Features,
		sims:     opts.Sims,
		log:      logger.OrNop(opts.Logger),
		now:      now,
	}, nil
}

// Blobs returns the archive the manifests and artifacts live on.
func (c *Catalog) Blobs() archive.Storage { return c.blobs }

// ManifestPath returns the archive path of the manifest for id.
func ManifestPath(kind domain.ArtifactKind, id string) string {
	return path.Join(kindDir(kind), id, manifestFile)
}

func artifactDir(kind domain.ArtifactKind, id string) string {
	return path.Join(kindDir(kind), id)
}

func kindDir(kind domain.ArtifactKind) string {
	switch kind {
	case domain.ArtifactSlice:
		return dirSlices
	case domain.ArtifactFeatures:
		return dirFeatures
	default:
		return dirSimRuns
	}
}

// Slice returns the slice for spec, exporting it on a miss.
func (c *Catalog) Slice(ctx context.Context, spec domain.SliceSpec) (*domain.SliceRecord, error) {
	id := idhash.SliceID(spec)
	return resolve(ctx, c, domain.ArtifactSlice, id,
		c.index.FindSlice,
		func(r *domain.SliceRecord) string { return r.ManifestPath },
		func(ctx context.Context) (*domain.SliceRecord, error) {
			if c.slices == nil {
				return nil, fmt.Errorf("%w: slice", ErrNoProducer)
			}
			out, err := c.slices.ExportSlice(ctx, spec, artifactDir(domain.ArtifactSlice, id))
			if err != nil {
				return nil, err
			}
			manifest, err := c.writeManifest(ctx, domain.ArtifactSlice, id, spec, out)
			if err != nil {
				return nil, err
			}
			rec := &domain.SliceRecord{
				SliceID:      id,
				TokenSetID:   idhash.TokenSetID(spec.AssetIDs),
				Spec:         spec,
				ManifestPath: manifest,
				RowCount:     out.Rows(),
				CreatedAt:    c.now().UTC(),
			}
			return rec, c.index.UpsertSlice(ctx, rec)
		})
}

// Features returns the feature set over the slice for sliceSpec. The slice
// is resolved only when the features have to be computed.
func (c *Catalog) Features(ctx context.Context, sliceSpec domain.SliceSpec, features []domain.FeatureSpec) (*domain.FeaturesRecord, error) {
	featureSetID := idhash.FeatureSetID(features)
	id := idhash.FeaturesID(idhash.SliceID(sliceSpec), featureSetID)
	return resolve(ctx, c, domain.ArtifactFeatures, id,
		c.index.FindFeatures,
		func(r *domain.FeaturesRecord) string { return r.ManifestPath },
		func(ctx context.Context) (*domain.FeaturesRecord, error) {
			if c.features == nil {
				return nil, fmt.Errorf("%w: features", ErrNoProducer)
			}
			slice, err := c.Slice(ctx, sliceSpec)
			if err != nil {
				return nil, fmt.Errorf("resolve slice: %w", err)
			}
			out, err := c.features.ComputeFeatures(ctx, slice, features, artifactDir(domain.ArtifactFeatures, id))
			if err != nil {
				return nil, err
			}
			spec := struct {
				SliceID  string               `json:"sliceId"`
				Features []domain.FeatureSpec `json:"features"`
			}{slice.SliceID, features}
			manifest, err := c.writeManifest(ctx, domain.ArtifactFeatures, id, spec, out)
			if err != nil {
				return nil, err
			}
			rec := &domain.FeaturesRecord{
				FeaturesID:   id,
				SliceID:      slice.SliceID,
				FeatureSetID: featureSetID,
				ManifestPath: manifest,
				RowCount:     out.Rows(),
				CreatedAt:    c.now().UTC(),
			}
			return rec, c.index.UpsertFeatures(ctx, rec)
		})
}

// SimRun returns the simulation run for spec, running it on a miss. The
// strategy is compiled first so configuration errors never reach a producer.
func (c *Catalog) SimRun(ctx context.Context, spec SimRunSpec) (*domain.SimRunRecord, error) {
	plan, err := engine.Compile(spec.Strategy)
	if err != nil {
		return nil, err
	}
	strategyHash, err := idhash.StrategyHash(spec.Strategy)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, err)
	}
	riskHash := idhash.RiskHash(plan.Costs, spec.Lane, spec.Seed)
	signalSetID := spec.SignalSetID()
	id := idhash.SimID(spec.FeaturesID, strategyHash, riskHash, spec.WindowID(), signalSetID, engine.Version)

	return resolve(ctx, c, domain.ArtifactSimRun, id,
		c.index.FindSimRun,
		func(r *domain.SimRunRecord) string { return r.ManifestPath },
		func(ctx context.Context) (*domain.SimRunRecord, error) {
			if c.sims == nil {
				return nil, fmt.Errorf("%w: simulation", ErrNoProducer)
			}
			out, err := c.sims.RunSimulation(ctx, spec, artifactDir(domain.ArtifactSimRun, id))
			if err != nil {
				return nil, err
			}
			manifestSpec := map[string]any{
				"featuresId":    spec.FeaturesID,
				"strategy":      spec.Strategy.StrategyName(),
				"strategyHash":  strategyHash,
				"riskHash":      riskHash,
				"lane":          spec.Lane.Name,
				"windowId":      spec.WindowID(),
				"signalSetId":   signalSetID,
				"signals":       len(spec.Signals),
				"seed":          spec.Seed,
				"engineVersion": engine.Version,
			}
			manifest, err := c.writeManifest(ctx, domain.ArtifactSimRun, id, manifestSpec, out)
			if err != nil {
				return nil, err
			}
			rec := &domain.SimRunRecord{
				SimID:         id,
				FeaturesID:    spec.FeaturesID,
				StrategyHash:  strategyHash,
				RiskHash:      riskHash,
				WindowID:      spec.WindowID(),
				EngineVersion: engine.Version,
				ManifestPath:  manifest,
				RowCount:      out.Rows(),
				CreatedAt:     c.now().UTC(),
			}
			return rec, c.index.UpsertSimRun(ctx, rec)
		})
}

// ReadManifest loads and decodes the manifest at manifestPath.
func (c *Catalog) ReadManifest(ctx context.Context, manifestPath string) (*domain.Manifest, error) {
	return ReadManifest(ctx, c.blobs, manifestPath)
}

// ReadManifest loads and decodes the manifest at manifestPath from blobs.
func ReadManifest(ctx context.Context, blobs archive.Storage, manifestPath string) (*domain.Manifest, error) {
	data, err := blobs.Read(ctx, manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", manifestPath, err)
	}
	var m domain.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", manifestPath, err)
	}
	return &m, nil
}

// ReadArtifact loads the artifact a manifest points at.
func ReadArtifact(ctx context.Context, blobs archive.Storage, manifestPath string) ([]byte, error) {
	m, err := ReadManifest(ctx, blobs, manifestPath)
	if err != nil {
		return nil, err
	}
	data, err := blobs.Read(ctx, m.ArtifactPath)
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", m.ArtifactPath, err)
	}
	if m.ContentHash != "" && ContentHash(data) != m.ContentHash {
		return nil, fmt.Errorf("artifact %s: content hash mismatch", m.ArtifactPath)
	}
	return data, nil
}

// writeManifest writes the manifest last, after the artifact is in place.
func (c *Catalog) writeManifest(ctx context.Context, kind domain.ArtifactKind, id string, spec any, out *Output) (string, error) {
	m := domain.Manifest{
		Version:      domain.ManifestVersion,
		RunID:        uuid.NewString(),
		Kind:         kind,
		Spec:         spec,
		ContentHash:  out.ContentHash,
		ArtifactPath: out.ArtifactPath,
		RowCounts:    out.RowCounts,
		CreatedAtUTC: c.now().UTC().Format(time.RFC3339),
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}

	p := ManifestPath(kind, id)
	if err := c.blobs.Write(ctx, p, data); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return p, nil
}

// resolve implements lookup, then single-flight production on a miss.
func resolve[R any](
	ctx context.Context,
	c *Catalog,
	kind domain.ArtifactKind,
	id string,
	find func(context.Context, string) (*R, error),
	manifestOf func(*R) string,
	produce func(context.Context) (*R, error),
) (*R, error) {
	if rec, ok, err := lookup(ctx, c.blobs, id, find, manifestOf); err != nil {
		return nil, err
	} else if ok {
		observability.RecordCatalogLookup(string(kind), true)
		c.log.Debug("catalog hit", zap.String("kind", string(kind)), zap.String("id", id))
		return rec, nil
	}
	observability.RecordCatalogLookup(string(kind), false)

	// Production must not be cancelled by whichever waiter happened to start it.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(string(kind)+"/"+id, func() (any, error) {
		// A flight that finished just before this one started has indexed the result.
		if rec, ok, err := lookup(flightCtx, c.blobs, id, find, manifestOf); err != nil || ok {
			return rec, err
		}

		start := time.Now()
		rec, err := produce(flightCtx)
		observability.RecordCatalogProduction(string(kind), time.Since(start).Seconds(), err)
		if err != nil {
			c.log.Warn("catalog production failed",
				zap.String("kind", string(kind)),
				zap.String("id", id),
				zap.Error(err))
			return nil, err
		}
		c.log.Info("catalog produced",
			zap.String("kind", string(kind)),
			zap.String("id", id),
			zap.Duration("duration", time.Since(start)))
		return rec, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		// Waiters share one result; hand each its own copy.
		out := *res.Val.(*R)
		return &out, nil
	}
}

// lookup reports a hit only when the index has the id and its manifest exists.
func lookup[R any](ctx context.Context, blobs archive.Storage, id string, find func(context.Context, string) (*R, error), manifestOf func(*R) string) (*R, bool, error) {
	rec, err := find(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("catalog index lookup %s: %w", id, err)
	}

	exists, err := blobs.Exists(ctx, manifestOf(rec))
	if err != nil {
		return nil, false, fmt.Errorf("check manifest %s: %w", manifestOf(rec), err)
	}
	return rec, exists, nil
}
