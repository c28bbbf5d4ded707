package postgres

import (
	"context"
	"fmt"
	"time"

	"signal-replay-lab/internal/domain"
	"signal-replay-lab/internal/storage"
)

// CatalogStore implements storage.CatalogStore using PostgreSQL.
// Upserts use ON CONFLICT DO NOTHING: ids are content hashes, so the first
// indexed record for an id is as good as any later one.
type CatalogStore struct {
	pool *Pool
}

// NewCatalogStore creates a new CatalogStore.
func NewCatalogStore(pool *Pool) *CatalogStore {
	return &CatalogStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CatalogStore = (*CatalogStore)(nil)

func createdAtOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

// FindSlice returns the slice record for id, or ErrNotFound.
func (s *CatalogStore) FindSlice(ctx context.Context, sliceID string) (_ *domain.SliceRecord, err error) {
	defer func(start time.Time) { observe("find_slice", start, err) }(time.Now())

	query := `
		SELECT slice_id, token_set_id, dataset, chain, interval, start_iso, end_iso,
		       asset_ids, schema_hash, manifest_path, row_count, created_at
		FROM catalog_slices
		WHERE slice_id = $1
	`

	var r domain.SliceRecord
	var interval string
	err = s.pool.QueryRow(ctx, query, sliceID).Scan(
		&r.SliceID,
		&r.TokenSetID,
		&r.Spec.Dataset,
		&r.Spec.Chain,
		&interval,
		&r.Spec.StartISO,
		&r.Spec.EndISO,
		&r.Spec.AssetIDs,
		&r.Spec.SchemaHash,
		&r.ManifestPath,
		&r.RowCount,
		&r.CreatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("find slice: %w", err)
	}
	r.Spec.Interval = domain.Interval(interval)
	return &r, nil
}

// UpsertSlice indexes a slice record.
func (s *CatalogStore) UpsertSlice(ctx context.Context, r *domain.SliceRecord) (err error) {
	if r == nil || r.SliceID == "" || r.ManifestPath == "" {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("upsert_slice", start, err) }(time.Now())

	query := `
		INSERT INTO catalog_slices (
			slice_id, token_set_id, dataset, chain, interval, start_iso, end_iso,
			asset_ids, schema_hash, manifest_path, row_count, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (slice_id) DO NOTHING
	`

	_, err = s.pool.Exec(ctx, query,
		r.SliceID,
		r.TokenSetID,
		r.Spec.Dataset,
		r.Spec.Chain,
		string(r.Spec.Interval),
		r.Spec.StartISO,
		r.Spec.EndISO,
		r.Spec.AssetIDs,
		r.Spec.SchemaHash,
		r.ManifestPath,
		r.RowCount,
		createdAtOrNow(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert slice: %w", err)
	}
	return nil
}

// FindFeatures returns the features record for id, or ErrNotFound.
func (s *CatalogStore) FindFeatures(ctx context.Context, featuresID string) (_ *domain.FeaturesRecord, err error) {
	defer func(start time.Time) { observe("find_features", start, err) }(time.Now())

	query := `
		SELECT features_id, slice_id, feature_set_id, manifest_path, row_count, created_at
		FROM catalog_features
		WHERE features_id = $1
	`

	var r domain.FeaturesRecord
	err = s.pool.QueryRow(ctx, query, featuresID).Scan(
		&r.FeaturesID,
		&r.SliceID,
		&r.FeatureSetID,
		&r.ManifestPath,
		&r.RowCount,
		&r.CreatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("find features: %w", err)
	}
	return &r, nil
}

// UpsertFeatures indexes a features record.
func (s *CatalogStore) UpsertFeatures(ctx context.Context, r *domain.FeaturesRecord) (err error) {
	if r == nil || r.FeaturesID == "" || r.ManifestPath == "" {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("upsert_features", start, err) }(time.Now())

	query := `
		INSERT INTO catalog_features (
			features_id, slice_id, feature_set_id, manifest_path, row_count, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (features_id) DO NOTHING
	`

	_, err = s.pool.Exec(ctx, query,
		r.FeaturesID,
		r.SliceID,
		r.FeatureSetID,
		r.ManifestPath,
		r.RowCount,
		createdAtOrNow(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert features: %w", err)
	}
	return nil
}

// FindSimRun returns the sim run record for id, or ErrNotFound.
func (s *CatalogStore) FindSimRun(ctx context.Context, simID string) (_ *domain.SimRunRecord, err error) {
	defer func(start time.Time) { observe("find_sim_run", start, err) }(time.Now())

	query := `
		SELECT sim_id, features_id, strategy_hash, risk_hash, window_id, engine_version,
		       manifest_path, row_count, created_at
		FROM catalog_sim_runs
		WHERE sim_id = $1
	`

	var r domain.SimRunRecord
	err = s.pool.QueryRow(ctx, query, simID).Scan(
		&r.SimID,
		&r.FeaturesID,
		&r.StrategyHash,
		&r.RiskHash,
		&r.WindowID,
		&r.EngineVersion,
		&r.ManifestPath,
		&r.RowCount,
		&r.CreatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("find sim run: %w", err)
	}
	return &r, nil
}

// UpsertSimRun indexes a sim run record.
func (s *CatalogStore) UpsertSimRun(ctx context.Context, r *domain.SimRunRecord) (err error) {
	if r == nil || r.SimID == "" || r.ManifestPath == "" {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("upsert_sim_run", start, err) }(time.Now())

	query := `
		INSERT INTO catalog_sim_runs (
			sim_id, features_id, strategy_hash, risk_hash, window_id, engine_version,
			manifest_path, row_count, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (sim_id) DO NOTHING
	`

	_, err = s.pool.Exec(ctx, query,
		r.SimID,
		r.FeaturesID,
		r.StrategyHash,
		r.RiskHash,
		r.WindowID,
		r.EngineVersion,
		r.ManifestPath,
		r.RowCount,
		createdAtOrNow(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert sim run: %w", err)
	}
	return nil
}
