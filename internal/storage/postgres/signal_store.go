package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"signal-replay-lab/internal/domain"
	"signal-replay-lab/internal/storage"
)

// SignalStore implements storage.SignalStore using PostgreSQL.
type SignalStore struct {
	pool *Pool
}

// NewSignalStore creates a new SignalStore.
func NewSignalStore(pool *Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SignalStore = (*SignalStore)(nil)

const insertSignalQuery = `
	INSERT INTO signals (id, caller, asset_id, created_at, reference_price)
	VALUES ($1, $2, $3, $4, $5)
`

// Insert adds a new signal. Returns ErrDuplicateKey if the id exists.
func (s *SignalStore) Insert(ctx context.Context, sig *domain.Signal) (err error) {
	if sig == nil || sig.ID == "" || sig.AssetID == "" {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("insert_signal", start, err) }(time.Now())

	_, err = s.pool.Exec(ctx, insertSignalQuery,
		sig.ID,
		sig.Caller,
		sig.AssetID,
		sig.CreatedAt,
		sig.ReferencePrice,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

// InsertBulk adds multiple signals atomically. Fails entire batch on any duplicate.
func (s *SignalStore) InsertBulk(ctx context.Context, signals []*domain.Signal) (err error) {
	if len(signals) == 0 {
		return nil
	}
	for _, sig := range signals {
		if sig == nil || sig.ID == "" || sig.AssetID == "" {
			return storage.ErrInvalidInput
		}
	}
	defer func(start time.Time) { observe("insert_signals", start, err) }(time.Now())

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, sig := range signals {
		_, err := tx.Exec(ctx, insertSignalQuery,
			sig.ID,
			sig.Caller,
			sig.AssetID,
			sig.CreatedAt,
			sig.ReferencePrice,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert signal in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByID retrieves a signal by id. Returns ErrNotFound if not exists.
func (s *SignalStore) GetByID(ctx context.Context, id string) (_ *domain.Signal, err error) {
	defer func(start time.Time) { observe("get_signal", start, err) }(time.Now())

	query := `
		SELECT id, caller, asset_id, created_at, reference_price
		FROM signals
		WHERE id = $1
	`

	var sig domain.Signal
	err = s.pool.QueryRow(ctx, query, id).Scan(
		&sig.ID,
		&sig.Caller,
		&sig.AssetID,
		&sig.CreatedAt,
		&sig.ReferencePrice,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get signal by id: %w", err)
	}
	return &sig, nil
}

// GetByTimeRange retrieves signals created in [start, end).
func (s *SignalStore) GetByTimeRange(ctx context.Context, start, end int64) (_ []*domain.Signal, err error) {
	defer func(t time.Time) { observe("get_signals_range", t, err) }(time.Now())

	query := `
		SELECT id, caller, asset_id, created_at, reference_price
		FROM signals
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get signals by time range: %w", err)
	}
	defer rows.Close()

	return scanSignals(rows)
}

// scanSignals scans multiple rows into signals.
func scanSignals(rows pgx.Rows) ([]*domain.Signal, error) {
	var signals []*domain.Signal

	for rows.Next() {
		var sig domain.Signal
		err := rows.Scan(
			&sig.ID,
			&sig.Caller,
			&sig.AssetID,
			&sig.CreatedAt,
			&sig.ReferencePrice,
		)
		if err != nil {
			return nil, fmt.Errorf("scan signal row: %w", err)
		}
		signals = append(signals, &sig)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signal rows: %w", err)
	}

	return signals, nil
}
