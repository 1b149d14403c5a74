package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/lead-signal-distiller/internal/signal"
)

const (
	loadSignalsQuery = `
SELECT signals, version
FROM record_signals
WHERE organization_id = $1 AND record_id = $2`

	insertSignalsQuery = `
INSERT INTO record_signals (organization_id, record_id, signals, version, updated_at)
VALUES ($1, $2, $3, 1, now())
ON CONFLICT (organization_id, record_id) DO NOTHING`

	updateSignalsQuery = `
UPDATE record_signals
SET signals = $3, version = version + 1, updated_at = now()
WHERE organization_id = $1 AND record_id = $2 AND version = $4`

	clearSignalsQuery = `
UPDATE record_signals
SET signals = '[]'::jsonb, version = version + 1, updated_at = now()
WHERE organization_id = $1 AND record_id = $2`
)

// SignalRepository stores each record's signal list as a JSONB array guarded by a version column.
type SignalRepository struct {
	pool Pool
}

// NewSignalRepository builds a repository over pool.
func NewSignalRepository(pool Pool) (*SignalRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &SignalRepository{pool: pool}, nil
}

// Load returns the record's signals and version; a missing row is version 0.
func (r *SignalRepository) Load(ctx context.Context, organizationID, recordID string) (signal.SignalSet, error) {
	var (
		raw     []byte
		version int64
	)
	err := r.pool.QueryRow(ctx, loadSignalsQuery, organizationID, recordID).Scan(&raw, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return signal.SignalSet{}, nil
	}
	if err != nil {
		return signal.SignalSet{}, fmt.Errorf("select signals: %w", err)
	}
	var sigs []signal.ExtractedSignal
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &sigs); err != nil {
			return signal.SignalSet{}, fmt.Errorf("decode signals: %w", err)
		}
	}
	return signal.SignalSet{Signals: sigs, Version: version}, nil
}

// CompareAndSwap writes signals when the stored version equals expectedVersion.
func (r *SignalRepository) CompareAndSwap(
	ctx context.Context,
	organizationID, recordID string,
	expectedVersion int64,
	signals []signal.ExtractedSignal,
) error {
	payload, err := json.Marshal(signals)
	if err != nil {
		return fmt.Errorf("encode signals: %w", err)
	}
	var tagRows int64
	if expectedVersion == 0 {
		tag, err := r.pool.Exec(ctx, insertSignalsQuery, organizationID, recordID, payload)
		if err != nil {
			return fmt.Errorf("insert signals: %w", err)
		}
		tagRows = tag.RowsAffected()
	} else {
		tag, err := r.pool.Exec(ctx, updateSignalsQuery, organizationID, recordID, payload, expectedVersion)
		if err != nil {
			return fmt.Errorf("update signals: %w", err)
		}
		tagRows = tag.RowsAffected()
	}
	if tagRows == 0 {
		return signal.ErrVersionConflict
	}
	return nil
}

// Delete empties the record's signals. The row is kept so its version keeps
// rising and a swap based on a pre-delete Load fails.
func (r *SignalRepository) Delete(ctx context.Context, organizationID, recordID string) error {
	if _, err := r.pool.Exec(ctx, clearSignalsQuery, organizationID, recordID); err != nil {
		return fmt.Errorf("delete signals: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (r *SignalRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the pool.
func (r *SignalRepository) Close() error {
	r.pool.Close()
	return nil
}
