package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/lead-signal-distiller/internal/signal"
)

// SignalRepository stores each record's signals as a JSON array with a version counter.
type SignalRepository struct {
	db *sql.DB
}

// NewSignalRepository builds a repository over db. Close closes db.
func NewSignalRepository(db *sql.DB) (*SignalRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &SignalRepository{db: db}, nil
}

// Load returns the record's signals and version; a missing row is version 0.
func (r *SignalRepository) Load(ctx context.Context, organizationID, recordID string) (signal.SignalSet, error) {
	var (
		raw     string
		version int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT signals, version FROM record_signals WHERE organization_id = ? AND record_id = ?`,
		organizationID, recordID,
	).Scan(&raw, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return signal.SignalSet{}, nil
	}
	if err != nil {
		return signal.SignalSet{}, fmt.Errorf("select signals: %w", err)
	}
	var sigs []signal.ExtractedSignal
	if err := json.Unmarshal([]byte(raw), &sigs); err != nil {
		return signal.SignalSet{}, fmt.Errorf("decode signals: %w", err)
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
	now := time.Now().UnixNano()
	var res sql.Result
	if expectedVersion == 0 {
		res, err = r.db.ExecContext(ctx, `
INSERT INTO record_signals (organization_id, record_id, signals, version, updated_at)
VALUES (?, ?, ?, 1, ?)
ON CONFLICT (organization_id, record_id) DO NOTHING`,
			organizationID, recordID, string(payload), now)
	} else {
		res, err = r.db.ExecContext(ctx, `
UPDATE record_signals
SET signals = ?, version = version + 1, updated_at = ?
WHERE organization_id = ? AND record_id = ? AND version = ?`,
			string(payload), now, organizationID, recordID, expectedVersion)
	}
	if err != nil {
		return fmt.Errorf("write signals: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return signal.ErrVersionConflict
	}
	return nil
}

// Delete empties the record's signals and bumps its version.
func (r *SignalRepository) Delete(ctx context.Context, organizationID, recordID string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE record_signals
SET signals = '[]', version = version + 1, updated_at = ?
WHERE organization_id = ? AND record_id = ?`,
		time.Now().UnixNano(), organizationID, recordID)
	if err != nil {
		return fmt.Errorf("delete signals: %w", err)
	}
	return nil
}

// Ping checks the database.
func (r *SignalRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// Close closes the database.
func (r *SignalRepository) Close() error {
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}
