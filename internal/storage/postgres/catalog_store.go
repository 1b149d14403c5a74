package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/lead-signal-distiller/internal/signal"
)

const selectCatalogQuery = `
SELECT high_value_signals, scraping_strategy
FROM signal_catalogs
WHERE organization_id = $1 AND industry_id = $2`

// CatalogStore reads signal catalogs maintained by the catalog authoring subsystem.
type CatalogStore struct {
	pool Pool
}

// NewCatalogStore builds a read-only catalog store.
func NewCatalogStore(pool Pool) (*CatalogStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &CatalogStore{pool: pool}, nil
}

// GetCatalogEntry returns the catalog for the pair or a *signal.CatalogNotFoundError.
func (s *CatalogStore) GetCatalogEntry(ctx context.Context, organizationID, industryID string) (signal.CatalogEntry, error) {
	var defs, strategy []byte
	err := s.pool.QueryRow(ctx, selectCatalogQuery, organizationID, industryID).Scan(&defs, &strategy)
	if errors.Is(err, pgx.ErrNoRows) {
		return signal.CatalogEntry{}, &signal.CatalogNotFoundError{OrganizationID: organizationID, IndustryID: industryID}
	}
	if err != nil {
		return signal.CatalogEntry{}, fmt.Errorf("select catalog: %w", err)
	}
	entry := signal.CatalogEntry{OrganizationID: organizationID, IndustryID: industryID}
	if err := json.Unmarshal(defs, &entry.HighValueSignals); err != nil {
		return signal.CatalogEntry{}, fmt.Errorf("decode high_value_signals: %w", err)
	}
	if len(strategy) > 0 {
		if err := json.Unmarshal(strategy, &entry.ScrapingStrategy); err != nil {
			return signal.CatalogEntry{}, fmt.Errorf("decode scraping_strategy: %w", err)
		}
	}
	return entry, nil
}
