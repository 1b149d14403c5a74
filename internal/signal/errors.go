package signal

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors surfaced by the distiller.
var (
	ErrNotFound         = errors.New("not found")
	ErrCatalogNotFound  = errors.New("signal catalog not found")
	ErrCatalogMismatch  = errors.New("catalog does not match scrape organization/industry")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrStoreConflict    = errors.New("store conflict")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrVersionConflict  = errors.New("version conflict")
	ErrInvalidInput     = errors.New("invalid input")
)

// Error kinds reported in batch results, logs and metric labels.
const (
	KindRateLimited      = "rate_limited"
	KindCatalogNotFound  = "catalog_not_found"
	KindStoreConflict    = "store_conflict"
	KindStoreUnavailable = "store_unavailable"
	KindInvalidInput     = "invalid_input"
	KindCanceled         = "canceled"
	KindInternal         = "internal"
)

// RateLimitError is returned when an organization exceeds its write budget.
type RateLimitError struct {
	OrganizationID string
	Limit          int
	Window         time.Duration
	RetryAfter     time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for organization %s: %d operations per %s, retry after %s",
		e.OrganizationID, e.Limit, e.Window, e.RetryAfter)
}

// Is makes errors.Is(err, ErrRateLimited) match.
func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// CatalogNotFoundError names the organization/industry pair without a catalog.
type CatalogNotFoundError struct {
	OrganizationID string
	IndustryID     string
}

func (e *CatalogNotFoundError) Error() string {
	return fmt.Sprintf("no signal catalog configured for organization %s and industry %s",
		e.OrganizationID, e.IndustryID)
}

// Is makes errors.Is(err, ErrCatalogNotFound) match.
func (e *CatalogNotFoundError) Is(target error) bool { return target == ErrCatalogNotFound }

// StoreConflictError is returned once the append retry budget is exhausted.
type StoreConflictError struct {
	OrganizationID string
	RecordID       string
	Attempts       int
}

func (e *StoreConflictError) Error() string {
	return fmt.Sprintf("append signals for record %s/%s: conflict after %d attempts",
		e.OrganizationID, e.RecordID, e.Attempts)
}

// Is makes errors.Is(err, ErrStoreConflict) match.
func (e *StoreConflictError) Is(target error) bool { return target == ErrStoreConflict }

// StoreUnavailableError wraps an infrastructure failure of a store call.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

// Is makes errors.Is(err, ErrStoreUnavailable) match.
func (e *StoreUnavailableError) Is(target error) bool { return target == ErrStoreUnavailable }

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// Unavailable wraps err as a StoreUnavailableError unless it already carries a
// more specific kind.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrStoreConflict),
		errors.Is(err, ErrCatalogNotFound),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, context.Canceled):
		return err
	}
	return &StoreUnavailableError{Op: op, Err: err}
}

// Kind maps an error to a stable kind string.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrCatalogNotFound):
		return KindCatalogNotFound
	case errors.Is(err, ErrStoreConflict):
		return KindStoreConflict
	case errors.Is(err, ErrStoreUnavailable):
		return KindStoreUnavailable
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrCatalogMismatch):
		return KindInvalidInput
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindInternal
	}
}

// Retryable reports whether the caller may retry the same request later.
func Retryable(err error) bool {
	switch Kind(err) {
	case KindRateLimited, KindStoreConflict, KindStoreUnavailable:
		return true
	default:
		return false
	}
}
