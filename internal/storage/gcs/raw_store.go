// Package gcs provides a RawStore backed by Google Cloud Storage. Objects
// carry CustomTime = expiresAt so a bucket lifecycle rule on
// daysSinceCustomTime can delete them natively; PurgeExpired covers buckets
// without that rule.
package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/JakeFAU/lead-signal-distiller/internal/signal"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	Prefix string
}

// RawStore writes raw scrapes as JSON objects under prefix/organization/id.json.
type RawStore struct {
	client *storage.Client
	bucket string
	prefix string
	now    func() time.Time
}

// New creates a GCS-backed raw store. now may be nil to use the wall clock.
func New(client *storage.Client, cfg Config, now func() time.Time) (*RawStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if now == nil {
		now = time.Now
	}
	return &RawStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		now:    now,
	}, nil
}

func (s *RawStore) objectName(organizationID, id string) string {
	return path.Join(s.prefix, organizationID, id+".json")
}

// WriteRawScrape uploads record with its expiry as the object's CustomTime.
func (s *RawStore) WriteRawScrape(ctx context.Context, record signal.RawScrapeRecord) error {
	if record.ID == "" || record.OrganizationID == "" {
		return fmt.Errorf("write raw scrape: %w: id and organization_id are required", signal.ErrInvalidInput)
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode raw scrape: %w", err)
	}
	name := s.objectName(record.OrganizationID, record.ID)
	writer := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	writer.ContentType = "application/json"
	writer.CustomTime = record.ExpiresAt
	writer.Metadata = map[string]string{
		"organization_id": record.OrganizationID,
		"record_id":       record.RecordID,
		"content_hash":    record.ContentHash,
	}
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("write object %s: %w (close writer: %v)", name, err, closeErr)
		}
		return fmt.Errorf("write object %s: %w", name, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", name, err)
	}
	return nil
}

// GetRawScrape downloads a record. Missing or expired objects yield signal.ErrNotFound.
func (s *RawStore) GetRawScrape(ctx context.Context, organizationID, id string) (signal.RawScrapeRecord, error) {
	name := s.objectName(organizationID, id)
	reader, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return signal.RawScrapeRecord{}, signal.ErrNotFound
	}
	if err != nil {
		return signal.RawScrapeRecord{}, fmt.Errorf("open object %s: %w", name, err)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return signal.RawScrapeRecord{}, fmt.Errorf("read object %s: %w", name, err)
	}
	var rec signal.RawScrapeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return signal.RawScrapeRecord{}, fmt.Errorf("decode object %s: %w", name, err)
	}
	// Lifecycle deletion is asynchronous; never serve past expiry.
	if rec.Expired(s.now()) {
		return signal.RawScrapeRecord{}, signal.ErrNotFound
	}
	return rec, nil
}

// PurgeExpired deletes every object under the prefix whose CustomTime is at or before now.
func (s *RawStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	bkt := s.client.Bucket(s.bucket)
	query := &storage.Query{}
	if s.prefix != "" {
		query.Prefix = s.prefix + "/"
	}
	if err := query.SetAttrSelection([]string{"Name", "CustomTime"}); err != nil {
		return 0, fmt.Errorf("select attrs: %w", err)
	}
	it := bkt.Objects(ctx, query)
	purged := 0
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return purged, fmt.Errorf("list objects: %w", err)
		}
		if attrs.CustomTime.IsZero() || attrs.CustomTime.After(now) {
			continue
		}
		if err := bkt.Object(attrs.Name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return purged, fmt.Errorf("delete object %s: %w", attrs.Name, err)
		}
		purged++
	}
	return purged, nil
}

// Ping verifies the bucket is reachable.
func (s *RawStore) Ping(ctx context.Context) error {
	if _, err := s.client.Bucket(s.bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("get bucket %s attributes: %w", s.bucket, err)
	}
	return nil
}

// Close releases the client.
func (s *RawStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close storage client: %w", err)
	}
	return nil
}
