// Package file serves signal catalogs from a YAML file and reloads them when
// the file changes.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/lead-signal-distiller/internal/logging"
	"github.com/JakeFAU/lead-signal-distiller/internal/signal"
)

// Document is the on-disk catalog format.
type Document struct {
	Catalogs []signal.CatalogEntry `yaml:"catalogs"`
}

type catalogKey struct {
	org      string
	industry string
}

// Provider is a signal.CatalogProvider backed by a YAML file.
type Provider struct {
	path   string
	logger *zap.Logger

	mu       sync.RWMutex
	entries  map[catalogKey]signal.CatalogEntry
	onReload []func()
}

// New loads path and returns a Provider. logger may be nil.
func New(path string, logger *zap.Logger) (*Provider, error) {
	p := &Provider{path: path, logger: logging.Named(logger, "catalog")}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// parse decodes and validates a catalog document.
func parse(data []byte) (map[catalogKey]signal.CatalogEntry, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errors.New("catalog file is empty")
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog yaml: %w", err)
	}
	entries := make(map[catalogKey]signal.CatalogEntry, len(doc.Catalogs))
	for i, entry := range doc.Catalogs {
		org := strings.TrimSpace(entry.OrganizationID)
		industry := strings.TrimSpace(entry.IndustryID)
		if org == "" || industry == "" {
			return nil, fmt.Errorf("catalog %d: organization_id and industry_id are required", i)
		}
		key := catalogKey{org, industry}
		if _, dup := entries[key]; dup {
			return nil, fmt.Errorf("catalog %d: duplicate entry for %s/%s", i, org, industry)
		}
		entry.OrganizationID, entry.IndustryID = org, industry
		entries[key] = entry
	}
	return entries, nil
}

// Reload rereads the file. On error the previous catalogs stay in effect.
func (p *Provider) Reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("read catalog %s: %w", p.path, err)
	}
	entries, err := parse(data)
	if err != nil {
		return fmt.Errorf("load catalog %s: %w", p.path, err)
	}

	p.mu.Lock()
	p.entries = entries
	hooks := append([]func(){}, p.onReload...)
	p.mu.Unlock()

	p.logger.Info("catalog loaded", zap.String("path", p.path), zap.Int("entries", len(entries)))
	for _, fn := range hooks {
		fn()
	}
	return nil
}

// OnReload registers fn to run after every successful reload.
func (p *Provider) OnReload(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onReload = append(p.onReload, fn)
}

// GetCatalogEntry implements signal.CatalogProvider.
func (p *Provider) GetCatalogEntry(_ context.Context, organizationID, industryID string) (signal.CatalogEntry, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.entries[catalogKey{organizationID, industryID}]
	if !ok {
		return signal.CatalogEntry{}, &signal.CatalogNotFoundError{OrganizationID: organizationID, IndustryID: industryID}
	}
	return entry, nil
}

// Len returns the number of loaded catalogs.
func (p *Provider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// Watch reloads the catalog whenever the file is written, created or renamed
// into place, until ctx is done. The parent directory is watched so that
// editors replacing the file atomically are observed.
func (p *Provider) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create catalog watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	if err := w.Add(filepath.Dir(p.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(p.path), err)
	}
	target := filepath.Clean(p.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := p.Reload(); err != nil {
				p.logger.Warn("catalog reload failed; keeping previous catalogs",
					zap.String("op", event.Op.String()), zap.Error(err))
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				if rerr := p.Reload(); rerr != nil {
					p.logger.Warn("catalog reload failed", zap.Error(rerr))
				}
				continue
			}
			p.logger.Warn("catalog watcher error", zap.Error(err))
		}
	}
}
