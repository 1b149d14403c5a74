// Package signal defines the core types shared across the distiller subsystems.
package signal

import (
	"time"
)

// Category groups signal definitions for scoring.
type Category string

// Well-known categories. Catalogs may use others; they score with the default weight.
const (
	CategoryHiring    Category = "hiring"
	CategoryFunding   Category = "funding"
	CategoryTechStack Category = "tech-stack"
	CategoryPress     Category = "press"
)

// PatternKind tags the matching strategy of a Pattern.
type PatternKind string

// Supported pattern kinds.
const (
	PatternSubstring PatternKind = "substring"
	PatternRegex     PatternKind = "regex"
	PatternKeywords  PatternKind = "keywords"
)

// MatchScope limits which text a pattern is tested against.
type MatchScope string

// Match scopes. An empty scope means ScopeAll.
const (
	ScopeAll      MatchScope = "all"
	ScopeContent  MatchScope = "content"
	ScopeMetadata MatchScope = "metadata"
)

// Pattern is one matching rule of a signal definition.
//
// Value holds the phrase for substring patterns and the expression for regex
// patterns. Keywords and MinMatches are only read for keyword patterns.
type Pattern struct {
	Kind          PatternKind `json:"kind" yaml:"kind"`
	Value         string      `json:"value,omitempty" yaml:"value,omitempty"`
	Keywords      []string    `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	MinMatches    int         `json:"min_matches,omitempty" yaml:"min_matches,omitempty"`
	CaseSensitive bool        `json:"case_sensitive,omitempty" yaml:"case_sensitive,omitempty"`
	Scope         MatchScope  `json:"scope,omitempty" yaml:"scope,omitempty"`
}

// SignalDefinition describes a high-value signal an organization cares about.
type SignalDefinition struct {
	Label    string    `json:"label" yaml:"label"`
	Category Category  `json:"category" yaml:"category"`
	Weight   int       `json:"weight" yaml:"weight"`
	Patterns []Pattern `json:"patterns" yaml:"patterns"`
}

// ScrapingStrategy is carried through from the catalog but not enforced.
type ScrapingStrategy struct {
	PreferredSources []string          `json:"preferred_sources,omitempty" yaml:"preferred_sources,omitempty"`
	TrustedPlatforms []string          `json:"trusted_platforms,omitempty" yaml:"trusted_platforms,omitempty"`
	Notes            map[string]string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// CatalogEntry is the read-only signal catalog for one organization and industry.
type CatalogEntry struct {
	OrganizationID   string             `json:"organization_id" yaml:"organization_id"`
	IndustryID       string             `json:"industry_id" yaml:"industry_id"`
	HighValueSignals []SignalDefinition `json:"high_value_signals" yaml:"high_value_signals"`
	ScrapingStrategy ScrapingStrategy   `json:"scraping_strategy" yaml:"scraping_strategy"`
}

// ExtractedSignal is a durable fact distilled from scraped content.
type ExtractedSignal struct {
	ID             string    `json:"id"`
	RecordID       string    `json:"record_id"`
	OrganizationID string    `json:"organization_id"`
	Label          string    `json:"signal_label"`
	Category       Category  `json:"category"`
	Confidence     int       `json:"confidence"`
	SourcePlatform string    `json:"source_platform"`
	SourceURL      string    `json:"source_url"`
	DetectedAt     time.Time `json:"detected_at"`
	Excerpt        string    `json:"excerpt"`
}

// ScrapeMetadata describes where and when a page was fetched.
type ScrapeMetadata struct {
	Title     string    `json:"title"`
	Platform  string    `json:"platform"`
	FetchedAt time.Time `json:"fetched_at"`
}

// ScrapeInput is the request accepted by the orchestration service.
type ScrapeInput struct {
	OrganizationID string         `json:"organization_id"`
	IndustryID     string         `json:"industry_id"`
	RecordID       string         `json:"record_id"`
	URL            string         `json:"url"`
	RawHTML        string         `json:"raw_html,omitempty"`
	CleanedContent string         `json:"cleaned_content"`
	Metadata       ScrapeMetadata `json:"metadata"`
	Platform       string         `json:"platform"`
}

// RawScrapeRecord is the ephemeral copy of a scrape kept for debugging and training.
type RawScrapeRecord struct {
	ID             string         `json:"id"`
	RecordID       string         `json:"record_id"`
	OrganizationID string         `json:"organization_id"`
	URL            string         `json:"url"`
	RawHTML        string         `json:"raw_html"`
	CleanedContent string         `json:"cleaned_content"`
	Metadata       ScrapeMetadata `json:"metadata"`
	ContentHash    string         `json:"content_hash"`
	ExpiresAt      time.Time      `json:"expires_at"`
}

// Expired reports whether the record must no longer be served at now.
func (r RawScrapeRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// StorageReduction reports how much smaller the distilled output is than the raw input.
type StorageReduction struct {
	RawBytes         int     `json:"raw_bytes"`
	SignalBytes      int     `json:"signal_bytes"`
	ReductionPercent float64 `json:"reduction_percent"`
}

// SignalSet is a versioned snapshot of a record's signals.
// Version 0 means no row exists yet.
type SignalSet struct {
	Signals []ExtractedSignal
	Version int64
}
