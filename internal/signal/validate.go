package signal

import (
	"fmt"
	"strings"
)

// Validate checks the required fields of a scrape input. RawHTML is optional.
func (in ScrapeInput) Validate() error {
	missing := make([]string, 0, 4)
	if strings.TrimSpace(in.OrganizationID) == "" {
		missing = append(missing, "organization_id")
	}
	if strings.TrimSpace(in.IndustryID) == "" {
		missing = append(missing, "industry_id")
	}
	if strings.TrimSpace(in.RecordID) == "" {
		missing = append(missing, "record_id")
	}
	if strings.TrimSpace(in.URL) == "" {
		missing = append(missing, "url")
	}
	if strings.TrimSpace(in.CleanedContent) == "" {
		missing = append(missing, "cleaned_content")
	}
	if strings.TrimSpace(in.Metadata.Title) == "" {
		missing = append(missing, "metadata.title")
	}
	if in.Metadata.FetchedAt.IsZero() {
		missing = append(missing, "metadata.fetched_at")
	}
	if strings.TrimSpace(in.SourcePlatform()) == "" {
		missing = append(missing, "platform")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}

// SourcePlatform returns the platform a signal is attributed to.
func (in ScrapeInput) SourcePlatform() string {
	if in.Platform != "" {
		return in.Platform
	}
	return in.Metadata.Platform
}

// PatternCount returns the total number of patterns across all definitions.
func (c CatalogEntry) PatternCount() int {
	n := 0
	for _, def := range c.HighValueSignals {
		n += len(def.Patterns)
	}
	return n
}
