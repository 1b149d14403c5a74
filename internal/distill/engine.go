// Package distill reduces raw scrape content to the signals named by a catalog.
//
// The Engine is a pure transformation: it performs no I/O and holds no state
// between calls, so identical inputs always produce identical outputs.
package distill

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/JakeFAU/lead-signal-distiller/internal/signal"
)

const (
	// DefaultWeight is used for definitions that omit a weight.
	DefaultWeight = 50
	// DefaultExcerptRunes bounds the proof text stored with a signal.
	DefaultExcerptRunes = 160
	excerptContext      = 60
)

// SignalIDer derives deterministic signal identifiers.
type SignalIDer interface {
	SignalID(parts ...string) string
}

// Distillation is the output of one Distill call.
type Distillation struct {
	Signals        []signal.ExtractedSignal
	LeadScoreDelta int
	Reduction      signal.StorageReduction
	Warnings       []string
}

// Option configures an Engine.
type Option func(*Engine)

// WithScorer replaces the default lead scorer.
func WithScorer(s signal.Scorer) Option {
	return func(e *Engine) {
		if s != nil {
			e.scorer = s
		}
	}
}

// WithExcerptRunes bounds excerpt length.
func WithExcerptRunes(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.excerptRunes = n
		}
	}
}

// Engine extracts signals from scrapes.
type Engine struct {
	ids          SignalIDer
	scorer       signal.Scorer
	excerptRunes int
}

// NewEngine constructs an Engine. ids must be deterministic.
func NewEngine(ids SignalIDer, opts ...Option) *Engine {
	e := &Engine{
		ids:          ids,
		scorer:       NewWeightedScorer(nil),
		excerptRunes: DefaultExcerptRunes,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Scorer returns the scorer used for lead score deltas.
func (e *Engine) Scorer() signal.Scorer { return e.scorer }

// Distill matches every catalog pattern against the scrape.
// No match is not an error; an unusable catalog yields warnings and no signals.
func (e *Engine) Distill(entry signal.CatalogEntry, in signal.ScrapeInput) (Distillation, error) {
	if strings.TrimSpace(in.CleanedContent) == "" {
		return Distillation{}, fmt.Errorf("%w: cleaned content is empty", signal.ErrInvalidInput)
	}
	if entry.OrganizationID != in.OrganizationID || entry.IndustryID != in.IndustryID {
		return Distillation{}, fmt.Errorf("%w: catalog %s/%s, scrape %s/%s", signal.ErrCatalogMismatch,
			entry.OrganizationID, entry.IndustryID, in.OrganizationID, in.IndustryID)
	}

	var warnings []string
	if entry.PatternCount() == 0 {
		warnings = append(warnings, fmt.Sprintf("catalog %s/%s has no patterns", entry.OrganizationID, entry.IndustryID))
	}

	metaText := metadataText(in)
	detectedAt := in.Metadata.FetchedAt.UTC()
	signals := make([]signal.ExtractedSignal, 0)

	for i, def := range entry.HighValueSignals {
		if strings.TrimSpace(def.Label) == "" {
			warnings = append(warnings, fmt.Sprintf("signal definition %d has no label", i))
			continue
		}
		best, ok, defWarnings := bestMatch(def, in.CleanedContent, metaText)
		warnings = append(warnings, defWarnings...)
		if !ok {
			continue
		}
		signals = append(signals, signal.ExtractedSignal{
			ID: e.ids.SignalID(
				in.OrganizationID,
				in.RecordID,
				def.Label,
				in.URL,
				detectedAt.Format(time.RFC3339Nano),
			),
			RecordID:       in.RecordID,
			OrganizationID: in.OrganizationID,
			Label:          def.Label,
			Category:       def.Category,
			Confidence:     confidence(def.Weight, best.strength),
			SourcePlatform: in.SourcePlatform(),
			SourceURL:      in.URL,
			DetectedAt:     detectedAt,
			Excerpt:        excerpt(best.text, best.start, best.end, e.excerptRunes),
		})
	}

	reduction, err := MeasureReduction(in, signals)
	if err != nil {
		return Distillation{}, err
	}
	return Distillation{
		Signals:        signals,
		LeadScoreDelta: e.scorer.Score(signals),
		Reduction:      reduction,
		Warnings:       warnings,
	}, nil
}

func bestMatch(def signal.SignalDefinition, content, meta string) (match, bool, []string) {
	var (
		best     match
		found    bool
		warnings []string
	)
	if len(def.Patterns) == 0 {
		warnings = append(warnings, fmt.Sprintf("signal %q has no patterns", def.Label))
	}
	for j, p := range def.Patterns {
		m, err := compilePattern(p)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("signal %q pattern %d skipped: %v", def.Label, j, err))
			continue
		}
		if m.scope() != signal.ScopeMetadata {
			if hit, ok := m.find(content); ok && (!found || hit.strength > best.strength) {
				best, found = hit, true
			}
		}
		if m.scope() != signal.ScopeContent && meta != "" {
			if hit, ok := m.find(meta); ok {
				hit.strength *= metadataStrength
				if !found || hit.strength > best.strength {
					best, found = hit, true
				}
			}
		}
	}
	return best, found, warnings
}

func confidence(weight int, strength float64) int {
	if weight <= 0 {
		weight = DefaultWeight
	}
	c := int(math.Round(float64(weight) * strength))
	if c < 1 {
		c = 1
	}
	if c > 100 {
		c = 100
	}
	return c
}

// metadataText joins the title with any title/description found in the raw HTML.
func metadataText(in signal.ScrapeInput) string {
	parts := make([]string, 0, 3)
	seen := make(map[string]struct{}, 3)
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		parts = append(parts, s)
	}
	add(in.Metadata.Title)
	if in.RawHTML != "" {
		meta := ExtractHTMLMetadata(in.RawHTML)
		add(meta.Title)
		add(meta.Description)
	}
	return strings.Join(parts, "\n")
}

// excerpt returns a whitespace-collapsed window around [start,end) of at most maxRunes runes.
func excerpt(text string, start, end, maxRunes int) string {
	from := start - excerptContext
	if from < 0 {
		from = 0
	}
	to := end + excerptContext
	if to > len(text) {
		to = len(text)
	}
	for from > 0 && !utf8.RuneStart(text[from]) {
		from--
	}
	for to < len(text) && !utf8.RuneStart(text[to]) {
		to++
	}
	out := strings.Join(strings.Fields(text[from:to]), " ")
	if utf8.RuneCountInString(out) > maxRunes {
		runes := []rune(out)
		out = string(runes[:maxRunes])
	}
	return out
}
