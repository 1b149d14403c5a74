package distill

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/JakeFAU/lead-signal-distiller/internal/signal"
)

const (
	// partialWordStrength applies when a phrase matches inside a larger word.
	partialWordStrength = 0.85
	// metadataStrength scales matches found only in titles/descriptions.
	metadataStrength = 0.9
)

// match is the best hit of one pattern against one text.
type match struct {
	strength float64
	text     string
	start    int
	end      int
}

// matcher tests a compiled pattern against a text.
type matcher interface {
	find(text string) (match, bool)
	scope() signal.MatchScope
}

func compilePattern(p signal.Pattern) (matcher, error) {
	scope := p.Scope
	if scope == "" {
		scope = signal.ScopeAll
	}
	switch scope {
	case signal.ScopeAll, signal.ScopeContent, signal.ScopeMetadata:
	default:
		return nil, fmt.Errorf("unknown scope %q", p.Scope)
	}

	switch p.Kind {
	case signal.PatternSubstring:
		if strings.TrimSpace(p.Value) == "" {
			return nil, fmt.Errorf("substring pattern has empty value")
		}
		return &phraseMatcher{re: literal(p.Value, p.CaseSensitive), where: scope}, nil
	case signal.PatternRegex:
		if p.Value == "" {
			return nil, fmt.Errorf("regex pattern has empty value")
		}
		expr := p.Value
		if !p.CaseSensitive {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compile regex %q: %w", p.Value, err)
		}
		return &regexMatcher{re: re, where: scope}, nil
	case signal.PatternKeywords:
		kws := make([]*regexp.Regexp, 0, len(p.Keywords))
		seen := make(map[string]struct{}, len(p.Keywords))
		for _, kw := range p.Keywords {
			key := strings.ToLower(strings.TrimSpace(kw))
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			kws = append(kws, literal(strings.TrimSpace(kw), p.CaseSensitive))
		}
		if len(kws) == 0 {
			return nil, fmt.Errorf("keyword pattern has no keywords")
		}
		minMatches := p.MinMatches
		if minMatches <= 0 {
			minMatches = 1
		}
		if minMatches > len(kws) {
			minMatches = len(kws)
		}
		return &keywordMatcher{keywords: kws, minMatches: minMatches, where: scope}, nil
	default:
		return nil, fmt.Errorf("unknown pattern kind %q", p.Kind)
	}
}

func literal(value string, caseSensitive bool) *regexp.Regexp {
	expr := regexp.QuoteMeta(value)
	if !caseSensitive {
		expr = "(?i)" + expr
	}
	return regexp.MustCompile(expr)
}

type phraseMatcher struct {
	re    *regexp.Regexp
	where signal.MatchScope
}

func (m *phraseMatcher) scope() signal.MatchScope { return m.where }

func (m *phraseMatcher) find(text string) (match, bool) {
	locs := m.re.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return match{}, false
	}
	// Prefer the first whole-word occurrence.
	for _, loc := range locs {
		if wholeWord(text, loc[0], loc[1]) {
			return match{strength: 1, text: text, start: loc[0], end: loc[1]}, true
		}
	}
	return match{strength: partialWordStrength, text: text, start: locs[0][0], end: locs[0][1]}, true
}

type regexMatcher struct {
	re    *regexp.Regexp
	where signal.MatchScope
}

func (m *regexMatcher) scope() signal.MatchScope { return m.where }

func (m *regexMatcher) find(text string) (match, bool) {
	loc := m.re.FindStringIndex(text)
	if loc == nil || loc[0] == loc[1] {
		return match{}, false
	}
	return match{strength: 1, text: text, start: loc[0], end: loc[1]}, true
}

type keywordMatcher struct {
	keywords   []*regexp.Regexp
	minMatches int
	where      signal.MatchScope
}

func (m *keywordMatcher) scope() signal.MatchScope { return m.where }

func (m *keywordMatcher) find(text string) (match, bool) {
	found := 0
	first := []int(nil)
	for _, kw := range m.keywords {
		loc := kw.FindStringIndex(text)
		if loc == nil {
			continue
		}
		found++
		if first == nil || loc[0] < first[0] {
			first = loc
		}
	}
	if found < m.minMatches {
		return match{}, false
	}
	strength := float64(found) / float64(len(m.keywords))
	return match{strength: strength, text: text, start: first[0], end: first[1]}, true
}

func wholeWord(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
