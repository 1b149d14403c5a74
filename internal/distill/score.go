package distill

import (
	"math"

	"github.com/JakeFAU/lead-signal-distiller/internal/signal"
)

// DefaultCategoryWeights are applied when no weights are configured.
var DefaultCategoryWeights = map[signal.Category]float64{
	signal.CategoryHiring:    1.0,
	signal.CategoryFunding:   1.0,
	signal.CategoryTechStack: 0.8,
	signal.CategoryPress:     0.6,
}

// DefaultOtherWeight scores categories missing from the weight table.
const DefaultOtherWeight = 0.5

// WeightedScorer sums the best confidence per signal label, weighted by category,
// and caps the total at 100. Repeated detections of one label never add up.
type WeightedScorer struct {
	weights map[signal.Category]float64
	other   float64
}

// NewWeightedScorer builds a scorer. A nil map selects DefaultCategoryWeights.
func NewWeightedScorer(weights map[signal.Category]float64) *WeightedScorer {
	if weights == nil {
		weights = DefaultCategoryWeights
	}
	cp := make(map[signal.Category]float64, len(weights))
	for k, v := range weights {
		cp[k] = v
	}
	return &WeightedScorer{weights: cp, other: DefaultOtherWeight}
}

// Score implements signal.Scorer.
func (s *WeightedScorer) Score(signals []signal.ExtractedSignal) int {
	if len(signals) == 0 {
		return 0
	}
	type best struct {
		category   signal.Category
		confidence int
	}
	byLabel := make(map[string]best, len(signals))
	for _, sig := range signals {
		cur, ok := byLabel[sig.Label]
		if !ok || sig.Confidence > cur.confidence {
			byLabel[sig.Label] = best{category: sig.Category, confidence: sig.Confidence}
		}
	}
	total := 0.0
	for _, b := range byLabel {
		w, ok := s.weights[b.category]
		if !ok {
			w = s.other
		}
		total += float64(b.confidence) * w
	}
	score := int(math.Round(total))
	if score > 100 {
		return 100
	}
	if score < 0 {
		return 0
	}
	return score
}
