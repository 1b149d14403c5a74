package distill

import (
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/lead-signal-distiller/internal/signal"
)

// MeasureReduction compares the raw scrape size with the serialized signals.
// Raw size counts the HTML and the cleaned text; signals are measured as JSON.
func MeasureReduction(in signal.ScrapeInput, signals []signal.ExtractedSignal) (signal.StorageReduction, error) {
	raw := len(in.RawHTML) + len(in.CleanedContent)
	sigBytes := 0
	if len(signals) > 0 {
		data, err := json.Marshal(signals)
		if err != nil {
			return signal.StorageReduction{}, fmt.Errorf("marshal signals: %w", err)
		}
		sigBytes = len(data)
	}
	return signal.StorageReduction{
		RawBytes:         raw,
		SignalBytes:      sigBytes,
		ReductionPercent: ReductionPercent(raw, sigBytes),
	}, nil
}

// ReductionPercent is (1 - signalBytes/rawBytes) * 100, or 0 without raw bytes.
func ReductionPercent(rawBytes, signalBytes int) float64 {
	if rawBytes <= 0 {
		return 0
	}
	return (1 - float64(signalBytes)/float64(rawBytes)) * 100
}
