package model

import "fmt"

// NoPredictions is the summary string of an empty Prediction.
const NoPredictions = "no_predictions"

// Prediction is the normalized classifier output.
// TopConfidence is the maximum confidence across all entries; Count == 0 is
// the "no predictions" sentinel.
type Prediction struct {
	TopClass      string  `json:"top_class,omitempty"`
	TopConfidence float64 `json:"top_confidence"`
	Count         int     `json:"count"`
}

// Empty reports whether p is the "no predictions" sentinel.
func (p Prediction) Empty() bool { return p.Count == 0 }

// String renders the one-line summary used in logs.
func (p Prediction) String() string {
	if p.Empty() {
		return NoPredictions
	}
	class := p.TopClass
	if class == "" {
		class = "?"
	}
	return fmt.Sprintf("top=%s conf=%.2f count=%d", class, p.TopConfidence, p.Count)
}
