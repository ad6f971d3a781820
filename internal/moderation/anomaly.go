// Package moderation turns raw price submissions into trusted data
// points: it runs the anomaly heuristic, the per-price review state
// machine, and the community reporting rules, and feeds the resulting
// lifecycle events into the reputation ledger.
package moderation

import (
	"fmt"
	"strconv"
)

// Detector flags submissions that deviate too far from a station's
// recent approved prices for the same fuel type. It is a local outlier
// heuristic, intentionally simple: a window mean with fixed multiplier
// bounds, not a statistical model.
type Detector struct {
	// Window is how many prior approved prices feed the mean.
	Window int
	// Low and High bound the acceptable ratio of price to window mean.
	Low, High float64
}

// DefaultDetector returns the production tuning.
func DefaultDetector() Detector {
	return Detector{Window: 5, Low: 0.7, High: 1.3}
}

// Verdict is the detector's decision for one submission.
type Verdict struct {
	Flagged bool
	Reason  string
}

// Evaluate judges a new price against the station's approved history
// for the same fuel type. history is in submission order and includes
// the price under evaluation as its last element; the window is the
// Window entries immediately preceding it. With no prior approved
// prices there is nothing to compare against, so nothing is flagged.
func (d Detector) Evaluate(price float64, history []float64) Verdict {
	if len(history) < 2 {
		return Verdict{}
	}

	window := history[:len(history)-1]
	if len(window) > d.Window {
		window = window[len(window)-d.Window:]
	}

	var sum float64
	for _, p := range window {
		sum += p
	}
	mean := sum / float64(len(window))

	if price > mean*d.High || price < mean*d.Low {
		return Verdict{
			Flagged: true,
			Reason: fmt.Sprintf("Suspicious: %s, avg ~%.2f",
				strconv.FormatFloat(price, 'f', -1, 64), mean),
		}
	}
	return Verdict{}
}
