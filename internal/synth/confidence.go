package synth

import "github.com/lucasnoah/fixfactory/internal/pipeline"

const (
	baseDefinitive   = 0.55
	baseUnclassified = 0.35
	bonusLocation    = 0.10
	bonusContext     = 0.25
	penaltyMissing   = 0.10
)

// Confidence scores a suggestion from its evidence. The result is in [0, 1]
// and never higher for an unclassified record than for a classified one
// with the same evidence.
func Confidence(ev pipeline.Evidence) float64 {
	score := baseUnclassified
	if ev.Definitive {
		score = baseDefinitive
	}
	if ev.HasLocation {
		score += bonusLocation
	}
	if ev.HasContext {
		score += bonusContext
	}
	if ev.MissingIdentifiers {
		score -= penaltyMissing
	}
	// Round away float noise so equal evidence always prints the same score.
	score = float64(int(score*100+0.5)) / 100
	return min(1, max(0, score))
}
