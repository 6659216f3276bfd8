// Package prediction forms directional forecasts for flagged coins by
// analogy: it matches a candidate mover against historical events of similar
// severity and liquidity regime, then derives direction and confidence from
// the realized outcomes of those analogues.
package prediction

import (
	"fmt"
	"math"

	"github.com/coinsentry/engine/internal/models"
)

// Market-cap tiers. Similarity comparisons stay within one tier because
// absolute magnitude and raw market cap are not comparable across liquidity
// regimes.
const (
	TierMicro = "micro" // < $100M
	TierSmall = "small" // $100M – $1B
	TierMid   = "mid"   // $1B – $10B
	TierLarge = "large" // >= $10B
)

const (
	maxSimilarEvents  = 20
	maxExposedEvents  = 5
	minMagnitudeRatio = 0.5
	maxMagnitudeRatio = 2.0
)

// Input carries the candidate event fields the matcher and engine need.
// Magnitude must be non-zero: the magnitude-ratio predicate divides by it.
type Input struct {
	CoinID    string
	Symbol    string
	MoveType  string
	Magnitude float64
	MarketCap float64
	Volume24h float64
	Rank      *int
}

// MarketCapTier buckets a market cap into a coarse liquidity tier.
func MarketCapTier(marketCap float64) string {
	switch {
	case marketCap >= 10_000_000_000:
		return TierLarge
	case marketCap >= 1_000_000_000:
		return TierMid
	case marketCap >= 100_000_000:
		return TierSmall
	default:
		return TierMicro
	}
}

// FindSimilar returns the subsequence of history judged comparable to the
// candidate, capped at 20 entries, preserving input order. An event matches
// when its magnitude sign agrees with the candidate's move type, its
// magnitude ratio falls in [0.5, 2.0], and both fall in the same market-cap
// tier.
func FindSimilar(input Input, history []models.HistoricalEvent) []models.HistoricalEvent {
	tier := MarketCapTier(input.MarketCap)

	var similar []models.HistoricalEvent
	for _, event := range history {
		sameDirection := (input.MoveType == models.MovePump && event.Magnitude > 0) ||
			(input.MoveType == models.MoveDump && event.Magnitude < 0)
		if !sameDirection {
			continue
		}

		ratio := math.Abs(event.Magnitude) / math.Abs(input.Magnitude)
		if ratio < minMagnitudeRatio || ratio > maxMagnitudeRatio {
			continue
		}

		if MarketCapTier(event.MarketCap) != tier {
			continue
		}

		similar = append(similar, event)
		if len(similar) == maxSimilarEvents {
			break
		}
	}
	return similar
}

// Predict forms a directional forecast from the matched analogues.
//
// With no analogues the forecast falls back to down at confidence 0.4 for
// pumps and dumps alike. That flat default is asymmetric on its face
// (pumps mean-revert, dumps continue) and is kept as observed behavior;
// see TestPredictNoAnalogues.
//
// With analogues that carry outcomes, direction follows the sign of the
// mean realized change, confidence scales with outcome consistency
// (0.4 base + up to 0.4), blends 70/30 with the running historical accuracy
// when one exists, and is clamped to [0.1, 0.95].
func Predict(input Input, similar []models.HistoricalEvent, historicalAccuracy *float64) models.Prediction {
	direction := models.DirectionDown
	confidence := 0.5

	if len(similar) == 0 {
		return models.Prediction{
			Direction:  direction,
			Confidence: 0.4,
			Reasoning: fmt.Sprintf(
				"No similar historical events found. Default prediction based on typical %s behavior.",
				input.MoveType),
		}
	}

	var withOutcome []models.HistoricalEvent
	for _, e := range similar {
		if e.Outcome24h != nil {
			withOutcome = append(withOutcome, e)
		}
	}

	var reasoning string
	if len(withOutcome) > 0 {
		var sum float64
		positive := 0
		for _, e := range withOutcome {
			sum += *e.Outcome24h
			if *e.Outcome24h > 0 {
				positive++
			}
		}
		avgOutcome := sum / float64(len(withOutcome))
		positiveRatio := float64(positive) / float64(len(withOutcome))

		if avgOutcome > 0 {
			direction = models.DirectionUp
		} else {
			direction = models.DirectionDown
		}

		// 0 when outcomes split evenly, 1 when unanimous.
		consistency := math.Abs(positiveRatio-0.5) * 2
		confidence = 0.4 + consistency*0.4

		if historicalAccuracy != nil {
			confidence = confidence*0.7 + *historicalAccuracy*0.3
		}

		reasoning = fmt.Sprintf("Based on %d similar events: %.0f%% continued up, avg 24h change: %+.1f%%",
			len(withOutcome), positiveRatio*100, avgOutcome)
	} else {
		reasoning = fmt.Sprintf("Found %d similar events but no outcome data yet. Using pattern-based prediction.",
			len(similar))
	}

	exposed := withOutcome
	if len(exposed) > maxExposedEvents {
		exposed = exposed[:maxExposedEvents]
	}
	similarEvents := make([]models.SimilarEvent, 0, len(exposed))
	for _, e := range exposed {
		similarEvents = append(similarEvents, models.SimilarEvent{
			CoinID:    e.CoinID,
			Symbol:    e.Symbol,
			Magnitude: e.Magnitude,
			Outcome:   *e.Outcome24h,
			Date:      e.DetectedAt,
		})
	}

	return models.Prediction{
		Direction:     direction,
		Confidence:    clampConfidence(confidence),
		Reasoning:     reasoning,
		SimilarEvents: similarEvents,
	}
}

// Accuracy computes the running accuracy ratio from per-status prediction
// counts: (correct + 0.5*partial) / evaluated. Pending predictions do not
// count. Returns nil when nothing has been evaluated yet.
func Accuracy(statusCounts map[string]int) *float64 {
	evaluated := statusCounts[models.StatusCorrect] +
		statusCounts[models.StatusIncorrect] +
		statusCounts[models.StatusPartial]
	if evaluated == 0 {
		return nil
	}

	acc := (float64(statusCounts[models.StatusCorrect]) +
		0.5*float64(statusCounts[models.StatusPartial])) / float64(evaluated)
	return &acc
}

func clampConfidence(c float64) float64 {
	return math.Min(0.95, math.Max(0.1, c))
}
