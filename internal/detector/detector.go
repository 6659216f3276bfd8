// Package detector identifies significant price movers in a market snapshot.
//
// Detection is a pure function over one snapshot: each coin is classified
// independently, a coin can emit at most one event per pass (the 24h check
// takes priority over the 1h check), and the result is ordered by absolute
// magnitude descending with input order preserved on ties. Deduplication
// across passes is the cooldown guard's job, not the detector's.
package detector

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/coinsentry/engine/internal/models"
)

// Severity levels for a move, used downstream for alert formatting.
const (
	SeverityNotable     = "notable"
	SeveritySignificant = "significant"
	SeverityMajor       = "major"
	SeverityExtreme     = "extreme"
)

// Config holds the detection thresholds. PriceThreshold is a fraction
// (0.10 means a 10% 24h move); the 1h check fires at half of it.
// VolumeThreshold is carried but unused: volume-spike detection needs a
// historical volume baseline the collector does not keep yet.
type Config struct {
	PriceThreshold  float64
	VolumeThreshold float64
}

// Detect returns the mover events found in a snapshot, most significant
// first. Coins with missing change data are treated as unchanged and never
// trigger.
func Detect(snapshot models.MarketSnapshot, cfg Config) []models.MoverEvent {
	var events []models.MoverEvent
	thresholdPercent := cfg.PriceThreshold * 100

	for _, coin := range snapshot.Coins {
		change24h := deref(coin.Change24h)
		change1h := deref(coin.Change1h)
		btcRelative := change24h - snapshot.BTCChange24h

		switch {
		case math.Abs(change24h) >= thresholdPercent:
			events = append(events, newEvent(coin, snapshot, change24h, btcRelative, map[string]any{
				"timeframe": "24h",
				"change1h":  change1h,
				"change7d":  deref(coin.Change7d),
			}))
		case math.Abs(change1h) >= thresholdPercent*0.5:
			events = append(events, newEvent(coin, snapshot, change1h, btcRelative, map[string]any{
				"timeframe": "1h",
				"change24h": change24h,
			}))
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		return math.Abs(events[i].Magnitude) > math.Abs(events[j].Magnitude)
	})

	return events
}

func newEvent(coin models.CoinMarketSample, snapshot models.MarketSnapshot, magnitude, btcRelative float64, metadata map[string]any) models.MoverEvent {
	moveType := models.MovePump
	if magnitude < 0 {
		moveType = models.MoveDump
	}

	detectedAt := snapshot.Timestamp
	if detectedAt.IsZero() {
		detectedAt = time.Now()
	}

	rel := btcRelative
	return models.MoverEvent{
		ID:          uuid.New().String(),
		CoinID:      coin.ID,
		Symbol:      coin.Symbol,
		Name:        coin.Name,
		MoveType:    moveType,
		Magnitude:   magnitude,
		Price:       coin.Price,
		MarketCap:   coin.MarketCap,
		Volume24h:   coin.Volume24h,
		VolumeRatio: nil, // needs historical volume data
		BTCRelative: &rel,
		Rank:        coin.Rank,
		Metadata:    metadata,
		DetectedAt:  detectedAt,
	}
}

// Severity classifies a move's magnitude for display purposes. It never
// filters: every detected event is kept regardless of severity.
func Severity(magnitude float64) string {
	abs := math.Abs(magnitude)
	switch {
	case abs >= 50:
		return SeverityExtreme
	case abs >= 25:
		return SeverityMajor
	case abs >= 15:
		return SeveritySignificant
	default:
		return SeverityNotable
	}
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
