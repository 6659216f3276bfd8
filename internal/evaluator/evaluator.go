// Package evaluator reconciles pending predictions against realized prices.
//
// A run selects predictions that are pending and older than the horizon,
// fetches current prices for their coins in one batched lookup, classifies
// each outcome, and writes the terminal status back. Because selection is
// guarded by status = pending, a second run over the same set is a no-op.
// The realized change is also written onto the originating mover event so
// future similarity queries can use it.
package evaluator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/coinsentry/engine/internal/logger"
	"github.com/coinsentry/engine/internal/models"
	"github.com/coinsentry/engine/internal/prediction"
)

// Store is the narrow slice of the event/prediction store the evaluator
// needs.
type Store interface {
	PendingPredictionsBefore(ctx context.Context, cutoff time.Time) ([]models.PendingPrediction, error)
	ResolvePrediction(ctx context.Context, id, status string, actualChange float64, evaluatedAt time.Time) error
	SetEventOutcome(ctx context.Context, eventID string, outcome float64) error
	PredictionStatusCounts(ctx context.Context) (map[string]int, error)
	IncrementDailyStats(ctx context.Context, date string, delta models.DailyStats) error
}

// PriceSource supplies current USD prices for a batch of coin IDs. Coins the
// provider does not know are simply absent from the result map.
type PriceSource interface {
	SimplePrices(ctx context.Context, coinIDs []string) (map[string]float64, error)
}

// Evaluator scores past predictions against realized outcomes.
type Evaluator struct {
	store       Store
	prices      PriceSource
	horizon     time.Duration
	partialBand float64 // |actualChange| below this downgrades a miss to partial
}

// Result summarizes one evaluation run.
type Result struct {
	Evaluated int
	Correct   int
	Incorrect int
	Partial   int
	Skipped   int
	Accuracy  *float64 // running global accuracy after this run
}

// New creates an Evaluator. Horizon defaults to 24h and the partial band to
// 2% when zero values are passed.
func New(store Store, prices PriceSource, horizon time.Duration, partialBand float64) *Evaluator {
	if horizon <= 0 {
		horizon = 24 * time.Hour
	}
	if partialBand <= 0 {
		partialBand = 2.0
	}
	return &Evaluator{
		store:       store,
		prices:      prices,
		horizon:     horizon,
		partialBand: partialBand,
	}
}

// Run evaluates every pending prediction whose horizon has elapsed as of
// now. Predictions whose coins have no current price are skipped and remain
// pending for a later run; nothing partial is recorded for them.
func (e *Evaluator) Run(ctx context.Context, now time.Time) (Result, error) {
	var result Result

	cutoff := now.Add(-e.horizon)
	pending, err := e.store.PendingPredictionsBefore(ctx, cutoff)
	if err != nil {
		return result, fmt.Errorf("failed to select pending predictions: %w", err)
	}
	if len(pending) == 0 {
		logger.Debug("No predictions past horizon to evaluate")
		return result, nil
	}

	coinIDs := distinctCoinIDs(pending)
	prices, err := e.prices.SimplePrices(ctx, coinIDs)
	if err != nil {
		return result, fmt.Errorf("failed to fetch current prices: %w", err)
	}

	for _, p := range pending {
		currentPrice, ok := prices[p.CoinID]
		if !ok {
			logger.Debug("No price data for %s, leaving prediction %s pending", p.CoinID, p.ID)
			result.Skipped++
			continue
		}
		if p.DetectionPrice <= 0 {
			logger.Warn("Prediction %s has invalid detection price %v, skipping", p.ID, p.DetectionPrice)
			result.Skipped++
			continue
		}

		actualChange := (currentPrice - p.DetectionPrice) / p.DetectionPrice * 100
		status := classify(p.Direction, actualChange, e.partialBand)

		if err := e.store.ResolvePrediction(ctx, p.ID, status, actualChange, now); err != nil {
			logger.Warn("Failed to resolve prediction %s: %v", p.ID, err)
			continue
		}
		if err := e.store.SetEventOutcome(ctx, p.MoverEventID, actualChange); err != nil {
			logger.Warn("Failed to record outcome on event %s: %v", p.MoverEventID, err)
		}

		switch status {
		case models.StatusCorrect:
			result.Correct++
		case models.StatusPartial:
			result.Partial++
		default:
			result.Incorrect++
		}
		result.Evaluated++

		logger.Info("%s: predicted %s, actual %+.1f%% = %s", p.Symbol, p.Direction, actualChange, status)
	}

	if result.Correct > 0 {
		date := now.UTC().Format("2006-01-02")
		if err := e.store.IncrementDailyStats(ctx, date, models.DailyStats{PredictionsCorrect: result.Correct}); err != nil {
			logger.Warn("Failed to increment daily correct count: %v", err)
		}
	}

	counts, err := e.store.PredictionStatusCounts(ctx)
	if err != nil {
		logger.Warn("Failed to read prediction status counts: %v", err)
	} else {
		result.Accuracy = prediction.Accuracy(counts)
	}

	if result.Accuracy != nil {
		logger.Info("Evaluation complete: %d evaluated, %d skipped, overall accuracy %.1f%%",
			result.Evaluated, result.Skipped, *result.Accuracy*100)
	} else {
		logger.Info("Evaluation complete: %d evaluated, %d skipped", result.Evaluated, result.Skipped)
	}

	return result, nil
}

// classify maps a realized change onto a terminal status. A wrong-direction
// call is downgraded to partial when the realized move is inside the partial
// band: small moves are not penalized as misses.
func classify(direction string, actualChange, partialBand float64) string {
	predictedUp := direction == models.DirectionUp
	actualUp := actualChange > 0

	if predictedUp == actualUp {
		return models.StatusCorrect
	}
	if math.Abs(actualChange) < partialBand {
		return models.StatusPartial
	}
	return models.StatusIncorrect
}

func distinctCoinIDs(pending []models.PendingPrediction) []string {
	seen := make(map[string]struct{}, len(pending))
	var ids []string
	for _, p := range pending {
		if _, ok := seen[p.CoinID]; ok {
			continue
		}
		seen[p.CoinID] = struct{}{}
		ids = append(ids, p.CoinID)
	}
	return ids
}
