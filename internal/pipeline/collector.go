// Package pipeline orchestrates one market collection pass: snapshot the
// market, persist it, detect movers, form predictions, dispatch alerts, and
// run research enrichment within the daily budget.
//
// Failures in the enrichment stages (alerts, research) are logged and do not
// abort the pass; failures before events are persisted do, since nothing
// downstream can work without them.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/coinsentry/engine/internal/detector"
	"github.com/coinsentry/engine/internal/logger"
	"github.com/coinsentry/engine/internal/models"
	"github.com/coinsentry/engine/internal/prediction"
	"github.com/coinsentry/engine/internal/research"
)

// MarketSource supplies market snapshots.
type MarketSource interface {
	Snapshot(ctx context.Context, maxCoins int) (models.MarketSnapshot, error)
}

// Store is the persistence surface the collector needs.
type Store interface {
	UpsertCoins(ctx context.Context, coins []models.CoinMarketSample) error
	InsertPriceSnapshots(ctx context.Context, coins []models.CoinMarketSample, recordedAt time.Time) error
	InsertMoverEvents(ctx context.Context, events []models.MoverEvent) error
	HistoricalEvents(ctx context.Context, moveType string, since time.Time, limit int) ([]models.HistoricalEvent, error)
	PredictionStatusCounts(ctx context.Context) (map[string]int, error)
	InsertPrediction(ctx context.Context, p models.Prediction) error
	CountResearchSince(ctx context.Context, since time.Time) (int, error)
	InsertResearchReport(ctx context.Context, r models.ResearchReport) error
	IncrementDailyStats(ctx context.Context, date string, delta models.DailyStats) error
}

// Guard filters coin IDs against the alert cooldown.
type Guard interface {
	Filter(ctx context.Context, coinIDs []string) ([]string, error)
}

// Dispatcher delivers alerts. A nil Dispatcher on the Collector disables
// alerting entirely.
type Dispatcher interface {
	SendMovers(events []models.MoverEvent, predictions map[string]models.Prediction) error
	SendResearch(event models.MoverEvent, analysis *research.Analysis) error
}

// Researcher produces catalyst analyses for mover events.
type Researcher interface {
	Analyze(ctx context.Context, event models.MoverEvent) (*research.Analysis, string, int, error)
}

// historicalEventLimit bounds how many past events feed similarity matching.
const historicalEventLimit = 200

// Config holds the collector's tunables.
type Config struct {
	MaxCoins          int
	Detector          detector.Config
	HistoryDays       int
	HorizonHours      int
	PredictionMovers  int // how many top movers get predictions
	AlertMovers       int // how many movers go to the dispatcher
	ResearchMovers    int // how many top movers get research per pass
	MaxResearchPerDay int
}

// Collector runs the detection pipeline. dispatcher and researcher may be
// nil, disabling the respective stage.
type Collector struct {
	market     MarketSource
	store      Store
	guard      Guard
	dispatcher Dispatcher
	researcher Researcher
	cfg        Config
}

// Result summarizes one collection pass.
type Result struct {
	CoinsTracked    int
	MoversDetected  int
	MoversAlerted   int
	PredictionsMade int
	Researched      int
}

// New creates a Collector.
func New(market MarketSource, store Store, guard Guard, dispatcher Dispatcher, researcher Researcher, cfg Config) *Collector {
	if cfg.MaxCoins <= 0 {
		cfg.MaxCoins = 1000
	}
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = 90
	}
	if cfg.HorizonHours <= 0 {
		cfg.HorizonHours = 24
	}
	if cfg.PredictionMovers <= 0 {
		cfg.PredictionMovers = 10
	}
	if cfg.AlertMovers <= 0 {
		cfg.AlertMovers = 10
	}
	if cfg.ResearchMovers <= 0 {
		cfg.ResearchMovers = 5
	}
	return &Collector{
		market:     market,
		store:      store,
		guard:      guard,
		dispatcher: dispatcher,
		researcher: researcher,
		cfg:        cfg,
	}
}

// Run executes one collection pass as of now.
func (c *Collector) Run(ctx context.Context, now time.Time) (Result, error) {
	var result Result

	snapshot, err := c.market.Snapshot(ctx, c.cfg.MaxCoins)
	if err != nil {
		return result, fmt.Errorf("failed to fetch market snapshot: %w", err)
	}
	result.CoinsTracked = len(snapshot.Coins)

	if err := c.store.UpsertCoins(ctx, snapshot.Coins); err != nil {
		return result, fmt.Errorf("failed to upsert coins: %w", err)
	}
	if err := c.store.InsertPriceSnapshots(ctx, snapshot.Coins, snapshot.Timestamp); err != nil {
		return result, fmt.Errorf("failed to insert price snapshots: %w", err)
	}

	movers := detector.Detect(snapshot, c.cfg.Detector)
	result.MoversDetected = len(movers)
	if len(movers) == 0 {
		logger.Debug("No movers detected across %d coins", result.CoinsTracked)
		return result, nil
	}
	logger.Info("Detected %d movers across %d coins", len(movers), result.CoinsTracked)

	alerted, err := c.applyCooldown(ctx, movers)
	if err != nil {
		return result, fmt.Errorf("failed to apply alert cooldown: %w", err)
	}
	result.MoversAlerted = len(alerted)
	if len(alerted) == 0 {
		logger.Debug("All %d movers still in cooldown", len(movers))
		return result, nil
	}

	if err := c.store.InsertMoverEvents(ctx, alerted); err != nil {
		return result, fmt.Errorf("failed to persist mover events: %w", err)
	}

	predictions := c.formPredictions(ctx, alerted, now)
	result.PredictionsMade = len(predictions)

	if c.dispatcher != nil {
		alerts := alerted
		if len(alerts) > c.cfg.AlertMovers {
			alerts = alerts[:c.cfg.AlertMovers]
		}
		if err := c.dispatcher.SendMovers(alerts, predictions); err != nil {
			logger.Error("Failed to dispatch mover alerts: %v", err)
		}
	}

	result.Researched = c.runResearch(ctx, alerted, now)

	delta := models.DailyStats{
		TotalMovers:     len(alerted),
		ResearchCount:   result.Researched,
		PredictionsMade: len(predictions),
	}
	for _, event := range alerted {
		if event.Magnitude > 0 {
			delta.Pumps++
		} else {
			delta.Dumps++
		}
	}
	date := now.UTC().Format("2006-01-02")
	if err := c.store.IncrementDailyStats(ctx, date, delta); err != nil {
		logger.Warn("Failed to increment daily stats: %v", err)
	}

	return result, nil
}

// applyCooldown keeps movers whose coins pass the cooldown guard, preserving
// order.
func (c *Collector) applyCooldown(ctx context.Context, movers []models.MoverEvent) ([]models.MoverEvent, error) {
	coinIDs := make([]string, len(movers))
	for i, m := range movers {
		coinIDs[i] = m.CoinID
	}

	passed, err := c.guard.Filter(ctx, coinIDs)
	if err != nil {
		return nil, err
	}

	allowed := make(map[string]struct{}, len(passed))
	for _, id := range passed {
		allowed[id] = struct{}{}
	}

	var kept []models.MoverEvent
	for _, m := range movers {
		if _, ok := allowed[m.CoinID]; ok {
			kept = append(kept, m)
		}
	}
	return kept, nil
}

// formPredictions creates and persists predictions for the top movers.
// A mover whose prediction fails to persist is skipped without failing the
// pass.
func (c *Collector) formPredictions(ctx context.Context, movers []models.MoverEvent, now time.Time) map[string]models.Prediction {
	candidates := movers
	if len(candidates) > c.cfg.PredictionMovers {
		candidates = candidates[:c.cfg.PredictionMovers]
	}

	var accuracy *float64
	if counts, err := c.store.PredictionStatusCounts(ctx); err != nil {
		logger.Warn("Failed to read prediction status counts: %v", err)
	} else {
		accuracy = prediction.Accuracy(counts)
	}

	historySince := now.Add(-time.Duration(c.cfg.HistoryDays) * 24 * time.Hour)
	predictions := make(map[string]models.Prediction)

	for _, event := range candidates {
		// The magnitude-ratio predicate divides by the candidate magnitude.
		if event.Magnitude == 0 {
			continue
		}

		history, err := c.store.HistoricalEvents(ctx, event.MoveType, historySince, historicalEventLimit)
		if err != nil {
			logger.Warn("Failed to load history for %s: %v", event.Symbol, err)
			continue
		}

		input := prediction.Input{
			CoinID:    event.CoinID,
			Symbol:    event.Symbol,
			MoveType:  event.MoveType,
			Magnitude: event.Magnitude,
			MarketCap: event.MarketCap,
			Volume24h: event.Volume24h,
			Rank:      event.Rank,
		}
		similar := prediction.FindSimilar(input, history)
		p := prediction.Predict(input, similar, accuracy)

		p.ID = uuid.New().String()
		p.CoinID = event.CoinID
		p.Symbol = event.Symbol
		p.MoverEventID = event.ID
		p.HorizonHours = c.cfg.HorizonHours
		p.Status = models.StatusPending
		p.PredictedAt = now

		if err := c.store.InsertPrediction(ctx, p); err != nil {
			logger.Warn("Failed to persist prediction for %s: %v", event.Symbol, err)
			continue
		}
		predictions[event.ID] = p

		logger.Info("%s: predicting %s with %.0f%% confidence (%d similar events)",
			event.Symbol, p.Direction, p.Confidence*100, len(similar))
	}

	return predictions
}

// runResearch analyzes the top movers within the remaining daily budget and
// returns how many reports were produced.
func (c *Collector) runResearch(ctx context.Context, movers []models.MoverEvent, now time.Time) int {
	if c.researcher == nil {
		return 0
	}

	dayStart := now.UTC().Truncate(24 * time.Hour)
	used, err := c.store.CountResearchSince(ctx, dayStart)
	if err != nil {
		logger.Warn("Failed to read research budget: %v", err)
		return 0
	}
	budget := c.cfg.MaxResearchPerDay - used
	if budget <= 0 {
		logger.Debug("Daily research budget exhausted (%d used)", used)
		return 0
	}

	candidates := movers
	if len(candidates) > c.cfg.ResearchMovers {
		candidates = candidates[:c.cfg.ResearchMovers]
	}
	if len(candidates) > budget {
		candidates = candidates[:budget]
	}

	researched := 0
	for _, event := range candidates {
		analysis, raw, tokens, err := c.researcher.Analyze(ctx, event)
		if err != nil {
			logger.Error("Research failed for %s: %v", event.Symbol, err)
			continue
		}

		report := models.ResearchReport{
			ID:                      uuid.New().String(),
			MoverEventID:            event.ID,
			Catalyst:                analysis.Catalyst,
			CatalystConfidence:      analysis.CatalystConfidence,
			SentimentLabel:          analysis.Sentiment.Label,
			SentimentScore:          analysis.Sentiment.Score,
			KeyFactors:              analysis.KeyFactors,
			Risks:                   analysis.Risks,
			ContinuationProbability: analysis.ContinuationProbability,
			Summary:                 analysis.Summary,
			RecommendedAction:       analysis.RecommendedAction,
			FullAnalysis:            raw,
			TokensUsed:              tokens,
			CreatedAt:               now,
		}
		if err := c.store.InsertResearchReport(ctx, report); err != nil {
			logger.Warn("Failed to persist research for %s: %v", event.Symbol, err)
			continue
		}
		researched++

		if c.dispatcher != nil {
			if err := c.dispatcher.SendResearch(event, analysis); err != nil {
				logger.Warn("Failed to send research alert for %s: %v", event.Symbol, err)
			}
		}
	}
	return researched
}
