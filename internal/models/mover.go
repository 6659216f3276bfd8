package models

import (
	"errors"
	"time"
)

// Move classifications. Pump and dump are the only types the detector emits
// today; the remaining values are reserved for volume-based detection once
// historical volume data is available.
const (
	MovePump      = "pump"
	MoveDump      = "dump"
	MoveVolume    = "volume_spike"
	MoveBreakout  = "breakout"
	MoveBreakdown = "breakdown"
)

// MoverEvent is a detected price anomaly for a single coin. Created only by
// the detector and immutable afterwards, except for Outcome24h which the
// evaluator attaches exactly once when the prediction horizon elapses.
// Deduplication across snapshots is handled by the per-coin cooldown guard,
// not by the detector.
type MoverEvent struct {
	ID          string         `json:"id"`
	CoinID      string         `json:"coin_id"`
	Symbol      string         `json:"symbol"`
	Name        string         `json:"name"`
	MoveType    string         `json:"move_type"`
	Magnitude   float64        `json:"magnitude"` // Signed percent change that triggered the event
	Price       float64        `json:"price"`
	MarketCap   float64        `json:"market_cap"`
	Volume24h   float64        `json:"volume_24h"`
	VolumeRatio *float64       `json:"volume_ratio"` // Reserved: needs historical volume baseline
	BTCRelative *float64       `json:"btc_relative"` // 24h change minus BTC's 24h change
	Rank        *int           `json:"rank"`
	Metadata    map[string]any `json:"metadata"` // Triggering timeframe plus auxiliary changes
	Outcome24h  *float64       `json:"outcome_24h"` // Realized percent change at horizon, set by evaluator
	DetectedAt  time.Time      `json:"detected_at"`
}

// Validate checks that all mover event fields are valid.
func (e *MoverEvent) Validate() error {
	if e.ID == "" {
		return errors.New("event ID must not be empty")
	}
	if e.CoinID == "" {
		return errors.New("coin ID must not be empty")
	}
	if e.Symbol == "" {
		return errors.New("symbol must not be empty")
	}
	switch e.MoveType {
	case MovePump, MoveDump, MoveVolume, MoveBreakout, MoveBreakdown:
	default:
		return errors.New("unknown move type: " + e.MoveType)
	}
	if e.MoveType == MovePump && e.Magnitude <= 0 {
		return errors.New("pump magnitude must be positive")
	}
	if e.MoveType == MoveDump && e.Magnitude >= 0 {
		return errors.New("dump magnitude must be negative")
	}
	if e.Price < 0 {
		return errors.New("price must not be negative")
	}
	if e.DetectedAt.IsZero() {
		return errors.New("detected at must be set")
	}
	return nil
}

// HistoricalEvent is the slice of a matured MoverEvent the similarity
// matcher works with. Outcome24h is nil until the evaluator has measured the
// realized change at the prediction horizon.
type HistoricalEvent struct {
	EventID    string    `json:"event_id"`
	CoinID     string    `json:"coin_id"`
	Symbol     string    `json:"symbol"`
	MoveType   string    `json:"move_type"`
	Magnitude  float64   `json:"magnitude"`
	MarketCap  float64   `json:"market_cap"`
	DetectedAt time.Time `json:"detected_at"`
	Outcome24h *float64  `json:"outcome_24h"`
}
