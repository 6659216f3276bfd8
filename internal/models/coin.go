// Package models defines the core domain entities for the coinsentry engine:
// per-coin market samples, full-market snapshots, detected mover events,
// directional predictions, research reports, and daily aggregates.
// Entities that cross a persistence or messaging boundary carry built-in
// validation to keep bad records out of the store.
package models

import (
	"errors"
	"time"
)

// CoinMarketSample is one coin's state at snapshot time. The percentage
// change fields are pointers because the market-data provider may omit any
// of them for thinly traded coins. Immutable once captured.
type CoinMarketSample struct {
	ID        string   `json:"id"`         // Provider coin identifier, e.g. "bitcoin"
	Symbol    string   `json:"symbol"`     // Ticker symbol, e.g. "btc"
	Name      string   `json:"name"`       // Display name
	Price     float64  `json:"price"`      // Current price in USD
	MarketCap float64  `json:"market_cap"` // Market capitalization in USD
	Volume24h float64  `json:"volume_24h"` // 24-hour trade volume in USD
	Change1h  *float64 `json:"change_1h"`  // 1h percent change, nil when not reported
	Change24h *float64 `json:"change_24h"` // 24h percent change, nil when not reported
	Change7d  *float64 `json:"change_7d"`  // 7d percent change, nil when not reported
	Rank      *int     `json:"rank"`       // Market-cap rank, nil when unranked
}

// MarketSnapshot is an ordered collection of coin samples captured in a
// single polling pass, plus Bitcoin's 24h change for relative-performance
// comparisons. All samples share the snapshot's capture timestamp semantics;
// pagination delay within one pass is accepted.
type MarketSnapshot struct {
	Coins        []CoinMarketSample `json:"coins"`
	Timestamp    time.Time          `json:"timestamp"`
	BTCChange24h float64            `json:"btc_change_24h"`
}

// Validate checks that the snapshot is usable for detection.
func (s *MarketSnapshot) Validate() error {
	if s.Timestamp.IsZero() {
		return errors.New("snapshot timestamp must be set")
	}
	for i := range s.Coins {
		if s.Coins[i].ID == "" {
			return errors.New("snapshot contains a coin with empty ID")
		}
	}
	return nil
}
