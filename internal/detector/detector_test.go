package detector

import (
	"math"
	"testing"
	"time"

	"github.com/coinsentry/engine/internal/models"
)

func f(v float64) *float64 { return &v }

func snapshotWith(btcChange float64, coins ...models.CoinMarketSample) models.MarketSnapshot {
	return models.MarketSnapshot{
		Coins:        coins,
		Timestamp:    time.Now(),
		BTCChange24h: btcChange,
	}
}

func TestDetectThresholdBoundary(t *testing.T) {
	cfg := Config{PriceThreshold: 0.10}

	// Exactly at threshold: inclusive, triggers.
	snap := snapshotWith(0, models.CoinMarketSample{
		ID: "coin-a", Symbol: "aaa", Name: "Coin A",
		Price: 1.0, Change24h: f(10.0),
	})
	events := Detect(snap, cfg)
	if len(events) != 1 {
		t.Fatalf("expected 1 event at exact threshold, got %d", len(events))
	}
	if events[0].MoveType != models.MovePump {
		t.Errorf("expected pump, got %s", events[0].MoveType)
	}

	// One tenth below: no event.
	snap = snapshotWith(0, models.CoinMarketSample{
		ID: "coin-b", Symbol: "bbb", Name: "Coin B",
		Price: 1.0, Change24h: f(9.9),
	})
	if events := Detect(snap, cfg); len(events) != 0 {
		t.Errorf("expected no events below threshold, got %d", len(events))
	}
}

func TestDetect1hTrigger(t *testing.T) {
	cfg := Config{PriceThreshold: 0.10}

	snap := snapshotWith(0, models.CoinMarketSample{
		ID: "coin-a", Symbol: "aaa", Name: "Coin A",
		Price: 1.0, Change24h: f(3.0), Change1h: f(-6.0),
	})
	events := Detect(snap, cfg)
	if len(events) != 1 {
		t.Fatalf("expected 1 event from 1h trigger, got %d", len(events))
	}
	ev := events[0]
	if ev.MoveType != models.MoveDump {
		t.Errorf("expected dump, got %s", ev.MoveType)
	}
	if ev.Magnitude != -6.0 {
		t.Errorf("expected magnitude -6.0, got %v", ev.Magnitude)
	}
	if ev.Metadata["timeframe"] != "1h" {
		t.Errorf("expected timeframe 1h, got %v", ev.Metadata["timeframe"])
	}
}

func TestDetectMutualExclusivity(t *testing.T) {
	cfg := Config{PriceThreshold: 0.10}

	// Both timeframes exceed their thresholds; only the 24h event emits.
	snap := snapshotWith(0, models.CoinMarketSample{
		ID: "coin-a", Symbol: "aaa", Name: "Coin A",
		Price: 1.0, Change24h: f(12.0), Change1h: f(8.0),
	})
	events := Detect(snap, cfg)
	if len(events) != 1 {
		t.Fatalf("expected exactly 1 event per coin per pass, got %d", len(events))
	}
	if events[0].Metadata["timeframe"] != "24h" {
		t.Errorf("24h check should take priority, got timeframe %v", events[0].Metadata["timeframe"])
	}
	if events[0].Magnitude != 12.0 {
		t.Errorf("expected magnitude 12.0, got %v", events[0].Magnitude)
	}
}

func TestDetectSortStability(t *testing.T) {
	cfg := Config{PriceThreshold: 0.10}

	// A(-30) ties with C(30) on |magnitude|; A precedes C in input order.
	snap := snapshotWith(0,
		models.CoinMarketSample{ID: "a", Symbol: "a", Name: "A", Price: 1, Change24h: f(-30)},
		models.CoinMarketSample{ID: "b", Symbol: "b", Name: "B", Price: 1, Change24h: f(25)},
		models.CoinMarketSample{ID: "c", Symbol: "c", Name: "C", Price: 1, Change24h: f(30)},
	)
	events := Detect(snap, cfg)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].CoinID != "a" || events[1].CoinID != "c" || events[2].CoinID != "b" {
		t.Errorf("expected order [a c b], got [%s %s %s]",
			events[0].CoinID, events[1].CoinID, events[2].CoinID)
	}
}

func TestDetectNilChanges(t *testing.T) {
	cfg := Config{PriceThreshold: 0.10}

	snap := snapshotWith(2.0, models.CoinMarketSample{
		ID: "coin-a", Symbol: "aaa", Name: "Coin A", Price: 1.0,
	})
	if events := Detect(snap, cfg); len(events) != 0 {
		t.Errorf("coin with nil changes must never trigger, got %d events", len(events))
	}
}

func TestDetectBTCRelative(t *testing.T) {
	cfg := Config{PriceThreshold: 0.10}

	snap := snapshotWith(2.0, models.CoinMarketSample{
		ID: "coin-x", Symbol: "xxx", Name: "Coin X",
		Price: 1.0, Change24h: f(15.0),
	})
	events := Detect(snap, cfg)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].BTCRelative == nil || math.Abs(*events[0].BTCRelative-13.0) > 1e-9 {
		t.Errorf("expected btcRelative 13.0, got %v", events[0].BTCRelative)
	}
}

func TestSeverity(t *testing.T) {
	tests := []struct {
		magnitude float64
		want      string
	}{
		{60, SeverityExtreme},
		{-50, SeverityExtreme},
		{30, SeverityMajor},
		{-25, SeverityMajor},
		{15, SeveritySignificant},
		{-18, SeveritySignificant},
		{10, SeverityNotable},
		{-3, SeverityNotable},
	}
	for _, tt := range tests {
		if got := Severity(tt.magnitude); got != tt.want {
			t.Errorf("Severity(%v) = %s, want %s", tt.magnitude, got, tt.want)
		}
	}
}
