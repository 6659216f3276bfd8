package telegram

import (
	"strings"
	"testing"

	"github.com/coinsentry/engine/internal/models"
	"github.com/coinsentry/engine/internal/research"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func sampleEvent() models.MoverEvent {
	return models.MoverEvent{
		ID:          "evt-1",
		CoinID:      "solana",
		Symbol:      "sol",
		Name:        "Solana",
		MoveType:    models.MovePump,
		Magnitude:   15.3,
		Price:       150.25,
		MarketCap:   6.5e10,
		Volume24h:   2e9,
		BTCRelative: floatPtr(13.1),
		Rank:        intPtr(5),
	}
}

func TestFormatMoverAlert(t *testing.T) {
	p := models.Prediction{
		Direction:  models.DirectionUp,
		Confidence: 0.62,
	}
	msg := formatMoverAlert(sampleEvent(), &p)

	for _, want := range []string{
		"SOL PUMP",
		"Solana",
		"$150\\.25",
		"$65\\.00B",
		"$2\\.0B",
		"vs BTC",
		"Rank: \\#5",
		"Prediction: *up*",
		"62%",
		"coingecko.com/en/coins/solana",
		"tradingview.com/symbols/SOLUSD",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("alert missing %q:\n%s", want, msg)
		}
	}
}

func TestFormatMoverAlertOmitsSmallBTCRelative(t *testing.T) {
	event := sampleEvent()
	event.BTCRelative = floatPtr(1.5)
	msg := formatMoverAlert(event, nil)
	if strings.Contains(msg, "vs BTC") {
		t.Error("vs-BTC line must be omitted when the relative move is small")
	}
	if strings.Contains(msg, "Prediction") {
		t.Error("prediction line must be omitted when no prediction exists")
	}
}

func TestFormatMoverSummary(t *testing.T) {
	events := []models.MoverEvent{
		{Symbol: "ada", Magnitude: 12.0, MarketCap: 2.2e10},
		{Symbol: "pepe", Magnitude: -18.5, MarketCap: 4e9},
	}
	msg := formatMoverSummary(events)

	if !strings.Contains(msg, "*2 more movers*") {
		t.Errorf("summary missing header:\n%s", msg)
	}
	if !strings.Contains(msg, "ADA") || !strings.Contains(msg, "PEPE") {
		t.Errorf("summary missing symbols:\n%s", msg)
	}
	if !strings.Contains(msg, "ðŸ“‰") {
		t.Error("dump entries must use the down arrow")
	}
}

func TestFormatResearch(t *testing.T) {
	a := &research.Analysis{
		Catalyst:                "Exchange listing",
		CatalystConfidence:      0.8,
		Sentiment:               research.Sentiment{Label: "bullish", Score: 0.7},
		KeyFactors:              []string{"new listing"},
		Risks:                   []string{"profit taking"},
		ContinuationProbability: 0.6,
		Summary:                 "Listing-driven rally.",
		RecommendedAction:       "watch",
	}
	msg := formatResearch(sampleEvent(), a)

	for _, want := range []string{
		"Research: SOL",
		"Exchange listing",
		"80% sure",
		"bullish",
		"60%",
		"new listing",
		"profit taking",
		"Action: *watch*",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("research message missing %q:\n%s", want, msg)
		}
	}
}

func TestSeverityEmoji(t *testing.T) {
	tests := []struct {
		magnitude float64
		expected  string
	}{
		{60, "ðŸš¨ðŸš¨"},
		{-30, "ðŸš¨"},
		{18, "âš¡"},
		{11, "ðŸ””"},
	}
	for _, tt := range tests {
		if got := severityEmoji(tt.magnitude); got != tt.expected {
			t.Errorf("severityEmoji(%v) = %s, expected %s", tt.magnitude, got, tt.expected)
		}
	}
}

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		price    float64
		expected string
	}{
		{60000, "$60000"},
		{150.25, "$150.25"},
		{0.1234, "$0.1234"},
		{0.00001234, "$0.00001234"},
	}
	for _, tt := range tests {
		if got := formatPrice(tt.price); got != tt.expected {
			t.Errorf("formatPrice(%v) = %s, expected %s", tt.price, got, tt.expected)
		}
	}
}

func TestFormatUSD(t *testing.T) {
	tests := []struct {
		value    float64
		expected string
	}{
		{1.2e12, "$1.20T"},
		{6.5e10, "$65.00B"},
		{4.2e6, "$4.2M"},
		{950_000, "$950K"},
		{500, "$500"},
	}
	for _, tt := range tests {
		if got := formatUSD(tt.value); got != tt.expected {
			t.Errorf("formatUSD(%v) = %s, expected %s", tt.value, got, tt.expected)
		}
	}
}

func TestEscapeMarkdownV2(t *testing.T) {
	if got := escapeMarkdownV2("a.b-c(d)"); got != "a\\.b\\-c\\(d\\)" {
		t.Errorf("unexpected escape result: %s", got)
	}
}
