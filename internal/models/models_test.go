package models

import (
	"testing"
	"time"
)

func TestMoverEventValidate(t *testing.T) {
	now := time.Now()
	rel := 13.0

	tests := []struct {
		name    string
		event   MoverEvent
		wantErr bool
	}{
		{
			name: "valid pump",
			event: MoverEvent{
				ID:          "event-1",
				CoinID:      "solana",
				Symbol:      "sol",
				Name:        "Solana",
				MoveType:    MovePump,
				Magnitude:   15.0,
				Price:       142.5,
				MarketCap:   65_000_000_000,
				Volume24h:   2_000_000_000,
				BTCRelative: &rel,
				DetectedAt:  now,
			},
			wantErr: false,
		},
		{
			name: "valid dump",
			event: MoverEvent{
				ID:         "event-2",
				CoinID:     "dogwifhat",
				Symbol:     "wif",
				Name:       "dogwifhat",
				MoveType:   MoveDump,
				Magnitude:  -22.3,
				Price:      1.8,
				DetectedAt: now,
			},
			wantErr: false,
		},
		{
			name: "empty ID",
			event: MoverEvent{
				CoinID:     "solana",
				Symbol:     "sol",
				MoveType:   MovePump,
				Magnitude:  15.0,
				DetectedAt: now,
			},
			wantErr: true,
		},
		{
			name: "pump with negative magnitude",
			event: MoverEvent{
				ID:         "event-3",
				CoinID:     "solana",
				Symbol:     "sol",
				MoveType:   MovePump,
				Magnitude:  -15.0,
				DetectedAt: now,
			},
			wantErr: true,
		},
		{
			name: "unknown move type",
			event: MoverEvent{
				ID:         "event-4",
				CoinID:     "solana",
				Symbol:     "sol",
				MoveType:   "sideways",
				Magnitude:  15.0,
				DetectedAt: now,
			},
			wantErr: true,
		},
		{
			name: "missing detection timestamp",
			event: MoverEvent{
				ID:        "event-5",
				CoinID:    "solana",
				Symbol:    "sol",
				MoveType:  MovePump,
				Magnitude: 15.0,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("MoverEvent.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPredictionValidate(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name       string
		prediction Prediction
		wantErr    bool
	}{
		{
			name: "valid pending prediction",
			prediction: Prediction{
				ID:           "pred-1",
				CoinID:       "solana",
				Symbol:       "sol",
				Direction:    DirectionUp,
				Confidence:   0.52,
				HorizonHours: 24,
				Status:       StatusPending,
				PredictedAt:  now,
			},
			wantErr: false,
		},
		{
			name: "valid evaluated prediction",
			prediction: Prediction{
				ID:           "pred-2",
				CoinID:       "solana",
				Symbol:       "sol",
				Direction:    DirectionDown,
				Confidence:   0.4,
				HorizonHours: 24,
				Status:       StatusCorrect,
				PredictedAt:  now.Add(-25 * time.Hour),
				EvaluatedAt:  &now,
			},
			wantErr: false,
		},
		{
			name: "confidence above clamp",
			prediction: Prediction{
				ID:           "pred-3",
				CoinID:       "solana",
				Symbol:       "sol",
				Direction:    DirectionUp,
				Confidence:   0.96,
				HorizonHours: 24,
				Status:       StatusPending,
				PredictedAt:  now,
			},
			wantErr: true,
		},
		{
			name: "invalid direction",
			prediction: Prediction{
				ID:           "pred-4",
				CoinID:       "solana",
				Symbol:       "sol",
				Direction:    "flat",
				Confidence:   0.5,
				HorizonHours: 24,
				Status:       StatusPending,
				PredictedAt:  now,
			},
			wantErr: true,
		},
		{
			name: "terminal status without evaluation timestamp",
			prediction: Prediction{
				ID:           "pred-5",
				CoinID:       "solana",
				Symbol:       "sol",
				Direction:    DirectionUp,
				Confidence:   0.5,
				HorizonHours: 24,
				Status:       StatusIncorrect,
				PredictedAt:  now,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.prediction.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Prediction.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMarketSnapshotValidate(t *testing.T) {
	snap := MarketSnapshot{
		Coins:     []CoinMarketSample{{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin"}},
		Timestamp: time.Now(),
	}
	if err := snap.Validate(); err != nil {
		t.Errorf("expected valid snapshot, got %v", err)
	}

	snap.Timestamp = time.Time{}
	if err := snap.Validate(); err == nil {
		t.Error("expected error for zero timestamp")
	}
}
