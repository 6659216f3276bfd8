package models

import (
	"errors"
	"time"
)

// Prediction directions.
const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// Prediction lifecycle states. A prediction starts pending and transitions
// exactly once to a terminal state when the evaluator reconciles it.
// Expired is a terminal non-evaluated state; no code path currently writes
// it (predictions with no obtainable price data simply stay pending).
const (
	StatusPending   = "pending"
	StatusCorrect   = "correct"
	StatusIncorrect = "incorrect"
	StatusPartial   = "partial"
	StatusExpired   = "expired"
)

// SimilarEvent is an analogue exposed on a prediction for audit. Only
// analogues with realized outcomes are included.
type SimilarEvent struct {
	CoinID    string    `json:"coin_id"`
	Symbol    string    `json:"symbol"`
	Magnitude float64   `json:"magnitude"`
	Outcome   float64   `json:"outcome"`
	Date      time.Time `json:"date"`
}

// Prediction is a directional forecast for a flagged coin. Created when a
// forecast is dispatched; mutated exactly once by the evaluator
// (pending to terminal); never deleted.
type Prediction struct {
	ID            string         `json:"id"`
	CoinID        string         `json:"coin_id"`
	Symbol        string         `json:"symbol"`
	MoverEventID  string         `json:"mover_event_id"`
	Direction     string         `json:"direction"`
	Confidence    float64        `json:"confidence"` // Always within [0.1, 0.95]
	Reasoning     string         `json:"reasoning"`
	HorizonHours  int            `json:"horizon_hours"`
	Status        string         `json:"status"`
	ActualChange  *float64       `json:"actual_change"` // Realized percent change, set at evaluation
	SimilarEvents []SimilarEvent `json:"similar_events"`
	PredictedAt   time.Time      `json:"predicted_at"`
	EvaluatedAt   *time.Time     `json:"evaluated_at"`
}

// Validate checks that all prediction fields are valid.
func (p *Prediction) Validate() error {
	if p.ID == "" {
		return errors.New("prediction ID must not be empty")
	}
	if p.CoinID == "" {
		return errors.New("coin ID must not be empty")
	}
	if p.Direction != DirectionUp && p.Direction != DirectionDown {
		return errors.New("direction must be 'up' or 'down'")
	}
	if p.Confidence < 0.1 || p.Confidence > 0.95 {
		return errors.New("confidence must be between 0.1 and 0.95")
	}
	switch p.Status {
	case StatusPending, StatusCorrect, StatusIncorrect, StatusPartial, StatusExpired:
	default:
		return errors.New("unknown prediction status: " + p.Status)
	}
	if p.HorizonHours <= 0 {
		return errors.New("horizon hours must be positive")
	}
	if p.Status != StatusPending && p.EvaluatedAt == nil {
		return errors.New("terminal prediction must carry an evaluation timestamp")
	}
	return nil
}

// PendingPrediction is the evaluator's working projection: a pending
// prediction joined with the detection price of its originating mover event.
type PendingPrediction struct {
	ID             string
	CoinID         string
	Symbol         string
	MoverEventID   string
	Direction      string
	DetectionPrice float64
	PredictedAt    time.Time
}
