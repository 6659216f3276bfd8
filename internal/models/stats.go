package models

// DailyStats is an aggregate keyed by calendar date (UTC, "2006-01-02").
// Counters are increment-only; the single row for "today" is upserted
// atomically so overlapping runs cannot lose increments.
type DailyStats struct {
	Date               string `json:"date" db:"date"`
	TotalMovers        int    `json:"total_movers" db:"total_movers"`
	Pumps              int    `json:"pumps" db:"pumps"`
	Dumps              int    `json:"dumps" db:"dumps"`
	ResearchCount      int    `json:"research_count" db:"research_count"`
	PredictionsMade    int    `json:"predictions_made" db:"predictions_made"`
	PredictionsCorrect int    `json:"predictions_correct" db:"predictions_correct"`
}
