package models

import "time"

// ResearchReport is a persisted catalyst analysis for a mover event,
// produced by the research enrichment client. It is parallel enrichment:
// the prediction engine never reads it.
type ResearchReport struct {
	ID                      string    `json:"id"`
	MoverEventID            string    `json:"mover_event_id"`
	Catalyst                string    `json:"catalyst"`
	CatalystConfidence      float64   `json:"catalyst_confidence"`
	SentimentLabel          string    `json:"sentiment_label"` // bullish, bearish, or neutral
	SentimentScore          float64   `json:"sentiment_score"` // -1.0 to 1.0
	KeyFactors              []string  `json:"key_factors"`
	Risks                   []string  `json:"risks"`
	ContinuationProbability float64   `json:"continuation_probability"`
	Summary                 string    `json:"summary"`
	RecommendedAction       string    `json:"recommended_action"`
	FullAnalysis            string    `json:"full_analysis"` // Raw JSON of the complete analysis
	TokensUsed              int       `json:"tokens_used"`
	CreatedAt               time.Time `json:"created_at"`
}
