// Package store implements the event/prediction store on PostgreSQL.
//
// Writes that may see the same record twice (coins, daily stats) are
// idempotent upserts, and batch inserts are chunked so one failed chunk
// never corrupts or skips the rest. The daily-stats upsert increments its
// counters inside a single statement, so overlapping runs cannot lose
// increments.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/coinsentry/engine/internal/logger"
	"github.com/coinsentry/engine/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// batchSize is the chunk size for multi-row inserts.
const batchSize = 100

// snapshotLimit caps how many coins get a persisted price snapshot per
// cycle; the long tail is not worth the storage.
const snapshotLimit = 500

// Config holds PostgreSQL connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// Store wraps the database handle with the operations the pipelines need.
type Store struct {
	db *sqlx.DB
}

// Connect opens a connection pool, verifies it, and ensures the schema
// exists.
func Connect(cfg Config) (*Store, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	logger.Info("Connected to PostgreSQL at %s:%d/%s", cfg.Host, cfg.Port, cfg.Database)
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// ─── Coins and price snapshots ───────────────────────────────────────────────

// UpsertCoins writes coin identity records in chunks, updating symbol and
// name on conflict. Safe to call with the same coins every cycle.
func (s *Store) UpsertCoins(ctx context.Context, coins []models.CoinMarketSample) error {
	for _, chunk := range chunked(len(coins)) {
		batch := coins[chunk.start:chunk.end]
		args := make([]any, 0, len(batch)*3)
		rows := make([]string, 0, len(batch))
		for i, coin := range batch {
			rows = append(rows, fmt.Sprintf("($%d, $%d, $%d, TRUE, NOW())", i*3+1, i*3+2, i*3+3))
			args = append(args, coin.ID, coin.Symbol, coin.Name)
		}

		query := `
			INSERT INTO coins (id, symbol, name, is_active, updated_at)
			VALUES ` + strings.Join(rows, ", ") + `
			ON CONFLICT (id) DO UPDATE SET
				symbol = EXCLUDED.symbol,
				name = EXCLUDED.name,
				is_active = TRUE,
				updated_at = NOW()`

		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to upsert coins batch at %d: %w", chunk.start, err)
		}
	}
	return nil
}

// InsertPriceSnapshots records the per-coin price rows for one polling pass.
// Only the first snapshotLimit coins are persisted.
func (s *Store) InsertPriceSnapshots(ctx context.Context, coins []models.CoinMarketSample, recordedAt time.Time) error {
	if len(coins) > snapshotLimit {
		coins = coins[:snapshotLimit]
	}

	const cols = 8
	for _, chunk := range chunked(len(coins)) {
		batch := coins[chunk.start:chunk.end]
		args := make([]any, 0, len(batch)*cols)
		rows := make([]string, 0, len(batch))
		for i, coin := range batch {
			base := i * cols
			placeholders := make([]string, cols)
			for j := range placeholders {
				placeholders[j] = fmt.Sprintf("$%d", base+j+1)
			}
			rows = append(rows, "("+strings.Join(placeholders, ", ")+")")
			args = append(args,
				coin.ID, coin.Price, coin.Volume24h, coin.MarketCap,
				coin.Change1h, coin.Change24h, coin.Change7d, recordedAt,
			)
		}

		query := `
			INSERT INTO price_snapshots
				(coin_id, price, volume_24h, market_cap, price_change_1h, price_change_24h, price_change_7d, recorded_at)
			VALUES ` + strings.Join(rows, ", ")

		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert price snapshots batch at %d: %w", chunk.start, err)
		}
	}
	return nil
}

// ─── Mover events ────────────────────────────────────────────────────────────

type moverEventRow struct {
	ID          string          `db:"id"`
	CoinID      string          `db:"coin_id"`
	Symbol      string          `db:"symbol"`
	Name        string          `db:"name"`
	MoveType    string          `db:"move_type"`
	Magnitude   float64         `db:"magnitude"`
	Price       float64         `db:"price"`
	MarketCap   float64         `db:"market_cap"`
	Volume24h   float64         `db:"volume_24h"`
	VolumeRatio *float64        `db:"volume_ratio"`
	BTCRelative *float64        `db:"btc_relative"`
	Rank        *int            `db:"rank"`
	Metadata    json.RawMessage `db:"metadata"`
	Outcome24h  *float64        `db:"outcome_24h"`
	DetectedAt  time.Time       `db:"detected_at"`
}

func (r moverEventRow) toModel() models.MoverEvent {
	event := models.MoverEvent{
		ID:          r.ID,
		CoinID:      r.CoinID,
		Symbol:      r.Symbol,
		Name:        r.Name,
		MoveType:    r.MoveType,
		Magnitude:   r.Magnitude,
		Price:       r.Price,
		MarketCap:   r.MarketCap,
		Volume24h:   r.Volume24h,
		VolumeRatio: r.VolumeRatio,
		BTCRelative: r.BTCRelative,
		Rank:        r.Rank,
		Outcome24h:  r.Outcome24h,
		DetectedAt:  r.DetectedAt,
	}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &event.Metadata); err != nil {
			logger.Warn("Failed to decode metadata for event %s: %v", r.ID, err)
		}
	}
	return event
}

// InsertMoverEvents persists detected events. Events are validated before
// insert; an invalid event fails the whole call so nothing half-written
// reaches the alert path.
func (s *Store) InsertMoverEvents(ctx context.Context, events []models.MoverEvent) error {
	for i := range events {
		if err := events[i].Validate(); err != nil {
			return fmt.Errorf("invalid mover event %s: %w", events[i].ID, err)
		}
	}

	const query = `
		INSERT INTO mover_events
			(id, coin_id, symbol, name, move_type, magnitude, price, market_cap,
			 volume_24h, volume_ratio, btc_relative, rank, metadata, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	for _, event := range events {
		metadata, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata for %s: %w", event.ID, err)
		}
		_, err = s.db.ExecContext(ctx, query,
			event.ID, event.CoinID, event.Symbol, event.Name, event.MoveType,
			event.Magnitude, event.Price, event.MarketCap, event.Volume24h,
			event.VolumeRatio, event.BTCRelative, event.Rank, metadata, event.DetectedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert mover event %s: %w", event.ID, err)
		}
	}
	return nil
}

// MoversSince returns events detected after since, newest first. Direction
// "up" keeps positive magnitudes, "down" negative, anything else both.
func (s *Store) MoversSince(ctx context.Context, since time.Time, direction string, limit int) ([]models.MoverEvent, error) {
	query := `
		SELECT id, coin_id, symbol, name, move_type, magnitude, price, market_cap,
		       volume_24h, volume_ratio, btc_relative, rank, metadata, outcome_24h, detected_at
		FROM mover_events
		WHERE detected_at >= $1`
	args := []any{since}

	switch direction {
	case "up":
		query += " AND magnitude > 0"
	case "down":
		query += " AND magnitude < 0"
	}
	query += " ORDER BY detected_at DESC LIMIT $2"
	args = append(args, limit)

	var rows []moverEventRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query movers: %w", err)
	}

	events := make([]models.MoverEvent, 0, len(rows))
	for _, r := range rows {
		events = append(events, r.toModel())
	}
	return events, nil
}

// CountMoversSince counts events detected after since.
func (s *Store) CountMoversSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM mover_events WHERE detected_at >= $1`, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count movers: %w", err)
	}
	return count, nil
}

// RecentMoverCoinIDs returns the distinct coins with an event after since.
// Used to re-seed the in-memory cooldown guard across restarts.
func (s *Store) RecentMoverCoinIDs(ctx context.Context, since time.Time) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids,
		`SELECT DISTINCT coin_id FROM mover_events WHERE detected_at >= $1`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent mover coins: %w", err)
	}
	return ids, nil
}

// HistoricalEvents returns matured events of one move type for similarity
// matching, newest first.
func (s *Store) HistoricalEvents(ctx context.Context, moveType string, since time.Time, limit int) ([]models.HistoricalEvent, error) {
	type row struct {
		EventID    string    `db:"id"`
		CoinID     string    `db:"coin_id"`
		Symbol     string    `db:"symbol"`
		MoveType   string    `db:"move_type"`
		Magnitude  float64   `db:"magnitude"`
		MarketCap  float64   `db:"market_cap"`
		DetectedAt time.Time `db:"detected_at"`
		Outcome24h *float64  `db:"outcome_24h"`
	}

	var rows []row
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, coin_id, symbol, move_type, magnitude, market_cap, detected_at, outcome_24h
		FROM mover_events
		WHERE move_type = $1 AND detected_at >= $2
		ORDER BY detected_at DESC
		LIMIT $3`,
		moveType, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query historical events: %w", err)
	}

	events := make([]models.HistoricalEvent, 0, len(rows))
	for _, r := range rows {
		events = append(events, models.HistoricalEvent(r))
	}
	return events, nil
}

// SetEventOutcome attaches the realized change to a mover event. Write-once:
// an already-set outcome is left alone.
func (s *Store) SetEventOutcome(ctx context.Context, eventID string, outcome float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE mover_events SET outcome_24h = $1
		WHERE id = $2 AND outcome_24h IS NULL`,
		outcome, eventID)
	if err != nil {
		return fmt.Errorf("failed to set outcome for event %s: %w", eventID, err)
	}
	return nil
}

// ─── Predictions ─────────────────────────────────────────────────────────────

// InsertPrediction persists a new prediction.
func (s *Store) InsertPrediction(ctx context.Context, p models.Prediction) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid prediction: %w", err)
	}

	similar, err := json.Marshal(p.SimilarEvents)
	if err != nil {
		return fmt.Errorf("failed to encode similar events: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO predictions
			(id, coin_id, symbol, mover_event_id, direction, confidence, reasoning,
			 horizon_hours, status, similar_events, predicted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.CoinID, p.Symbol, p.MoverEventID, p.Direction, p.Confidence,
		p.Reasoning, p.HorizonHours, p.Status, similar, p.PredictedAt)
	if err != nil {
		return fmt.Errorf("failed to insert prediction %s: %w", p.ID, err)
	}
	return nil
}

// PendingPredictionsBefore selects pending predictions created at or before
// cutoff, joined with the detection price of their originating event.
func (s *Store) PendingPredictionsBefore(ctx context.Context, cutoff time.Time) ([]models.PendingPrediction, error) {
	type row struct {
		ID             string    `db:"id"`
		CoinID         string    `db:"coin_id"`
		Symbol         string    `db:"symbol"`
		MoverEventID   string    `db:"mover_event_id"`
		Direction      string    `db:"direction"`
		DetectionPrice float64   `db:"detection_price"`
		PredictedAt    time.Time `db:"predicted_at"`
	}

	var rows []row
	err := s.db.SelectContext(ctx, &rows, `
		SELECT p.id, p.coin_id, p.symbol, p.mover_event_id, p.direction,
		       e.price AS detection_price, p.predicted_at
		FROM predictions p
		JOIN mover_events e ON e.id = p.mover_event_id
		WHERE p.status = $1 AND p.predicted_at <= $2
		ORDER BY p.predicted_at ASC`,
		models.StatusPending, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending predictions: %w", err)
	}

	pending := make([]models.PendingPrediction, 0, len(rows))
	for _, r := range rows {
		pending = append(pending, models.PendingPrediction(r))
	}
	return pending, nil
}

// ResolvePrediction moves a prediction from pending to a terminal status.
// The status guard makes the transition happen at most once.
func (s *Store) ResolvePrediction(ctx context.Context, id, status string, actualChange float64, evaluatedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE predictions
		SET status = $1, actual_change = $2, evaluated_at = $3
		WHERE id = $4 AND status = $5`,
		status, actualChange, evaluatedAt, id, models.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to resolve prediction %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("prediction %s: %w", id, ErrNotFound)
	}
	return nil
}

// PredictionStatusCounts returns the number of predictions per status.
func (s *Store) PredictionStatusCounts(ctx context.Context) (map[string]int, error) {
	return s.statusCounts(ctx, time.Time{})
}

// PredictionStatusCountsSince is the time-bounded variant used by the stats
// API.
func (s *Store) PredictionStatusCountsSince(ctx context.Context, since time.Time) (map[string]int, error) {
	return s.statusCounts(ctx, since)
}

func (s *Store) statusCounts(ctx context.Context, since time.Time) (map[string]int, error) {
	type row struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}

	query := `SELECT status, COUNT(*) AS count FROM predictions`
	var args []any
	if !since.IsZero() {
		query += ` WHERE predicted_at >= $1`
		args = append(args, since)
	}
	query += ` GROUP BY status`

	var rows []row
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to count prediction statuses: %w", err)
	}

	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// ─── Research reports ────────────────────────────────────────────────────────

// InsertResearchReport persists a research report.
func (s *Store) InsertResearchReport(ctx context.Context, r models.ResearchReport) error {
	keyFactors, err := json.Marshal(r.KeyFactors)
	if err != nil {
		return fmt.Errorf("failed to encode key factors: %w", err)
	}
	risks, err := json.Marshal(r.Risks)
	if err != nil {
		return fmt.Errorf("failed to encode risks: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO research_reports
			(id, mover_event_id, catalyst, catalyst_confidence, sentiment_label,
			 sentiment_score, key_factors, risks, continuation_probability,
			 summary, recommended_action, full_analysis, tokens_used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		r.ID, r.MoverEventID, r.Catalyst, r.CatalystConfidence, r.SentimentLabel,
		r.SentimentScore, keyFactors, risks, r.ContinuationProbability,
		r.Summary, r.RecommendedAction, r.FullAnalysis, r.TokensUsed, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert research report for event %s: %w", r.MoverEventID, err)
	}
	return nil
}

type researchRow struct {
	ID                      string          `db:"id"`
	MoverEventID            string          `db:"mover_event_id"`
	Catalyst                string          `db:"catalyst"`
	CatalystConfidence      float64         `db:"catalyst_confidence"`
	SentimentLabel          string          `db:"sentiment_label"`
	SentimentScore          float64         `db:"sentiment_score"`
	KeyFactors              json.RawMessage `db:"key_factors"`
	Risks                   json.RawMessage `db:"risks"`
	ContinuationProbability float64         `db:"continuation_probability"`
	Summary                 string          `db:"summary"`
	RecommendedAction       string          `db:"recommended_action"`
	FullAnalysis            string          `db:"full_analysis"`
	TokensUsed              int             `db:"tokens_used"`
	CreatedAt               time.Time       `db:"created_at"`
}

// ResearchReportByEvent returns the research report for a mover event, or
// ErrNotFound.
func (s *Store) ResearchReportByEvent(ctx context.Context, eventID string) (*models.ResearchReport, error) {
	var r researchRow
	err := s.db.GetContext(ctx, &r, `
		SELECT id, mover_event_id, catalyst, catalyst_confidence, sentiment_label,
		       sentiment_score, key_factors, risks, continuation_probability,
		       summary, recommended_action, full_analysis, tokens_used, created_at
		FROM research_reports
		WHERE mover_event_id = $1`,
		eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query research report: %w", err)
	}

	report := models.ResearchReport{
		ID:                      r.ID,
		MoverEventID:            r.MoverEventID,
		Catalyst:                r.Catalyst,
		CatalystConfidence:      r.CatalystConfidence,
		SentimentLabel:          r.SentimentLabel,
		SentimentScore:          r.SentimentScore,
		ContinuationProbability: r.ContinuationProbability,
		Summary:                 r.Summary,
		RecommendedAction:       r.RecommendedAction,
		FullAnalysis:            r.FullAnalysis,
		TokensUsed:              r.TokensUsed,
		CreatedAt:               r.CreatedAt,
	}
	if len(r.KeyFactors) > 0 {
		_ = json.Unmarshal(r.KeyFactors, &report.KeyFactors)
	}
	if len(r.Risks) > 0 {
		_ = json.Unmarshal(r.Risks, &report.Risks)
	}
	return &report, nil
}

// CountResearchSince counts research reports created after since. Used to
// enforce the daily research budget.
func (s *Store) CountResearchSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM research_reports WHERE created_at >= $1`, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count research reports: %w", err)
	}
	return count, nil
}

// ─── Daily stats ─────────────────────────────────────────────────────────────

// IncrementDailyStats adds the delta counters to the row for date, creating
// it if needed. The increment happens inside one statement so concurrent
// runs cannot double-read a stale value.
func (s *Store) IncrementDailyStats(ctx context.Context, date string, delta models.DailyStats) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_stats
			(date, total_movers, pumps, dumps, research_count, predictions_made, predictions_correct)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (date) DO UPDATE SET
			total_movers = daily_stats.total_movers + EXCLUDED.total_movers,
			pumps = daily_stats.pumps + EXCLUDED.pumps,
			dumps = daily_stats.dumps + EXCLUDED.dumps,
			research_count = daily_stats.research_count + EXCLUDED.research_count,
			predictions_made = daily_stats.predictions_made + EXCLUDED.predictions_made,
			predictions_correct = daily_stats.predictions_correct + EXCLUDED.predictions_correct`,
		date, delta.TotalMovers, delta.Pumps, delta.Dumps,
		delta.ResearchCount, delta.PredictionsMade, delta.PredictionsCorrect)
	if err != nil {
		return fmt.Errorf("failed to increment daily stats for %s: %w", date, err)
	}
	return nil
}

// DailyStatsSince returns daily aggregate rows from since (inclusive),
// newest first.
func (s *Store) DailyStatsSince(ctx context.Context, since string) ([]models.DailyStats, error) {
	var rows []models.DailyStats
	err := s.db.SelectContext(ctx, &rows, `
		SELECT to_char(date, 'YYYY-MM-DD') AS date, total_movers, pumps, dumps,
		       research_count, predictions_made, predictions_correct
		FROM daily_stats
		WHERE date >= $1
		ORDER BY date DESC`,
		since)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily stats: %w", err)
	}
	return rows, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

type span struct{ start, end int }

// chunked splits [0, n) into batchSize-wide spans.
func chunked(n int) []span {
	var spans []span
	for start := 0; start < n; start += batchSize {
		end := start + batchSize
		if end > n {
			end = n
		}
		spans = append(spans, span{start, end})
	}
	return spans
}
