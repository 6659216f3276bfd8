package store

// schema is applied on startup. Every statement is idempotent so repeated
// starts against the same database are safe.
const schema = `
CREATE TABLE IF NOT EXISTS coins (
	id         TEXT PRIMARY KEY,
	symbol     TEXT NOT NULL,
	name       TEXT NOT NULL,
	is_active  BOOLEAN NOT NULL DEFAULT TRUE,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS price_snapshots (
	id               BIGSERIAL PRIMARY KEY,
	coin_id          TEXT NOT NULL REFERENCES coins(id),
	price            DOUBLE PRECISION NOT NULL,
	volume_24h       DOUBLE PRECISION NOT NULL,
	market_cap       DOUBLE PRECISION NOT NULL,
	price_change_1h  DOUBLE PRECISION,
	price_change_24h DOUBLE PRECISION,
	price_change_7d  DOUBLE PRECISION,
	recorded_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_price_snapshots_coin_time
	ON price_snapshots (coin_id, recorded_at DESC);

CREATE TABLE IF NOT EXISTS mover_events (
	id           TEXT PRIMARY KEY,
	coin_id      TEXT NOT NULL REFERENCES coins(id),
	symbol       TEXT NOT NULL,
	name         TEXT NOT NULL,
	move_type    TEXT NOT NULL,
	magnitude    DOUBLE PRECISION NOT NULL,
	price        DOUBLE PRECISION NOT NULL,
	market_cap   DOUBLE PRECISION NOT NULL,
	volume_24h   DOUBLE PRECISION NOT NULL,
	volume_ratio DOUBLE PRECISION,
	btc_relative DOUBLE PRECISION,
	rank         INTEGER,
	metadata     JSONB,
	outcome_24h  DOUBLE PRECISION,
	detected_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_mover_events_detected
	ON mover_events (detected_at DESC);
CREATE INDEX IF NOT EXISTS idx_mover_events_type_detected
	ON mover_events (move_type, detected_at DESC);

CREATE TABLE IF NOT EXISTS predictions (
	id             TEXT PRIMARY KEY,
	coin_id        TEXT NOT NULL REFERENCES coins(id),
	symbol         TEXT NOT NULL,
	mover_event_id TEXT NOT NULL REFERENCES mover_events(id),
	direction      TEXT NOT NULL,
	confidence     DOUBLE PRECISION NOT NULL,
	reasoning      TEXT NOT NULL,
	horizon_hours  INTEGER NOT NULL,
	status         TEXT NOT NULL DEFAULT 'pending',
	similar_events JSONB,
	actual_change  DOUBLE PRECISION,
	predicted_at   TIMESTAMPTZ NOT NULL,
	evaluated_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_predictions_status_time
	ON predictions (status, predicted_at);

CREATE TABLE IF NOT EXISTS research_reports (
	id                       TEXT PRIMARY KEY,
	mover_event_id           TEXT NOT NULL REFERENCES mover_events(id),
	catalyst                 TEXT NOT NULL,
	catalyst_confidence      DOUBLE PRECISION NOT NULL,
	sentiment_label          TEXT NOT NULL,
	sentiment_score          DOUBLE PRECISION NOT NULL,
	key_factors              JSONB,
	risks                    JSONB,
	continuation_probability DOUBLE PRECISION NOT NULL,
	summary                  TEXT NOT NULL,
	recommended_action       TEXT NOT NULL,
	full_analysis            TEXT NOT NULL,
	tokens_used              INTEGER NOT NULL DEFAULT 0,
	created_at               TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_research_reports_event
	ON research_reports (mover_event_id);

CREATE TABLE IF NOT EXISTS daily_stats (
	date                DATE PRIMARY KEY,
	total_movers        INTEGER NOT NULL DEFAULT 0,
	pumps               INTEGER NOT NULL DEFAULT 0,
	dumps               INTEGER NOT NULL DEFAULT 0,
	research_count      INTEGER NOT NULL DEFAULT 0,
	predictions_made    INTEGER NOT NULL DEFAULT 0,
	predictions_correct INTEGER NOT NULL DEFAULT 0
);
`

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(schema)
	return err
}
