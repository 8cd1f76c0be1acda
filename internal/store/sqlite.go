package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteStore{
		db: db,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sources (
			id TEXT PRIMARY KEY,
			source_name TEXT NOT NULL UNIQUE,
			source_type TEXT NOT NULL,
			base_url TEXT,
			is_active INTEGER NOT NULL DEFAULT 1,
			poll_interval_s INTEGER NOT NULL,
			last_polled_at DATETIME,
			last_status TEXT,
			last_error TEXT
		);

		CREATE TABLE IF NOT EXISTS ingested_events (
			id TEXT PRIMARY KEY,
			source_id TEXT NOT NULL,
			external_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			title TEXT,
			description TEXT,
			severity TEXT NOT NULL,
			latitude REAL,
			longitude REAL,
			location_name TEXT,
			raw_payload TEXT,
			ingested_at DATETIME NOT NULL,
			processed INTEGER NOT NULL DEFAULT 0,
			processed_at DATETIME,
			disaster_id TEXT,
			prediction_ids TEXT,
			UNIQUE (source_id, external_id),
			FOREIGN KEY (source_id) REFERENCES sources(id)
		);

		CREATE TABLE IF NOT EXISTS locations (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			city TEXT,
			state TEXT,
			country TEXT,
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS disasters (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			severity TEXT NOT NULL,
			status TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			location_id TEXT NOT NULL,
			start_date DATETIME NOT NULL,
			end_date DATETIME,
			affected_population INTEGER,
			casualties INTEGER,
			estimated_damage REAL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (location_id) REFERENCES locations(id)
		);

		CREATE TABLE IF NOT EXISTS weather_observations (
			id TEXT PRIMARY KEY,
			location_id TEXT,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			temperature_c REAL,
			humidity_pct REAL,
			wind_speed_ms REAL,
			wind_deg REAL,
			pressure_hpa REAL,
			precip_mm REAL,
			visibility_m REAL,
			weather_main TEXT,
			weather_desc TEXT,
			observed_at DATETIME NOT NULL,
			source TEXT,
			raw_payload TEXT
		);

		CREATE TABLE IF NOT EXISTS satellite_observations (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			external_id TEXT NOT NULL UNIQUE,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			brightness REAL,
			frp REAL,
			confidence TEXT,
			satellite TEXT,
			instrument TEXT,
			acq_datetime DATETIME NOT NULL,
			day_night TEXT,
			raw_payload TEXT
		);

		CREATE TABLE IF NOT EXISTS predictions (
			id TEXT PRIMARY KEY,
			disaster_id TEXT NOT NULL,
			location_id TEXT NOT NULL,
			prediction_type TEXT NOT NULL,
			features TEXT,
			confidence_score REAL NOT NULL,
			predicted_severity TEXT,
			predicted_area_km2 REAL,
			ci_lower_km2 REAL,
			ci_upper_km2 REAL,
			predicted_casualties INTEGER,
			predicted_damage_usd REAL,
			model_version TEXT,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (disaster_id) REFERENCES disasters(id)
		);

		CREATE TABLE IF NOT EXISTS alert_notifications (
			id TEXT PRIMARY KEY,
			event_id TEXT NOT NULL,
			disaster_id TEXT,
			prediction_id TEXT,
			recipient TEXT NOT NULL,
			recipient_role TEXT,
			subject TEXT,
			body TEXT,
			severity TEXT NOT NULL,
			channel TEXT NOT NULL,
			status TEXT NOT NULL,
			external_ref TEXT,
			error_message TEXT,
			created_at DATETIME NOT NULL,
			sent_at DATETIME
		);

		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			role TEXT NOT NULL,
			full_name TEXT
		);

		CREATE TABLE IF NOT EXISTS resources (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			quantity REAL NOT NULL,
			priority INTEGER NOT NULL DEFAULT 5,
			status TEXT NOT NULL,
			location_id TEXT,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			disaster_id TEXT,
			expiry_date DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS resource_requests (
			id TEXT PRIMARY KEY,
			victim_id TEXT NOT NULL,
			description TEXT,
			items TEXT,
			resource_type TEXT,
			quantity INTEGER NOT NULL DEFAULT 1,
			priority TEXT NOT NULL,
			status TEXT NOT NULL,
			nlp_classification TEXT,
			urgency_signals TEXT,
			ai_confidence REAL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS anomaly_alerts (
			id TEXT PRIMARY KEY,
			anomaly_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			metric_name TEXT,
			metric_value REAL,
			expected_lower REAL,
			expected_upper REAL,
			anomaly_score REAL,
			context_data TEXT,
			ai_explanation TEXT,
			status TEXT NOT NULL,
			detected_at DATETIME NOT NULL,
			acknowledged_by TEXT,
			acknowledged_at DATETIME
		);

		CREATE TABLE IF NOT EXISTS outcome_tracking (
			id TEXT PRIMARY KEY,
			disaster_id TEXT NOT NULL,
			prediction_id TEXT NOT NULL,
			prediction_type TEXT NOT NULL,
			model_version TEXT,
			logged_by TEXT NOT NULL,
			notes TEXT,
			predicted_severity TEXT,
			actual_severity TEXT,
			severity_match INTEGER,
			predicted_casualties INTEGER,
			actual_casualties INTEGER,
			casualty_error REAL,
			predicted_damage_usd REAL,
			actual_damage_usd REAL,
			damage_error REAL,
			predicted_area_km2 REAL,
			actual_area_km2 REAL,
			area_error REAL,
			created_at DATETIME NOT NULL,
			UNIQUE (disaster_id, prediction_id)
		);

		CREATE TABLE IF NOT EXISTS situation_reports (
			id TEXT PRIMARY KEY,
			report_date DATETIME NOT NULL,
			content TEXT NOT NULL,
			stats TEXT,
			generated_by TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_events_external_id ON ingested_events(external_id);
		CREATE INDEX IF NOT EXISTS idx_events_processed ON ingested_events(processed);
		CREATE INDEX IF NOT EXISTS idx_events_ingested_at ON ingested_events(ingested_at);
		CREATE INDEX IF NOT EXISTS idx_disasters_status ON disasters(status);
		CREATE INDEX IF NOT EXISTS idx_weather_location ON weather_observations(location_id, observed_at);
		CREATE INDEX IF NOT EXISTS idx_predictions_disaster ON predictions(disaster_id);
		CREATE INDEX IF NOT EXISTS idx_resources_status ON resources(status);
		CREATE INDEX IF NOT EXISTS idx_requests_created ON resource_requests(created_at);
		CREATE INDEX IF NOT EXISTS idx_anomalies_status ON anomaly_alerts(status);
		CREATE INDEX IF NOT EXISTS idx_outcomes_type ON outcome_tracking(prediction_type, created_at);
  	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// marshalJSON serializes v for a TEXT column; nil maps become NULL.
func marshalJSON(v any) (sql.NullString, error) {
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return sql.NullString{}, nil
		}
	case []string:
		if t == nil {
			return sql.NullString{}, nil
		}
	case nil:
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("error marshaling json column: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalMap(ns sql.NullString) map[string]any {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(ns.String), &m); err != nil {
		return nil
	}
	return m
}

func unmarshalStrings(ns sql.NullString) []string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		return nil
	}
	return out
}

// chunk splits ids into groups of at most n for IN-clause queries.
func chunk(ids []string, n int) [][]string {
	var out [][]string
	for len(ids) > n {
		out = append(out, ids[:n])
		ids = ids[n:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	b := make([]byte, 0, n*2-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}
