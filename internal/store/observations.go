package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/reliefgrid/reliefgrid/internal/models"
)

func (s *SQLiteStore) InsertWeather(ctx context.Context, obs *models.WeatherObservation) error {
	raw, err := marshalJSON(obs.RawPayload)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO weather_observations
			(id, location_id, latitude, longitude, temperature_c, humidity_pct,
			 wind_speed_ms, wind_deg, pressure_hpa, precip_mm, visibility_m,
			 weather_main, weather_desc, observed_at, source, raw_payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		obs.ID, obs.LocationID, obs.Latitude, obs.Longitude, obs.TemperatureC,
		obs.HumidityPct, obs.WindSpeedMS, obs.WindDeg, obs.PressureHPa, obs.PrecipMM,
		obs.VisibilityM, obs.WeatherMain, obs.WeatherDesc, obs.ObservedAt, obs.Source, raw)
	if err != nil {
		return fmt.Errorf("error inserting weather observation: %w", err)
	}
	return nil
}

// LatestWeather returns the newest observation for a location, or
// ErrNotFound when none has been recorded.
func (s *SQLiteStore) LatestWeather(ctx context.Context, locationID string) (*models.WeatherObservation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, location_id, latitude, longitude, temperature_c, humidity_pct,
		       wind_speed_ms, wind_deg, pressure_hpa, precip_mm, visibility_m,
		       weather_main, weather_desc, observed_at, source, raw_payload
		FROM weather_observations
		WHERE location_id = ?
		ORDER BY observed_at DESC LIMIT 1`, locationID)

	var obs models.WeatherObservation
	var main, desc, source, raw sql.NullString
	err := row.Scan(&obs.ID, &obs.LocationID, &obs.Latitude, &obs.Longitude,
		&obs.TemperatureC, &obs.HumidityPct, &obs.WindSpeedMS, &obs.WindDeg,
		&obs.PressureHPa, &obs.PrecipMM, &obs.VisibilityM, &main, &desc,
		&obs.ObservedAt, &source, &raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting latest weather: %w", err)
	}
	obs.WeatherMain = main.String
	obs.WeatherDesc = desc.String
	obs.Source = source.String
	obs.RawPayload = unmarshalMap(raw)
	return &obs, nil
}

func (s *SQLiteStore) InsertHotspots(ctx context.Context, rows []models.SatelliteObservation) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	inserted := 0
	for _, batch := range chunkHotspots(rows, insertBatchSize) {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return inserted, fmt.Errorf("error starting transaction: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO satellite_observations
				(id, source, external_id, latitude, longitude, brightness, frp,
				 confidence, satellite, instrument, acq_datetime, day_night, raw_payload)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			tx.Rollback()
			return inserted, fmt.Errorf("error preparing hotspot insert: %w", err)
		}
		for _, h := range batch {
			raw, err := marshalJSON(h.RawPayload)
			if err != nil {
				stmt.Close()
				tx.Rollback()
				return inserted, err
			}
			res, err := stmt.ExecContext(ctx,
				h.ID, h.Source, h.ExternalID, h.Latitude, h.Longitude, h.Brightness,
				h.FRP, h.Confidence, h.Satellite, h.Instrument, h.AcqDatetime, h.DayNight, raw)
			if err != nil {
				stmt.Close()
				tx.Rollback()
				return inserted, fmt.Errorf("error inserting hotspot %s: %w", h.ExternalID, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				inserted++
			}
		}
		stmt.Close()
		if err := tx.Commit(); err != nil {
			return inserted, fmt.Errorf("error committing hotspots: %w", err)
		}
	}
	return inserted, nil
}

func (s *SQLiteStore) ExistingHotspotIDs(ctx context.Context, externalIDs []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	for _, batch := range chunk(externalIDs, dedupChunkSize) {
		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		query := fmt.Sprintf(
			"SELECT external_id FROM satellite_observations WHERE external_id IN (%s)",
			placeholders(len(batch)))
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("error querying existing hotspots: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			existing[id] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return existing, nil
}

func (s *SQLiteStore) CountHotspotsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM satellite_observations WHERE acq_datetime >= ?`, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("error counting hotspots: %w", err)
	}
	return n, nil
}

// HotspotSummaryForArea aggregates the 100 newest observations inside a
// ±radiusDeg box around the coordinate.
func (s *SQLiteStore) HotspotSummaryForArea(ctx context.Context, lat, lon, radiusDeg float64) (models.HotspotSummary, error) {
	var sum models.HotspotSummary
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(AVG(COALESCE(frp, 0)), 0), COALESCE(MAX(COALESCE(brightness, 0)), 0)
		FROM (
			SELECT frp, brightness FROM satellite_observations
			WHERE latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?
			ORDER BY acq_datetime DESC LIMIT 100
		)`,
		lat-radiusDeg, lat+radiusDeg, lon-radiusDeg, lon+radiusDeg).
		Scan(&sum.Count, &sum.AvgFRP, &sum.MaxBrightness)
	if err != nil {
		return models.HotspotSummary{}, fmt.Errorf("error summarizing hotspots: %w", err)
	}
	return sum, nil
}

func chunkHotspots(rows []models.SatelliteObservation, n int) [][]models.SatelliteObservation {
	var out [][]models.SatelliteObservation
	for len(rows) > n {
		out = append(out, rows[:n])
		rows = rows[n:]
	}
	if len(rows) > 0 {
		out = append(out, rows)
	}
	return out
}
