package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/reliefgrid/reliefgrid/internal/models"
)

func (s *SQLiteStore) InsertOutcome(ctx context.Context, o *models.Outcome) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outcome_tracking
			(id, disaster_id, prediction_id, prediction_type, model_version, logged_by, notes,
			 predicted_severity, actual_severity, severity_match,
			 predicted_casualties, actual_casualties, casualty_error,
			 predicted_damage_usd, actual_damage_usd, damage_error,
			 predicted_area_km2, actual_area_km2, area_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.DisasterID, o.PredictionID, string(o.PredictionType), o.ModelVersion,
		o.LoggedBy, o.Notes,
		severityString(o.PredictedSeverity), severityString(o.ActualSeverity), o.SeverityMatch,
		o.PredictedCasualties, o.ActualCasualties, o.CasualtyError,
		o.PredictedDamageUSD, o.ActualDamageUSD, o.DamageError,
		o.PredictedAreaKm2, o.ActualAreaKm2, o.AreaError, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("error inserting outcome: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListOutcomesByType(ctx context.Context, pt models.PredictionType, since time.Time) ([]models.Outcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, disaster_id, prediction_id, prediction_type, model_version, logged_by, notes,
		       predicted_severity, actual_severity, severity_match,
		       predicted_casualties, actual_casualties, casualty_error,
		       predicted_damage_usd, actual_damage_usd, damage_error,
		       predicted_area_km2, actual_area_km2, area_error, created_at
		FROM outcome_tracking
		WHERE prediction_type = ? AND created_at >= ?
		ORDER BY created_at`, string(pt), since)
	if err != nil {
		return nil, fmt.Errorf("error listing outcomes: %w", err)
	}
	defer rows.Close()

	var out []models.Outcome
	for rows.Next() {
		var o models.Outcome
		var predType string
		var modelVersion, notes, predSev, actSev sql.NullString
		err := rows.Scan(&o.ID, &o.DisasterID, &o.PredictionID, &predType, &modelVersion,
			&o.LoggedBy, &notes,
			&predSev, &actSev, &o.SeverityMatch,
			&o.PredictedCasualties, &o.ActualCasualties, &o.CasualtyError,
			&o.PredictedDamageUSD, &o.ActualDamageUSD, &o.DamageError,
			&o.PredictedAreaKm2, &o.ActualAreaKm2, &o.AreaError, &o.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("error scanning outcome: %w", err)
		}
		o.PredictionType = models.PredictionType(predType)
		o.ModelVersion = modelVersion.String
		o.Notes = notes.String
		o.PredictedSeverity = severityPtr(predSev)
		o.ActualSeverity = severityPtr(actSev)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) OutcomePredictionIDs(ctx context.Context, disasterID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT prediction_id FROM outcome_tracking WHERE disaster_id = ?`, disasterID)
	if err != nil {
		return nil, fmt.Errorf("error listing outcome prediction ids: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning outcome prediction id: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

func severityString(s *models.Severity) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

func severityPtr(ns sql.NullString) *models.Severity {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	sv := models.Severity(ns.String)
	return &sv
}
