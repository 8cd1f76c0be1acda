package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/reliefgrid/reliefgrid/internal/models"
)

func (s *SQLiteStore) InsertPrediction(ctx context.Context, p *models.Prediction) error {
	features, err := marshalJSON(p.Features)
	if err != nil {
		return err
	}
	var severity *string
	if p.PredictedSeverity != nil {
		sv := string(*p.PredictedSeverity)
		severity = &sv
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO predictions
			(id, disaster_id, location_id, prediction_type, features, confidence_score,
			 predicted_severity, predicted_area_km2, ci_lower_km2, ci_upper_km2,
			 predicted_casualties, predicted_damage_usd, model_version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.DisasterID, p.LocationID, string(p.PredictionType), features,
		p.ConfidenceScore, severity, p.PredictedAreaKm2, p.CILowerKm2, p.CIUpperKm2,
		p.PredictedCasualties, p.PredictedDamageUSD, p.ModelVersion, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("error inserting prediction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListPredictionsForDisaster(ctx context.Context, disasterID string) ([]models.Prediction, error) {
	return s.listPredictions(ctx, `WHERE disaster_id = ?`, disasterID)
}

func (s *SQLiteStore) ListPredictionsSince(ctx context.Context, since time.Time) ([]models.Prediction, error) {
	return s.listPredictions(ctx, `WHERE created_at >= ?`, since)
}

func (s *SQLiteStore) listPredictions(ctx context.Context, where string, arg any) ([]models.Prediction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, disaster_id, location_id, prediction_type, features, confidence_score,
		       predicted_severity, predicted_area_km2, ci_lower_km2, ci_upper_km2,
		       predicted_casualties, predicted_damage_usd, model_version, created_at
		FROM predictions `+where+` ORDER BY created_at`, arg)
	if err != nil {
		return nil, fmt.Errorf("error listing predictions: %w", err)
	}
	defer rows.Close()

	var out []models.Prediction
	for rows.Next() {
		var p models.Prediction
		var predType string
		var features, severity, modelVersion sql.NullString
		err := rows.Scan(&p.ID, &p.DisasterID, &p.LocationID, &predType, &features,
			&p.ConfidenceScore, &severity, &p.PredictedAreaKm2, &p.CILowerKm2,
			&p.CIUpperKm2, &p.PredictedCasualties, &p.PredictedDamageUSD,
			&modelVersion, &p.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("error scanning prediction: %w", err)
		}
		p.PredictionType = models.PredictionType(predType)
		p.Features = unmarshalMap(features)
		if severity.Valid {
			sv := models.Severity(severity.String)
			p.PredictedSeverity = &sv
		}
		p.ModelVersion = modelVersion.String
		out = append(out, p)
	}
	return out, rows.Err()
}
