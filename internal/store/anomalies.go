package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"database/sql"

	"github.com/reliefgrid/reliefgrid/internal/models"
)

func (s *SQLiteStore) InsertAnomaly(ctx context.Context, a *models.AnomalyAlert) error {
	contextData, err := marshalJSON(a.ContextData)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO anomaly_alerts
			(id, anomaly_type, severity, title, description, metric_name, metric_value,
			 expected_lower, expected_upper, anomaly_score, context_data, ai_explanation,
			 status, detected_at, acknowledged_by, acknowledged_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.AnomalyType), string(a.Severity), a.Title, a.Description,
		a.MetricName, a.MetricValue, a.ExpectedRange.Lower, a.ExpectedRange.Upper,
		a.AnomalyScore, contextData, a.AIExplanation, string(a.Status), a.DetectedAt,
		a.AcknowledgedBy, a.AcknowledgedAt)
	if err != nil {
		return fmt.Errorf("error inserting anomaly: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListAnomalies(ctx context.Context, f AnomalyFilter) ([]models.AnomalyAlert, error) {
	query := `
		SELECT id, anomaly_type, severity, title, description, metric_name, metric_value,
		       expected_lower, expected_upper, anomaly_score, context_data, ai_explanation,
		       status, detected_at, acknowledged_by, acknowledged_at
		FROM anomaly_alerts`

	var conds []string
	var args []any
	if f.Status != nil {
		conds = append(conds, "status = ?")
		args = append(args, string(*f.Status))
	}
	if f.Type != nil {
		conds = append(conds, "anomaly_type = ?")
		args = append(args, string(*f.Type))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY detected_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing anomalies: %w", err)
	}
	defer rows.Close()

	var out []models.AnomalyAlert
	for rows.Next() {
		var a models.AnomalyAlert
		var anomalyType, severity, status string
		var desc, metricName, contextData, explanation, ackBy sql.NullString
		var ackAt sql.NullTime
		err := rows.Scan(&a.ID, &anomalyType, &severity, &a.Title, &desc, &metricName,
			&a.MetricValue, &a.ExpectedRange.Lower, &a.ExpectedRange.Upper,
			&a.AnomalyScore, &contextData, &explanation, &status, &a.DetectedAt,
			&ackBy, &ackAt)
		if err != nil {
			return nil, fmt.Errorf("error scanning anomaly: %w", err)
		}
		a.AnomalyType = models.AnomalyType(anomalyType)
		a.Severity = models.Severity(severity)
		a.Description = desc.String
		a.MetricName = metricName.String
		a.ContextData = unmarshalMap(contextData)
		a.AIExplanation = explanation.String
		a.Status = models.AnomalyStatus(status)
		a.AcknowledgedBy = ackBy.String
		if ackAt.Valid {
			t := ackAt.Time
			a.AcknowledgedAt = &t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateAnomalyStatus(ctx context.Context, id string, status models.AnomalyStatus, ackBy string) error {
	var ackAt *time.Time
	if status == models.AnomalyAcked || status == models.AnomalyResolved {
		now := time.Now().UTC()
		ackAt = &now
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE anomaly_alerts SET status = ?, acknowledged_by = ?, acknowledged_at = ?
		WHERE id = ?`, string(status), ackBy, ackAt, id)
	if err != nil {
		return fmt.Errorf("error updating anomaly status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
