package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/reliefgrid/reliefgrid/internal/models"
)

func (s *SQLiteStore) InsertAlert(ctx context.Context, a *models.AlertNotification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alert_notifications
			(id, event_id, disaster_id, prediction_id, recipient, recipient_role,
			 subject, body, severity, channel, status, external_ref, error_message,
			 created_at, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.EventID, a.DisasterID, a.PredictionID, a.Recipient, a.RecipientRole,
		a.Subject, a.Body, string(a.Severity), string(a.Channel), string(a.Status),
		a.ExternalRef, a.ErrorMessage, a.CreatedAt, a.SentAt)
	if err != nil {
		return fmt.Errorf("error inserting alert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateAlertDelivery(ctx context.Context, id string, status models.AlertStatus, externalRef, errMsg string, sentAt *time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE alert_notifications
		SET status = ?, external_ref = ?, error_message = ?, sent_at = ?
		WHERE id = ?`, string(status), externalRef, errMsg, sentAt, id)
	if err != nil {
		return fmt.Errorf("error updating alert delivery: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListAlerts(ctx context.Context, limit int) ([]models.AlertNotification, error) {
	query := `
		SELECT id, event_id, disaster_id, prediction_id, recipient, recipient_role,
		       subject, body, severity, channel, status, external_ref, error_message,
		       created_at, sent_at
		FROM alert_notifications ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing alerts: %w", err)
	}
	defer rows.Close()

	var out []models.AlertNotification
	for rows.Next() {
		var a models.AlertNotification
		var severity, channel, status string
		var role, subject, body, ref, errMsg sql.NullString
		var sentAt sql.NullTime
		err := rows.Scan(&a.ID, &a.EventID, &a.DisasterID, &a.PredictionID,
			&a.Recipient, &role, &subject, &body, &severity, &channel, &status,
			&ref, &errMsg, &a.CreatedAt, &sentAt)
		if err != nil {
			return nil, fmt.Errorf("error scanning alert: %w", err)
		}
		a.RecipientRole = role.String
		a.Subject = subject.String
		a.Body = body.String
		a.Severity = models.Severity(severity)
		a.Channel = models.AlertChannel(channel)
		a.Status = models.AlertStatus(status)
		a.ExternalRef = ref.String
		a.ErrorMessage = errMsg.String
		if sentAt.Valid {
			t := sentAt.Time
			a.SentAt = &t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CountAlertsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM alert_notifications WHERE created_at >= ?`, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("error counting alerts: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) InsertRecipient(ctx context.Context, r *models.Recipient) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, role, full_name) VALUES (?, ?, ?, ?)`,
		r.ID, r.Email, r.Role, r.FullName)
	if err != nil {
		return fmt.Errorf("error inserting recipient: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListRecipientsByRoles(ctx context.Context, roles []string) ([]models.Recipient, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	args := make([]any, len(roles))
	for i, r := range roles {
		args[i] = r
	}
	query := fmt.Sprintf(
		"SELECT id, email, role, full_name FROM users WHERE role IN (%s) ORDER BY email",
		placeholders(len(roles)))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing recipients: %w", err)
	}
	defer rows.Close()

	var out []models.Recipient
	for rows.Next() {
		var r models.Recipient
		var name sql.NullString
		if err := rows.Scan(&r.ID, &r.Email, &r.Role, &name); err != nil {
			return nil, err
		}
		r.FullName = name.String
		out = append(out, r)
	}
	return out, rows.Err()
}
