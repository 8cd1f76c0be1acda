// Package alerting dispatches severity-gated notifications to NGO and
// admin contacts over email, with a log-only fallback when no email
// provider is configured. Every attempt is persisted for audit.
package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/reliefgrid/reliefgrid/internal/config"
	"github.com/reliefgrid/reliefgrid/internal/models"
	"github.com/reliefgrid/reliefgrid/internal/store"
)

// alertRoles are the user roles that receive dispatches.
var alertRoles = []string{"ngo", "admin"}

// errorTruncateLen caps provider error text stored on a notification.
const errorTruncateLen = 300

// Dispatcher gates events on the configured severity threshold and
// fans out one notification per recipient.
type Dispatcher struct {
	store     store.AlertStore
	client    *http.Client
	threshold models.Severity
	apiKey    string
	baseURL   string
	fromEmail string
}

func NewDispatcher(st store.AlertStore, cfg config.AlertConfig) *Dispatcher {
	return &Dispatcher{
		store:     st,
		client:    &http.Client{Timeout: 15 * time.Second},
		threshold: models.Severity(cfg.SeverityThreshold),
		apiKey:    cfg.SendGridAPIKey,
		baseURL:   strings.TrimRight(cfg.SendGridBaseURL, "/"),
		fromEmail: cfg.SendGridFromEmail,
	}
}

// EvaluateAndNotify sends notifications for an event at the alert
// threshold. Below-threshold events produce nothing.
func (d *Dispatcher) EvaluateAndNotify(ctx context.Context, event models.IngestedEvent, disasterID, predictionID *string) ([]models.AlertNotification, error) {
	if event.Severity != d.threshold {
		return nil, nil
	}

	recipients, err := d.store.ListRecipientsByRoles(ctx, alertRoles)
	if err != nil {
		return nil, fmt.Errorf("error listing recipients: %w", err)
	}
	if len(recipients) == 0 {
		slog.Warn("no ngo/admin recipients configured for alerts")
		return nil, nil
	}

	notifications := make([]models.AlertNotification, 0, len(recipients))
	for _, r := range recipients {
		notif := d.newNotification(event, disasterID, predictionID, r)
		if err := d.store.InsertAlert(ctx, &notif); err != nil {
			slog.Error("error persisting alert notification", "recipient", r.Email, "error", err)
			continue
		}
		d.deliver(ctx, &notif)
		notifications = append(notifications, notif)
	}
	return notifications, nil
}

// newNotification builds the pending row for a recipient. The channel
// is fixed up front so a crash mid-delivery leaves an auditable
// pending record.
func (d *Dispatcher) newNotification(event models.IngestedEvent, disasterID, predictionID *string, r models.Recipient) models.AlertNotification {
	notif := models.AlertNotification{
		ID:            uuid.NewString(),
		EventID:       event.ID,
		DisasterID:    disasterID,
		PredictionID:  predictionID,
		Recipient:     r.Email,
		RecipientRole: r.Role,
		Subject:       "CRITICAL ALERT: " + titleOrDefault(event),
		Body:          buildBody(event),
		Severity:      event.Severity,
		Channel:       models.ChannelLog,
		Status:        models.AlertPending,
		CreatedAt:     time.Now().UTC(),
	}
	if r.Email != "" && d.apiKey != "" {
		notif.Channel = models.ChannelEmail
	}
	return notif
}

// deliver attempts the send and records the outcome on the persisted
// row.
func (d *Dispatcher) deliver(ctx context.Context, notif *models.AlertNotification) {
	switch notif.Channel {
	case models.ChannelEmail:
		msgID, err := d.sendEmail(ctx, notif.Recipient, notif.Subject, notif.Body)
		if err != nil {
			notif.Status = models.AlertFailed
			notif.ErrorMessage = truncate(err.Error(), errorTruncateLen)
		} else {
			notif.Status = models.AlertSent
			notif.ExternalRef = msgID
			now := time.Now().UTC()
			notif.SentAt = &now
		}
	default:
		// No provider: keep the row for dashboard visibility and log
		// loudly.
		notif.Status = models.AlertLogged
		slog.Warn("critical alert (log-only, no email provider)",
			"subject", notif.Subject, "recipient", notif.Recipient)
	}

	if err := d.store.UpdateAlertDelivery(ctx, notif.ID, notif.Status, notif.ExternalRef, notif.ErrorMessage, notif.SentAt); err != nil {
		slog.Error("error recording alert delivery", "alert_id", notif.ID, "error", err)
	}
}

// sendEmail posts the message to the SendGrid v3 mail endpoint and
// returns the provider message id.
func (d *Dispatcher) sendEmail(ctx context.Context, toEmail, subject, body string) (string, error) {
	payload := map[string]any{
		"personalizations": []map[string]any{
			{"to": []map[string]string{{"email": toEmail}}},
		},
		"from": map[string]string{
			"email": d.fromEmail,
			"name":  "ReliefGrid Alerts",
		},
		"subject": subject,
		"content": []map[string]string{
			{"type": "text/plain", "value": body},
			{"type": "text/html", "value": htmlBody(subject, body)},
		},
	}

	buf, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("error marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/mail/send", bytes.NewReader(buf))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+d.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		msgID := resp.Header.Get("X-Message-Id")
		slog.Info("alert email sent", "to", toEmail, "message_id", msgID)
		return msgID, nil
	}

	errBody, _ := io.ReadAll(io.LimitReader(resp.Body, errorTruncateLen))
	return "", fmt.Errorf("provider error %d: %s", resp.StatusCode, string(errBody))
}

func buildBody(event models.IngestedEvent) string {
	lines := []string{
		"CRITICAL DISASTER ALERT",
		"",
		"Event: " + titleOrDefault(event),
		"Severity: " + strings.ToUpper(string(event.Severity)),
		"Type: " + string(event.EventType),
	}
	if event.Latitude != nil && event.Longitude != nil {
		lines = append(lines, fmt.Sprintf("Location: %.4f, %.4f", *event.Latitude, *event.Longitude))
	}
	if event.LocationName != "" {
		lines = append(lines, "Place: "+event.LocationName)
	}
	if event.Description != "" {
		lines = append(lines, "", truncate(event.Description, 500))
	}
	lines = append(lines, "", "Please log in to ReliefGrid for full details.")
	return strings.Join(lines, "\n")
}

func htmlBody(subject, plainBody string) string {
	return fmt.Sprintf(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
<div style="background: #dc2626; color: white; padding: 16px; border-radius: 8px 8px 0 0;">
<h2 style="margin: 0;">%s</h2>
</div>
<div style="background: #fef2f2; padding: 20px; border: 1px solid #fecaca; border-radius: 0 0 8px 8px;">
<pre style="white-space: pre-wrap; font-family: Arial, sans-serif; font-size: 14px;">%s</pre>
</div>
</div>`, html.EscapeString(subject), html.EscapeString(plainBody))
}

func titleOrDefault(event models.IngestedEvent) string {
	if event.Title != "" {
		return event.Title
	}
	return "Disaster Event"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
