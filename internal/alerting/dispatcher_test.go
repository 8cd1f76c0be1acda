package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/reliefgrid/reliefgrid/internal/config"
	"github.com/reliefgrid/reliefgrid/internal/models"
	"github.com/reliefgrid/reliefgrid/internal/store"
)

func setupStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func addRecipient(t *testing.T, st *store.SQLiteStore, id, email, role string) {
	t.Helper()
	err := st.InsertRecipient(context.Background(), &models.Recipient{
		ID: id, Email: email, Role: role, FullName: "Test " + role,
	})
	if err != nil {
		t.Fatalf("failed to insert recipient: %v", err)
	}
}

func criticalEvent() models.IngestedEvent {
	lat, lon := 35.6762, 139.6503
	return models.IngestedEvent{
		ID:           "ev-1",
		ExternalID:   "usgs-test1",
		EventType:    models.EventEarthquake,
		Title:        "M7.2 - near Tokyo",
		Description:  "M7.2 earthquake at 12km E of Tokyo. Depth: 30 km.",
		Severity:     models.SeverityCritical,
		Latitude:     &lat,
		Longitude:    &lon,
		LocationName: "Tokyo, Japan",
	}
}

func TestEvaluateAndNotify_BelowThreshold(t *testing.T) {
	st := setupStore(t)
	addRecipient(t, st, "u1", "ngo@example.org", "ngo")

	d := NewDispatcher(st, config.AlertConfig{SeverityThreshold: "critical"})
	ev := criticalEvent()
	ev.Severity = models.SeverityHigh

	got, err := d.EvaluateAndNotify(context.Background(), ev, nil, nil)
	if err != nil {
		t.Fatalf("EvaluateAndNotify failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no notifications below threshold, got %d", len(got))
	}
}

func TestEvaluateAndNotify_NoRecipients(t *testing.T) {
	st := setupStore(t)
	d := NewDispatcher(st, config.AlertConfig{SeverityThreshold: "critical"})

	got, err := d.EvaluateAndNotify(context.Background(), criticalEvent(), nil, nil)
	if err != nil {
		t.Fatalf("EvaluateAndNotify failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no notifications without recipients, got %d", len(got))
	}
}

func TestEvaluateAndNotify_LogFallback(t *testing.T) {
	st := setupStore(t)
	addRecipient(t, st, "u1", "ngo@example.org", "ngo")
	addRecipient(t, st, "u2", "admin@example.org", "admin")
	addRecipient(t, st, "u3", "victim@example.org", "victim")

	d := NewDispatcher(st, config.AlertConfig{SeverityThreshold: "critical"})
	got, err := d.EvaluateAndNotify(context.Background(), criticalEvent(), nil, nil)
	if err != nil {
		t.Fatalf("EvaluateAndNotify failed: %v", err)
	}
	// Victims are not alert recipients.
	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(got))
	}
	for _, n := range got {
		if n.Channel != models.ChannelLog {
			t.Errorf("expected log channel without api key, got %s", n.Channel)
		}
		if n.Status != models.AlertLogged {
			t.Errorf("expected logged status, got %s", n.Status)
		}
	}

	persisted, err := st.ListAlerts(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListAlerts failed: %v", err)
	}
	if len(persisted) != 2 {
		t.Errorf("expected 2 persisted notifications, got %d", len(persisted))
	}
}

func TestEvaluateAndNotify_EmailSent(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/mail/send" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sg-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("failed to decode payload: %v", err)
		}
		w.Header().Set("X-Message-Id", "msg-123")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	st := setupStore(t)
	addRecipient(t, st, "u1", "ngo@example.org", "ngo")

	d := NewDispatcher(st, config.AlertConfig{
		SeverityThreshold: "critical",
		SendGridAPIKey:    "sg-key",
		SendGridBaseURL:   srv.URL,
		SendGridFromEmail: "alerts@reliefgrid.org",
	})

	disasterID := "dis-1"
	got, err := d.EvaluateAndNotify(context.Background(), criticalEvent(), &disasterID, nil)
	if err != nil {
		t.Fatalf("EvaluateAndNotify failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(got))
	}

	n := got[0]
	if n.Status != models.AlertSent {
		t.Errorf("expected sent, got %s", n.Status)
	}
	if n.Channel != models.ChannelEmail {
		t.Errorf("expected email channel, got %s", n.Channel)
	}
	if n.ExternalRef != "msg-123" {
		t.Errorf("expected provider message id, got %q", n.ExternalRef)
	}
	if n.SentAt == nil {
		t.Error("expected sent_at set")
	}
	if n.DisasterID == nil || *n.DisasterID != "dis-1" {
		t.Error("expected disaster id carried through")
	}

	if captured["subject"] != "CRITICAL ALERT: M7.2 - near Tokyo" {
		t.Errorf("unexpected subject: %v", captured["subject"])
	}
	from, _ := captured["from"].(map[string]any)
	if from["email"] != "alerts@reliefgrid.org" {
		t.Errorf("unexpected from email: %v", from["email"])
	}
	content, _ := captured["content"].([]any)
	if len(content) != 2 {
		t.Fatalf("expected plain and html content parts, got %d", len(content))
	}

	// The persisted row carries the delivery outcome, not the pending
	// state it was created with.
	stored, err := st.ListAlerts(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListAlerts failed: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected 1 persisted notification, got %d", len(stored))
	}
	if stored[0].Status != models.AlertSent {
		t.Errorf("expected persisted status sent, got %s", stored[0].Status)
	}
	if stored[0].ExternalRef != "msg-123" {
		t.Errorf("expected persisted provider message id, got %q", stored[0].ExternalRef)
	}
	if stored[0].SentAt == nil {
		t.Error("expected persisted sent_at")
	}
}

func TestEvaluateAndNotify_EmailFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":[{"message":"bad from address"}]}`))
	}))
	defer srv.Close()

	st := setupStore(t)
	addRecipient(t, st, "u1", "ngo@example.org", "ngo")

	d := NewDispatcher(st, config.AlertConfig{
		SeverityThreshold: "critical",
		SendGridAPIKey:    "sg-key",
		SendGridBaseURL:   srv.URL,
		SendGridFromEmail: "alerts@reliefgrid.org",
	})

	got, err := d.EvaluateAndNotify(context.Background(), criticalEvent(), nil, nil)
	if err != nil {
		t.Fatalf("EvaluateAndNotify failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(got))
	}
	if got[0].Status != models.AlertFailed {
		t.Errorf("expected failed status, got %s", got[0].Status)
	}
	if !strings.Contains(got[0].ErrorMessage, "bad from address") {
		t.Errorf("expected provider error recorded, got %q", got[0].ErrorMessage)
	}
	if got[0].SentAt != nil {
		t.Error("failed notification must not have sent_at")
	}
}

func TestBuildBody(t *testing.T) {
	ev := criticalEvent()
	ev.Description = strings.Repeat("x", 600)
	body := buildBody(ev)

	if !strings.Contains(body, "Location: 35.6762, 139.6503") {
		t.Errorf("expected formatted coordinates in body:\n%s", body)
	}
	if !strings.Contains(body, "Place: Tokyo, Japan") {
		t.Error("expected place line")
	}
	if strings.Contains(body, strings.Repeat("x", 501)) {
		t.Error("expected description truncated to 500")
	}
	if !strings.Contains(body, "Severity: CRITICAL") {
		t.Error("expected uppercased severity")
	}
}

func TestHTMLBodyEscapes(t *testing.T) {
	out := htmlBody("Alert <script>", "a & b < c")
	if strings.Contains(out, "<script>") {
		t.Error("expected subject escaped")
	}
	if !strings.Contains(out, "a &amp; b &lt; c") {
		t.Error("expected body escaped")
	}
}
