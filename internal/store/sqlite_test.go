package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/reliefgrid/reliefgrid/internal/models"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	return s
}

func testSource(t *testing.T, s *SQLiteStore, name string) *models.Source {
	t.Helper()
	src, err := s.EnsureSource(context.Background(), &models.Source{
		ID:           uuid.NewString(),
		SourceName:   name,
		SourceType:   "api",
		IsActive:     true,
		PollInterval: 5 * time.Minute,
	})
	if err != nil {
		t.Fatalf("EnsureSource failed: %v", err)
	}
	return src
}

func testEvent(sourceID, externalID string) models.IngestedEvent {
	lat, lon := 35.0, 139.0
	return models.IngestedEvent{
		ID:         uuid.NewString(),
		SourceID:   sourceID,
		ExternalID: externalID,
		EventType:  models.EventEarthquake,
		Title:      "M 5.5 - offshore",
		Severity:   models.SeverityMedium,
		Latitude:   &lat,
		Longitude:  &lon,
		RawPayload: map[string]any{"mag": 5.5},
		IngestedAt: time.Now().UTC(),
	}
}

func TestInsertEvents_Dedup(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()
	ctx := context.Background()

	src := testSource(t, s, "usgs_earthquakes")

	n, err := s.InsertEvents(ctx, []models.IngestedEvent{
		testEvent(src.ID, "usgs-a1"),
		testEvent(src.ID, "usgs-a2"),
	})
	if err != nil {
		t.Fatalf("InsertEvents failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 inserted, got %d", n)
	}

	// Same external ID again is ignored, not an error.
	n, err = s.InsertEvents(ctx, []models.IngestedEvent{testEvent(src.ID, "usgs-a1")})
	if err != nil {
		t.Fatalf("InsertEvents failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 inserted for duplicate, got %d", n)
	}

	existing, err := s.ExistingEventIDs(ctx, []string{"usgs-a1", "usgs-a2", "usgs-missing"})
	if err != nil {
		t.Fatalf("ExistingEventIDs failed: %v", err)
	}
	if !existing["usgs-a1"] || !existing["usgs-a2"] {
		t.Error("expected both inserted IDs to be reported existing")
	}
	if existing["usgs-missing"] {
		t.Error("expected missing ID to be absent")
	}
}

func TestExistingEventIDs_ChunksLargeInput(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()
	ctx := context.Background()

	src := testSource(t, s, "usgs_earthquakes")

	var events []models.IngestedEvent
	var ids []string
	for i := 0; i < 250; i++ {
		id := "usgs-bulk-" + uuid.NewString()
		events = append(events, testEvent(src.ID, id))
		ids = append(ids, id)
	}
	if _, err := s.InsertEvents(ctx, events); err != nil {
		t.Fatalf("InsertEvents failed: %v", err)
	}

	existing, err := s.ExistingEventIDs(ctx, ids)
	if err != nil {
		t.Fatalf("ExistingEventIDs failed: %v", err)
	}
	if len(existing) != 250 {
		t.Errorf("expected 250 existing IDs, got %d", len(existing))
	}
}

func TestMarkEventProcessed(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()
	ctx := context.Background()

	src := testSource(t, s, "gdacs")
	ev := testEvent(src.ID, "gdacs-EQ-1")
	if _, err := s.InsertEvents(ctx, []models.IngestedEvent{ev}); err != nil {
		t.Fatalf("InsertEvents failed: %v", err)
	}

	disasterID := uuid.NewString()
	preds := []string{uuid.NewString(), uuid.NewString()}
	if err := s.MarkEventProcessed(ctx, ev.ID, &disasterID, preds); err != nil {
		t.Fatalf("MarkEventProcessed failed: %v", err)
	}

	got, err := s.GetEvent(ctx, ev.ID)
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if !got.Processed {
		t.Error("expected event to be marked processed")
	}
	if got.DisasterID == nil || *got.DisasterID != disasterID {
		t.Error("expected disaster ID to be recorded")
	}
	if len(got.PredictionIDs) != 2 {
		t.Errorf("expected 2 prediction IDs, got %d", len(got.PredictionIDs))
	}
	if got.ProcessedAt == nil {
		t.Error("expected processed_at to be set")
	}
}

func TestListEvents_Filters(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()
	ctx := context.Background()

	src := testSource(t, s, "social_media")

	critical := testEvent(src.ID, "twitter-1")
	critical.EventType = models.EventSocialSOS
	critical.Severity = models.SeverityCritical
	low := testEvent(src.ID, "twitter-2")
	low.EventType = models.EventSocialSOS
	low.Severity = models.SeverityLow

	if _, err := s.InsertEvents(ctx, []models.IngestedEvent{critical, low}); err != nil {
		t.Fatalf("InsertEvents failed: %v", err)
	}

	sev := models.SeverityCritical
	results, err := s.ListEvents(ctx, EventFilter{Severity: &sev})
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(results) != 1 || results[0].ExternalID != "twitter-1" {
		t.Errorf("expected only the critical event, got %d results", len(results))
	}

	processed := false
	results, err = s.ListEvents(ctx, EventFilter{Processed: &processed})
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 unprocessed events, got %d", len(results))
	}
}

func TestRecordPollResult_TruncatesError(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()
	ctx := context.Background()

	testSource(t, s, "nasa_firms")

	longErr := strings.Repeat("x", 900)
	if err := s.RecordPollResult(ctx, "nasa_firms", models.SourceStatusError, longErr, time.Now()); err != nil {
		t.Fatalf("RecordPollResult failed: %v", err)
	}

	sources, err := s.ListSources(ctx)
	if err != nil {
		t.Fatalf("ListSources failed: %v", err)
	}
	if len(sources) != 1 {
		t.Fatalf("expected 1 source, got %d", len(sources))
	}
	if len(sources[0].LastError) != 500 {
		t.Errorf("expected error truncated to 500 chars, got %d", len(sources[0].LastError))
	}
	if sources[0].LastStatus != models.SourceStatusError {
		t.Errorf("expected error status, got %s", sources[0].LastStatus)
	}
	if sources[0].LastPolledAt == nil {
		t.Error("expected last_polled_at to be set")
	}
}

func TestEnsureSource_Idempotent(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()
	ctx := context.Background()

	first := testSource(t, s, "openweathermap")
	second, err := s.EnsureSource(ctx, &models.Source{
		ID:           uuid.NewString(),
		SourceName:   "openweathermap",
		SourceType:   "api",
		PollInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("EnsureSource failed: %v", err)
	}
	if second.ID != first.ID {
		t.Error("expected second EnsureSource to return the existing row")
	}
}

func TestFindLocationNear(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()
	ctx := context.Background()

	loc := &models.Location{
		ID:        uuid.NewString(),
		Name:      "Tokyo",
		Latitude:  35.6762,
		Longitude: 139.6503,
		Country:   "Japan",
		CreatedAt: time.Now().UTC(),
	}
	if err := s.InsertLocation(ctx, loc); err != nil {
		t.Fatalf("InsertLocation failed: %v", err)
	}

	// Within the 0.5 degree tolerance box.
	got, err := s.FindLocationNear(ctx, 35.9, 139.3, 0.5)
	if err != nil {
		t.Fatalf("FindLocationNear failed: %v", err)
	}
	if got.ID != loc.ID {
		t.Errorf("expected to reuse Tokyo, got %s", got.Name)
	}

	// Outside the box.
	_, err = s.FindLocationNear(ctx, 40.0, 139.6503, 0.5)
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDisasterRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()
	ctx := context.Background()

	loc := &models.Location{ID: uuid.NewString(), Name: "Test", CreatedAt: time.Now().UTC()}
	if err := s.InsertLocation(ctx, loc); err != nil {
		t.Fatalf("InsertLocation failed: %v", err)
	}

	now := time.Now().UTC()
	d := &models.Disaster{
		ID:         uuid.NewString(),
		Type:       models.DisasterEarthquake,
		Severity:   models.SeverityCritical,
		Status:     models.DisasterActive,
		Title:      "M 7.2 earthquake",
		LocationID: loc.ID,
		StartDate:  now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.InsertDisaster(ctx, d); err != nil {
		t.Fatalf("InsertDisaster failed: %v", err)
	}

	active := models.DisasterActive
	list, err := s.ListDisasters(ctx, DisasterFilter{Status: &active})
	if err != nil {
		t.Fatalf("ListDisasters failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 active disaster, got %d", len(list))
	}

	if err := s.UpdateDisasterStatus(ctx, d.ID, models.DisasterResolved); err != nil {
		t.Fatalf("UpdateDisasterStatus failed: %v", err)
	}
	counts, err := s.CountDisastersByStatus(ctx)
	if err != nil {
		t.Fatalf("CountDisastersByStatus failed: %v", err)
	}
	if counts["resolved"] != 1 {
		t.Errorf("expected 1 resolved disaster, got %d", counts["resolved"])
	}
}

func TestMarkResourcesAllocated(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()
	ctx := context.Background()

	now := time.Now().UTC()
	ids := make([]string, 3)
	for i := range ids {
		r := &models.Resource{
			ID:        uuid.NewString(),
			Type:      "Water",
			Quantity:  100,
			Priority:  5,
			Status:    models.ResourceAvailable,
			Latitude:  10,
			Longitude: 20,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.InsertResource(ctx, r); err != nil {
			t.Fatalf("InsertResource failed: %v", err)
		}
		ids[i] = r.ID
	}

	disasterID := uuid.NewString()
	n, err := s.MarkResourcesAllocated(ctx, ids[:2], disasterID)
	if err != nil {
		t.Fatalf("MarkResourcesAllocated failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 rows affected, got %d", n)
	}

	avail, err := s.ListAvailableResources(ctx)
	if err != nil {
		t.Fatalf("ListAvailableResources failed: %v", err)
	}
	if len(avail) != 1 {
		t.Errorf("expected 1 resource still available, got %d", len(avail))
	}

	got, err := s.GetResource(ctx, ids[0])
	if err != nil {
		t.Fatalf("GetResource failed: %v", err)
	}
	if got.Status != models.ResourceAllocated {
		t.Errorf("expected allocated status, got %s", got.Status)
	}
	if got.DisasterID == nil || *got.DisasterID != disasterID {
		t.Error("expected disaster ID on allocated resource")
	}
}

func TestRequestRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()
	ctx := context.Background()

	now := time.Now().UTC()
	req := &models.ResourceRequest{
		ID:          uuid.NewString(),
		VictimID:    uuid.NewString(),
		Description: "trapped under rubble, need water",
		Items:       []string{"Water", "Medical"},
		ResourceType: "Water",
		Quantity:    2,
		Priority:    models.SeverityCritical,
		Status:      models.RequestPending,
		NLPClassification: map[string]any{"Water": 0.8},
		UrgencySignals:    []string{"trapped"},
		AIConfidence:      0.7,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.InsertRequest(ctx, req); err != nil {
		t.Fatalf("InsertRequest failed: %v", err)
	}

	got, err := s.GetRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetRequest failed: %v", err)
	}
	if len(got.Items) != 2 || got.Items[0] != "Water" {
		t.Errorf("unexpected items: %v", got.Items)
	}
	if got.UrgencySignals[0] != "trapped" {
		t.Errorf("unexpected urgency signals: %v", got.UrgencySignals)
	}

	got.Status = models.RequestApproved
	if err := s.UpdateRequest(ctx, got); err != nil {
		t.Fatalf("UpdateRequest failed: %v", err)
	}

	pending := models.RequestPending
	list, err := s.ListRequests(ctx, RequestFilter{Status: &pending})
	if err != nil {
		t.Fatalf("ListRequests failed: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected no pending requests after approval, got %d", len(list))
	}
}

func TestAnomalyStatusTransitions(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()
	ctx := context.Background()

	a := &models.AnomalyAlert{
		ID:            uuid.NewString(),
		AnomalyType:   models.AnomalyRequestVolume,
		Severity:      models.SeverityHigh,
		Title:         "Unusual request volume",
		MetricName:    "request_count",
		MetricValue:   42,
		ExpectedRange: models.ExpectedRange{Lower: 2, Upper: 10},
		AnomalyScore:  -0.25,
		Status:        models.AnomalyActive,
		DetectedAt:    time.Now().UTC(),
	}
	if err := s.InsertAnomaly(ctx, a); err != nil {
		t.Fatalf("InsertAnomaly failed: %v", err)
	}

	if err := s.UpdateAnomalyStatus(ctx, a.ID, models.AnomalyAcked, "ops@example.org"); err != nil {
		t.Fatalf("UpdateAnomalyStatus failed: %v", err)
	}

	acked := models.AnomalyAcked
	list, err := s.ListAnomalies(ctx, AnomalyFilter{Status: &acked})
	if err != nil {
		t.Fatalf("ListAnomalies failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 acknowledged anomaly, got %d", len(list))
	}
	if list[0].AcknowledgedBy != "ops@example.org" {
		t.Errorf("expected acknowledger recorded, got %q", list[0].AcknowledgedBy)
	}
	if list[0].AcknowledgedAt == nil {
		t.Error("expected acknowledged_at to be set")
	}
}

func TestLatestReport(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()
	ctx := context.Background()

	_, err := s.LatestReport(ctx)
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound with no reports, got %v", err)
	}

	old := &models.SituationReport{
		ID: uuid.NewString(), ReportDate: time.Now().AddDate(0, 0, -1),
		Content: "old", GeneratedBy: "cron", CreatedAt: time.Now().Add(-time.Hour),
	}
	fresh := &models.SituationReport{
		ID: uuid.NewString(), ReportDate: time.Now(),
		Content: "fresh", Stats: map[string]any{"events": 5.0},
		GeneratedBy: "manual", CreatedAt: time.Now(),
	}
	for _, r := range []*models.SituationReport{old, fresh} {
		if err := s.InsertReport(ctx, r); err != nil {
			t.Fatalf("InsertReport failed: %v", err)
		}
	}

	got, err := s.LatestReport(ctx)
	if err != nil {
		t.Fatalf("LatestReport failed: %v", err)
	}
	if got.Content != "fresh" {
		t.Errorf("expected most recent report, got %q", got.Content)
	}
	if got.Stats["events"] != 5.0 {
		t.Errorf("expected stats round-trip, got %v", got.Stats)
	}
}

func TestRecipientsByRole(t *testing.T) {
	s := setupTestStore(t)
	defer s.Close()
	ctx := context.Background()

	recipients := []*models.Recipient{
		{ID: uuid.NewString(), Email: "ngo@example.org", Role: "ngo"},
		{ID: uuid.NewString(), Email: "admin@example.org", Role: "admin"},
		{ID: uuid.NewString(), Email: "victim@example.org", Role: "victim"},
	}
	for _, r := range recipients {
		if err := s.InsertRecipient(ctx, r); err != nil {
			t.Fatalf("InsertRecipient failed: %v", err)
		}
	}

	got, err := s.ListRecipientsByRoles(ctx, []string{"ngo", "admin"})
	if err != nil {
		t.Fatalf("ListRecipientsByRoles failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 recipients, got %d", len(got))
	}
	for _, r := range got {
		if r.Role == "victim" {
			t.Error("victim role should not receive alerts")
		}
	}
}

func TestHotspotSummaryForArea(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	frp := func(v float64) *float64 { return &v }
	hotspots := []models.SatelliteObservation{
		{ID: uuid.NewString(), Source: "firms", ExternalID: "h1", Latitude: 10.2, Longitude: 20.1,
			Brightness: frp(340), FRP: frp(12), AcqDatetime: now},
		{ID: uuid.NewString(), Source: "firms", ExternalID: "h2", Latitude: 10.8, Longitude: 19.5,
			Brightness: frp(420), FRP: frp(18), AcqDatetime: now},
		// Outside the ±1 degree box.
		{ID: uuid.NewString(), Source: "firms", ExternalID: "h3", Latitude: 14.0, Longitude: 20.0,
			Brightness: frp(500), FRP: frp(50), AcqDatetime: now},
	}
	if _, err := s.InsertHotspots(ctx, hotspots); err != nil {
		t.Fatalf("InsertHotspots failed: %v", err)
	}

	sum, err := s.HotspotSummaryForArea(ctx, 10.5, 20.0, 1.0)
	if err != nil {
		t.Fatalf("HotspotSummaryForArea failed: %v", err)
	}
	if sum.Count != 2 {
		t.Fatalf("expected 2 hotspots in box, got %d", sum.Count)
	}
	if sum.AvgFRP != 15 {
		t.Errorf("expected avg frp 15, got %f", sum.AvgFRP)
	}
	if sum.MaxBrightness != 420 {
		t.Errorf("expected max brightness 420, got %f", sum.MaxBrightness)
	}

	empty, err := s.HotspotSummaryForArea(ctx, -40, -120, 1.0)
	if err != nil {
		t.Fatalf("HotspotSummaryForArea on empty box failed: %v", err)
	}
	if empty.Count != 0 || empty.AvgFRP != 0 || empty.MaxBrightness != 0 {
		t.Errorf("expected zero summary for empty box, got %+v", empty)
	}
}
