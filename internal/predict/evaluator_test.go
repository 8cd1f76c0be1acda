package predict

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/reliefgrid/reliefgrid/internal/config"
	"github.com/reliefgrid/reliefgrid/internal/models"
	"github.com/reliefgrid/reliefgrid/internal/store"
)

type recordingRetrainer struct {
	kinds []models.PredictionType
}

func (r *recordingRetrainer) Retrain(_ context.Context, kind models.PredictionType) error {
	r.kinds = append(r.kinds, kind)
	return nil
}

func setupEvalStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func seedResolvedDisaster(t *testing.T, st *store.SQLiteStore, severity models.Severity, casualties int64) models.Disaster {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	loc := models.Location{
		ID:        uuid.NewString(),
		Name:      "Test Region",
		Latitude:  35.0,
		Longitude: 139.0,
		CreatedAt: now,
	}
	if err := st.InsertLocation(ctx, &loc); err != nil {
		t.Fatalf("failed to insert location: %v", err)
	}

	d := models.Disaster{
		ID:         uuid.NewString(),
		Type:       models.DisasterEarthquake,
		Severity:   severity,
		Status:     models.DisasterResolved,
		Title:      "M7.1 Test Quake",
		LocationID: loc.ID,
		StartDate:  now.Add(-48 * time.Hour),
		Casualties: &casualties,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := st.InsertDisaster(ctx, &d); err != nil {
		t.Fatalf("failed to insert disaster: %v", err)
	}
	return d
}

func seedPrediction(t *testing.T, st *store.SQLiteStore, d models.Disaster, pt models.PredictionType, severity *models.Severity, casualties *int64) models.Prediction {
	t.Helper()
	p := models.Prediction{
		ID:                  uuid.NewString(),
		DisasterID:          d.ID,
		LocationID:          d.LocationID,
		PredictionType:      pt,
		ConfidenceScore:     0.5,
		PredictedSeverity:   severity,
		PredictedCasualties: casualties,
		ModelVersion:        "fallback",
		CreatedAt:           time.Now().UTC(),
	}
	if err := st.InsertPrediction(context.Background(), &p); err != nil {
		t.Fatalf("failed to insert prediction: %v", err)
	}
	return p
}

func TestCaptureOutcomes(t *testing.T) {
	st := setupEvalStore(t)
	ctx := context.Background()

	d := seedResolvedDisaster(t, st, models.SeverityHigh, 40)
	sevHigh := models.SeverityHigh
	predicted := int64(50)
	seedPrediction(t, st, d, models.PredictSeverity, &sevHigh, nil)
	seedPrediction(t, st, d, models.PredictImpact, nil, &predicted)

	e := NewEvaluator(st, &recordingRetrainer{}, config.RetrainConfig{ThresholdMAE: 0.3, ThresholdAccuracy: 0.6})

	captured, err := e.CaptureOutcomes(ctx)
	if err != nil {
		t.Fatalf("CaptureOutcomes failed: %v", err)
	}
	if captured != 2 {
		t.Fatalf("expected 2 captured outcomes, got %d", captured)
	}

	since := time.Now().UTC().Add(-time.Hour)
	sevOutcomes, err := st.ListOutcomesByType(ctx, models.PredictSeverity, since)
	if err != nil {
		t.Fatalf("ListOutcomesByType failed: %v", err)
	}
	if len(sevOutcomes) != 1 {
		t.Fatalf("expected 1 severity outcome, got %d", len(sevOutcomes))
	}
	o := sevOutcomes[0]
	if o.SeverityMatch == nil || !*o.SeverityMatch {
		t.Error("expected severity match to be true")
	}
	if o.LoggedBy != "system" {
		t.Errorf("expected system logger, got %q", o.LoggedBy)
	}

	impOutcomes, err := st.ListOutcomesByType(ctx, models.PredictImpact, since)
	if err != nil {
		t.Fatalf("ListOutcomesByType failed: %v", err)
	}
	if len(impOutcomes) != 1 {
		t.Fatalf("expected 1 impact outcome, got %d", len(impOutcomes))
	}
	if impOutcomes[0].CasualtyError == nil || *impOutcomes[0].CasualtyError != -10 {
		t.Errorf("expected casualty error -10, got %v", impOutcomes[0].CasualtyError)
	}

	// A second pass must not duplicate outcomes.
	captured, err = e.CaptureOutcomes(ctx)
	if err != nil {
		t.Fatalf("second CaptureOutcomes failed: %v", err)
	}
	if captured != 0 {
		t.Errorf("expected 0 new outcomes on second pass, got %d", captured)
	}
}

func TestEvaluate_SeverityAccuracy(t *testing.T) {
	st := setupEvalStore(t)
	ctx := context.Background()

	sevHigh := models.SeverityHigh
	sevLow := models.SeverityLow
	d1 := seedResolvedDisaster(t, st, models.SeverityHigh, 10)
	d2 := seedResolvedDisaster(t, st, models.SeverityHigh, 10)
	seedPrediction(t, st, d1, models.PredictSeverity, &sevHigh, nil)
	seedPrediction(t, st, d2, models.PredictSeverity, &sevLow, nil)

	e := NewEvaluator(st, &recordingRetrainer{}, config.RetrainConfig{ThresholdMAE: 0.3, ThresholdAccuracy: 0.6})
	if _, err := e.CaptureOutcomes(ctx); err != nil {
		t.Fatalf("CaptureOutcomes failed: %v", err)
	}

	reports, err := e.Evaluate(ctx, 7)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	r := reports[0]
	if r.PredictionType != models.PredictSeverity {
		t.Fatalf("unexpected report type %s", r.PredictionType)
	}
	if r.Accuracy == nil || *r.Accuracy != 0.5 {
		t.Errorf("expected accuracy 0.5, got %v", r.Accuracy)
	}
	if !r.RetrainNeeded {
		t.Error("expected retrain to be flagged at 50% accuracy")
	}
}

func TestRunCycle_TriggersRetrain(t *testing.T) {
	st := setupEvalStore(t)

	sevLow := models.SeverityLow
	d := seedResolvedDisaster(t, st, models.SeverityCritical, 100)
	seedPrediction(t, st, d, models.PredictSeverity, &sevLow, nil)

	retrainer := &recordingRetrainer{}
	e := NewEvaluator(st, retrainer, config.RetrainConfig{ThresholdMAE: 0.3, ThresholdAccuracy: 0.6})

	if err := e.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if len(retrainer.kinds) != 1 || retrainer.kinds[0] != models.PredictSeverity {
		t.Fatalf("expected one severity retrain, got %v", retrainer.kinds)
	}
}

func TestNeedsRetrain(t *testing.T) {
	if !NeedsRetrain(0.5, 1, 0.3, 0.6) {
		t.Error("high MAE should trigger retrain")
	}
	if !NeedsRetrain(0, 0.5, 0.3, 0.6) {
		t.Error("low accuracy should trigger retrain")
	}
	if NeedsRetrain(0.1, 0.9, 0.3, 0.6) {
		t.Error("healthy metrics should not trigger retrain")
	}
}
