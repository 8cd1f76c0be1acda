package anomaly

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/reliefgrid/reliefgrid/internal/config"
	"github.com/reliefgrid/reliefgrid/internal/models"
	"github.com/reliefgrid/reliefgrid/internal/store"
)

func testConfig() config.AnomalyConfig {
	return config.AnomalyConfig{
		Interval:      time.Hour,
		Contamination: 0.05,
		MinSamples:    20,
		LookbackHours: 48,
	}
}

func TestIsolationForest_FlagsObviousOutlier(t *testing.T) {
	var X [][]float64
	for i := 0; i < 40; i++ {
		X = append(X, []float64{5 + float64(i%3), 10 + float64(i%2)})
	}
	X = append(X, []float64{500, 900})

	preds, scores := NewIsolationForest(0.05).FitPredict(X)
	if preds[len(preds)-1] != -1 {
		t.Fatal("expected the extreme point flagged as outlier")
	}
	if scores[len(scores)-1] >= 0 {
		t.Errorf("expected negative decision score for outlier, got %f", scores[len(scores)-1])
	}

	flagged := 0
	for _, p := range preds {
		if p == -1 {
			flagged++
		}
	}
	if flagged > 5 {
		t.Errorf("expected few outliers at 5%% contamination, got %d of %d", flagged, len(X))
	}
}

func TestIsolationForest_Deterministic(t *testing.T) {
	var X [][]float64
	for i := 0; i < 30; i++ {
		X = append(X, []float64{float64(i % 7), float64(i % 5)})
	}
	X = append(X, []float64{100, 100})

	_, first := NewIsolationForest(0.1).FitPredict(X)
	_, second := NewIsolationForest(0.1).FitPredict(X)
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("scores differ between runs at %d: %f vs %f", i, first[i], second[i])
		}
	}
}

func TestIsolationForest_Empty(t *testing.T) {
	preds, scores := NewIsolationForest(0.05).FitPredict(nil)
	if len(preds) != 0 || len(scores) != 0 {
		t.Error("expected empty output for empty input")
	}
}

func TestPercentile(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	if got := percentile(values, 50); got != 3 {
		t.Errorf("expected median 3, got %f", got)
	}
	if got := percentile(values, 0); got != 1 {
		t.Errorf("expected min at p0, got %f", got)
	}
	if got := percentile(values, 100); got != 5 {
		t.Errorf("expected max at p100, got %f", got)
	}
	// Linear interpolation between order statistics.
	if got := percentile([]float64{0, 10}, 25); got != 2.5 {
		t.Errorf("expected 2.5 at p25, got %f", got)
	}
}

func TestAvgPathLength(t *testing.T) {
	if got := avgPathLength(1); got != 0 {
		t.Errorf("expected 0 for single point, got %f", got)
	}
	if got := avgPathLength(2); got != 1 {
		t.Errorf("expected 1 for pair, got %f", got)
	}
	if small, large := avgPathLength(10), avgPathLength(1000); small >= large {
		t.Errorf("expected path length to grow with n: %f vs %f", small, large)
	}
}

func TestClassifySeverity(t *testing.T) {
	cases := []struct {
		score float64
		want  models.Severity
	}{
		{-0.5, models.SeverityCritical},
		{-0.25, models.SeverityHigh},
		{-0.15, models.SeverityMedium},
		{-0.05, models.SeverityLow},
		{0.1, models.SeverityLow},
	}
	for _, tc := range cases {
		if got := classifySeverity(tc.score); got != tc.want {
			t.Errorf("score %f: expected %s, got %s", tc.score, tc.want, got)
		}
	}
}

func TestTitleCase(t *testing.T) {
	if got := titleCase("resource_consumption"); got != "Resource Consumption" {
		t.Errorf("unexpected title: %q", got)
	}
	if got := titleCase("request_volume"); got != "Request Volume" {
		t.Errorf("unexpected title: %q", got)
	}
}

func TestDetect_SkipsSparseSeries(t *testing.T) {
	d := &Detector{contamination: 0.05, minSamples: 20}
	samples := []sample{
		{features: map[string]float64{"count": 5}},
		{features: map[string]float64{"count": 100}},
	}
	if got := d.detect(samples, []string{"count"}, models.AnomalyRequestVolume); got != nil {
		t.Errorf("expected no detections below the sample floor, got %d", len(got))
	}
}

func TestDetect_NamesMaxDeviationMetric(t *testing.T) {
	d := &Detector{contamination: 0.05, minSamples: 20}
	var samples []sample
	for i := 0; i < 40; i++ {
		samples = append(samples, sample{
			features: map[string]float64{"count": 5 + float64(i%3), "critical": 1},
			context:  map[string]any{"hour": fmt.Sprintf("2026-08-22T%02d", i%24)},
		})
	}
	samples = append(samples, sample{
		features: map[string]float64{"count": 200, "critical": 2},
		context:  map[string]any{"hour": "2026-08-23T09"},
	})

	got := d.detect(samples, []string{"count", "critical"}, models.AnomalyRequestVolume)
	if len(got) == 0 {
		t.Fatal("expected the spike detected")
	}

	var spike *candidate
	for i := range got {
		if got[i].metricValue == 200 {
			spike = &got[i]
		}
	}
	if spike == nil {
		t.Fatal("expected the count=200 sample among detections")
	}
	if spike.metricName != "count" {
		t.Errorf("expected count named as primary metric, got %s", spike.metricName)
	}
	if spike.expectedRange.Upper >= 200 {
		t.Errorf("expected inlier upper bound well below the spike, got %f", spike.expectedRange.Upper)
	}
	if spike.context["hour"] != "2026-08-23T09" {
		t.Error("expected context carried through")
	}
}

func TestExplainByType(t *testing.T) {
	c := candidate{
		anomalyType:   models.AnomalyResourceConsumption,
		metricName:    "total_qty",
		metricValue:   500,
		expectedRange: models.ExpectedRange{Lower: 10, Upper: 50},
	}
	if msg := explain(c); !strings.Contains(msg, "Unusual total_qty") {
		t.Errorf("unexpected consumption explanation: %q", msg)
	}
	c.anomalyType = models.AnomalyRequestVolume
	if msg := explain(c); !strings.Contains(msg, "Request volume anomaly") {
		t.Errorf("unexpected volume explanation: %q", msg)
	}
	c.anomalyType = models.AnomalySeverityEscalation
	if msg := explain(c); !strings.Contains(msg, "Severity escalation anomaly") {
		t.Errorf("unexpected escalation explanation: %q", msg)
	}
}

func TestRunDetection_StoresRequestVolumeSpike(t *testing.T) {
	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	// Steady baseline of ~5 requests per hour, then one flooded hour.
	seq := 0
	insert := func(createdAt time.Time) {
		seq++
		req := models.ResourceRequest{
			ID:        fmt.Sprintf("req-%03d", seq),
			VictimID:  "victim-1",
			Quantity:  1,
			Priority:  models.SeverityMedium,
			Status:    models.RequestPending,
			CreatedAt: createdAt,
			UpdatedAt: createdAt,
		}
		if err := st.InsertRequest(ctx, &req); err != nil {
			t.Fatalf("failed to insert request: %v", err)
		}
	}
	for h := 1; h <= 40; h++ {
		at := now.Add(-time.Duration(h) * time.Hour)
		for i := 0; i < 4+h%3; i++ {
			insert(at)
		}
	}
	flooded := now.Add(-30 * time.Minute)
	for i := 0; i < 80; i++ {
		insert(flooded)
	}

	d := NewDetector(st, testConfig())
	alerts, err := d.RunDetection(ctx)
	if err != nil {
		t.Fatalf("RunDetection failed: %v", err)
	}
	if len(alerts) == 0 {
		t.Fatal("expected the flooded hour detected")
	}

	var spike *models.AnomalyAlert
	for i := range alerts {
		if alerts[i].MetricValue == 80 {
			spike = &alerts[i]
		}
	}
	if spike == nil {
		t.Fatal("expected the 80-request hour among alerts")
	}
	if spike.AnomalyType != models.AnomalyRequestVolume {
		t.Errorf("expected request_volume type, got %s", spike.AnomalyType)
	}
	if spike.Status != models.AnomalyActive {
		t.Errorf("expected active status, got %s", spike.Status)
	}
	if !strings.HasPrefix(spike.Title, "Request Volume:") {
		t.Errorf("unexpected title: %q", spike.Title)
	}
	if spike.AIExplanation == "" {
		t.Error("expected an explanation")
	}

	// The alert must be queryable back from the store.
	listed, err := st.ListAnomalies(ctx, store.AnomalyFilter{})
	if err != nil {
		t.Fatalf("ListAnomalies failed: %v", err)
	}
	if len(listed) != len(alerts) {
		t.Errorf("expected %d persisted alerts, got %d", len(alerts), len(listed))
	}
}
