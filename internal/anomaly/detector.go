package anomaly

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/reliefgrid/reliefgrid/internal/config"
	"github.com/reliefgrid/reliefgrid/internal/models"
	"github.com/reliefgrid/reliefgrid/internal/store"
)

// metricStore is the slice of the gateway the detector reads from and
// writes alerts to.
type metricStore interface {
	store.ResourceStore
	store.RequestStore
	store.DisasterStore
	store.AnomalyStore
}

// sample is one time-series point with named features plus the raw
// aggregate kept as alert context.
type sample struct {
	features map[string]float64
	context  map[string]any
}

// candidate is a detected outlier before severity and explanation.
type candidate struct {
	anomalyType   models.AnomalyType
	metricName    string
	metricValue   float64
	anomalyScore  float64
	expectedRange models.ExpectedRange
	context       map[string]any
}

// Detector periodically fits an isolation forest over three metric
// groups and persists outliers with rule-based explanations.
type Detector struct {
	store         metricStore
	interval      time.Duration
	contamination float64
	minSamples    int
	lookback      time.Duration
}

func NewDetector(st metricStore, cfg config.AnomalyConfig) *Detector {
	return &Detector{
		store:         st,
		interval:      cfg.Interval,
		contamination: cfg.Contamination,
		minSamples:    cfg.MinSamples,
		lookback:      time.Duration(cfg.LookbackHours) * time.Hour,
	}
}

// Run executes detection on a fixed interval until ctx is cancelled.
func (d *Detector) Run(ctx context.Context) {
	slog.Info("anomaly detection loop started", "interval", d.interval)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if _, err := d.RunDetection(ctx); err != nil {
			slog.Error("anomaly detection cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			slog.Info("anomaly detection loop stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunDetection gathers the metric series, scores each group and stores
// every outlier found. Storage failures are logged per alert so one bad
// row does not drop the rest.
func (d *Detector) RunDetection(ctx context.Context) ([]models.AnomalyAlert, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var candidates []candidate

	consumption, err := d.resourceConsumptionSeries(ctx)
	if err != nil {
		slog.Error("error building resource consumption series", "error", err)
	} else {
		candidates = append(candidates, d.detect(consumption, []string{"count", "total_qty"}, models.AnomalyResourceConsumption)...)
	}

	volume, err := d.requestVolumeSeries(ctx)
	if err != nil {
		slog.Error("error building request volume series", "error", err)
	} else {
		candidates = append(candidates, d.detect(volume, []string{"count", "critical", "high"}, models.AnomalyRequestVolume)...)
	}

	escalation, err := d.severityEscalationSeries(ctx)
	if err != nil {
		slog.Error("error building severity series", "error", err)
	} else {
		candidates = append(candidates, d.detect(escalation, []string{"severity_score", "casualties", "damage"}, models.AnomalySeverityEscalation)...)
	}

	var stored []models.AnomalyAlert
	for _, c := range candidates {
		alert := models.AnomalyAlert{
			ID:            uuid.NewString(),
			AnomalyType:   c.anomalyType,
			Severity:      classifySeverity(c.anomalyScore),
			Title:         fmt.Sprintf("%s: %s", titleCase(string(c.anomalyType)), c.metricName),
			Description:   fmt.Sprintf("Detected anomalous %s = %.2f", c.metricName, c.metricValue),
			MetricName:    c.metricName,
			MetricValue:   c.metricValue,
			ExpectedRange: c.expectedRange,
			AnomalyScore:  c.anomalyScore,
			ContextData:   c.context,
			AIExplanation: explain(c),
			Status:        models.AnomalyActive,
			DetectedAt:    time.Now().UTC(),
		}
		if err := d.store.InsertAnomaly(ctx, &alert); err != nil {
			slog.Error("failed to store anomaly alert", "error", err)
			continue
		}
		stored = append(stored, alert)
	}

	slog.Info("anomaly detection complete", "alerts", len(stored))
	return stored, nil
}

// resourceConsumptionSeries aggregates recently allocated resources by
// type and hour.
func (d *Detector) resourceConsumptionSeries(ctx context.Context) ([]sample, error) {
	since := time.Now().UTC().Add(-3 * d.lookback)
	resources, err := d.store.ListResourcesAllocatedSince(ctx, since)
	if err != nil {
		return nil, err
	}

	hourly := make(map[string]*sample)
	var order []string
	for _, r := range resources {
		hour := r.UpdatedAt.UTC().Format("2006-01-02T15")
		key := r.Type + "_" + hour
		s, ok := hourly[key]
		if !ok {
			s = &sample{
				features: map[string]float64{"count": 0, "total_qty": 0},
				context:  map[string]any{"type": r.Type, "hour": hour},
			}
			hourly[key] = s
			order = append(order, key)
		}
		s.features["count"]++
		s.features["total_qty"] += r.Quantity
	}
	return collect(hourly, order), nil
}

// requestVolumeSeries counts victim requests per hour, tracking how
// many were classified critical or high.
func (d *Detector) requestVolumeSeries(ctx context.Context) ([]sample, error) {
	since := time.Now().UTC().Add(-3 * d.lookback)
	requests, err := d.store.ListRequests(ctx, store.RequestFilter{Since: &since, Limit: 1000})
	if err != nil {
		return nil, err
	}

	hourly := make(map[string]*sample)
	var order []string
	for _, r := range requests {
		hour := r.CreatedAt.UTC().Format("2006-01-02T15")
		s, ok := hourly[hour]
		if !ok {
			s = &sample{
				features: map[string]float64{"count": 0, "critical": 0, "high": 0},
				context:  map[string]any{"hour": hour},
			}
			hourly[hour] = s
			order = append(order, hour)
		}
		s.features["count"]++
		switch r.Priority {
		case models.SeverityCritical:
			s.features["critical"]++
		case models.SeverityHigh:
			s.features["high"]++
		}
	}
	return collect(hourly, order), nil
}

// severityEscalationSeries maps recently updated disasters onto the
// ordinal severity scale with their casualty and damage figures.
func (d *Detector) severityEscalationSeries(ctx context.Context) ([]sample, error) {
	since := time.Now().UTC().Add(-3 * d.lookback)
	disasters, err := d.store.ListDisasters(ctx, store.DisasterFilter{Since: &since, Limit: 200})
	if err != nil {
		return nil, err
	}

	out := make([]sample, 0, len(disasters))
	for _, dis := range disasters {
		casualties := 0.0
		if dis.Casualties != nil {
			casualties = float64(*dis.Casualties)
		}
		damage := 0.0
		if dis.EstimatedDamage != nil {
			damage = *dis.EstimatedDamage
		}
		out = append(out, sample{
			features: map[string]float64{
				"severity_score": float64(models.SeverityRank(dis.Severity)),
				"casualties":     casualties,
				"damage":         damage,
			},
			context: map[string]any{"disaster_id": dis.ID, "updated_at": dis.UpdatedAt.UTC().Format(time.RFC3339)},
		})
	}
	return out, nil
}

// detect fits the forest on one metric group and returns its outliers.
// Groups below the sample floor are skipped so sparse data cannot flag
// everything as anomalous.
func (d *Detector) detect(samples []sample, featureKeys []string, anomalyType models.AnomalyType) []candidate {
	if len(samples) < d.minSamples {
		slog.Info("not enough data for anomaly detection",
			"anomaly_type", string(anomalyType), "samples", len(samples), "min", d.minSamples)
		return nil
	}

	X := make([][]float64, len(samples))
	for i, s := range samples {
		row := make([]float64, len(featureKeys))
		for fi, key := range featureKeys {
			row[fi] = s.features[key]
		}
		X[i] = row
	}

	forest := NewIsolationForest(d.contamination)
	preds, scores := forest.FitPredict(X)

	var inliers [][]float64
	for i, p := range preds {
		if p == 1 {
			inliers = append(inliers, X[i])
		}
	}
	if len(inliers) == 0 {
		inliers = X
	}

	var out []candidate
	for i, p := range preds {
		if p != -1 {
			continue
		}

		// Expected range is the mean of the per-feature inlier
		// 5th/95th percentiles.
		lower, upper := 0.0, 0.0
		for fi := range featureKeys {
			col := column(inliers, fi)
			lower += percentile(col, 5)
			upper += percentile(col, 95)
		}
		lower /= float64(len(featureKeys))
		upper /= float64(len(featureKeys))

		// Name the feature that strays furthest from the inlier mean.
		maxIdx, maxDev := 0, 0.0
		for fi := range featureKeys {
			mean := meanOf(column(inliers, fi))
			if dev := math.Abs(X[i][fi] - mean); dev > maxDev {
				maxDev = dev
				maxIdx = fi
			}
		}

		// Outlier rows keep the raw aggregate for operator context.
		ctxData := make(map[string]any, len(samples[i].context)+len(featureKeys))
		for k, v := range samples[i].context {
			ctxData[k] = v
		}
		for k, v := range samples[i].features {
			ctxData[k] = v
		}

		out = append(out, candidate{
			anomalyType:   anomalyType,
			metricName:    featureKeys[maxIdx],
			metricValue:   X[i][maxIdx],
			anomalyScore:  scores[i],
			expectedRange: models.ExpectedRange{Lower: lower, Upper: upper},
			context:       ctxData,
		})
	}
	return out
}

// classifySeverity bands the decision score; more negative means more
// isolated.
func classifySeverity(score float64) models.Severity {
	switch {
	case score < -0.3:
		return models.SeverityCritical
	case score < -0.2:
		return models.SeverityHigh
	case score < -0.1:
		return models.SeverityMedium
	}
	return models.SeverityLow
}

// explain produces the operator-facing text for an anomaly.
func explain(c candidate) string {
	switch c.anomalyType {
	case models.AnomalyResourceConsumption:
		return fmt.Sprintf(
			"Unusual %s detected (value: %.1f, expected: %.1f-%.1f). "+
				"This may indicate a sudden surge in resource usage that requires attention.",
			c.metricName, c.metricValue, c.expectedRange.Lower, c.expectedRange.Upper)
	case models.AnomalyRequestVolume:
		return fmt.Sprintf(
			"Request volume anomaly detected for %s (value: %.0f). "+
				"This spike could indicate an emerging crisis or a surge of victims needing help.",
			c.metricName, c.metricValue)
	case models.AnomalySeverityEscalation:
		return fmt.Sprintf(
			"Severity escalation anomaly detected for %s (value: %.1f). "+
				"Rapid severity increases may signal a worsening disaster requiring immediate response.",
			c.metricName, c.metricValue)
	}
	return fmt.Sprintf("Anomaly detected: %s = %g (score: %.3f)", c.metricName, c.metricValue, c.anomalyScore)
}

func titleCase(s string) string {
	parts := strings.Split(s, "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}

func collect(m map[string]*sample, order []string) []sample {
	out := make([]sample, 0, len(order))
	for _, key := range order {
		out = append(out, *m[key])
	}
	return out
}

func column(rows [][]float64, i int) []float64 {
	out := make([]float64, len(rows))
	for j, row := range rows {
		out[j] = row[i]
	}
	return out
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
