// Package predict wraps the severity, spread and impact predictors.
// Trained models are optional; when absent the service runs rule-based
// fallbacks so predictions stay available end to end.
package predict

import (
	"context"
	"log/slog"
	"math"

	"github.com/reliefgrid/reliefgrid/internal/models"
)

// severityOrder maps classifier output indices to labels.
var severityOrder = []models.Severity{
	models.SeverityLow, models.SeverityMedium, models.SeverityHigh, models.SeverityCritical,
}

// SeverityModel is a trained classifier over the severity vector.
type SeverityModel interface {
	Predict(features []float64) (classIdx int, confidence float64, err error)
}

// SpreadModel is a trained regressor with optional quantile bounds.
type SpreadModel interface {
	Predict(features []float64) (areaKm2 float64, ciLower, ciUpper *float64, err error)
}

// ImpactModel is a trained multi-output regressor.
type ImpactModel interface {
	Predict(features []float64) (casualties, damageUSD float64, err error)
}

// Retrainer rebuilds models when live accuracy degrades past the
// configured thresholds.
type Retrainer interface {
	Retrain(ctx context.Context, kind models.PredictionType) error
}

type SeverityResult struct {
	PredictedSeverity models.Severity `json:"predicted_severity"`
	ConfidenceScore   float64         `json:"confidence_score"`
	ModelVersion      string          `json:"model_version"`
}

type SpreadResult struct {
	PredictedAreaKm2 float64  `json:"predicted_area_km2"`
	CILowerKm2       *float64 `json:"ci_lower_km2,omitempty"`
	CIUpperKm2       *float64 `json:"ci_upper_km2,omitempty"`
	ConfidenceScore  float64  `json:"confidence_score"`
	ModelVersion     string   `json:"model_version"`
}

type ImpactResult struct {
	PredictedCasualties int64   `json:"predicted_casualties"`
	PredictedDamageUSD  float64 `json:"predicted_damage_usd"`
	ConfidenceScore     float64 `json:"confidence_score"`
	ModelVersion        string  `json:"model_version"`
}

// Service routes prediction calls to the loaded models, falling back
// to rule-based scoring per predictor when a model is nil.
type Service struct {
	severity SeverityModel
	spread   SpreadModel
	impact   ImpactModel
	version  string
}

// NewService returns a service running rule-based fallbacks only.
func NewService() *Service {
	return &Service{version: "fallback"}
}

// NewServiceWithModels wires trained models; any nil model keeps its
// fallback path.
func NewServiceWithModels(severity SeverityModel, spread SpreadModel, impact ImpactModel, version string) *Service {
	return &Service{severity: severity, spread: spread, impact: impact, version: version}
}

func (s *Service) ModelVersion() string {
	return s.version
}

// ModelInfo reports which predictors run trained models, for health checks.
func (s *Service) ModelInfo() map[string]any {
	return map[string]any{
		"version":         s.version,
		"severity_loaded": s.severity != nil,
		"spread_loaded":   s.spread != nil,
		"impact_loaded":   s.impact != nil,
	}
}

func (s *Service) PredictSeverity(f Features) (SeverityResult, error) {
	if s.severity != nil {
		idx, conf, err := s.severity.Predict(BuildSeverityFeatures(f))
		if err == nil && idx >= 0 && idx < len(severityOrder) {
			return SeverityResult{
				PredictedSeverity: severityOrder[idx],
				ConfidenceScore:   round4(conf),
				ModelVersion:      s.version,
			}, nil
		}
		if err != nil {
			slog.Warn("severity model failed, using fallback", "error", err)
		}
	}

	severity, conf := fallbackSeverity(f)
	return SeverityResult{
		PredictedSeverity: severity,
		ConfidenceScore:   round4(conf),
		ModelVersion:      s.version,
	}, nil
}

func (s *Service) PredictSpread(f Features) (SpreadResult, error) {
	if s.spread != nil {
		area, lower, upper, err := s.spread.Predict(BuildSpreadFeatures(f))
		if err == nil {
			conf := 0.7
			if lower != nil && upper != nil {
				ciWidth := *upper - *lower
				conf = clamp01(1 - (ciWidth/math.Max(area, 1))*0.5)
			}
			return SpreadResult{
				PredictedAreaKm2: round2(area),
				CILowerKm2:       roundPtr(lower),
				CIUpperKm2:       roundPtr(upper),
				ConfidenceScore:  round4(conf),
				ModelVersion:     s.version,
			}, nil
		}
		slog.Warn("spread model failed, using fallback", "error", err)
	}

	area, conf := fallbackSpread(f)
	return SpreadResult{
		PredictedAreaKm2: round2(area),
		ConfidenceScore:  round4(conf),
		ModelVersion:     s.version,
	}, nil
}

func (s *Service) PredictImpact(f Features) (ImpactResult, error) {
	if s.impact != nil {
		casualties, damage, err := s.impact.Predict(BuildImpactFeatures(f))
		if err == nil {
			if casualties < 0 {
				casualties = 0
			}
			if damage < 0 {
				damage = 0
			}
			return ImpactResult{
				PredictedCasualties: int64(math.Round(casualties)),
				PredictedDamageUSD:  round2(damage),
				ConfidenceScore:     0.78,
				ModelVersion:        s.version,
			}, nil
		}
		slog.Warn("impact model failed, using fallback", "error", err)
	}

	casualties, damage, conf := fallbackImpact(f)
	return ImpactResult{
		PredictedCasualties: casualties,
		PredictedDamageUSD:  round2(damage),
		ConfidenceScore:     round4(conf),
		ModelVersion:        s.version,
	}, nil
}

// fallbackSeverity scores severity from weather alone.
func fallbackSeverity(f Features) (models.Severity, float64) {
	temp := f.float("temperature", 25)
	wind := f.float("wind_speed", 20)
	hum := f.float("humidity", 60)
	score := (temp*0.3 + wind*0.5 + hum*0.2) / 100
	switch {
	case score > 0.75:
		return models.SeverityCritical, 0.55
	case score > 0.5:
		return models.SeverityHigh, 0.50
	case score > 0.3:
		return models.SeverityMedium, 0.45
	}
	return models.SeverityLow, 0.40
}

// fallbackSpread grows the current area with wind.
func fallbackSpread(f Features) (float64, float64) {
	area := f.float("current_area", 100)
	wind := f.float("wind_speed", 20)
	return area * (1 + wind*0.005), 0.45
}

// fallbackImpact scales casualties and damage with population and severity.
func fallbackImpact(f Features) (int64, float64, float64) {
	pop := f.float("population", f.float("affected_population", 10000))
	sev := f.float("severity_score", 0.5)
	casualties := int64(pop * sev * 0.005)
	damage := (pop * 5000 * sev) / 1_000_000
	return casualties, damage, 0.40
}

// Retrain satisfies Retrainer. The rule-based fallbacks have nothing
// to fit, so this only logs; a trained-model implementation replaces
// it via NewServiceWithModels.
func (s *Service) Retrain(ctx context.Context, kind models.PredictionType) error {
	slog.Info("retrain requested", "prediction_type", string(kind), "model_version", s.version)
	return ctx.Err()
}

// NeedsRetrain reports whether live metrics have degraded past the
// configured thresholds.
func NeedsRetrain(mae, accuracy, thresholdMAE, thresholdAccuracy float64) bool {
	return mae > thresholdMAE || accuracy < thresholdAccuracy
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func roundPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := round2(*v)
	return &r
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
