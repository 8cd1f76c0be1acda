package models

import "time"

type PredictionType string

const (
	PredictSeverity PredictionType = "severity"
	PredictSpread   PredictionType = "spread"
	PredictImpact   PredictionType = "impact"
)

// Prediction is immutable once written. Exactly one of the type-specific
// output groups is populated depending on PredictionType.
type Prediction struct {
	ID              string
	DisasterID      string
	LocationID      string
	PredictionType  PredictionType
	Features        map[string]any
	ConfidenceScore float64 // clamped to [0,1]

	PredictedSeverity *Severity
	PredictedAreaKm2  *float64
	CILowerKm2        *float64
	CIUpperKm2        *float64

	PredictedCasualties *int64
	PredictedDamageUSD  *float64

	ModelVersion string
	CreatedAt    time.Time
}
