package models

import "time"

// Outcome records the observed result of a prediction once its disaster
// resolves. Error metrics are computed at write time so evaluation can
// aggregate them without re-joining predictions.
type Outcome struct {
	ID             string
	DisasterID     string
	PredictionID   string
	PredictionType PredictionType
	ModelVersion   string
	LoggedBy       string
	Notes          string

	PredictedSeverity *Severity
	ActualSeverity    *Severity
	SeverityMatch     *bool

	PredictedCasualties *int64
	ActualCasualties    *int64
	CasualtyError       *float64

	PredictedDamageUSD *float64
	ActualDamageUSD    *float64
	DamageError        *float64

	PredictedAreaKm2 *float64
	ActualAreaKm2    *float64
	AreaError        *float64

	CreatedAt time.Time
}

// ModelReport summarizes prediction quality for one prediction type
// over an evaluation window.
type ModelReport struct {
	PredictionType PredictionType
	ModelVersion   string
	PeriodDays     int
	TotalOutcomes  int
	Accuracy       *float64
	MAE            *float64
	RMSE           *float64
	RetrainNeeded  bool
	GeneratedAt    time.Time
}
