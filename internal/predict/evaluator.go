package predict

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/reliefgrid/reliefgrid/internal/config"
	"github.com/reliefgrid/reliefgrid/internal/models"
	"github.com/reliefgrid/reliefgrid/internal/store"
)

const (
	evalInterval  = 24 * time.Hour
	evalPeriod    = 7 // days of outcomes per report
	captureWindow = 30 * 24 * time.Hour
	captureLimit  = 200
)

// evalStore is the slice of the gateway the feedback loop reads
// resolved disasters from and writes outcomes to.
type evalStore interface {
	ListDisasters(ctx context.Context, f store.DisasterFilter) ([]models.Disaster, error)
	ListPredictionsForDisaster(ctx context.Context, disasterID string) ([]models.Prediction, error)
	OutcomePredictionIDs(ctx context.Context, disasterID string) (map[string]bool, error)
	InsertOutcome(ctx context.Context, o *models.Outcome) error
	ListOutcomesByType(ctx context.Context, pt models.PredictionType, since time.Time) ([]models.Outcome, error)
}

// Evaluator closes the feedback loop: it captures outcomes from
// resolved disasters, scores each model against them and invokes the
// retrainer when quality degrades past the configured thresholds.
type Evaluator struct {
	store     evalStore
	retrainer Retrainer
	cfg       config.RetrainConfig
}

func NewEvaluator(st evalStore, r Retrainer, cfg config.RetrainConfig) *Evaluator {
	return &Evaluator{
		store:     st,
		retrainer: r,
		cfg:       cfg,
	}
}

// Run executes one capture-and-evaluate cycle per day until ctx is
// cancelled.
func (e *Evaluator) Run(ctx context.Context) {
	slog.Info("model evaluation loop started", "interval", evalInterval)
	ticker := time.NewTicker(evalInterval)
	defer ticker.Stop()

	for {
		if err := e.RunCycle(ctx); err != nil {
			slog.Error("model evaluation cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			slog.Info("model evaluation loop stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunCycle captures fresh outcomes, evaluates every prediction type
// and triggers retraining where needed.
func (e *Evaluator) RunCycle(ctx context.Context) error {
	captured, err := e.CaptureOutcomes(ctx)
	if err != nil {
		return err
	}
	if captured > 0 {
		slog.Info("captured outcomes from resolved disasters", "count", captured)
	}

	reports, err := e.Evaluate(ctx, evalPeriod)
	if err != nil {
		return err
	}
	for _, r := range reports {
		if !r.RetrainNeeded {
			continue
		}
		slog.Warn("model quality below threshold, retraining",
			"prediction_type", string(r.PredictionType),
			"accuracy", floatOrNaN(r.Accuracy), "mae", floatOrNaN(r.MAE))
		if err := e.retrainer.Retrain(ctx, r.PredictionType); err != nil {
			slog.Error("retrain failed", "prediction_type", string(r.PredictionType), "error", err)
		}
	}
	return nil
}

// CaptureOutcomes records one outcome per prediction of every recently
// resolved disaster that does not yet have one. The disaster's final
// severity, casualties and damage stand in as ground truth; spread has
// no observed area, so its outcomes carry predictions only.
func (e *Evaluator) CaptureOutcomes(ctx context.Context) (int, error) {
	resolved := models.DisasterResolved
	since := time.Now().UTC().Add(-captureWindow)
	disasters, err := e.store.ListDisasters(ctx, store.DisasterFilter{
		Status: &resolved,
		Since:  &since,
		Limit:  captureLimit,
	})
	if err != nil {
		return 0, fmt.Errorf("error listing resolved disasters: %w", err)
	}

	captured := 0
	for _, d := range disasters {
		preds, err := e.store.ListPredictionsForDisaster(ctx, d.ID)
		if err != nil {
			return captured, fmt.Errorf("error listing predictions for disaster %s: %w", d.ID, err)
		}
		existing, err := e.store.OutcomePredictionIDs(ctx, d.ID)
		if err != nil {
			return captured, fmt.Errorf("error listing existing outcomes for disaster %s: %w", d.ID, err)
		}
		for _, p := range preds {
			if existing[p.ID] {
				continue
			}
			o := buildOutcome(d, p)
			if err := e.store.InsertOutcome(ctx, o); err != nil {
				slog.Error("error storing outcome", "prediction_id", p.ID, "error", err)
				continue
			}
			captured++
		}
	}
	return captured, nil
}

// Evaluate scores each prediction type over the last periodDays of
// outcomes. Severity is judged by match accuracy; spread and impact by
// mean absolute error of their primary output.
func (e *Evaluator) Evaluate(ctx context.Context, periodDays int) ([]models.ModelReport, error) {
	since := time.Now().UTC().AddDate(0, 0, -periodDays)
	now := time.Now().UTC()

	var reports []models.ModelReport
	for _, pt := range []models.PredictionType{models.PredictSeverity, models.PredictSpread, models.PredictImpact} {
		outcomes, err := e.store.ListOutcomesByType(ctx, pt, since)
		if err != nil {
			return nil, fmt.Errorf("error listing outcomes for %s: %w", string(pt), err)
		}
		if len(outcomes) == 0 {
			continue
		}

		r := models.ModelReport{
			PredictionType: pt,
			PeriodDays:     periodDays,
			TotalOutcomes:  len(outcomes),
			GeneratedAt:    now,
		}
		for _, o := range outcomes {
			if o.ModelVersion != "" {
				r.ModelVersion = o.ModelVersion
				break
			}
		}

		switch pt {
		case models.PredictSeverity:
			matched, total := 0, 0
			for _, o := range outcomes {
				if o.SeverityMatch == nil {
					continue
				}
				total++
				if *o.SeverityMatch {
					matched++
				}
			}
			if total > 0 {
				acc := round4(float64(matched) / float64(total))
				r.Accuracy = &acc
				r.RetrainNeeded = NeedsRetrain(0, acc, e.cfg.ThresholdMAE, e.cfg.ThresholdAccuracy)
			}
		case models.PredictSpread:
			r.MAE, r.RMSE = regressionErrors(outcomes, func(o models.Outcome) *float64 { return o.AreaError })
			if r.MAE != nil {
				r.RetrainNeeded = NeedsRetrain(*r.MAE, 1, e.cfg.ThresholdMAE, e.cfg.ThresholdAccuracy)
			}
		case models.PredictImpact:
			r.MAE, r.RMSE = regressionErrors(outcomes, func(o models.Outcome) *float64 { return o.CasualtyError })
			if r.MAE != nil {
				r.RetrainNeeded = NeedsRetrain(*r.MAE, 1, e.cfg.ThresholdMAE, e.cfg.ThresholdAccuracy)
			}
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// buildOutcome pairs a prediction with the resolved disaster's final
// state and computes per-field errors where both sides are present.
func buildOutcome(d models.Disaster, p models.Prediction) *models.Outcome {
	o := &models.Outcome{
		ID:             uuid.NewString(),
		DisasterID:     d.ID,
		PredictionID:   p.ID,
		PredictionType: p.PredictionType,
		ModelVersion:   p.ModelVersion,
		LoggedBy:       "system",
		Notes:          "auto-captured from resolved disaster",

		PredictedSeverity:   p.PredictedSeverity,
		PredictedCasualties: p.PredictedCasualties,
		PredictedDamageUSD:  p.PredictedDamageUSD,
		PredictedAreaKm2:    p.PredictedAreaKm2,

		CreatedAt: time.Now().UTC(),
	}

	actual := d.Severity
	o.ActualSeverity = &actual
	if p.PredictedSeverity != nil {
		match := *p.PredictedSeverity == actual
		o.SeverityMatch = &match
	}

	if d.Casualties != nil {
		o.ActualCasualties = d.Casualties
		if p.PredictedCasualties != nil {
			errVal := float64(*d.Casualties - *p.PredictedCasualties)
			o.CasualtyError = &errVal
		}
	}
	if d.EstimatedDamage != nil {
		o.ActualDamageUSD = d.EstimatedDamage
		if p.PredictedDamageUSD != nil {
			errVal := *d.EstimatedDamage - *p.PredictedDamageUSD
			o.DamageError = &errVal
		}
	}
	return o
}

func regressionErrors(outcomes []models.Outcome, pick func(models.Outcome) *float64) (*float64, *float64) {
	var sumAbs, sumSq float64
	n := 0
	for _, o := range outcomes {
		e := pick(o)
		if e == nil {
			continue
		}
		sumAbs += math.Abs(*e)
		sumSq += *e * *e
		n++
	}
	if n == 0 {
		return nil, nil
	}
	mae := round2(sumAbs / float64(n))
	rmse := round2(math.Sqrt(sumSq / float64(n)))
	return &mae, &rmse
}

func floatOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
