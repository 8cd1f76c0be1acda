package ingest

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/reliefgrid/reliefgrid/internal/models"
	"github.com/reliefgrid/reliefgrid/internal/predict"
	"github.com/reliefgrid/reliefgrid/internal/store"
)

// locationToleranceDeg reuses an existing location when an event lands
// within this box on both axes.
const locationToleranceDeg = 0.5

// hotspotRadiusDeg bounds the satellite box summarized as spread input.
const hotspotRadiusDeg = 1.0

// CoordinateWeatherFetcher does a one-off observation fetch for a point
// with no stored weather. The weather adapter implements it.
type CoordinateWeatherFetcher interface {
	FetchForCoordinates(ctx context.Context, lat, lon float64) (*models.WeatherObservation, error)
}

// processEvent runs the cascade for one new event: auto-create the
// disaster, attach predictions, then evaluate alerting. Social chatter
// below high severity never creates disasters.
func (o *Orchestrator) processEvent(ctx context.Context, ev *models.IngestedEvent) {
	qualifies := ev.EventType != models.EventSocialSOS ||
		ev.Severity == models.SeverityCritical || ev.Severity == models.SeverityHigh

	if !qualifies || ev.Latitude == nil || ev.Longitude == nil {
		o.evaluateAlert(ctx, ev, nil, nil)
		return
	}

	disaster, err := o.autoCreateDisaster(ctx, ev)
	if err != nil {
		slog.Error("error auto-creating disaster", "event_id", ev.ID, "error", err)
		return
	}

	predictionIDs := o.runPredictions(ctx, ev, disaster)
	if err := o.store.MarkEventProcessed(ctx, ev.ID, &disaster.ID, predictionIDs); err != nil {
		slog.Error("error marking event processed", "event_id", ev.ID, "error", err)
	}
	ev.Processed = true
	ev.DisasterID = &disaster.ID
	ev.PredictionIDs = predictionIDs

	var firstPrediction *string
	if len(predictionIDs) > 0 {
		firstPrediction = &predictionIDs[0]
	}
	o.evaluateAlert(ctx, ev, &disaster.ID, firstPrediction)
}

func (o *Orchestrator) evaluateAlert(ctx context.Context, ev *models.IngestedEvent, disasterID, predictionID *string) {
	if o.notifier == nil {
		return
	}
	if _, err := o.notifier.EvaluateAndNotify(ctx, *ev, disasterID, predictionID); err != nil {
		slog.Error("error evaluating alert", "event_id", ev.ID, "error", err)
	}
}

// autoCreateDisaster mints a disaster record for an event, reusing a
// nearby location or creating a stub one.
func (o *Orchestrator) autoCreateDisaster(ctx context.Context, ev *models.IngestedEvent) (*models.Disaster, error) {
	loc, err := o.store.FindLocationNear(ctx, *ev.Latitude, *ev.Longitude, locationToleranceDeg)
	if err == store.ErrNotFound {
		name := ev.LocationName
		if name == "" {
			name = ev.Title
		}
		loc = &models.Location{
			ID:        uuid.NewString(),
			Name:      truncate(name, 255),
			Latitude:  *ev.Latitude,
			Longitude: *ev.Longitude,
			City:      "Unknown",
			State:     "Unknown",
			Country:   "Unknown",
			CreatedAt: time.Now().UTC(),
		}
		if err := o.store.InsertLocation(ctx, loc); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	disaster := &models.Disaster{
		ID:          uuid.NewString(),
		Type:        disasterTypeFor(ev),
		Severity:    ev.Severity,
		Status:      models.DisasterActive,
		Title:       truncate(ev.Title, 255),
		Description: ev.Description,
		LocationID:  loc.ID,
		StartDate:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := o.store.InsertDisaster(ctx, disaster); err != nil {
		return nil, err
	}

	slog.Info("auto-created disaster", "disaster_id", disaster.ID,
		"type", disaster.Type, "severity", disaster.Severity, "event_id", ev.ID)
	return disaster, nil
}

// disasterTypeFor prefers the feed's mapped type, falls back to the
// event type, and coerces anything off-vocabulary to other.
func disasterTypeFor(ev *models.IngestedEvent) models.DisasterType {
	t := models.DisasterType(ev.EventType)
	if mapped, ok := ev.RawPayload["disaster_type_mapped"].(string); ok && mapped != "" {
		t = models.DisasterType(mapped)
	}
	if !models.ValidDisasterType(t) {
		return models.DisasterOther
	}
	return t
}

// runPredictions attaches severity, spread and impact predictions to a
// fresh disaster. Each predictor failure is logged and skipped so one
// bad model never blocks the rest.
func (o *Orchestrator) runPredictions(ctx context.Context, ev *models.IngestedEvent, d *models.Disaster) []string {
	weather := o.weatherFeatures(ctx, d.LocationID, ev.Latitude, ev.Longitude)
	var ids []string

	// Severity
	sevFeatures := predict.Features{
		"temperature":   weather.Temperature,
		"humidity":      weather.Humidity,
		"wind_speed":    weather.WindSpeed,
		"pressure":      weather.Pressure,
		"precipitation": weather.Precipitation,
		"disaster_type": string(d.Type),
	}
	if res, err := o.predictor.PredictSeverity(sevFeatures); err != nil {
		slog.Error("severity prediction failed", "disaster_id", d.ID, "error", err)
	} else {
		sev := res.PredictedSeverity
		if id, err := o.insertPrediction(ctx, d, models.PredictSeverity, sevFeatures, res.ConfidenceScore, func(p *models.Prediction) {
			p.PredictedSeverity = &sev
			p.ModelVersion = res.ModelVersion
		}); err != nil {
			slog.Error("error storing severity prediction", "disaster_id", d.ID, "error", err)
		} else {
			ids = append(ids, id)
		}
	}

	// Spread
	currentArea := 50.0
	if mag, ok := floatFromPayload(ev.RawPayload, "magnitude"); ok && mag > 0 {
		currentArea = mag * 5
	}
	spreadFeatures := predict.Features{
		"current_area":  currentArea,
		"wind_speed":    weather.WindSpeed,
		"terrain_type":  "mixed",
		"disaster_type": string(d.Type),
	}
	if ev.Latitude != nil && ev.Longitude != nil {
		if hs, err := o.store.HotspotSummaryForArea(ctx, *ev.Latitude, *ev.Longitude, hotspotRadiusDeg); err != nil {
			slog.Error("error summarizing hotspots", "disaster_id", d.ID, "error", err)
		} else if hs.Count > 0 {
			spreadFeatures["hotspot_count"] = float64(hs.Count)
			spreadFeatures["avg_frp"] = hs.AvgFRP
			spreadFeatures["max_brightness"] = hs.MaxBrightness
		}
	}
	if res, err := o.predictor.PredictSpread(spreadFeatures); err != nil {
		slog.Error("spread prediction failed", "disaster_id", d.ID, "error", err)
	} else {
		area := res.PredictedAreaKm2
		if id, err := o.insertPrediction(ctx, d, models.PredictSpread, spreadFeatures, res.ConfidenceScore, func(p *models.Prediction) {
			p.PredictedAreaKm2 = &area
			p.CILowerKm2 = res.CILowerKm2
			p.CIUpperKm2 = res.CIUpperKm2
			p.ModelVersion = res.ModelVersion
		}); err != nil {
			slog.Error("error storing spread prediction", "disaster_id", d.ID, "error", err)
		} else {
			ids = append(ids, id)
		}
	}

	// Impact
	population := 10000.0
	if pop, ok := floatFromPayload(ev.RawPayload, "gdacs_population"); ok && pop > 0 {
		population = pop
	}
	// Impact scales on the observed event severity, not the severity
	// model's output.
	impactFeatures := predict.Features{
		"severity_score":      float64(models.SeverityRank(ev.Severity)),
		"affected_population": population,
		"disaster_type":       string(d.Type),
	}
	if res, err := o.predictor.PredictImpact(impactFeatures); err != nil {
		slog.Error("impact prediction failed", "disaster_id", d.ID, "error", err)
	} else {
		casualties := res.PredictedCasualties
		damage := res.PredictedDamageUSD
		if id, err := o.insertPrediction(ctx, d, models.PredictImpact, impactFeatures, res.ConfidenceScore, func(p *models.Prediction) {
			p.PredictedCasualties = &casualties
			p.PredictedDamageUSD = &damage
			p.ModelVersion = res.ModelVersion
		}); err != nil {
			slog.Error("error storing impact prediction", "disaster_id", d.ID, "error", err)
		} else {
			ids = append(ids, id)
		}
	}

	return ids
}

func (o *Orchestrator) insertPrediction(ctx context.Context, d *models.Disaster, kind models.PredictionType, features predict.Features, confidence float64, fill func(*models.Prediction)) (string, error) {
	if confidence > 1.0 {
		confidence = 1.0
	}
	p := &models.Prediction{
		ID:              uuid.NewString(),
		DisasterID:      d.ID,
		LocationID:      d.LocationID,
		PredictionType:  kind,
		Features:        map[string]any(features),
		ConfidenceScore: confidence,
		ModelVersion:    o.predictor.ModelVersion(),
		CreatedAt:       time.Now().UTC(),
	}
	fill(p)
	if err := o.store.InsertPrediction(ctx, p); err != nil {
		return "", err
	}
	return p.ID, nil
}

// weatherFeatures reads the latest observation for a location. When
// none is stored yet it asks the weather adapter for a one-off fetch,
// and only then falls back to climate defaults.
func (o *Orchestrator) weatherFeatures(ctx context.Context, locationID string, lat, lon *float64) models.WeatherFeatures {
	obs, err := o.store.LatestWeather(ctx, locationID)
	if err == store.ErrNotFound {
		obs = o.fetchWeatherForPoint(ctx, locationID, lat, lon)
		if obs == nil {
			return models.DefaultWeatherFeatures()
		}
	} else if err != nil {
		slog.Error("error loading weather features", "location_id", locationID, "error", err)
		return models.DefaultWeatherFeatures()
	}
	return models.WeatherFeatures{
		Temperature:   obs.TemperatureC,
		Humidity:      obs.HumidityPct,
		WindSpeed:     obs.WindSpeedMS,
		Pressure:      obs.PressureHPa,
		Precipitation: obs.PrecipMM,
	}
}

// fetchWeatherForPoint finds the first adapter able to fetch weather
// for a coordinate, stores the observation under the location and
// returns it. Nil when no adapter can serve the point.
func (o *Orchestrator) fetchWeatherForPoint(ctx context.Context, locationID string, lat, lon *float64) *models.WeatherObservation {
	if lat == nil || lon == nil {
		return nil
	}
	for _, a := range o.adapters {
		fetcher, ok := a.(CoordinateWeatherFetcher)
		if !ok {
			continue
		}
		obs, err := fetcher.FetchForCoordinates(ctx, *lat, *lon)
		if err != nil {
			slog.Warn("one-off weather fetch failed", "location_id", locationID, "error", err)
			return nil
		}
		obs.LocationID = &locationID
		if err := o.store.InsertWeather(ctx, obs); err != nil {
			slog.Error("error storing fetched weather", "location_id", locationID, "error", err)
		}
		return obs
	}
	return nil
}

func floatFromPayload(payload map[string]any, key string) (float64, bool) {
	switch v := payload[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
