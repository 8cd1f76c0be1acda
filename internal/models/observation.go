package models

import "time"

// SatelliteObservation is one fire-hotspot row from the satellite feed.
type SatelliteObservation struct {
	ID          string
	Source      string
	ExternalID  string // firms-<lat>-<lon>-<YYYY-MM-DD>-<HHMM>
	Latitude    float64
	Longitude   float64
	Brightness  *float64
	FRP         *float64 // fire radiative power
	Confidence  string   // low | nominal | high
	Satellite   string
	Instrument  string
	AcqDatetime time.Time
	DayNight    string
	RawPayload  map[string]any
}

// WeatherObservation is an append-only atmospheric snapshot per location.
// The most recent row per location is read as prediction context.
type WeatherObservation struct {
	ID            string
	LocationID    *string // nil for mock observations with no tracked location
	Latitude      float64
	Longitude     float64
	TemperatureC  float64
	HumidityPct   float64
	WindSpeedMS   float64
	WindDeg       float64
	PressureHPa   float64
	PrecipMM      float64
	VisibilityM   float64
	WeatherMain   string
	WeatherDesc   string
	ObservedAt    time.Time
	Source        string
	RawPayload    map[string]any
}

// HotspotSummary aggregates the newest satellite observations inside a
// coordinate box, read as spread-predictor input.
type HotspotSummary struct {
	Count         int
	AvgFRP        float64
	MaxBrightness float64
}

// WeatherFeatures is the latest-observation view consumed by the
// prediction feature builders.
type WeatherFeatures struct {
	Temperature   float64
	Humidity      float64
	WindSpeed     float64
	Pressure      float64
	Precipitation float64
}

// DefaultWeatherFeatures are used when a location has no stored observation.
func DefaultWeatherFeatures() WeatherFeatures {
	return WeatherFeatures{Temperature: 25, Humidity: 50, WindSpeed: 10, Pressure: 1013}
}
