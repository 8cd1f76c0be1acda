package models

import "time"

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SeverityRank maps severities onto the 1..4 ordinal scale used by the
// impact predictor and the anomaly detector.
func SeverityRank(s Severity) int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 1
	}
}

type EventType string

const (
	EventEarthquake    EventType = "earthquake"
	EventGDACSAlert    EventType = "gdacs_alert"
	EventSocialSOS     EventType = "social_sos"
	EventFireHotspot   EventType = "fire_hotspot"
	EventWeatherUpdate EventType = "weather_update"
)

// IngestedEvent is one normalized record from an external feed.
// (source_id, external_id) is unique; dedup keys on ExternalID.
type IngestedEvent struct {
	ID            string
	SourceID      string
	ExternalID    string // e.g. "usgs-us7000abcd", "gdacs-TC-12345"
	EventType     EventType
	Title         string
	Description   string
	Severity      Severity
	Latitude      *float64
	Longitude     *float64
	LocationName  string
	RawPayload    map[string]any
	IngestedAt    time.Time
	Processed     bool
	ProcessedAt   *time.Time
	DisasterID    *string
	PredictionIDs []string
}

type SourceStatus string

const (
	SourceStatusSuccess SourceStatus = "success"
	SourceStatusError   SourceStatus = "error"
)

// Source is one row of the feed registry, auto-created on first use.
type Source struct {
	ID           string
	SourceName   string // openweathermap | gdacs | usgs_earthquakes | nasa_firms | social_media
	SourceType   string
	BaseURL      string
	IsActive     bool
	PollInterval time.Duration
	LastPolledAt *time.Time
	LastStatus   SourceStatus
	LastError    string
}
