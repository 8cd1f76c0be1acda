package models

import "time"

type DisasterType string

const (
	DisasterEarthquake DisasterType = "earthquake"
	DisasterFlood      DisasterType = "flood"
	DisasterHurricane  DisasterType = "hurricane"
	DisasterTornado    DisasterType = "tornado"
	DisasterWildfire   DisasterType = "wildfire"
	DisasterTsunami    DisasterType = "tsunami"
	DisasterDrought    DisasterType = "drought"
	DisasterLandslide  DisasterType = "landslide"
	DisasterVolcano    DisasterType = "volcano"
	DisasterOther      DisasterType = "other"
)

// DisasterTypes is the one-hot vocabulary used by the feature builders.
var DisasterTypes = []DisasterType{
	DisasterEarthquake, DisasterFlood, DisasterHurricane, DisasterTornado,
	DisasterWildfire, DisasterTsunami, DisasterDrought, DisasterLandslide,
	DisasterVolcano,
}

// ValidDisasterType reports whether t is in the canonical vocabulary
// (excluding "other", which is the fallback).
func ValidDisasterType(t DisasterType) bool {
	for _, dt := range DisasterTypes {
		if t == dt {
			return true
		}
	}
	return false
}

type DisasterStatus string

const (
	DisasterPredicted  DisasterStatus = "predicted"
	DisasterActive     DisasterStatus = "active"
	DisasterMonitoring DisasterStatus = "monitoring"
	DisasterResolved   DisasterStatus = "resolved"
)

// Disaster is the canonical record auto-created from a qualifying event.
type Disaster struct {
	ID                 string
	Type               DisasterType
	Severity           Severity
	Status             DisasterStatus
	Title              string
	Description        string
	LocationID         string
	StartDate          time.Time
	EndDate            *time.Time
	AffectedPopulation *int64
	Casualties         *int64
	EstimatedDamage    *float64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Location is a named coordinate. Events within ±0.5° of an existing
// location reuse it; otherwise a stub is minted with Unknown fields.
type Location struct {
	ID        string
	Name      string
	Latitude  float64
	Longitude float64
	City      string
	State     string
	Country   string
	CreatedAt time.Time
}
