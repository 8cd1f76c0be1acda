// Package ingest polls the external disaster feeds, normalizes their
// payloads into events and observations, and runs the processing
// cascade that turns qualifying events into disasters, predictions and
// alerts.
package ingest

import (
	"context"
	"time"

	"github.com/reliefgrid/reliefgrid/internal/models"
)

// Canonical source registry names.
const (
	SourceUSGS    = "usgs_earthquakes"
	SourceGDACS   = "gdacs"
	SourceFIRMS   = "nasa_firms"
	SourceWeather = "openweathermap"
	SourceSocial  = "social_media"
)

// Batch is one poll's normalized output. Most adapters fill Events;
// the satellite and weather feeds produce observations instead.
type Batch struct {
	Events   []models.IngestedEvent
	Hotspots []models.SatelliteObservation
	Weather  []models.WeatherObservation
}

// Adapter is one external feed. Poll returns the full parsed batch;
// dedup and persistence belong to the orchestrator.
type Adapter interface {
	Name() string
	Descriptor() models.Source
	Interval() time.Duration
	Poll(ctx context.Context) (Batch, error)
}
