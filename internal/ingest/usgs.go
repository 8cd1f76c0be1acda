package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/reliefgrid/reliefgrid/internal/config"
	"github.com/reliefgrid/reliefgrid/internal/models"
)

type usgsResponse struct {
	Features []usgsFeature `json:"features"`
}

type usgsFeature struct {
	ID         string         `json:"id"`
	Properties usgsProperties `json:"properties"`
	Geometry   usgsGeometry   `json:"geometry"`
}

type usgsProperties struct {
	Mag     *float64 `json:"mag"`
	Place   string   `json:"place"`
	Time    int64    `json:"time"` // unix millis
	Title   string   `json:"title"`
	URL     string   `json:"url"`
	MagType string   `json:"magType"`
	Tsunami int      `json:"tsunami"`
	Felt    *int     `json:"felt"`
	Alert   string   `json:"alert"`
	Status  string   `json:"status"`
	Type    string   `json:"type"`
}

type usgsGeometry struct {
	Coordinates []float64 `json:"coordinates"` // [lon, lat, depth]
}

// USGSAdapter polls the USGS GeoJSON earthquake feed, filtering by
// minimum magnitude. When the feed is unreachable or empty it
// substitutes mock earthquakes so the pipeline keeps flowing.
type USGSAdapter struct {
	client   *http.Client
	url      string
	minMag   float64
	interval time.Duration
	mock     *MockGenerator
}

func NewUSGSAdapter(cfg config.IngestionConfig, mock *MockGenerator) *USGSAdapter {
	return &USGSAdapter{
		client:   &http.Client{Timeout: 20 * time.Second},
		url:      cfg.USGSURL,
		minMag:   cfg.USGSMinMagnitude,
		interval: cfg.USGSPollInterval,
		mock:     mock,
	}
}

func (a *USGSAdapter) Name() string { return SourceUSGS }

func (a *USGSAdapter) Descriptor() models.Source {
	return models.Source{
		SourceName:   SourceUSGS,
		SourceType:   "geojson_feed",
		BaseURL:      "https://earthquake.usgs.gov/earthquakes/feed",
		IsActive:     true,
		PollInterval: a.interval,
	}
}

func (a *USGSAdapter) Interval() time.Duration { return a.interval }

func (a *USGSAdapter) Poll(ctx context.Context) (Batch, error) {
	events, err := a.fetch(ctx)
	if err != nil {
		slog.Warn("usgs feed unreachable, using mock earthquake data", "error", err)
		return Batch{Events: a.mock.Earthquakes()}, nil
	}
	if len(events) == 0 {
		slog.Info("usgs returned 0 events, generating mock earthquakes")
		return Batch{Events: a.mock.Earthquakes()}, nil
	}
	return Batch{Events: events}, nil
}

func (a *USGSAdapter) fetch(ctx context.Context) ([]models.IngestedEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}

	var data usgsResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("error decoding resp.Body: %w", err)
	}
	return a.parse(data.Features), nil
}

func (a *USGSAdapter) parse(features []usgsFeature) []models.IngestedEvent {
	now := time.Now().UTC()
	events := make([]models.IngestedEvent, 0, len(features))
	for _, f := range features {
		if f.Properties.Mag == nil || *f.Properties.Mag < a.minMag {
			continue
		}
		mag := *f.Properties.Mag

		var lat, lon *float64
		var depthKm any
		if len(f.Geometry.Coordinates) >= 2 {
			lo, la := f.Geometry.Coordinates[0], f.Geometry.Coordinates[1]
			lat, lon = &la, &lo
		}
		if len(f.Geometry.Coordinates) > 2 {
			depthKm = f.Geometry.Coordinates[2]
		}

		title := f.Properties.Title
		if title == "" {
			title = f.Properties.Place
		}
		if title == "" {
			title = "Earthquake"
		}
		place := f.Properties.Place
		if place == "" {
			place = "unknown"
		}

		events = append(events, models.IngestedEvent{
			ID:           uuid.NewString(),
			ExternalID:   "usgs-" + f.ID,
			EventType:    models.EventEarthquake,
			Title:        title,
			Description:  fmt.Sprintf("M%g earthquake at %s. Depth: %v km.", mag, place, depthKm),
			Severity:     magnitudeSeverity(mag),
			Latitude:     lat,
			Longitude:    lon,
			LocationName: f.Properties.Place,
			RawPayload: map[string]any{
				"usgs_id":   f.ID,
				"magnitude": mag,
				"mag_type":  f.Properties.MagType,
				"depth_km":  depthKm,
				"place":     f.Properties.Place,
				"time":      f.Properties.Time,
				"url":       f.Properties.URL,
				"tsunami":   f.Properties.Tsunami,
				"felt":      f.Properties.Felt,
				"alert":     f.Properties.Alert,
				"status":    f.Properties.Status,
				"type":      f.Properties.Type,
			},
			IngestedAt: now,
		})
	}
	return events
}

// magnitudeSeverity maps Richter magnitude onto the severity scale.
func magnitudeSeverity(mag float64) models.Severity {
	switch {
	case mag >= 7.0:
		return models.SeverityCritical
	case mag >= 6.0:
		return models.SeverityHigh
	case mag >= 5.0:
		return models.SeverityMedium
	}
	return models.SeverityLow
}
