package ingest

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/reliefgrid/reliefgrid/internal/config"
	"github.com/reliefgrid/reliefgrid/internal/models"
)

// gdacsTypeMap maps GDACS event type codes onto the disaster vocabulary.
var gdacsTypeMap = map[string]models.DisasterType{
	"EQ": models.DisasterEarthquake,
	"TC": models.DisasterHurricane,
	"FL": models.DisasterFlood,
	"VO": models.DisasterVolcano,
	"DR": models.DisasterDrought,
	"WF": models.DisasterWildfire,
	"TS": models.DisasterTsunami,
}

type gdacsRSS struct {
	Items []gdacsItem `xml:"channel>item"`
}

type gdacsItem struct {
	Title       string `xml:"title"`
	Description string `xml:"description"`
	Link        string `xml:"link"`
	PubDate     string `xml:"pubDate"`

	EventType  string `xml:"http://www.gdacs.org eventtype"`
	AlertLevel string `xml:"http://www.gdacs.org alertlevel"`
	EventID    string `xml:"http://www.gdacs.org eventid"`
	Severity   string `xml:"http://www.gdacs.org severity"`
	Population string `xml:"http://www.gdacs.org population"`

	Lat string `xml:"http://www.w3.org/2003/01/geo/wgs84_pos# lat"`
	Lon string `xml:"http://www.w3.org/2003/01/geo/wgs84_pos# long"`
}

// GDACSAdapter polls the GDACS RSS feed for multi-hazard alerts.
type GDACSAdapter struct {
	client   *http.Client
	url      string
	interval time.Duration
	mock     *MockGenerator
}

func NewGDACSAdapter(cfg config.IngestionConfig, mock *MockGenerator) *GDACSAdapter {
	return &GDACSAdapter{
		client:   &http.Client{Timeout: 30 * time.Second},
		url:      cfg.GDACSURL,
		interval: cfg.GDACSPollInterval,
		mock:     mock,
	}
}

func (a *GDACSAdapter) Name() string { return SourceGDACS }

func (a *GDACSAdapter) Descriptor() models.Source {
	return models.Source{
		SourceName:   SourceGDACS,
		SourceType:   "rss_feed",
		BaseURL:      "https://www.gdacs.org/xml/rss.xml",
		IsActive:     true,
		PollInterval: a.interval,
	}
}

func (a *GDACSAdapter) Interval() time.Duration { return a.interval }

func (a *GDACSAdapter) Poll(ctx context.Context) (Batch, error) {
	events, err := a.fetch(ctx)
	if err != nil {
		slog.Warn("gdacs rss unreachable, using mock disaster data", "error", err)
		return Batch{Events: a.mock.GDACSEvents()}, nil
	}
	if len(events) == 0 {
		slog.Info("gdacs feed returned 0 items, generating mock events")
		return Batch{Events: a.mock.GDACSEvents()}, nil
	}
	return Batch{Events: events}, nil
}

func (a *GDACSAdapter) fetch(ctx context.Context) ([]models.IngestedEvent, error) {
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

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading resp.Body: %w", err)
	}
	return a.parse(body)
}

func (a *GDACSAdapter) parse(body []byte) ([]models.IngestedEvent, error) {
	var feed gdacsRSS
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("error parsing gdacs xml: %w", err)
	}

	now := time.Now().UTC()
	events := make([]models.IngestedEvent, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.EventID == "" {
			continue
		}

		var lat, lon *float64
		if v, err := strconv.ParseFloat(strings.TrimSpace(item.Lat), 64); err == nil {
			lat = &v
		}
		if v, err := strconv.ParseFloat(strings.TrimSpace(item.Lon), 64); err == nil {
			lon = &v
		}

		mapped := models.DisasterOther
		if t, ok := gdacsTypeMap[item.EventType]; ok {
			mapped = t
		}

		events = append(events, models.IngestedEvent{
			ID:          uuid.NewString(),
			ExternalID:  fmt.Sprintf("gdacs-%s-%s", item.EventType, item.EventID),
			EventType:   models.EventGDACSAlert,
			Title:       strings.TrimSpace(item.Title),
			Description: strings.TrimSpace(item.Description),
			Severity:    gdacsAlertSeverity(item.AlertLevel),
			Latitude:    lat,
			Longitude:   lon,
			// GDACS titles usually carry the affected area name.
			LocationName: strings.TrimSpace(item.Title),
			RawPayload: map[string]any{
				"link":                 item.Link,
				"pub_date":             item.PubDate,
				"gdacs_event_type":     item.EventType,
				"gdacs_alert_level":    item.AlertLevel,
				"gdacs_event_id":       item.EventID,
				"gdacs_severity":       item.Severity,
				"gdacs_population":     item.Population,
				"disaster_type_mapped": string(mapped),
			},
			IngestedAt: now,
		})
	}
	return events, nil
}

// gdacsAlertSeverity maps GDACS alert colors onto the severity scale.
// Unknown levels default to medium.
func gdacsAlertSeverity(level string) models.Severity {
	switch level {
	case "Red":
		return models.SeverityCritical
	case "Orange":
		return models.SeverityHigh
	case "Green":
		return models.SeverityMedium
	}
	return models.SeverityMedium
}
