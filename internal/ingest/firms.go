package ingest

import (
	"context"
	"encoding/csv"
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

// FIRMSAdapter polls the NASA FIRMS CSV endpoint for active fire
// hotspots. The feed requires an API key; without one the adapter
// generates mock hotspots instead. Output feeds the spread predictor.
type FIRMSAdapter struct {
	client   *http.Client
	baseURL  string
	apiKey   string
	source   string
	interval time.Duration
	mock     *MockGenerator
}

func NewFIRMSAdapter(cfg config.IngestionConfig, mock *MockGenerator) *FIRMSAdapter {
	return &FIRMSAdapter{
		client:   &http.Client{Timeout: 60 * time.Second},
		baseURL:  cfg.FIRMSBaseURL,
		apiKey:   cfg.FIRMSAPIKey,
		source:   cfg.FIRMSSource,
		interval: cfg.FIRMSPollInterval,
		mock:     mock,
	}
}

func (a *FIRMSAdapter) Name() string { return SourceFIRMS }

func (a *FIRMSAdapter) Descriptor() models.Source {
	return models.Source{
		SourceName:   SourceFIRMS,
		SourceType:   "csv_api",
		BaseURL:      a.baseURL,
		IsActive:     true,
		PollInterval: a.interval,
	}
}

func (a *FIRMSAdapter) Interval() time.Duration { return a.interval }

func (a *FIRMSAdapter) Poll(ctx context.Context) (Batch, error) {
	if a.apiKey == "" {
		slog.Info("no FIRMS_API_KEY, using mock fire hotspot data")
		return Batch{Hotspots: a.mock.FireHotspots()}, nil
	}

	hotspots, err := a.fetch(ctx, "world", 1)
	if err != nil {
		return Batch{}, fmt.Errorf("error polling firms: %w", err)
	}
	return Batch{Hotspots: hotspots}, nil
}

// fetch hits the area CSV endpoint: {base}/{key}/{source}/{bbox}/{days}.
func (a *FIRMSAdapter) fetch(ctx context.Context, bbox string, days int) ([]models.SatelliteObservation, error) {
	url := strings.Join([]string{a.baseURL, a.apiKey, a.source, bbox, strconv.Itoa(days)}, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
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
	return a.parseCSV(resp.Body)
}

func (a *FIRMSAdapter) parseCSV(r io.Reader) ([]models.SatelliteObservation, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var out []models.SatelliteObservation
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			slog.Debug("skipping unparseable firms row", "error", err)
			continue
		}

		lat, latErr := strconv.ParseFloat(field(row, "latitude"), 64)
		lon, lonErr := strconv.ParseFloat(field(row, "longitude"), 64)
		if latErr != nil || lonErr != nil {
			continue
		}

		brightness := floatOrNil(field(row, "bright_ti4"))
		if brightness == nil {
			brightness = floatOrNil(field(row, "brightness"))
		}

		confidence := strings.ToLower(field(row, "confidence"))
		switch confidence {
		case "low", "nominal", "high":
		default:
			confidence = ""
		}

		acqDate := field(row, "acq_date")
		acqTime := field(row, "acq_time")
		if acqTime == "" {
			acqTime = "0000"
		}
		acqDT, err := time.Parse("2006-01-02 1504", acqDate+" "+acqTime)
		if err != nil {
			acqDT = time.Now().UTC()
		}

		raw := make(map[string]any, len(header))
		for _, name := range header {
			raw[name] = field(row, name)
		}

		out = append(out, models.SatelliteObservation{
			ID:          uuid.NewString(),
			Source:      "firms",
			ExternalID:  fmt.Sprintf("firms-%g-%g-%s-%s", lat, lon, acqDate, acqTime),
			Latitude:    lat,
			Longitude:   lon,
			Brightness:  brightness,
			FRP:         floatOrNil(field(row, "frp")),
			Confidence:  confidence,
			Satellite:   field(row, "satellite"),
			Instrument:  field(row, "instrument"),
			AcqDatetime: acqDT,
			DayNight:    field(row, "daynight"),
			RawPayload:  raw,
		})
	}
	return out, nil
}

func floatOrNil(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}
