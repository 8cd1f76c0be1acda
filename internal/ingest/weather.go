package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/reliefgrid/reliefgrid/internal/config"
	"github.com/reliefgrid/reliefgrid/internal/models"
)

// LocationLister supplies the tracked locations weather is fetched for.
type LocationLister interface {
	ListLocations(ctx context.Context) ([]models.Location, error)
}

type owmResponse struct {
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
		Pressure float64 `json:"pressure"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
		Deg   float64 `json:"deg"`
	} `json:"wind"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Rain       map[string]float64 `json:"rain"`
	Snow       map[string]float64 `json:"snow"`
	Visibility float64            `json:"visibility"`
	Dt         int64              `json:"dt"`
}

// WeatherAdapter polls OpenWeatherMap for current conditions at every
// tracked location. Without an API key it stores mock observations
// with no location link.
type WeatherAdapter struct {
	client    *http.Client
	baseURL   string
	apiKey    string
	interval  time.Duration
	locations LocationLister
	mock      *MockGenerator
}

func NewWeatherAdapter(cfg config.IngestionConfig, locations LocationLister, mock *MockGenerator) *WeatherAdapter {
	return &WeatherAdapter{
		client:    &http.Client{Timeout: 15 * time.Second},
		baseURL:   cfg.WeatherBaseURL,
		apiKey:    cfg.WeatherAPIKey,
		interval:  cfg.WeatherPollInterval,
		locations: locations,
		mock:      mock,
	}
}

func (a *WeatherAdapter) Name() string { return SourceWeather }

func (a *WeatherAdapter) Descriptor() models.Source {
	return models.Source{
		SourceName:   SourceWeather,
		SourceType:   "rest_api",
		BaseURL:      a.baseURL,
		IsActive:     true,
		PollInterval: a.interval,
	}
}

func (a *WeatherAdapter) Interval() time.Duration { return a.interval }

func (a *WeatherAdapter) Poll(ctx context.Context) (Batch, error) {
	if a.apiKey == "" {
		slog.Info("no OPENWEATHERMAP_API_KEY, using mock weather data")
		obs := a.mock.Weather(nil)
		// Mock locations are not persisted rows; drop the link so the
		// observations stand alone.
		for i := range obs {
			obs[i].LocationID = nil
		}
		return Batch{Weather: obs}, nil
	}

	locations, err := a.locations.ListLocations(ctx)
	if err != nil {
		return Batch{}, fmt.Errorf("error listing tracked locations: %w", err)
	}

	var out []models.WeatherObservation
	for _, loc := range locations {
		obs, err := a.fetchCurrent(ctx, loc)
		if err != nil {
			slog.Error("weather fetch failed", "location", loc.Name, "error", err)
			continue
		}
		out = append(out, *obs)
	}
	return Batch{Weather: out}, nil
}

// FetchForCoordinates does a one-off fetch for an arbitrary point.
func (a *WeatherAdapter) FetchForCoordinates(ctx context.Context, lat, lon float64) (*models.WeatherObservation, error) {
	if a.apiKey == "" {
		obs := a.mock.Weather([]models.Location{{Latitude: lat, Longitude: lon}})
		if len(obs) == 0 {
			return nil, fmt.Errorf("no mock observation generated")
		}
		obs[0].LocationID = nil
		return &obs[0], nil
	}
	return a.fetchCurrent(ctx, models.Location{Latitude: lat, Longitude: lon})
}

func (a *WeatherAdapter) fetchCurrent(ctx context.Context, loc models.Location) (*models.WeatherObservation, error) {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%g", loc.Latitude))
	q.Set("lon", fmt.Sprintf("%g", loc.Longitude))
	q.Set("appid", a.apiKey)
	q.Set("units", "metric")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/weather?"+q.Encode(), nil)
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

	var data owmResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("error decoding resp.Body: %w", err)
	}

	precip := data.Rain["1h"]
	if precip == 0 {
		precip = data.Snow["1h"]
	}
	var weatherMain, weatherDesc string
	if len(data.Weather) > 0 {
		weatherMain = data.Weather[0].Main
		weatherDesc = data.Weather[0].Description
	}

	var locationID *string
	if loc.ID != "" {
		id := loc.ID
		locationID = &id
	}

	raw := map[string]any{
		"dt": data.Dt, "visibility": data.Visibility,
		"main": map[string]any{"temp": data.Main.Temp, "humidity": data.Main.Humidity, "pressure": data.Main.Pressure},
		"wind": map[string]any{"speed": data.Wind.Speed, "deg": data.Wind.Deg},
	}

	return &models.WeatherObservation{
		ID:           uuid.NewString(),
		LocationID:   locationID,
		Latitude:     loc.Latitude,
		Longitude:    loc.Longitude,
		TemperatureC: data.Main.Temp,
		HumidityPct:  data.Main.Humidity,
		WindSpeedMS:  data.Wind.Speed,
		WindDeg:      data.Wind.Deg,
		PressureHPa:  data.Main.Pressure,
		PrecipMM:     precip,
		VisibilityM:  data.Visibility,
		WeatherMain:  weatherMain,
		WeatherDesc:  weatherDesc,
		ObservedAt:   time.Unix(data.Dt, 0).UTC(),
		Source:       "openweathermap",
		RawPayload:   raw,
	}, nil
}
