package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/reliefgrid/reliefgrid/internal/config"
	"github.com/reliefgrid/reliefgrid/internal/models"
)

const usgsFixture = `{
	"features": [
		{
			"id": "us7000abcd",
			"properties": {
				"mag": 6.8,
				"place": "120km SSE of Sand Point, Alaska",
				"time": 1700000000000,
				"title": "M 6.8 - 120km SSE of Sand Point, Alaska",
				"url": "https://earthquake.usgs.gov/earthquakes/eventpage/us7000abcd",
				"magType": "mww",
				"tsunami": 1,
				"status": "reviewed",
				"type": "earthquake"
			},
			"geometry": {"coordinates": [-160.5, 54.4, 32.2]}
		},
		{
			"id": "us7000tiny",
			"properties": {"mag": 2.1, "place": "Nevada", "time": 1700000000000},
			"geometry": {"coordinates": [-117.1, 38.5, 5.0]}
		},
		{
			"id": "us7000null",
			"properties": {"mag": null, "place": "Unknown"},
			"geometry": {"coordinates": [0, 0, 0]}
		}
	]
}`

func TestUSGSAdapter_Poll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(usgsFixture))
	}))
	defer srv.Close()

	a := NewUSGSAdapter(config.IngestionConfig{
		USGSURL:          srv.URL,
		USGSMinMagnitude: 4.5,
		USGSPollInterval: time.Minute,
	}, NewMockGenerator(1))

	batch, err := a.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	// Below-threshold and null-magnitude quakes are filtered out.
	if len(batch.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(batch.Events))
	}

	ev := batch.Events[0]
	if ev.ExternalID != "usgs-us7000abcd" {
		t.Errorf("unexpected external id %q", ev.ExternalID)
	}
	if ev.Severity != models.SeverityHigh {
		t.Errorf("expected high severity for M6.8, got %s", ev.Severity)
	}
	if ev.Latitude == nil || *ev.Latitude != 54.4 {
		t.Errorf("expected latitude 54.4, got %v", ev.Latitude)
	}
	if ev.Longitude == nil || *ev.Longitude != -160.5 {
		t.Errorf("expected longitude -160.5, got %v", ev.Longitude)
	}
	if ev.RawPayload["magnitude"] != 6.8 {
		t.Errorf("expected magnitude in payload, got %v", ev.RawPayload["magnitude"])
	}
}

func TestUSGSAdapter_MockFallbackOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := NewUSGSAdapter(config.IngestionConfig{
		USGSURL:          srv.URL,
		USGSPollInterval: time.Minute,
	}, NewMockGenerator(1))

	var events []models.IngestedEvent
	for i := 0; i < 50 && len(events) == 0; i++ {
		batch, err := a.Poll(context.Background())
		if err != nil {
			t.Fatalf("Poll must not fail when feed is down: %v", err)
		}
		events = batch.Events
	}
	if len(events) == 0 {
		t.Fatal("expected mock fallback events eventually")
	}
	if events[0].RawPayload["mock"] != true {
		t.Error("fallback events must be marked mock")
	}
}

const gdacsFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:gdacs="http://www.gdacs.org" xmlns:geo="http://www.w3.org/2003/01/geo/wgs84_pos#">
<channel>
<item>
<title>Red alert Tropical Cyclone RAI-21</title>
<description>Tropical Cyclone RAI-21 with maximum wind speed 195 km/h</description>
<link>https://www.gdacs.org/report.aspx?eventid=1000887</link>
<pubDate>Thu, 16 Dec 2021 06:00:00 GMT</pubDate>
<gdacs:eventtype>TC</gdacs:eventtype>
<gdacs:alertlevel>Red</gdacs:alertlevel>
<gdacs:eventid>1000887</gdacs:eventid>
<gdacs:population>1200000</gdacs:population>
<geo:lat>10.2</geo:lat>
<geo:long>126.5</geo:long>
</item>
<item>
<title>Feed housekeeping item without event</title>
<description>ignore me</description>
</item>
</channel>
</rss>`

func TestGDACSAdapter_Parse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(gdacsFixture))
	}))
	defer srv.Close()

	a := NewGDACSAdapter(config.IngestionConfig{
		GDACSURL:          srv.URL,
		GDACSPollInterval: time.Minute,
	}, NewMockGenerator(1))

	batch, err := a.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	// Items without an event id are skipped.
	if len(batch.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(batch.Events))
	}

	ev := batch.Events[0]
	if ev.ExternalID != "gdacs-TC-1000887" {
		t.Errorf("unexpected external id %q", ev.ExternalID)
	}
	if ev.Severity != models.SeverityCritical {
		t.Errorf("Red alert must map to critical, got %s", ev.Severity)
	}
	if ev.RawPayload["disaster_type_mapped"] != "hurricane" {
		t.Errorf("TC must map to hurricane, got %v", ev.RawPayload["disaster_type_mapped"])
	}
	if ev.Latitude == nil || *ev.Latitude != 10.2 {
		t.Errorf("expected latitude from geo namespace, got %v", ev.Latitude)
	}
	if ev.RawPayload["gdacs_population"] != "1200000" {
		t.Errorf("expected population carried through, got %v", ev.RawPayload["gdacs_population"])
	}
}

func TestGDACSAlertSeverity(t *testing.T) {
	cases := map[string]models.Severity{
		"Red":    models.SeverityCritical,
		"Orange": models.SeverityHigh,
		"Green":  models.SeverityMedium,
		"":       models.SeverityMedium,
		"Purple": models.SeverityMedium,
	}
	for level, want := range cases {
		if got := gdacsAlertSeverity(level); got != want {
			t.Errorf("gdacsAlertSeverity(%q) = %s, want %s", level, got, want)
		}
	}
}

const firmsFixture = `latitude,longitude,bright_ti4,scan,track,acq_date,acq_time,satellite,instrument,confidence,version,bright_ti5,frp,daynight
-14.2345,131.0042,345.2,0.39,0.36,2026-08-23,0442,N20,VIIRS,nominal,2.0NRT,295.1,12.7,N
38.1,23.7,,0.4,0.4,2026-08-23,1130,N20,VIIRS,h,2.0NRT,300.0,55.0,D
not-a-number,23.7,340.0,0.4,0.4,2026-08-23,1130,N20,VIIRS,low,2.0NRT,300.0,5.0,D`

func TestFIRMSAdapter_ParseCSV(t *testing.T) {
	a := NewFIRMSAdapter(config.IngestionConfig{
		FIRMSBaseURL:      "https://firms.example",
		FIRMSAPIKey:       "key",
		FIRMSSource:       "VIIRS_SNPP_NRT",
		FIRMSPollInterval: time.Minute,
	}, NewMockGenerator(1))

	out, err := a.parseCSV(strings.NewReader(firmsFixture))
	if err != nil {
		t.Fatalf("parseCSV failed: %v", err)
	}
	// Row with unparseable latitude is dropped.
	if len(out) != 2 {
		t.Fatalf("expected 2 hotspots, got %d", len(out))
	}

	h := out[0]
	if h.ExternalID != "firms--14.2345-131.0042-2026-08-23-0442" {
		t.Errorf("unexpected external id %q", h.ExternalID)
	}
	if h.Brightness == nil || *h.Brightness != 345.2 {
		t.Errorf("expected bright_ti4 as brightness, got %v", h.Brightness)
	}
	if h.Confidence != "nominal" {
		t.Errorf("expected nominal confidence, got %q", h.Confidence)
	}
	if h.AcqDatetime.Format("2006-01-02 15:04") != "2026-08-23 04:42" {
		t.Errorf("unexpected acq datetime %v", h.AcqDatetime)
	}

	// Second row: no bright_ti4 value and an off-vocabulary confidence.
	if out[1].Brightness != nil {
		t.Errorf("expected nil brightness, got %v", out[1].Brightness)
	}
	if out[1].Confidence != "" {
		t.Errorf("off-vocabulary confidence must be dropped, got %q", out[1].Confidence)
	}
	if out[1].FRP == nil || *out[1].FRP != 55.0 {
		t.Errorf("expected frp 55.0, got %v", out[1].FRP)
	}
}

func TestFIRMSAdapter_MockWithoutKey(t *testing.T) {
	a := NewFIRMSAdapter(config.IngestionConfig{
		FIRMSPollInterval: time.Minute,
	}, NewMockGenerator(5))

	var hotspots []models.SatelliteObservation
	for i := 0; i < 50 && len(hotspots) == 0; i++ {
		batch, err := a.Poll(context.Background())
		if err != nil {
			t.Fatalf("Poll failed: %v", err)
		}
		hotspots = batch.Hotspots
	}
	if len(hotspots) == 0 {
		t.Fatal("expected mock hotspots without api key")
	}
	if hotspots[0].Source != "mock_firms" {
		t.Errorf("expected mock_firms source, got %q", hotspots[0].Source)
	}
}

type fixedLocations []models.Location

func (f fixedLocations) ListLocations(ctx context.Context) ([]models.Location, error) {
	return f, nil
}

func TestWeatherAdapter_Poll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("units") != "metric" {
			t.Errorf("expected metric units, got %q", r.URL.Query().Get("units"))
		}
		if r.URL.Query().Get("appid") != "owm-key" {
			t.Errorf("missing api key in query")
		}
		w.Write([]byte(`{
			"main": {"temp": 28.4, "humidity": 74, "pressure": 1008},
			"wind": {"speed": 6.2, "deg": 140},
			"weather": [{"main": "Rain", "description": "moderate rain"}],
			"rain": {"1h": 3.5},
			"visibility": 8000,
			"dt": 1756000000
		}`))
	}))
	defer srv.Close()

	a := NewWeatherAdapter(config.IngestionConfig{
		WeatherBaseURL:      srv.URL,
		WeatherAPIKey:       "owm-key",
		WeatherPollInterval: time.Minute,
	}, fixedLocations{{ID: "loc-1", Name: "Manila", Latitude: 14.6, Longitude: 120.98}}, NewMockGenerator(1))

	batch, err := a.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(batch.Weather) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(batch.Weather))
	}

	obs := batch.Weather[0]
	if obs.TemperatureC != 28.4 {
		t.Errorf("expected 28.4C, got %v", obs.TemperatureC)
	}
	if obs.PrecipMM != 3.5 {
		t.Errorf("expected rain 1h as precipitation, got %v", obs.PrecipMM)
	}
	if obs.LocationID == nil || *obs.LocationID != "loc-1" {
		t.Error("expected observation linked to tracked location")
	}
	if obs.Source != "openweathermap" {
		t.Errorf("unexpected source %q", obs.Source)
	}
}

func TestWeatherAdapter_SnowFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"main": {"temp": -4.0, "humidity": 90, "pressure": 1020},
			"wind": {"speed": 3.0, "deg": 10},
			"weather": [{"main": "Snow", "description": "light snow"}],
			"snow": {"1h": 1.2},
			"dt": 1756000000
		}`))
	}))
	defer srv.Close()

	a := NewWeatherAdapter(config.IngestionConfig{
		WeatherBaseURL:      srv.URL,
		WeatherAPIKey:       "owm-key",
		WeatherPollInterval: time.Minute,
	}, fixedLocations{{Latitude: 64.1, Longitude: -21.9}}, NewMockGenerator(1))

	obs, err := a.FetchForCoordinates(context.Background(), 64.1, -21.9)
	if err != nil {
		t.Fatalf("FetchForCoordinates failed: %v", err)
	}
	if obs.PrecipMM != 1.2 {
		t.Errorf("expected snow 1h fallback, got %v", obs.PrecipMM)
	}
}

func TestWeatherAdapter_MockWithoutKey(t *testing.T) {
	a := NewWeatherAdapter(config.IngestionConfig{
		WeatherPollInterval: time.Minute,
	}, fixedLocations{}, NewMockGenerator(2))

	batch, err := a.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if len(batch.Weather) == 0 {
		t.Fatal("expected mock observations")
	}
	for _, obs := range batch.Weather {
		if obs.LocationID != nil {
			t.Error("mock observations must not reference location rows")
		}
	}
}

func TestSocialTextSeverity(t *testing.T) {
	cases := []struct {
		text string
		want models.Severity
	}{
		{"People trapped, this is urgent!", models.SeverityCritical},
		{"SOS we need rescue now", models.SeverityHigh},
		{"Earthquake damage and flood everywhere", models.SeverityHigh},
		{"Emergency supplies running low", models.SeverityMedium},
		{"Lovely weather today", models.SeverityLow},
	}
	for _, tc := range cases {
		if got := socialTextSeverity(tc.text); got != tc.want {
			t.Errorf("socialTextSeverity(%q) = %s, want %s", tc.text, got, tc.want)
		}
	}
}

func TestExtractTweetLocation(t *testing.T) {
	var tagged tweet
	tagged.Geo.Coordinates.Coordinates = []float64{120.98, 14.6} // [lon, lat]
	lat, lon, name := extractTweetLocation(tagged, nil)
	if lat == nil || *lat != 14.6 || lon == nil || *lon != 120.98 {
		t.Errorf("expected exact coordinates, got %v, %v", lat, lon)
	}
	if name != "" {
		t.Errorf("exact coordinates carry no place name, got %q", name)
	}

	var placed tweet
	placed.Geo.PlaceID = "p1"
	places := map[string]tweetPlace{"p1": {ID: "p1", FullName: "Manila, Philippines"}}
	p := places["p1"]
	p.Geo.BBox = []float64{120.9, 14.5, 121.1, 14.7}
	places["p1"] = p

	lat, lon, name = extractTweetLocation(placed, places)
	if lat == nil || *lat != 14.6 {
		t.Errorf("expected bbox center latitude 14.6, got %v", lat)
	}
	if lon == nil || *lon != 121.0 {
		t.Errorf("expected bbox center longitude 121.0, got %v", lon)
	}
	if name != "Manila, Philippines" {
		t.Errorf("expected place name, got %q", name)
	}

	var bare tweet
	lat, lon, _ = extractTweetLocation(bare, places)
	if lat != nil || lon != nil {
		t.Error("tweet without geo must yield nil coordinates")
	}
}
