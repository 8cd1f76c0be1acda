package ingest

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reliefgrid/reliefgrid/internal/models"
)

// region is a disaster-prone area mock data is anchored to.
type region struct {
	name     string
	lat, lon float64
	country  string
	types    []models.DisasterType
}

var mockRegions = []region{
	{"Tokyo, Japan", 35.6762, 139.6503, "Japan", []models.DisasterType{models.DisasterEarthquake, models.DisasterTsunami}},
	{"San Francisco, USA", 37.7749, -122.4194, "USA", []models.DisasterType{models.DisasterEarthquake, models.DisasterWildfire}},
	{"Kathmandu, Nepal", 27.7172, 85.3240, "Nepal", []models.DisasterType{models.DisasterEarthquake, models.DisasterLandslide}},
	{"Istanbul, Turkey", 41.0082, 28.9784, "Turkey", []models.DisasterType{models.DisasterEarthquake}},
	{"Lima, Peru", -12.0464, -77.0428, "Peru", []models.DisasterType{models.DisasterEarthquake, models.DisasterTsunami}},
	{"Santiago, Chile", -33.4489, -70.6693, "Chile", []models.DisasterType{models.DisasterEarthquake}},
	{"Mexico City, Mexico", 19.4326, -99.1332, "Mexico", []models.DisasterType{models.DisasterEarthquake}},
	{"Manila, Philippines", 14.5995, 120.9842, "Philippines", []models.DisasterType{models.DisasterEarthquake, models.DisasterHurricane}},
	{"Miami, USA", 25.7617, -80.1918, "USA", []models.DisasterType{models.DisasterHurricane, models.DisasterFlood}},
	{"Houston, USA", 29.7604, -95.3698, "USA", []models.DisasterType{models.DisasterHurricane, models.DisasterFlood}},
	{"Dhaka, Bangladesh", 23.8103, 90.4125, "Bangladesh", []models.DisasterType{models.DisasterFlood, models.DisasterHurricane}},
	{"Mumbai, India", 19.0760, 72.8777, "India", []models.DisasterType{models.DisasterFlood, models.DisasterHurricane}},
	{"Havana, Cuba", 23.1136, -82.3666, "Cuba", []models.DisasterType{models.DisasterHurricane}},
	{"Jakarta, Indonesia", -6.2088, 106.8456, "Indonesia", []models.DisasterType{models.DisasterFlood, models.DisasterEarthquake}},
	{"Bangkok, Thailand", 13.7563, 100.5018, "Thailand", []models.DisasterType{models.DisasterFlood}},
	{"Venice, Italy", 45.4408, 12.3155, "Italy", []models.DisasterType{models.DisasterFlood}},
	{"Wuhan, China", 30.5928, 114.3055, "China", []models.DisasterType{models.DisasterFlood}},
	{"Los Angeles, USA", 34.0522, -118.2437, "USA", []models.DisasterType{models.DisasterWildfire, models.DisasterEarthquake}},
	{"Sydney, Australia", -33.8688, 151.2093, "Australia", []models.DisasterType{models.DisasterWildfire}},
	{"Athens, Greece", 37.9838, 23.7275, "Greece", []models.DisasterType{models.DisasterWildfire, models.DisasterEarthquake}},
	{"Brasilia, Brazil", -15.8267, -47.9218, "Brazil", []models.DisasterType{models.DisasterWildfire, models.DisasterDrought}},
	{"Reykjavik, Iceland", 64.1466, -21.9426, "Iceland", []models.DisasterType{models.DisasterVolcano, models.DisasterEarthquake}},
	{"Naples, Italy", 40.8518, 14.2681, "Italy", []models.DisasterType{models.DisasterVolcano, models.DisasterEarthquake}},
	{"Yogyakarta, Indonesia", -7.7956, 110.3695, "Indonesia", []models.DisasterType{models.DisasterVolcano, models.DisasterEarthquake}},
	{"Nairobi, Kenya", -1.2921, 36.8219, "Kenya", []models.DisasterType{models.DisasterDrought}},
	{"Cape Town, South Africa", -33.9249, 18.4241, "South Africa", []models.DisasterType{models.DisasterDrought, models.DisasterWildfire}},
}

var weatherConditions = [][2]string{
	{"Clear", "clear sky"},
	{"Clouds", "scattered clouds"},
	{"Clouds", "overcast clouds"},
	{"Rain", "moderate rain"},
	{"Rain", "heavy intensity rain"},
	{"Thunderstorm", "thunderstorm with rain"},
	{"Snow", "light snow"},
	{"Drizzle", "light drizzle"},
	{"Mist", "mist"},
}

var cycloneNames = []string{
	"Maria", "Irma", "Katrina", "Harvey", "Dorian", "Haiyan",
	"Amphan", "Nargis", "Sandy", "Michael", "Idai", "Winston",
}

var socialTemplates = []string{
	"URGENT: Flooding in %s, people trapped on rooftops. Need immediate rescue! #SOS #disaster",
	"Major earthquake just hit %s. Buildings collapsed. Please send help! #earthquake #emergency",
	"Wildfire spreading rapidly near %s. Evacuations underway. #wildfire #help",
	"Hurricane approaching %s. Category winds rising. Seeking shelter. #hurricane",
	"Severe flooding in %s. Roads washed out. Family needs rescue. #flood #SOS",
	"Volcanic eruption near %s! Ash cloud rising. Emergency evacuation needed. #volcano",
	"Landslide in %s has buried homes. Multiple people missing. #landslide #rescue",
	"Critical water shortage in %s. Days without clean water. Children sick. #drought #help",
	"Aftershock in %s. More buildings damaged. Urgent medical supplies needed.",
	"SOS from %s: people stranded after flash flood. No food or water for days.",
}

// MockGenerator produces synthetic feed output in the same shapes the
// real adapters parse, so the cascade runs end to end without API keys.
// Seeded for reproducible runs.
type MockGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewMockGenerator(seed int64) *MockGenerator {
	return &MockGenerator{rng: rand.New(rand.NewSource(seed))}
}

// Earthquakes returns 0-3 events; most polls are quiet.
func (g *MockGenerator) Earthquakes() []models.IngestedEvent {
	g.mu.Lock()
	defer g.mu.Unlock()

	count := 0
	if g.rng.Float64() >= 0.6 {
		count = 1 + g.rng.Intn(3)
	}
	if count == 0 {
		return nil
	}

	eqRegions := regionsWithType(models.DisasterEarthquake)
	now := time.Now().UTC()
	events := make([]models.IngestedEvent, 0, count)
	for i := 0; i < count; i++ {
		r := eqRegions[g.rng.Intn(len(eqRegions))]
		lat := round4(r.lat + g.rng.Float64() - 0.5)
		lon := round4(r.lon + g.rng.Float64() - 0.5)

		// Weighted towards smaller quakes.
		magnitude := math.Round((4.0+math.Abs(g.rng.NormFloat64()*1.2))*10) / 10
		if magnitude > 9.0 {
			magnitude = 9.0
		}
		depthKm := math.Round(g.rng.Float64()*2950+50) / 10

		severity := magnitudeSeverity(magnitude)
		place := fmt.Sprintf("%dkm %c of %s", 5+g.rng.Intn(196), "NSEW"[g.rng.Intn(4)], r.name)
		usgsID := "mock" + uuid.NewString()[:10]

		var alert any
		if magnitude >= 5.5 {
			alert = string(severity)
		}
		tsunami := 0
		if magnitude >= 7.0 {
			tsunami = 1
		}

		events = append(events, models.IngestedEvent{
			ID:           uuid.NewString(),
			ExternalID:   "usgs-" + usgsID,
			EventType:    models.EventEarthquake,
			Title:        fmt.Sprintf("M%.1f - %s", magnitude, place),
			Description:  fmt.Sprintf("M%.1f earthquake at %s. Depth: %.1f km.", magnitude, place, depthKm),
			Severity:     severity,
			Latitude:     &lat,
			Longitude:    &lon,
			LocationName: place,
			RawPayload: map[string]any{
				"usgs_id":   usgsID,
				"magnitude": magnitude,
				"mag_type":  "mww",
				"depth_km":  depthKm,
				"place":     place,
				"time":      now.UnixMilli(),
				"url":       "https://earthquake.usgs.gov/earthquakes/eventpage/" + usgsID,
				"tsunami":   tsunami,
				"alert":     alert,
				"status":    "reviewed",
				"type":      "earthquake",
				"mock":      true,
			},
			IngestedAt: now,
		})
	}

	slog.Info("mock earthquakes generated", "count", len(events))
	return events
}

// GDACSEvents returns 0-3 alert-style events across disaster types.
func (g *MockGenerator) GDACSEvents() []models.IngestedEvent {
	g.mu.Lock()
	defer g.mu.Unlock()

	count := 0
	if g.rng.Float64() >= 0.5 {
		count = 1 + g.rng.Intn(3)
	}
	if count == 0 {
		return nil
	}

	type template struct {
		dtype     models.DisasterType
		gdacsType string
	}
	templates := []template{
		{models.DisasterHurricane, "TC"},
		{models.DisasterFlood, "FL"},
		{models.DisasterWildfire, "WF"},
		{models.DisasterVolcano, "VO"},
		{models.DisasterDrought, "DR"},
	}

	now := time.Now().UTC()
	events := make([]models.IngestedEvent, 0, count)
	for i := 0; i < count; i++ {
		tpl := templates[g.rng.Intn(len(templates))]
		candidates := regionsWithType(tpl.dtype)
		if len(candidates) == 0 {
			candidates = mockRegions
		}
		r := candidates[g.rng.Intn(len(candidates))]

		lat := round4(r.lat + g.rng.Float64()*2 - 1)
		lon := round4(r.lon + g.rng.Float64()*2 - 1)

		alertLevel := g.weightedAlertLevel()
		severity := gdacsAlertSeverity(alertLevel)
		eventID := fmt.Sprintf("%d", 1000000+g.rng.Intn(9000000))
		population := 10000 + g.rng.Intn(1990001)

		var title, desc string
		switch tpl.dtype {
		case models.DisasterHurricane:
			name := cycloneNames[g.rng.Intn(len(cycloneNames))]
			cat := 1 + g.rng.Intn(5)
			wind := 120 + g.rng.Intn(181)
			title = fmt.Sprintf("Tropical Cyclone %s - Category %d", name, cat)
			desc = fmt.Sprintf("Tropical Cyclone %s with sustained winds of %dkm/h affecting %s. Category %d storm. Population exposed: ~%d.",
				name, wind, r.name, cat, population)
		case models.DisasterFlood:
			level := math.Round((0.5+g.rng.Float64()*7.5)*10) / 10
			area := 50 + g.rng.Intn(4951)
			title = "Flood Alert - " + r.name
			desc = fmt.Sprintf("Severe flooding reported in %s. Water level %.1fm above normal. Affected area: %dkm2. Population exposed: ~%d.",
				r.name, level, area, population)
		case models.DisasterWildfire:
			area := 100 + g.rng.Intn(49901)
			rate := 5 + g.rng.Intn(196)
			wind := 10 + g.rng.Intn(71)
			title = "Wildfire - " + r.name
			desc = fmt.Sprintf("Active wildfire detected near %s. Burning area: %dha. Fire spread rate: %dha/hr. Wind speed: %dkm/h.",
				r.name, area, rate, wind)
		case models.DisasterVolcano:
			ash := math.Round((1+g.rng.Float64()*14)*10) / 10
			title = "Volcanic Activity - " + r.name
			desc = fmt.Sprintf("Increased volcanic activity detected at %s. Ash plume height: %.1fkm.", r.name, ash)
		default:
			deficit := 40 + g.rng.Intn(51)
			months := 2 + g.rng.Intn(17)
			title = "Drought Alert - " + r.name
			desc = fmt.Sprintf("Severe drought conditions in %s. Rainfall deficit: %d%% below average. Duration: %d months.",
				r.name, deficit, months)
		}

		events = append(events, models.IngestedEvent{
			ID:           uuid.NewString(),
			ExternalID:   fmt.Sprintf("gdacs-%s-%s", tpl.gdacsType, eventID),
			EventType:    models.EventGDACSAlert,
			Title:        title,
			Description:  desc,
			Severity:     severity,
			Latitude:     &lat,
			Longitude:    &lon,
			LocationName: r.name,
			RawPayload: map[string]any{
				"link":                 "https://www.gdacs.org/report.aspx?eventid=" + eventID,
				"pub_date":             now.Format(time.RFC1123),
				"gdacs_event_type":     tpl.gdacsType,
				"gdacs_alert_level":    alertLevel,
				"gdacs_event_id":       eventID,
				"gdacs_population":     fmt.Sprintf("%d", population),
				"disaster_type_mapped": string(tpl.dtype),
				"mock":                 true,
			},
			IngestedAt: now,
		})
	}

	slog.Info("mock gdacs events generated", "count", len(events))
	return events
}

// FireHotspots returns 0-15 clustered satellite observations.
func (g *MockGenerator) FireHotspots() []models.SatelliteObservation {
	g.mu.Lock()
	defer g.mu.Unlock()

	count := 0
	if g.rng.Float64() >= 0.4 {
		count = 3 + g.rng.Intn(13)
	}
	if count == 0 {
		return nil
	}

	fireRegions := regionsWithType(models.DisasterWildfire)
	now := time.Now().UTC()
	satellites := []string{"N20", "NOAA-20", "Suomi NPP"}

	out := make([]models.SatelliteObservation, 0, count)
	for i := 0; i < count; i++ {
		r := fireRegions[g.rng.Intn(len(fireRegions))]
		lat := round4(r.lat + g.rng.Float64()*0.6 - 0.3)
		lon := round4(r.lon + g.rng.Float64()*0.6 - 0.3)

		brightness := math.Round((300+g.rng.Float64()*200)*10) / 10
		frp := math.Round((5+g.rng.Float64()*195)*10) / 10
		confidence := []string{"low", "nominal", "high"}[g.rng.Intn(3)]
		dayNight := []string{"D", "N"}[g.rng.Intn(2)]

		out = append(out, models.SatelliteObservation{
			ID:     uuid.NewString(),
			Source: "mock_firms",
			ExternalID: fmt.Sprintf("firms-%.4f-%.4f-%s-%02d%02d-%s",
				lat, lon, now.Format("2006-01-02"), now.Hour(), now.Minute(), uuid.NewString()[:6]),
			Latitude:    lat,
			Longitude:   lon,
			Brightness:  &brightness,
			FRP:         &frp,
			Confidence:  confidence,
			Satellite:   satellites[g.rng.Intn(len(satellites))],
			Instrument:  "VIIRS",
			AcqDatetime: now,
			DayNight:    dayNight,
			RawPayload: map[string]any{
				"mock":       true,
				"brightness": brightness,
				"frp":        frp,
				"region":     r.name,
			},
		})
	}

	slog.Info("mock fire hotspots generated", "count", len(out))
	return out
}

// SocialSignals returns 0-4 SOS-style events.
func (g *MockGenerator) SocialSignals() []models.IngestedEvent {
	g.mu.Lock()
	defer g.mu.Unlock()

	count := 0
	if g.rng.Float64() >= 0.5 {
		count = 1 + g.rng.Intn(4)
	}
	if count == 0 {
		return nil
	}

	now := time.Now().UTC()
	events := make([]models.IngestedEvent, 0, count)
	for i := 0; i < count; i++ {
		r := mockRegions[g.rng.Intn(len(mockRegions))]
		text := fmt.Sprintf(socialTemplates[g.rng.Intn(len(socialTemplates))], r.name)
		tweetID := fmt.Sprintf("%d", 100000000000000000+g.rng.Int63n(900000000000000000))

		lat := round4(r.lat + g.rng.Float64()*0.4 - 0.2)
		lon := round4(r.lon + g.rng.Float64()*0.4 - 0.2)

		title := "Social SOS: " + text
		if len(text) > 80 {
			title = "Social SOS: " + text[:80] + "..."
		}

		events = append(events, models.IngestedEvent{
			ID:           uuid.NewString(),
			ExternalID:   "twitter-" + tweetID,
			EventType:    models.EventSocialSOS,
			Title:        title,
			Description:  text,
			Severity:     socialTextSeverity(text),
			Latitude:     &lat,
			Longitude:    &lon,
			LocationName: r.name,
			RawPayload: map[string]any{
				"tweet_id":   tweetID,
				"author_id":  fmt.Sprintf("%d", 100000000+g.rng.Intn(900000000)),
				"created_at": now.Format(time.RFC3339),
				"text":       text,
				"public_metrics": map[string]any{
					"retweet_count": g.rng.Intn(5001),
					"reply_count":   g.rng.Intn(501),
					"like_count":    g.rng.Intn(10001),
				},
				"mock": true,
			},
			IngestedAt: now,
		})
	}

	slog.Info("mock social signals generated", "count", len(events))
	return events
}

// Weather returns observations for the given locations, or for 3-6
// random regions when none are tracked. Temperature tracks latitude.
func (g *MockGenerator) Weather(locations []models.Location) []models.WeatherObservation {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(locations) == 0 {
		count := 3 + g.rng.Intn(4)
		perm := g.rng.Perm(len(mockRegions))[:count]
		for _, i := range perm {
			r := mockRegions[i]
			locations = append(locations, models.Location{
				Name: r.name, Latitude: r.lat, Longitude: r.lon,
			})
		}
	}

	now := time.Now().UTC()
	out := make([]models.WeatherObservation, 0, len(locations))
	for _, loc := range locations {
		baseTemp := 30 - math.Abs(loc.Latitude)*0.4 + g.rng.Float64()*10 - 5
		cond := weatherConditions[g.rng.Intn(len(weatherConditions))]

		precip := 0.0
		switch cond[0] {
		case "Rain", "Thunderstorm":
			precip = 1.0 + g.rng.Float64()*24.0
		case "Snow":
			precip = 0.5 + g.rng.Float64()*7.5
		case "Drizzle":
			precip = 0.1 + g.rng.Float64()*1.9
		}

		var locationID *string
		if loc.ID != "" {
			id := loc.ID
			locationID = &id
		}

		out = append(out, models.WeatherObservation{
			ID:           uuid.NewString(),
			LocationID:   locationID,
			Latitude:     loc.Latitude,
			Longitude:    loc.Longitude,
			TemperatureC: math.Round(baseTemp*10) / 10,
			HumidityPct:  float64(30 + g.rng.Intn(66)),
			WindSpeedMS:  math.Round((0.5+g.rng.Float64()*24.5)*10) / 10,
			WindDeg:      float64(g.rng.Intn(361)),
			PressureHPa:  float64(995 + g.rng.Intn(36)),
			PrecipMM:     math.Round(precip*10) / 10,
			VisibilityM:  float64(2000 + g.rng.Intn(8001)),
			WeatherMain:  cond[0],
			WeatherDesc:  cond[1],
			ObservedAt:   now,
			Source:       "mock_weather",
			RawPayload: map[string]any{
				"mock":          true,
				"location_name": loc.Name,
			},
		})
	}

	slog.Info("mock weather generated", "count", len(out))
	return out
}

func (g *MockGenerator) weightedAlertLevel() string {
	// Green 35%, Orange 40%, Red 25%.
	v := g.rng.Float64()
	switch {
	case v < 0.35:
		return "Green"
	case v < 0.75:
		return "Orange"
	}
	return "Red"
}

func regionsWithType(t models.DisasterType) []region {
	var out []region
	for _, r := range mockRegions {
		for _, rt := range r.types {
			if rt == t {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
