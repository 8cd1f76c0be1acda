package predict

import (
	"math"

	"github.com/reliefgrid/reliefgrid/internal/models"
)

// terrainTypes indexes terrain_idx in the spread schema. Unknown
// terrain falls back to index 0 (flat).
var terrainTypes = []string{"flat", "hilly", "mountainous", "forested", "urban", "coastal"}

// Features is a raw feature bag as assembled by the cascade. Missing
// keys take schema defaults.
type Features map[string]any

func (f Features) float(key string, fallback float64) float64 {
	v, ok := f[key]
	if !ok {
		return fallback
	}
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	}
	return fallback
}

func (f Features) str(key, fallback string) string {
	if v, ok := f[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// BuildSeverityFeatures converts a raw feature bag into the ordered
// vector the severity classifier was trained on.
func BuildSeverityFeatures(f Features) []float64 {
	temp := f.float("temperature", 25)
	wind := f.float("wind_speed", 20)
	hum := f.float("humidity", 60)
	pres := f.float("pressure", 1013)
	dtype := f.str("disaster_type", "other")

	row := []float64{
		temp,
		wind,
		hum,
		pres,
		wind * hum / 100.0,
		1013.25 - pres,
		math.Abs(temp - 25),
	}
	return append(row, oneHot(dtype)...)
}

// BuildSpreadFeatures builds the spread regressor vector.
func BuildSpreadFeatures(f Features) []float64 {
	area := f.float("current_area", f.float("current_area_km2", 50))
	wind := f.float("wind_speed", 20)
	windDir := f.float("wind_direction", 180)
	elev := f.float("elevation_m", 500)
	veg := f.float("vegetation_density", 0.5)
	days := f.float("days_active", 1)
	terrain := f.str("terrain_type", "flat")
	dtype := f.str("disaster_type", "wildfire")

	terrainIdx := 0.0
	for i, t := range terrainTypes {
		if t == terrain {
			terrainIdx = float64(i)
			break
		}
	}

	row := []float64{area, wind, windDir, elev, veg, days, terrainIdx}
	return append(row, oneHot(dtype)...)
}

// BuildImpactFeatures builds the impact regressor vector.
func BuildImpactFeatures(f Features) []float64 {
	sev := f.float("severity_score", 0.5)
	pop := f.float("affected_population", f.float("population", 10000))
	gdp := f.float("gdp_per_capita", 10000)
	infra := f.float("infrastructure_density", 0.5)
	dtype := f.str("disaster_type", "other")

	row := []float64{sev, pop, gdp, infra}
	return append(row, oneHot(dtype)...)
}

func oneHot(dtype string) []float64 {
	out := make([]float64, len(models.DisasterTypes))
	for i, dt := range models.DisasterTypes {
		if dtype == string(dt) {
			out[i] = 1.0
		}
	}
	return out
}
