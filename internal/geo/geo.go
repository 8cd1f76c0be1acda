// Package geo provides great-circle distance helpers used by the
// allocation solver and the ingestion cascade.
package geo

import "math"

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between two points in km.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64
	Lon float64
}

// DistanceMatrix returns distances[i][j] = km from depots[i] to zones[j].
func DistanceMatrix(depots, zones []Point) [][]float64 {
	out := make([][]float64, len(depots))
	for i, d := range depots {
		row := make([]float64, len(zones))
		for j, z := range zones {
			row[j] = HaversineKm(d.Lat, d.Lon, z.Lat, z.Lon)
		}
		out[i] = row
	}
	return out
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
