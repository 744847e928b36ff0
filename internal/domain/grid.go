package domain

import "math"

const (
	// kmPerDegreeLat is the approximate ground distance of one degree of
	// latitude. Good to within ~0.5% everywhere, which is far tighter than
	// the flow API's own segment resolution.
	kmPerDegreeLat = 111.0

	// minCosLat clamps the longitude scale factor so grid spacing stays
	// finite near the poles.
	minCosLat = 0.01
)

// SampleGrid lays a deterministic (2·density+1)² axis-aligned grid of
// sampling coordinates over a disc of the given center and radius.
// Points are spaced radiusKM/density apart, converted to degrees using the
// equirectangular approximation: longitude steps are scaled by 1/cos(lat)
// so ground spacing is roughly equal in both axes.
//
// density 0 (or below) yields exactly the center point. Output order is
// fixed: south-to-north rows, west-to-east within a row.
func SampleGrid(center Coordinate, radiusKM float64, density int) []Coordinate {
	if density < 1 {
		return []Coordinate{center}
	}

	latStep := radiusKM / float64(density) / kmPerDegreeLat

	cosLat := math.Cos(center.Lat * math.Pi / 180)
	if cosLat < minCosLat {
		cosLat = minCosLat
	}
	lonStep := latStep / cosLat

	side := 2*density + 1
	points := make([]Coordinate, 0, side*side)
	for i := -density; i <= density; i++ {
		for j := -density; j <= density; j++ {
			points = append(points, Coordinate{
				Lat: center.Lat + float64(i)*latStep,
				Lon: center.Lon + float64(j)*lonStep,
			})
		}
	}
	return points
}
