package spatial

import (
	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/jengzang/legs-backend-go/internal/models"
)

// EarthRadiusMeters is the Earth's mean radius in meters
const EarthRadiusMeters = 6371000.0

// HaversineDistance calculates the great-circle distance between two points in meters
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// Distance returns the great-circle distance between two coordinates in meters
func Distance(a, b models.Coordinate) float64 {
	return HaversineDistance(a.Lat, a.Lon, b.Lat, b.Lon)
}

// BoundAround returns the box extending meters in every direction from c
func BoundAround(c models.Coordinate, meters float64) orb.Bound {
	return geo.NewBoundAroundPoint(ToPoint(c), meters)
}

// ToPoint converts a coordinate to an orb point (lon, lat order)
func ToPoint(c models.Coordinate) orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

// Centroid returns the spherical mean of the coordinates
func Centroid(coords []models.Coordinate) models.Coordinate {
	if len(coords) == 0 {
		return models.Coordinate{}
	}
	var sum s2.Point
	for _, c := range coords {
		p := s2.PointFromLatLng(s2.LatLngFromDegrees(c.Lat, c.Lon))
		sum = s2.Point{Vector: sum.Add(p.Vector)}
	}
	ll := s2.LatLngFromPoint(s2.Point{Vector: sum.Normalize()})
	return models.Coordinate{Lat: ll.Lat.Degrees(), Lon: ll.Lng.Degrees()}
}
