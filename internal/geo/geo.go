// Package geo provides great-circle geodesy helpers shared by the grid,
// detection and tracking layers. All functions are pure and operate on
// latitude/longitude pairs in degrees.
package geo

import (
	"math"

	"github.com/golang/geo/s2"
)

// EarthRadiusKm is the mean Earth radius used for all distance conversions.
const EarthRadiusKm = 6371.0

// Distance returns the great-circle distance between two points in
// kilometres.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * EarthRadiusKm
}

// Bearing returns the initial bearing (forward azimuth) from point 1 to
// point 2 in degrees, normalised to [0, 360): 0 is north, 90 is east.
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	lonDiff := (lon2 - lon1) * math.Pi / 180

	y := math.Sin(lonDiff) * math.Cos(lat2Rad)
	x := math.Cos(lat1Rad)*math.Sin(lat2Rad) - math.Sin(lat1Rad)*math.Cos(lat2Rad)*math.Cos(lonDiff)
	bearing := math.Atan2(y, x)

	bearingDeg := bearing * 180 / math.Pi
	return math.Mod(bearingDeg+360, 360)
}

// MeridionalFraction returns the magnitude of the north-south component of a
// bearing, in [0, 1]. A purely meridional axis (0° or 180°) returns 1, a
// purely zonal axis (90° or 270°) returns 0.
func MeridionalFraction(bearingDeg float64) float64 {
	return math.Abs(math.Cos(bearingDeg * math.Pi / 180))
}

// DestinationPoint returns the point reached by travelling the given
// distance (km) from a start point along an initial bearing (degrees).
func DestinationPoint(lat, lon, bearingDeg, distanceKm float64) (float64, float64) {
	bearingRad := bearingDeg * math.Pi / 180
	angular := distanceKm / EarthRadiusKm

	latRad := lat * math.Pi / 180
	lonRad := lon * math.Pi / 180

	lat2 := math.Asin(math.Sin(latRad)*math.Cos(angular) +
		math.Cos(latRad)*math.Sin(angular)*math.Cos(bearingRad))

	lon2 := lonRad + math.Atan2(
		math.Sin(bearingRad)*math.Sin(angular)*math.Cos(latRad),
		math.Cos(angular)-math.Sin(latRad)*math.Sin(lat2))

	return lat2 * 180 / math.Pi, lon2 * 180 / math.Pi
}

// Midpoint returns the great-circle midpoint between two points, computed via
// spherical interpolation.
func Midpoint(lat1, lon1, lat2, lon2 float64) (float64, float64) {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)

	mid := s2.Interpolate(0.5, s2.PointFromLatLng(p1), s2.PointFromLatLng(p2))
	midLatLng := s2.LatLngFromPoint(mid)

	return midLatLng.Lat.Degrees(), midLatLng.Lng.Degrees()
}
