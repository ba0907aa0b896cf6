package core

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// EarthRadiusM is the sphere radius used by every geodesic helper (metres).
// It matches orb's spherical model so distances and projections agree.
const EarthRadiusM = orb.EarthRadius

func point(lat, lng float64) orb.Point { return orb.Point{lng, lat} }

// Distance returns the great-circle distance between two positions in metres.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	return geo.DistanceHaversine(point(lat1, lng1), point(lat2, lng2))
}

// Bearing returns the initial bearing from the first position towards the
// second, in degrees within [0,360).
func Bearing(lat1, lng1, lat2, lng2 float64) float64 {
	return NormalizeHeading(geo.Bearing(point(lat1, lng1), point(lat2, lng2)))
}

// Project moves a position distanceM metres along headingDeg on the sphere.
func Project(lat, lng, headingDeg, distanceM float64) (float64, float64) {
	if distanceM == 0 {
		return lat, lng
	}
	p := geo.PointAtBearingAndDistance(point(lat, lng), headingDeg, distanceM)
	return p.Lat(), p.Lon()
}

// Lerp interpolates linearly between a and b.
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// LerpPosition interpolates latitude and longitude independently. It is only
// meant for the short hops between an estimate and a fresh observation.
func LerpPosition(lat1, lng1, lat2, lng2, t float64) (float64, float64) {
	return Lerp(lat1, lat2, t), Lerp(lng1, lng2, t)
}

// LerpAngle interpolates between two headings along the shorter arc and
// returns a heading in [0,360).
func LerpAngle(from, to, t float64) float64 {
	delta := math.Mod(to-from+540, 360) - 180
	return NormalizeHeading(from + delta*t)
}

// NormalizeHeading wraps any angle in degrees into [0,360).
func NormalizeHeading(deg float64) float64 {
	h := math.Mod(deg, 360)
	if h < 0 {
		h += 360
	}
	if h >= 360 {
		h = 0
	}
	return h
}
