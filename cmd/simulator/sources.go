package main

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/fleet-motion/core"
)

// truth is the exact state of a simulated entity at one instant.
type truth struct {
	Lat, Lng float64
	Heading  float64
	SpeedKmh float64
	Parked   bool
}

type source interface {
	ID() string
	Truth(t time.Time) truth
}

// orbitSource follows the sub-satellite point of a TLE propagated with SGP4.
type orbitSource struct {
	id  string
	sat satellite.Satellite
}

func newOrbitSource(id, line1, line2 string) *orbitSource {
	return &orbitSource{id: id, sat: satellite.TLEToSat(line1, line2, satellite.GravityWGS72)}
}

func (s *orbitSource) ID() string { return s.id }

func (s *orbitSource) groundPoint(t time.Time) (float64, float64) {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()
	eci, _ := satellite.Propagate(s.sat, year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(satellite.JDay(year, int(month), day, hour, min, sec))
	_, _, ll := satellite.ECIToLLA(eci, gmst)
	return ll.Latitude * radToDeg, wrapLongitude(ll.Longitude*radToDeg)
}

// Truth derives ground speed and track from two fixes one second apart.
func (s *orbitSource) Truth(t time.Time) truth {
	lat, lng := s.groundPoint(t)
	lat2, lng2 := s.groundPoint(t.Add(time.Second))
	return truth{
		Lat:      lat,
		Lng:      lng,
		Heading:  core.Bearing(lat, lng, lat2, lng2),
		SpeedKmh: core.Distance(lat, lng, lat2, lng2) * 3.6,
	}
}

const radToDeg = 180 / math.Pi

// vehicleSource drives in a straight line at constant speed, optionally
// parking with the ignition off for a while.
type vehicleSource struct {
	id       string
	start    time.Time
	lat, lng float64
	heading  float64
	speedKmh float64
	parkAt   time.Duration
	parkFor  time.Duration
}

func (v *vehicleSource) ID() string { return v.id }

func (v *vehicleSource) Truth(t time.Time) truth {
	elapsed := t.Sub(v.start)
	moving, parked := elapsed, false
	if v.parkFor > 0 && elapsed >= v.parkAt {
		if elapsed < v.parkAt+v.parkFor {
			moving, parked = v.parkAt, true
		} else {
			moving = elapsed - v.parkFor
		}
	}
	if moving < 0 {
		moving = 0
	}

	lat, lng := core.Project(v.lat, v.lng, v.heading, v.speedKmh/3.6*moving.Seconds())
	speed := v.speedKmh
	if parked {
		speed = 0
	}
	return truth{Lat: lat, Lng: lng, Heading: v.heading, SpeedKmh: speed, Parked: parked}
}

// vehicleID derives a stable, uuid-based id for the i-th simulated vehicle.
func vehicleID(i int) string {
	u := uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("fleet-motion/simulator/vehicle/%d", i)))
	return "veh-" + u.String()[:8]
}

func wrapLongitude(lng float64) float64 {
	lng = math.Mod(lng+180, 360)
	if lng < 0 {
		lng += 360
	}
	return lng - 180
}
