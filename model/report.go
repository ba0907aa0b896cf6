package model

import (
	"errors"
	"time"
)

// ErrFutureTimestamp is returned when a report is stamped too far ahead of
// its receive time to be trusted.
var ErrFutureTimestamp = errors.New("report timestamp too far in the future")

// Ignition is the engine ignition hint carried by some telemetry sources.
type Ignition int

const (
	IgnitionUnknown Ignition = iota
	IgnitionOn
	IgnitionOff
)

func (i Ignition) String() string {
	switch i {
	case IgnitionOn:
		return "on"
	case IgnitionOff:
		return "off"
	default:
		return "unknown"
	}
}

// MotionHint carries optional source-side hints about whether the entity is
// moving. Both fields may be absent.
type MotionHint struct {
	Moving   *bool
	Ignition Ignition
}

// PositionReport is one telemetry sample for an entity. Reports are treated
// as immutable once received.
//
// Speed is in km/h at this boundary; heading is degrees clockwise from north.
// A zero Timestamp means the source did not provide one.
type PositionReport struct {
	ID        string
	Lat       float64
	Lng       float64
	SpeedKmh  *float64
	Heading   *float64
	Timestamp time.Time
	Motion    *MotionHint
}

// HasTimestamp reports whether the source stamped the report.
func (r PositionReport) HasTimestamp() bool { return !r.Timestamp.IsZero() }

// HasHeading reports whether the report carries a heading.
func (r PositionReport) HasHeading() bool { return r.Heading != nil }

// Speed returns the reported speed in km/h, or 0 when absent.
func (r PositionReport) Speed() float64 {
	if r.SpeedKmh == nil {
		return 0
	}
	return *r.SpeedKmh
}

// Float returns a pointer to v; handy for building reports with optional fields.
func Float(v float64) *float64 { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }
