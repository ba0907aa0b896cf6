package core

import "github.com/signalsfoundry/fleet-motion/model"

// DefaultStationarySpeedKmh is the speed below which a report counts as parked.
const DefaultStationarySpeedKmh = 3.0

// MotionClass is the vocabulary-free reading of a report's motion hints.
type MotionClass struct {
	// IsStationary is set when the report says the entity is not moving.
	IsStationary bool
	// AllowHeadingUpdate is false while stationary unless the ignition
	// toggled, which is the only state change trusted to reorient a parked
	// entity.
	AllowHeadingUpdate bool
	// IgnitionChanged reports a toggle relative to the previous known ignition.
	IgnitionChanged bool
}

// ClassifyMotionHint decides whether r describes a stationary entity and
// whether its heading may be applied. prev is the last ignition state seen
// for the entity. Source-specific vocabularies (alert codes, engine status
// strings) are mapped onto model.MotionHint by the ingestion adapters.
func ClassifyMotionHint(r model.PositionReport, prev model.Ignition, stationaryKmh float64) MotionClass {
	if stationaryKmh <= 0 {
		stationaryKmh = DefaultStationarySpeedKmh
	}

	stationary := r.Speed() < stationaryKmh
	changed := false
	if h := r.Motion; h != nil {
		if h.Moving != nil {
			stationary = !*h.Moving
		}
		if h.Ignition == model.IgnitionOff {
			stationary = true
		}
		changed = h.Ignition != model.IgnitionUnknown &&
			prev != model.IgnitionUnknown &&
			h.Ignition != prev
	}

	return MotionClass{
		IsStationary:       stationary,
		AllowHeadingUpdate: !stationary || changed,
		IgnitionChanged:    changed,
	}
}
