package model

import (
	"fmt"
	"time"
)

// MotionPose is the estimated kinematic state of an entity.
//
// Heading is degrees in [0,360); Speed is m/s; UncertaintyRadius is metres.
type MotionPose struct {
	Lat               float64
	Lng               float64
	Heading           float64
	Speed             float64
	UncertaintyRadius float64
}

// MotionState is the trust tier derived from the age of the last observation.
type MotionState int

const (
	// StateReal means the estimate is backed by a recent observation.
	StateReal MotionState = iota
	// StateCoasting means the estimate is extrapolated while trust decays.
	StateCoasting
	// StatePredicted means trust has fully decayed but the entity is not yet stale.
	StatePredicted
	// StateFrozen means the entity has not reported for longer than the stale limit.
	StateFrozen
)

// AllMotionStates lists every state in ladder order.
var AllMotionStates = []MotionState{StateReal, StateCoasting, StatePredicted, StateFrozen}

func (s MotionState) String() string {
	switch s {
	case StateReal:
		return "REAL"
	case StateCoasting:
		return "COASTING"
	case StatePredicted:
		return "PREDICTED"
	case StateFrozen:
		return "FROZEN"
	default:
		return fmt.Sprintf("MotionState(%d)", int(s))
	}
}

// IntentAction is the coarse manoeuvre classification.
type IntentAction int

const (
	IntentUnknown IntentAction = iota
	IntentStraight
	IntentTurn
	IntentStop
)

func (a IntentAction) String() string {
	switch a {
	case IntentStraight:
		return "STRAIGHT"
	case IntentTurn:
		return "TURN"
	case IntentStop:
		return "STOP"
	default:
		return "UNKNOWN"
	}
}

// Intent is an action with a confidence in [0,1]. MeanHeading is the
// circular mean of the recently reported headings, nil when none were
// reported.
type Intent struct {
	Action      IntentAction
	Confidence  float64
	MeanHeading *float64
}

// MotionEstimate is the read-only snapshot an engine returns after a tick.
type MotionEstimate struct {
	Pose       MotionPose
	State      MotionState
	Intent     Intent
	Confidence float64
	Timestamp  time.Time
}
