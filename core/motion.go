package core

import (
	"time"

	"github.com/signalsfoundry/fleet-motion/model"
)

// DefaultUncertaintyGrowth is the fraction of each extrapolated metre that is
// added to the uncertainty radius.
const DefaultUncertaintyGrowth = 0.1

// KmhToMps converts km/h to m/s.
func KmhToMps(kmh float64) float64 { return kmh / 3.6 }

// MotionModel extrapolates a pose between observations.
type MotionModel interface {
	Step(pose model.MotionPose, dt time.Duration) model.MotionPose
	Update(r model.PositionReport)
}

// PhysicsModel is a constant-velocity dead-reckoning integrator. Speed and
// heading are held between observations; position is never touched by Update.
type PhysicsModel struct {
	speed   float64 // m/s
	heading float64 // degrees
	growth  float64
}

// NewPhysicsModel constructs a model at rest. Non-positive growth falls back
// to DefaultUncertaintyGrowth.
func NewPhysicsModel(growth float64) *PhysicsModel {
	if growth <= 0 {
		growth = DefaultUncertaintyGrowth
	}
	return &PhysicsModel{growth: growth}
}

// Step projects pose forward by speed*dt along the held heading and grows the
// uncertainty radius with the extrapolated distance.
func (m *PhysicsModel) Step(pose model.MotionPose, dt time.Duration) model.MotionPose {
	secs := dt.Seconds()
	if secs < 0 {
		secs = 0
	}
	dist := m.speed * secs
	pose.Lat, pose.Lng = Project(pose.Lat, pose.Lng, m.heading, dist)
	pose.UncertaintyRadius += dist * m.growth
	pose.Heading = m.heading
	pose.Speed = m.speed
	return pose
}

// Update absorbs the speed (km/h, missing means 0) and, when present, the
// heading of a report.
func (m *PhysicsModel) Update(r model.PositionReport) {
	m.Observe(KmhToMps(r.Speed()), r.Heading)
}

// Observe sets the held speed (m/s) and, if heading is non-nil, the held
// heading.
func (m *PhysicsModel) Observe(speedMps float64, heading *float64) {
	if speedMps < 0 {
		speedMps = 0
	}
	m.speed = speedMps
	if heading != nil {
		m.heading = NormalizeHeading(*heading)
	}
}

// SetHeading overrides the held heading.
func (m *PhysicsModel) SetHeading(deg float64) { m.heading = NormalizeHeading(deg) }

// Speed returns the held speed in m/s.
func (m *PhysicsModel) Speed() float64 { return m.speed }

// Heading returns the held heading in degrees.
func (m *PhysicsModel) Heading() float64 { return m.heading }
