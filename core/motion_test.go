package core

import (
	"math"
	"testing"
	"time"

	"github.com/signalsfoundry/fleet-motion/model"
)

func TestPhysicsModelStepProjectsAlongHeading(t *testing.T) {
	m := NewPhysicsModel(0)
	m.Update(model.PositionReport{SpeedKmh: model.Float(36), Heading: model.Float(90)})

	start := model.MotionPose{Lat: 0, Lng: 0, UncertaintyRadius: 5}
	got := m.Step(start, time.Second)

	if d := Distance(0, 0, got.Lat, got.Lng); math.Abs(d-10) > 1e-6 {
		t.Fatalf("stepped distance = %v, want 10", d)
	}
	if math.Abs(got.Lat) > 1e-9 || got.Lng <= 0 {
		t.Fatalf("step went to (%v, %v), want due east", got.Lat, got.Lng)
	}
	if math.Abs(got.UncertaintyRadius-6) > 1e-9 {
		t.Fatalf("UncertaintyRadius = %v, want 6", got.UncertaintyRadius)
	}
	if got.Speed != 10 || got.Heading != 90 {
		t.Fatalf("pose speed/heading = %v/%v, want 10/90", got.Speed, got.Heading)
	}
}

func TestPhysicsModelUpdateKeepsHeadingWhenAbsent(t *testing.T) {
	m := NewPhysicsModel(0)
	m.Update(model.PositionReport{SpeedKmh: model.Float(18), Heading: model.Float(45)})
	m.Update(model.PositionReport{SpeedKmh: model.Float(72)})

	if m.Heading() != 45 {
		t.Fatalf("Heading = %v, want held 45", m.Heading())
	}
	if m.Speed() != 20 {
		t.Fatalf("Speed = %v, want 20 m/s", m.Speed())
	}
}

func TestPhysicsModelMissingSpeedMeansStopped(t *testing.T) {
	m := NewPhysicsModel(0)
	m.Update(model.PositionReport{SpeedKmh: model.Float(50)})
	m.Update(model.PositionReport{})
	if m.Speed() != 0 {
		t.Fatalf("Speed = %v, want 0 when report has no speed", m.Speed())
	}

	pose := model.MotionPose{Lat: 1, Lng: 1, UncertaintyRadius: 5}
	got := m.Step(pose, 10*time.Second)
	if got.Lat != 1 || got.Lng != 1 || got.UncertaintyRadius != 5 {
		t.Fatalf("stationary step moved pose: %+v", got)
	}
}

func TestPhysicsModelNegativeDtDoesNotMove(t *testing.T) {
	m := NewPhysicsModel(0)
	m.Observe(10, model.Float(0))
	pose := model.MotionPose{Lat: 1, Lng: 1}
	if got := m.Step(pose, -time.Second); got.Lat != 1 || got.Lng != 1 {
		t.Fatalf("negative dt moved pose: %+v", got)
	}
}
