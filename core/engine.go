package core

import (
	"time"

	"github.com/signalsfoundry/fleet-motion/model"
)

const (
	// DefaultBlendFactor is the fixed gain used to pull the estimate towards
	// each observation after the first.
	DefaultBlendFactor = 0.5
	// DefaultBaselineUncertainty is the radius (m) restored on every observation.
	DefaultBaselineUncertainty = 5.0
	// DefaultTeleportThreshold is the jump (m) treated as an authoritative reset.
	DefaultTeleportThreshold = 500.0
)

// EngineOptions tunes a MotionEngine. Zero fields take the package defaults.
type EngineOptions struct {
	Policy              model.ConfidencePolicy
	BufferCapacity      int
	BlendFactor         float64
	BaselineUncertainty float64
	TeleportThreshold   float64
	StationarySpeedKmh  float64
	IntentWindow        int
	UncertaintyGrowth   float64
}

// DefaultEngineOptions returns the options used when none are supplied.
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		Policy:              model.DefaultConfidencePolicy(),
		BufferCapacity:      DefaultBufferCapacity,
		BlendFactor:         DefaultBlendFactor,
		BaselineUncertainty: DefaultBaselineUncertainty,
		TeleportThreshold:   DefaultTeleportThreshold,
		StationarySpeedKmh:  DefaultStationarySpeedKmh,
		IntentWindow:        DefaultIntentWindow,
		UncertaintyGrowth:   DefaultUncertaintyGrowth,
	}
}

func (o EngineOptions) withDefaults() EngineOptions {
	d := DefaultEngineOptions()
	if o.Policy.Validate() != nil {
		o.Policy = d.Policy
	}
	if o.BufferCapacity <= 0 {
		o.BufferCapacity = d.BufferCapacity
	}
	if o.BlendFactor <= 0 || o.BlendFactor > 1 {
		o.BlendFactor = d.BlendFactor
	}
	if o.BaselineUncertainty <= 0 {
		o.BaselineUncertainty = d.BaselineUncertainty
	}
	if o.TeleportThreshold <= 0 {
		o.TeleportThreshold = d.TeleportThreshold
	}
	if o.StationarySpeedKmh <= 0 {
		o.StationarySpeedKmh = d.StationarySpeedKmh
	}
	if o.IntentWindow < 2 {
		o.IntentWindow = d.IntentWindow
	}
	if o.UncertaintyGrowth <= 0 {
		o.UncertaintyGrowth = d.UncertaintyGrowth
	}
	return o
}

// EngineObserver receives notable engine events. All methods are called
// synchronously from Input or Tick.
type EngineObserver interface {
	ReportBuffered(id string, result PushResult)
	Teleported(id string, distanceM float64)
	StateChanged(id string, from, to model.MotionState)
}

// MotionEngine fuses buffered observations and elapsed time into one pose
// estimate for a single entity.
//
// An engine starts uninitialised, becomes live on its first observation and
// is destroyed by Close. It is not safe for concurrent use; the owning
// MotionController serialises access.
type MotionEngine struct {
	id   string
	opts EngineOptions

	buffer     *NetworkBuffer
	physics    *PhysicsModel
	confidence *ConfidenceModel
	intent     *IntentModel
	observer   EngineObserver

	pose         model.MotionPose
	state        model.MotionState
	initialized  bool
	closed       bool
	lastTick     time.Time
	lastIgnition model.Ignition
}

// NewMotionEngine constructs an engine for entity id. observer may be nil.
func NewMotionEngine(id string, opts EngineOptions, observer EngineObserver) *MotionEngine {
	opts = opts.withDefaults()
	return &MotionEngine{
		id:         id,
		opts:       opts,
		buffer:     NewNetworkBuffer(opts.BufferCapacity),
		physics:    NewPhysicsModel(opts.UncertaintyGrowth),
		confidence: NewConfidenceModel(opts.Policy),
		intent:     NewIntentModel(opts.IntentWindow),
		observer:   observer,
	}
}

// ID returns the entity id.
func (e *MotionEngine) ID() string { return e.id }

// Initialized reports whether the engine has applied an observation.
func (e *MotionEngine) Initialized() bool { return e.initialized }

// Pending returns the number of buffered, unapplied reports.
func (e *MotionEngine) Pending() int { return e.buffer.Len() }

// Input buffers a report. The first timestamped report for a fresh engine
// bypasses the buffer: it is applied immediately as a hard snap and starts
// the engine clock at its timestamp. Untimestamped reports queued before it
// are applied on the next Tick.
func (e *MotionEngine) Input(r model.PositionReport) {
	if e.closed {
		return
	}
	if !e.initialized && r.HasTimestamp() {
		if e.observer != nil {
			e.observer.ReportBuffered(e.id, Buffered)
		}
		e.buffer.Advance(r.Timestamp)
		e.processObservation(r)
		e.lastTick = r.Timestamp
		e.state = e.confidence.State()
		return
	}
	res := e.buffer.Push(r)
	if e.observer != nil {
		e.observer.ReportBuffered(e.id, res)
	}
}

// Tick applies every buffered report, then advances the estimate to now.
// Ticks that do not move time forward only drain the buffer.
func (e *MotionEngine) Tick(now time.Time) {
	if e.closed {
		return
	}
	e.drain()
	if !e.initialized {
		return
	}
	if e.lastTick.IsZero() {
		e.lastTick = now
		return
	}

	dt := now.Sub(e.lastTick)
	if dt <= 0 {
		return
	}
	e.lastTick = now

	e.confidence.Decay(dt)
	state := e.confidence.State()
	if state != e.state {
		if e.observer != nil {
			e.observer.StateChanged(e.id, e.state, state)
		}
		e.state = state
	}

	switch state {
	case model.StateFrozen, model.StatePredicted:
		// Confidence is zero: hold position and stop claiming motion.
		e.pose.Speed = 0
	default:
		e.pose = e.physics.Step(e.pose, dt)
	}
}

func (e *MotionEngine) drain() {
	for {
		r, ok := e.buffer.Pop()
		if !ok {
			return
		}
		e.processObservation(r)
	}
}

func (e *MotionEngine) processObservation(r model.PositionReport) {
	class := ClassifyMotionHint(r, e.lastIgnition, e.opts.StationarySpeedKmh)
	if r.Motion != nil && r.Motion.Ignition != model.IgnitionUnknown {
		e.lastIgnition = r.Motion.Ignition
	}

	heading := r.Heading
	if !class.AllowHeadingUpdate {
		heading = nil
	}
	speed := KmhToMps(r.Speed())
	if class.IsStationary {
		speed = 0
	}

	e.physics.Observe(speed, heading)
	e.confidence.Update()
	e.intent.SetStationary(class.IsStationary)
	e.intent.Update(heading)

	snap := !e.initialized
	if !snap {
		if d := Distance(e.pose.Lat, e.pose.Lng, r.Lat, r.Lng); d > e.opts.TeleportThreshold {
			snap = true
			if e.observer != nil {
				e.observer.Teleported(e.id, d)
			}
		}
	}

	if snap {
		e.pose.Lat, e.pose.Lng = r.Lat, r.Lng
		if heading != nil {
			e.pose.Heading = NormalizeHeading(*heading)
		}
	} else {
		e.pose.Lat, e.pose.Lng = LerpPosition(e.pose.Lat, e.pose.Lng, r.Lat, r.Lng, e.opts.BlendFactor)
		if heading != nil {
			e.pose.Heading = LerpAngle(e.pose.Heading, *heading, e.opts.BlendFactor)
		}
	}
	if heading != nil {
		// Extrapolate along the corrected heading, not the raw fix.
		e.physics.SetHeading(e.pose.Heading)
	}
	e.pose.Speed = e.physics.Speed()
	e.pose.UncertaintyRadius = e.opts.BaselineUncertainty
	e.initialized = true
}

// Estimate returns the current estimate without mutating the engine.
func (e *MotionEngine) Estimate() model.MotionEstimate {
	return model.MotionEstimate{
		Pose:       e.pose,
		State:      e.confidence.State(),
		Intent:     e.intent.Intent(),
		Confidence: e.confidence.Confidence(),
		Timestamp:  e.lastTick,
	}
}

// Close destroys the engine. Later calls to Input and Tick are ignored.
func (e *MotionEngine) Close() {
	e.closed = true
	e.buffer = NewNetworkBuffer(1)
}
