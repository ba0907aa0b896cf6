package core

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/signalsfoundry/fleet-motion/internal/logging"
	"github.com/signalsfoundry/fleet-motion/model"
	"github.com/signalsfoundry/fleet-motion/timectrl"
)

// DefaultFrameInterval paces the frame loop at roughly 30 Hz.
const DefaultFrameInterval = timectrl.DefaultTick

// DefaultMaxFrameGap is the frame-to-frame gap above which a late frame is
// logged. Engine time is never clamped.
const DefaultMaxFrameGap = time.Second

// DefaultMaxFutureSkew is how far ahead of receive time a report may be
// stamped before Update rejects it.
const DefaultMaxFutureSkew = time.Minute

// reportRejectedFuture labels reports refused by the future-skew check.
const reportRejectedFuture = "rejected_future"

// Renderer receives per-frame positions.
type Renderer interface {
	SetPosition(id string, lat, lng float64)
}

// RotationSetter is implemented by renderers that can orient markers.
type RotationSetter interface {
	SetRotation(id string, headingDeg float64)
}

// Remover is implemented by renderers that drop markers for entities the
// controller stops tracking.
type Remover interface {
	Remove(id string) bool
}

// EstimateObserver is implemented by renderers that want the full estimate
// (state, intent, uncertainty) every frame.
type EstimateObserver interface {
	ObserveEstimate(id string, est model.MotionEstimate)
}

// MetricsRecorder is the narrow metrics surface the controller drives. The
// Prometheus collector in internal/observability implements it.
type MetricsRecorder interface {
	SetEntityStates(counts map[model.MotionState]int)
	ObserveFrame(d time.Duration, entities int)
	IncReport(result string)
	IncTeleport()
}

// ControllerOption configures a MotionController.
type ControllerOption func(*MotionController)

// WithEngineOptions sets the options used for every engine the controller creates.
func WithEngineOptions(opts EngineOptions) ControllerOption {
	return func(c *MotionController) { c.engineOpts = opts }
}

// WithClock injects the clock used for receive-time stamping and frame pacing.
func WithClock(clock timectrl.Clock) ControllerOption {
	return func(c *MotionController) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithFrameInterval sets the frame period.
func WithFrameInterval(d time.Duration) ControllerOption {
	return func(c *MotionController) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithMaxFrameGap sets the gap above which a frame is reported as late.
func WithMaxFrameGap(d time.Duration) ControllerOption {
	return func(c *MotionController) {
		if d > 0 {
			c.maxFrameGap = d
		}
	}
}

// WithFrameClock makes receive-time stamping and the future-skew check read
// fc instead of the controller clock. It is meant for controllers driven by
// an external frame source such as an accelerated simulation. A zero time
// from fc falls back to the controller clock.
func WithFrameClock(fc timectrl.FrameClock) ControllerOption {
	return func(c *MotionController) { c.frameClock = fc }
}

// WithMaxFutureSkew bounds how far ahead of receive time a report timestamp
// may be. A non-positive value disables the check.
func WithMaxFutureSkew(d time.Duration) ControllerOption {
	return func(c *MotionController) { c.maxFutureSkew = d }
}

// WithLogger sets the logger. nil keeps the Noop default.
func WithLogger(l logging.Logger) ControllerOption {
	return func(c *MotionController) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMetricsRecorder wires metrics. nil disables them.
func WithMetricsRecorder(m MetricsRecorder) ControllerOption {
	return func(c *MotionController) { c.metrics = m }
}

// MotionController owns one MotionEngine per entity id, routes reports to
// them and renders every live entity once per frame.
//
// A single mutex guards the registry and all engine access, so Update,
// Remove, Clear and Frame may be called from any goroutine. Renderer calls
// are made after that lock is released and are serialised by renderMu, so a
// removed marker is never redrawn by a frame already in flight.
type MotionController struct {
	renderMu sync.Mutex
	mu       sync.Mutex
	engines  map[string]*MotionEngine

	renderer   Renderer
	rotation   RotationSetter
	estimates  EstimateObserver
	remover    Remover
	engineOpts EngineOptions

	clock         timectrl.Clock
	frameClock    timectrl.FrameClock
	interval      time.Duration
	maxFrameGap   time.Duration
	maxFutureSkew time.Duration
	scheduler     *timectrl.TimeController
	lastFrame     time.Time

	log     logging.Logger
	metrics MetricsRecorder
}

// NewMotionController builds a controller rendering into renderer, which may
// be nil for headless use. The frame loop is not started.
func NewMotionController(renderer Renderer, opts ...ControllerOption) *MotionController {
	c := &MotionController{
		engines:       make(map[string]*MotionEngine),
		renderer:      renderer,
		engineOpts:    DefaultEngineOptions(),
		clock:         timectrl.RealClock{},
		interval:      DefaultFrameInterval,
		maxFrameGap:   DefaultMaxFrameGap,
		maxFutureSkew: DefaultMaxFutureSkew,
		log:           logging.Noop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if rs, ok := renderer.(RotationSetter); ok {
		c.rotation = rs
	}
	if eo, ok := renderer.(EstimateObserver); ok {
		c.estimates = eo
	}
	if rm, ok := renderer.(Remover); ok {
		c.remover = rm
	}
	c.scheduler = timectrl.NewTimeController(c.clock, c.interval, timectrl.RealTime)
	c.scheduler.AddListener(c.onFrame)
	return c
}

// Update routes a report to its entity's engine, creating the engine on
// first sight. Reports without a timestamp are stamped with receive time.
// Reports stamped more than the max future skew ahead of receive time are
// rejected with model.ErrFutureTimestamp and never reach an engine.
func (c *MotionController) Update(r model.PositionReport) error {
	now := c.receiveTime()
	if !r.HasTimestamp() {
		r.Timestamp = now
	} else if ahead := r.Timestamp.Sub(now); c.maxFutureSkew > 0 && ahead > c.maxFutureSkew {
		if c.metrics != nil {
			c.metrics.IncReport(reportRejectedFuture)
		}
		c.log.Warn(context.Background(), "future report rejected",
			logging.EntityID(r.ID),
			logging.Duration("ahead", ahead),
		)
		return fmt.Errorf("%w: %s is %s ahead", model.ErrFutureTimestamp, r.ID, ahead)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.engines[r.ID]
	if !ok {
		e = NewMotionEngine(r.ID, c.engineOpts, engineEvents{c})
		c.engines[r.ID] = e
		c.log.Debug(context.Background(), "tracking entity", logging.EntityID(r.ID))
	}
	e.Input(r)
	return nil
}

func (c *MotionController) receiveTime() time.Time {
	if c.frameClock != nil {
		if t := c.frameClock.Now(); !t.IsZero() {
			return t
		}
	}
	return c.clock.Now()
}

// Remove destroys the engine for id and drops its marker from a renderer
// that implements Remover. It reports whether id was tracked; unknown ids
// are ignored.
func (c *MotionController) Remove(id string) bool {
	c.renderMu.Lock()
	defer c.renderMu.Unlock()

	c.mu.Lock()
	e, ok := c.engines[id]
	if ok {
		e.Close()
		delete(c.engines, id)
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	if c.remover != nil {
		c.remover.Remove(id)
	}
	c.log.Debug(context.Background(), "entity removed", logging.EntityID(id))
	return true
}

// Clear destroys every engine and drops every marker it rendered.
func (c *MotionController) Clear() {
	c.renderMu.Lock()
	defer c.renderMu.Unlock()

	c.mu.Lock()
	ids := slices.Sorted(maps.Keys(c.engines))
	for _, e := range c.engines {
		e.Close()
	}
	c.engines = make(map[string]*MotionEngine)
	c.mu.Unlock()

	if c.remover != nil {
		for _, id := range ids {
			c.remover.Remove(id)
		}
	}
	c.log.Debug(context.Background(), "registry cleared", logging.Int("entities", len(ids)))
}

// Len returns the number of tracked entities.
func (c *MotionController) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.engines)
}

// IDs returns the tracked entity ids in sorted order.
func (c *MotionController) IDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Sorted(maps.Keys(c.engines))
}

// Estimate returns the current estimate for id. ok is false for unknown or
// not yet initialised entities.
func (c *MotionController) Estimate(id string) (model.MotionEstimate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.engines[id]
	if !found || !e.Initialized() {
		return model.MotionEstimate{}, false
	}
	return e.Estimate(), true
}

// Start begins the frame loop. Calling Start while running is a no-op.
func (c *MotionController) Start() {
	if c.scheduler.Start() {
		c.log.Info(context.Background(), "frame loop started", logging.Duration("interval", c.interval))
	}
}

// Stop halts the frame loop and releases its timer. It is safe to call
// repeatedly and before Start.
func (c *MotionController) Stop() {
	if c.scheduler.Stop() {
		c.log.Info(context.Background(), "frame loop stopped")
	}
}

// Running reports whether the frame loop is active.
func (c *MotionController) Running() bool { return c.scheduler.Running() }

// Frame advances every engine to now and pushes the results to the renderer.
func (c *MotionController) Frame(now time.Time) {
	start := time.Now()

	type rendered struct {
		id  string
		est model.MotionEstimate
	}

	c.renderMu.Lock()
	defer c.renderMu.Unlock()

	c.mu.Lock()
	ids := slices.Sorted(maps.Keys(c.engines))
	out := make([]rendered, 0, len(ids))
	counts := make(map[model.MotionState]int, len(model.AllMotionStates))
	for _, s := range model.AllMotionStates {
		counts[s] = 0
	}
	for _, id := range ids {
		e := c.engines[id]
		e.Tick(now)
		if !e.Initialized() {
			continue
		}
		est := e.Estimate()
		counts[est.State]++
		out = append(out, rendered{id: id, est: est})
	}
	c.mu.Unlock()

	for _, r := range out {
		if c.renderer != nil {
			c.renderer.SetPosition(r.id, r.est.Pose.Lat, r.est.Pose.Lng)
		}
		if c.rotation != nil {
			c.rotation.SetRotation(r.id, r.est.Pose.Heading)
		}
		if c.estimates != nil {
			c.estimates.ObserveEstimate(r.id, r.est)
		}
	}

	if c.metrics != nil {
		c.metrics.SetEntityStates(counts)
		c.metrics.ObserveFrame(time.Since(start), len(ids))
	}
}

func (c *MotionController) onFrame(now time.Time) {
	if !c.lastFrame.IsZero() {
		if gap := now.Sub(c.lastFrame); gap > c.maxFrameGap {
			c.log.Warn(context.Background(), "late frame",
				logging.Duration("gap", gap),
				logging.Duration("max_frame_gap", c.maxFrameGap),
			)
		}
	}
	c.lastFrame = now
	c.Frame(now)
}

// engineEvents forwards engine notifications to the controller's logger and
// metrics. It is invoked with c.mu held.
type engineEvents struct {
	c *MotionController
}

func (ev engineEvents) ReportBuffered(id string, result PushResult) {
	if ev.c.metrics != nil {
		ev.c.metrics.IncReport(result.String())
	}
	if result == DroppedStale {
		ev.c.log.Debug(context.Background(), "stale report dropped", logging.EntityID(id))
	}
}

func (ev engineEvents) Teleported(id string, distanceM float64) {
	if ev.c.metrics != nil {
		ev.c.metrics.IncTeleport()
	}
	ev.c.log.Info(context.Background(), "entity teleported",
		logging.EntityID(id),
		logging.Float64("distance_m", distanceM),
	)
}

func (ev engineEvents) StateChanged(id string, from, to model.MotionState) {
	fields := []logging.Field{
		logging.EntityID(id),
		logging.String("from", from.String()),
		logging.String("to", to.String()),
	}
	if to == model.StateFrozen {
		ev.c.log.Info(context.Background(), "entity frozen", fields...)
		return
	}
	ev.c.log.Debug(context.Background(), "motion state changed", fields...)
}
