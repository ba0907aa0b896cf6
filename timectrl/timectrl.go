package timectrl

import (
	"slices"
	"sync"
	"time"
)

// DefaultTick is roughly one display frame at 30 Hz.
const DefaultTick = 33 * time.Millisecond

// FrameClock is the read side of a TimeController. Components that only need
// the current frame time depend on this rather than the concrete controller.
type FrameClock interface {
	// Now returns the time of the most recent frame.
	Now() time.Time
}

// Mode describes how the TimeController produces frame times.
type Mode int

const (
	// RealTime stamps every frame with the wall clock.
	RealTime Mode = iota
	// Accelerated advances frame time by Tick per frame regardless of how
	// much wall time passed, so simulations can run faster than real time.
	Accelerated
)

func (m Mode) String() string {
	if m == Accelerated {
		return "accelerated"
	}
	return "realtime"
}

// TimeController runs the per-frame loop and notifies registered listeners
// with the frame time. Start and Stop are idempotent; Stop waits for the
// loop goroutine to exit and releases its ticker.
type TimeController struct {
	mu    sync.RWMutex
	clock Clock
	Tick  time.Duration
	Pace  time.Duration
	Mode  Mode

	currentTime time.Time
	frames      uint64
	listeners   []func(time.Time)

	stop chan struct{}
	done chan struct{}
}

// NewTimeController constructs a controller. In RealTime mode frames arrive
// every tick of wall time. In Accelerated mode frame time advances by tick
// per frame and frames are paced every pace of wall time (tick when zero).
func NewTimeController(clock Clock, tick time.Duration, mode Mode) *TimeController {
	if clock == nil {
		clock = RealClock{}
	}
	if tick <= 0 {
		tick = DefaultTick
	}
	return &TimeController{
		clock:       clock,
		Tick:        tick,
		Mode:        mode,
		currentTime: clock.Now(),
	}
}

// Now returns the time of the latest frame. Implements FrameClock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// SetTime moves the frame clock, typically to seed an accelerated run.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.currentTime = t
}

// Frames returns how many frames have been delivered.
func (tc *TimeController) Frames() uint64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.frames
}

// AddListener registers a callback invoked on every frame.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// Running reports whether the frame loop is active.
func (tc *TimeController) Running() bool {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.stop != nil
}

// Start launches the frame loop. It returns false if the loop was already
// running.
func (tc *TimeController) Start() bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.stop != nil {
		return false
	}

	pace := tc.Tick
	if tc.Mode == Accelerated && tc.Pace > 0 {
		pace = tc.Pace
	}
	ticker := tc.clock.NewTicker(pace)
	stop := make(chan struct{})
	done := make(chan struct{})
	tc.stop, tc.done = stop, done

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C():
				tc.Step()
			}
		}
	}()
	return true
}

// Stop cancels the frame loop and blocks until it has exited. It returns
// false if the loop was not running. Calling Stop from a listener would
// deadlock and is not supported.
func (tc *TimeController) Stop() bool {
	tc.mu.Lock()
	stop, done := tc.stop, tc.done
	tc.stop, tc.done = nil, nil
	tc.mu.Unlock()

	if stop == nil {
		return false
	}
	close(stop)
	<-done
	return true
}

// Step delivers one frame synchronously and returns its time. The loop uses
// it on every tick; offline drivers and tests may call it directly.
func (tc *TimeController) Step() time.Time {
	tc.mu.Lock()
	if tc.Mode == Accelerated {
		tc.currentTime = tc.currentTime.Add(tc.Tick)
	} else {
		tc.currentTime = tc.clock.Now()
	}
	tc.frames++
	now := tc.currentTime
	listeners := slices.Clone(tc.listeners)
	tc.mu.Unlock()

	for _, fn := range listeners {
		fn(now)
	}
	return now
}
