package timectrl

import (
	"testing"
	"time"
)

var epoch = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

func TestTimeControllerSetTime(t *testing.T) {
	tc := NewTimeController(NewManualClock(epoch), time.Second, RealTime)

	newNow := epoch.Add(42 * time.Second)
	tc.SetTime(newNow)

	if got := tc.Now(); !got.Equal(newNow) {
		t.Fatalf("Now() = %v, want %v", got, newNow)
	}
}

func TestTimeControllerStepRealTimeUsesClock(t *testing.T) {
	clock := NewManualClock(epoch)
	tc := NewTimeController(clock, time.Second, RealTime)

	var got []time.Time
	tc.AddListener(func(now time.Time) { got = append(got, now) })

	clock.Advance(1500 * time.Millisecond)
	tc.Step()

	if len(got) != 1 || !got[0].Equal(epoch.Add(1500*time.Millisecond)) {
		t.Fatalf("listener times = %v, want [%v]", got, epoch.Add(1500*time.Millisecond))
	}
	if tc.Frames() != 1 {
		t.Fatalf("Frames() = %d, want 1", tc.Frames())
	}
}

func TestTimeControllerStepAcceleratedAdvancesByTick(t *testing.T) {
	tc := NewTimeController(NewManualClock(epoch), 5*time.Second, Accelerated)
	tc.Step()
	tc.Step()
	tc.Step()

	if want := epoch.Add(15 * time.Second); !tc.Now().Equal(want) {
		t.Fatalf("Now() = %v, want %v", tc.Now(), want)
	}
}

func TestTimeControllerStartDeliversFrames(t *testing.T) {
	clock := NewManualClock(epoch)
	tc := NewTimeController(clock, 100*time.Millisecond, RealTime)

	frames := make(chan time.Time, 4)
	tc.AddListener(func(now time.Time) { frames <- now })

	if !tc.Start() {
		t.Fatalf("Start() = false on first call")
	}
	if tc.Start() {
		t.Fatalf("Start() = true while already running")
	}

	clock.Advance(100 * time.Millisecond)
	select {
	case got := <-frames:
		if !got.Equal(epoch.Add(100 * time.Millisecond)) {
			t.Fatalf("frame time = %v, want %v", got, epoch.Add(100*time.Millisecond))
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no frame delivered after advancing the clock")
	}

	if !tc.Stop() {
		t.Fatalf("Stop() = false while running")
	}
	if tc.Running() {
		t.Fatalf("Running() = true after Stop")
	}
}

func TestTimeControllerStopIsIdempotent(t *testing.T) {
	clock := NewManualClock(epoch)
	tc := NewTimeController(clock, time.Second, RealTime)

	if tc.Stop() {
		t.Fatalf("Stop() on idle controller = true")
	}
	tc.Start()
	if !tc.Stop() {
		t.Fatalf("first Stop() = false")
	}
	if tc.Stop() {
		t.Fatalf("second Stop() = true")
	}
	if n := clock.ActiveTickers(); n != 0 {
		t.Fatalf("ActiveTickers() = %d after Stop, want 0", n)
	}

	// Restart after stop gets a fresh ticker.
	tc.Start()
	if n := clock.ActiveTickers(); n != 1 {
		t.Fatalf("ActiveTickers() = %d after restart, want 1", n)
	}
	tc.Stop()
}

func TestTimeControllerNoFramesAfterStop(t *testing.T) {
	clock := NewManualClock(epoch)
	tc := NewTimeController(clock, time.Second, RealTime)
	calls := 0
	tc.AddListener(func(time.Time) { calls++ })

	tc.Start()
	tc.Stop()
	clock.Advance(5 * time.Second)

	if calls != 0 {
		t.Fatalf("listener called %d times after Stop", calls)
	}
}

func TestTimeControllerListenerAddedDuringFrame(t *testing.T) {
	tc := NewTimeController(NewManualClock(epoch), time.Second, Accelerated)

	var outer, inner int
	tc.AddListener(func(time.Time) {
		outer++
		if outer == 1 {
			tc.AddListener(func(time.Time) { inner++ })
		}
	})

	tc.Step()
	if outer != 1 || inner != 0 {
		t.Fatalf("after first Step outer=%d inner=%d, want 1/0", outer, inner)
	}
	tc.Step()
	if outer != 2 || inner != 1 {
		t.Fatalf("after second Step outer=%d inner=%d, want 2/1", outer, inner)
	}
}
