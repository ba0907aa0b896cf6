package core

import (
	"time"

	"github.com/signalsfoundry/fleet-motion/model"
)

// DefaultBufferCapacity bounds the per-entity jitter buffer.
const DefaultBufferCapacity = 50

// PushResult describes what NetworkBuffer.Push did with a report.
type PushResult int

const (
	// Buffered means the report was accepted.
	Buffered PushResult = iota
	// DroppedStale means the report was older than the last popped report.
	DroppedStale
	// BufferedEvicted means the report was queued and the oldest entry was evicted.
	BufferedEvicted
)

func (r PushResult) String() string {
	switch r {
	case DroppedStale:
		return "dropped_stale"
	case BufferedEvicted:
		return "evicted"
	default:
		return "buffered"
	}
}

// NetworkBuffer is a per-entity jitter buffer. It hands reports to the engine
// in non-decreasing timestamp order despite out-of-order delivery.
//
// Ordering is best effort: reports older than the last popped one are dropped
// and the oldest entry is evicted when the buffer overflows. Reports without
// a timestamp are never dropped; they queue behind everything already
// buffered and do not move the watermark.
type NetworkBuffer struct {
	capacity  int
	items     []model.PositionReport
	watermark time.Time
	latest    time.Time
}

// NewNetworkBuffer constructs a buffer holding at most capacity reports.
// Non-positive capacities fall back to DefaultBufferCapacity.
func NewNetworkBuffer(capacity int) *NetworkBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &NetworkBuffer{
		capacity: capacity,
		items:    make([]model.PositionReport, 0, capacity),
	}
}

// Push queues a report, keeping the buffer sorted by timestamp.
func (b *NetworkBuffer) Push(r model.PositionReport) PushResult {
	if !r.HasTimestamp() {
		b.items = append(b.items, r)
		return b.evict()
	}
	if !b.watermark.IsZero() && r.Timestamp.Before(b.watermark) {
		return DroppedStale
	}

	// Scan back from the tail: new reports usually arrive in order, and an
	// untimestamped entry acts as a barrier that keeps its arrival slot.
	idx := len(b.items)
	for idx > 0 {
		it := b.items[idx-1]
		if !it.HasTimestamp() || !it.Timestamp.After(r.Timestamp) {
			break
		}
		idx--
	}
	b.items = append(b.items, model.PositionReport{})
	copy(b.items[idx+1:], b.items[idx:])
	b.items[idx] = r

	if r.Timestamp.After(b.latest) {
		b.latest = r.Timestamp
	}
	return b.evict()
}

func (b *NetworkBuffer) evict() PushResult {
	if len(b.items) <= b.capacity {
		return Buffered
	}
	b.items = b.items[len(b.items)-b.capacity:]
	return BufferedEvicted
}

// Pop removes and returns the earliest report. The second return value is
// false when the buffer is empty.
func (b *NetworkBuffer) Pop() (model.PositionReport, bool) {
	if len(b.items) == 0 {
		return model.PositionReport{}, false
	}
	r := b.items[0]
	b.items[0] = model.PositionReport{}
	b.items = b.items[1:]
	if r.HasTimestamp() && r.Timestamp.After(b.watermark) {
		b.watermark = r.Timestamp
	}
	return r, true
}

// Advance moves the watermark forward to t for a report applied without
// passing through the queue. Earlier times are ignored.
func (b *NetworkBuffer) Advance(t time.Time) {
	if t.After(b.watermark) {
		b.watermark = t
	}
	if t.After(b.latest) {
		b.latest = t
	}
}

// Len returns the number of queued reports.
func (b *NetworkBuffer) Len() int { return len(b.items) }

// LatestTimestamp returns the newest timestamp ever accepted. It is kept for
// observability only.
func (b *NetworkBuffer) LatestTimestamp() time.Time { return b.latest }

// Watermark returns the timestamp of the last popped report.
func (b *NetworkBuffer) Watermark() time.Time { return b.watermark }
