// Package kb holds the latest rendered state of every tracked entity. A
// MarkerStore is the output sink of the motion controller: it receives
// per-frame positions, rotations and estimates and fans them out to
// subscribers.
package kb

import (
	"slices"
	"strings"
	"sync"

	"github.com/signalsfoundry/fleet-motion/model"
)

// EventType indicates what kind of change happened in the store.
type EventType int

const (
	EventMarkerMoved EventType = iota
	EventMarkerRotated
	EventEstimateUpdated
	EventMarkerRemoved
)

func (t EventType) String() string {
	switch t {
	case EventMarkerMoved:
		return "moved"
	case EventMarkerRotated:
		return "rotated"
	case EventEstimateUpdated:
		return "estimate"
	case EventMarkerRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Marker is the rendered state of one entity.
type Marker struct {
	ID       string
	Lat      float64
	Lng      float64
	Rotation float64

	// Estimate is the last full estimate seen, valid when HasEstimate is set.
	Estimate    model.MotionEstimate
	HasEstimate bool
}

// Event is emitted to subscribers after every change.
type Event struct {
	Type   EventType
	Marker Marker
}

// MarkerStore is an in-memory, thread-safe marker registry.
type MarkerStore struct {
	mu      sync.RWMutex
	markers map[string]*Marker

	nextSub int
	subs    map[int]func(Event)
}

// NewMarkerStore constructs an empty store.
func NewMarkerStore() *MarkerStore {
	return &MarkerStore{
		markers: make(map[string]*Marker),
		subs:    make(map[int]func(Event)),
	}
}

// SetPosition moves (or creates) the marker for id.
func (s *MarkerStore) SetPosition(id string, lat, lng float64) {
	s.mutate(id, EventMarkerMoved, func(m *Marker) {
		m.Lat, m.Lng = lat, lng
	})
}

// SetRotation orients the marker for id.
func (s *MarkerStore) SetRotation(id string, headingDeg float64) {
	s.mutate(id, EventMarkerRotated, func(m *Marker) {
		m.Rotation = headingDeg
	})
}

// ObserveEstimate stores the full estimate alongside the marker.
func (s *MarkerStore) ObserveEstimate(id string, est model.MotionEstimate) {
	s.mutate(id, EventEstimateUpdated, func(m *Marker) {
		m.Estimate = est
		m.HasEstimate = true
	})
}

func (s *MarkerStore) mutate(id string, typ EventType, apply func(*Marker)) {
	s.mu.Lock()
	m, ok := s.markers[id]
	if !ok {
		m = &Marker{ID: id}
		s.markers[id] = m
	}
	apply(m)
	ev := Event{Type: typ, Marker: *m}
	subs := s.subscribersLocked()
	s.mu.Unlock()

	// Notify outside the lock so subscribers may read the store.
	for _, fn := range subs {
		fn(ev)
	}
}

// Get returns a copy of the marker for id.
func (s *MarkerStore) Get(id string) (Marker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.markers[id]
	if !ok {
		return Marker{}, false
	}
	return *m, true
}

// List returns a snapshot of every marker ordered by id.
func (s *MarkerStore) List() []Marker {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]Marker, 0, len(s.markers))
	for _, m := range s.markers {
		res = append(res, *m)
	}
	slices.SortFunc(res, func(a, b Marker) int { return strings.Compare(a.ID, b.ID) })
	return res
}

// Len returns the number of markers.
func (s *MarkerStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.markers)
}

// Remove deletes the marker for id and reports whether it existed.
func (s *MarkerStore) Remove(id string) bool {
	s.mu.Lock()
	m, ok := s.markers[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.markers, id)
	ev := Event{Type: EventMarkerRemoved, Marker: *m}
	subs := s.subscribersLocked()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
	return true
}

// Subscribe registers a callback for store events. The returned function
// unsubscribes and is safe to call more than once.
func (s *MarkerStore) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *MarkerStore) subscribersLocked() []func(Event) {
	keys := make([]int, 0, len(s.subs))
	for k := range s.subs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]func(Event), 0, len(keys))
	for _, k := range keys {
		out = append(out, s.subs[k])
	}
	return out
}
