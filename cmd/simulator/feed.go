package main

import (
	"math/rand/v2"
	"sort"
	"time"

	"github.com/signalsfoundry/fleet-motion/model"
)

// feedConfig shapes the synthetic network: every Interval each source is
// sampled, a sample is lost with probability DropRate and otherwise
// delivered after a uniform delay in [0, MaxDelay).
type feedConfig struct {
	Interval time.Duration
	MaxDelay time.Duration
	DropRate float64
}

type delivery struct {
	at     time.Time
	report model.PositionReport
}

// feed turns ground truth into jittered, lossy, possibly reordered reports.
type feed struct {
	cfg     feedConfig
	sources []source
	rng     *rand.Rand
	next    time.Time
	pending []delivery

	sent, dropped int
}

func newFeed(cfg feedConfig, start time.Time, seed uint64, sources ...source) *feed {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	return &feed{
		cfg:     cfg,
		sources: sources,
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		next:    start,
	}
}

// Due samples every source up to now and returns the reports whose delivery
// time has passed, in delivery order.
func (f *feed) Due(now time.Time) []model.PositionReport {
	for !f.next.After(now) {
		for _, src := range f.sources {
			if f.cfg.DropRate > 0 && f.rng.Float64() < f.cfg.DropRate {
				f.dropped++
				continue
			}
			var delay time.Duration
			if f.cfg.MaxDelay > 0 {
				delay = time.Duration(f.rng.Int64N(int64(f.cfg.MaxDelay)))
			}
			f.pending = append(f.pending, delivery{
				at:     f.next.Add(delay),
				report: reportFromTruth(src.ID(), f.next, src.Truth(f.next)),
			})
		}
		f.next = f.next.Add(f.cfg.Interval)
	}

	sort.SliceStable(f.pending, func(i, j int) bool { return f.pending[i].at.Before(f.pending[j].at) })
	n := 0
	for n < len(f.pending) && !f.pending[n].at.After(now) {
		n++
	}
	out := make([]model.PositionReport, n)
	for i := range n {
		out[i] = f.pending[i].report
	}
	f.pending = append(f.pending[:0], f.pending[n:]...)
	f.sent += n
	return out
}

func reportFromTruth(id string, at time.Time, tr truth) model.PositionReport {
	hint := &model.MotionHint{Moving: model.Bool(!tr.Parked), Ignition: model.IgnitionOn}
	if tr.Parked {
		hint.Ignition = model.IgnitionOff
	}
	return model.PositionReport{
		ID:        id,
		Lat:       tr.Lat,
		Lng:       tr.Lng,
		SpeedKmh:  model.Float(tr.SpeedKmh),
		Heading:   model.Float(tr.Heading),
		Timestamp: at,
		Motion:    hint,
	}
}
